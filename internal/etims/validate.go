package etims

import (
	_ "embed"
	"errors"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cuejson "cuelang.org/go/encoding/json"
)

//go:embed results_schema.cue
var resultsSchemaCUE string

var (
	schemaOnce  sync.Once
	schemaValue cue.Value
)

// ValidationError rejects a file-exchange document before any local state
// mutation. It covers both structural failures (not JSON, missing
// processed_submissions) and cross-reference failures (results naming
// submissions that were never sent out).
type ValidationError struct {
	Message       string
	InvoiceNumber string // set for cross-reference failures
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.InvoiceNumber != "" {
		return fmt.Sprintf("invalid results file: %s (invoice_number=%s)", e.Message, e.InvoiceNumber)
	}
	return "invalid results file: " + e.Message
}

// IsValidationError returns true if the error is a file validation
// rejection. Uses errors.As to handle wrapped errors.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// resultsSchema compiles the embedded CUE schema once.
func resultsSchema() cue.Value {
	schemaOnce.Do(func() {
		schemaValue = cuecontext.New().CompileString(resultsSchemaCUE)
	})
	return schemaValue
}

// validateResults checks a raw results document against the CUE schema.
func validateResults(data []byte) error {
	schema := resultsSchema()
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile results schema: %w", err)
	}
	if err := cuejson.Validate(data, schema); err != nil {
		return &ValidationError{Message: err.Error()}
	}
	return nil
}
