package etims

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dukahub/dukasync/internal/pos"
)

// ExportFile is the portable document carried to a connected device.
// The shape is an interop contract; field names must not change.
type ExportFile struct {
	SessionID   string               `json:"session_id"`
	Submissions []ExportedSubmission `json:"submissions"`
}

// ExportedSubmission is one pending submission's full payload.
type ExportedSubmission struct {
	ID            string          `json:"id"`
	InvoiceNumber string          `json:"invoice_number"`
	SubmittedAt   *time.Time      `json:"submitted_at"`
	ResponseData  json.RawMessage `json:"response_data"`
}

// ResultsFile is the document produced on the connected device, carrying
// one outcome per submission.
type ResultsFile struct {
	SessionID string             `json:"session_id"`
	StoreID   string             `json:"store_id"`
	Processed []SubmissionResult `json:"processed_submissions"`
}

// SubmissionResult is one submission's outcome. Fields beyond
// invoice_number and status are opaque and stored verbatim as the
// submission's response data.
type SubmissionResult struct {
	InvoiceNumber string `json:"invoice_number"`
	Status        string `json:"status"`

	raw json.RawMessage
}

// ImportSummary reports what an import applied.
type ImportSummary struct {
	SessionID string
	Applied   int // pending submissions transitioned
	Skipped   int // already in a terminal status (idempotent re-import)
	Total     int
}

// ExportFileName returns the deterministic name for a session's export
// file, for operator traceability.
func ExportFileName(sessionID string) string {
	return fmt.Sprintf("etims-sync-%s.json", sessionID)
}

// Export writes every pending submission into a single portable file in
// dir, keyed by a generated session id. Returns the file path and the
// number of submissions exported; no file is written when nothing is
// pending.
func (r *Relay) Export(ctx context.Context, dir string) (path string, count int, err error) {
	pending, err := r.outbox.PendingSubmissions(ctx)
	if err != nil {
		return "", 0, fmt.Errorf("load pending submissions: %w", err)
	}
	if len(pending) == 0 {
		return "", 0, nil
	}

	file := ExportFile{
		SessionID:   r.newID(),
		Submissions: make([]ExportedSubmission, 0, len(pending)),
	}
	for _, sub := range pending {
		file.Submissions = append(file.Submissions, ExportedSubmission{
			ID:            sub.ID,
			InvoiceNumber: sub.InvoiceNumber,
			SubmittedAt:   sub.SubmittedAt,
			ResponseData:  sub.ResponseData,
		})
	}

	encoded, err := EncodeExport(file)
	if err != nil {
		return "", 0, err
	}

	path = filepath.Join(dir, ExportFileName(file.SessionID))
	if err := os.WriteFile(path, encoded, 0o644); err != nil {
		return "", 0, fmt.Errorf("write export file: %w", err)
	}

	slog.Info("exported pending tax submissions",
		"session_id", file.SessionID,
		"count", len(pending),
		"path", path,
	)
	return path, len(pending), nil
}

// EncodeExport serializes an export document with stable formatting.
func EncodeExport(file ExportFile) ([]byte, error) {
	encoded, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode export file: %w", err)
	}
	return append(encoded, '\n'), nil
}

// ImportResults applies a results document.
//
// The document passes three gates before any local mutation:
//  1. structural validation against the embedded CUE schema,
//  2. JSON decoding,
//  3. cross-validation that every result's invoice number names a
//     submission this terminal actually holds.
//
// Application itself is idempotent: a result for an already-submitted
// record is skipped, so re-importing the same file is harmless.
func (r *Relay) ImportResults(ctx context.Context, data []byte) (ImportSummary, error) {
	if err := validateResults(data); err != nil {
		return ImportSummary{}, err
	}

	results, err := decodeResults(data)
	if err != nil {
		return ImportSummary{}, err
	}

	// Cross-validate the full result set first: a single unknown invoice
	// number rejects the file with nothing applied.
	for _, res := range results.Processed {
		sub, err := r.outbox.GetSubmission(ctx, res.InvoiceNumber)
		if err != nil {
			return ImportSummary{}, err
		}
		if sub == nil {
			return ImportSummary{}, &ValidationError{
				Message:       "result does not correspond to a known submission",
				InvoiceNumber: res.InvoiceNumber,
			}
		}
	}

	summary := ImportSummary{
		SessionID: results.SessionID,
		Total:     len(results.Processed),
	}
	now := r.now()
	for _, res := range results.Processed {
		status := pos.SubmissionSubmitted
		if res.Status == string(pos.SubmissionFailed) {
			status = pos.SubmissionFailed
		}
		updated, err := r.outbox.TransitionSubmission(ctx, res.InvoiceNumber, status, now, res.raw)
		if err != nil {
			return summary, err
		}
		if updated {
			summary.Applied++
		} else {
			summary.Skipped++
		}
	}

	slog.Info("imported tax submission results",
		"session_id", summary.SessionID,
		"applied", summary.Applied,
		"skipped", summary.Skipped,
	)
	return summary, nil
}

// ImportResultsFile reads and applies a results document from disk.
func (r *Relay) ImportResultsFile(ctx context.Context, path string) (ImportSummary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ImportSummary{}, fmt.Errorf("read results file: %w", err)
	}
	return r.ImportResults(ctx, data)
}

// decodeResults unmarshals a validated results document, retaining each
// result's raw bytes for response storage.
func decodeResults(data []byte) (ResultsFile, error) {
	var results ResultsFile
	if err := json.Unmarshal(data, &results); err != nil {
		return ResultsFile{}, &ValidationError{Message: err.Error()}
	}

	var envelope struct {
		Processed []json.RawMessage `json:"processed_submissions"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return ResultsFile{}, &ValidationError{Message: err.Error()}
	}
	for i := range results.Processed {
		results.Processed[i].raw = envelope.Processed[i]
	}
	return results, nil
}
