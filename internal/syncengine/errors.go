package syncengine

import (
	"errors"
	"fmt"
)

// SyncError represents a failure detected during a sync cycle.
//
// The codes mirror the engine's error taxonomy:
//   - Connectivity: a remote call failed or timed out; the affected records
//     stay unsynced and the next cycle retries them.
//   - SKU conflict: a locally new product's SKU collides with a different
//     remote record; the whole batch is rejected and requires operator
//     intervention.
//   - Partial item: a single transaction failed inside an otherwise
//     successful batch; isolated, siblings are unaffected.
type SyncError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// SKU is the colliding SKU (conflict errors).
	SKU string

	// LocalID and RemoteID identify the colliding records (conflict errors).
	LocalID  string
	RemoteID string

	// RecordID identifies the failed record (partial-item errors).
	RecordID string

	// Err is the underlying cause, if any.
	Err error
}

// ErrorCode categorizes sync errors.
type ErrorCode string

const (
	// ErrCodeConnectivity indicates a remote call failed or timed out.
	ErrCodeConnectivity ErrorCode = "CONNECTIVITY"

	// ErrCodeSKUConflict indicates a cross-terminal SKU collision.
	ErrCodeSKUConflict ErrorCode = "SKU_CONFLICT"

	// ErrCodePartialItem indicates a single record failed within a batch.
	ErrCodePartialItem ErrorCode = "PARTIAL_ITEM"
)

// Error implements the error interface.
func (e *SyncError) Error() string {
	switch {
	case e.SKU != "":
		return fmt.Sprintf("%s: %s (sku=%s, local=%s, remote=%s)", e.Code, e.Message, e.SKU, e.LocalID, e.RemoteID)
	case e.RecordID != "":
		return fmt.Sprintf("%s: %s (record=%s)", e.Code, e.Message, e.RecordID)
	default:
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
}

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (e *SyncError) Unwrap() error {
	return e.Err
}

// IsConflictError returns true if the error is a SKU conflict.
// Uses errors.As to handle wrapped errors.
func IsConflictError(err error) bool {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Code == ErrCodeSKUConflict
	}
	return false
}

// IsConnectivityError returns true if the error is a connectivity failure.
func IsConnectivityError(err error) bool {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Code == ErrCodeConnectivity
	}
	return false
}

// NewSKUConflictError creates a SyncError for a cross-terminal SKU
// collision. The batch containing the colliding record must be rejected in
// full, never partially applied or silently merged.
func NewSKUConflictError(sku, localID, remoteID string) *SyncError {
	return &SyncError{
		Code:     ErrCodeSKUConflict,
		Message:  "sku already belongs to a different remote product",
		SKU:      sku,
		LocalID:  localID,
		RemoteID: remoteID,
	}
}

// NewConnectivityError wraps a failed remote call.
func NewConnectivityError(op string, err error) *SyncError {
	return &SyncError{
		Code:    ErrCodeConnectivity,
		Message: op + " failed",
		Err:     err,
	}
}

// NewPartialItemError wraps a single record's failure within a batch.
func NewPartialItemError(recordID string, err error) *SyncError {
	return &SyncError{
		Code:     ErrCodePartialItem,
		Message:  "record failed to sync",
		RecordID: recordID,
		Err:      err,
	}
}
