package outbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dukahub/dukasync/internal/pos"
)

// InsertSubmission writes a new tax submission. Submissions always start
// pending; they are never deleted, only status-transitioned, for audit
// purposes.
func (s *Store) InsertSubmission(ctx context.Context, sub pos.TaxSubmission) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tax_submissions
		(id, store_id, invoice_number, status, submitted_at, response_data, created_at)
		VALUES (?, ?, ?, 'pending', NULL, ?, ?)
	`,
		sub.ID, sub.StoreID, sub.InvoiceNumber,
		string(sub.ResponseData), encodeTime(sub.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert submission %s: %w", sub.InvoiceNumber, err)
	}
	return nil
}

// GetSubmission returns a submission by invoice number, or (nil, nil) when
// absent. Invoice numbers are globally unique, so they are the natural key
// for file-exchange cross-validation.
func (s *Store) GetSubmission(ctx context.Context, invoiceNumber string) (*pos.TaxSubmission, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, store_id, invoice_number, status, submitted_at, response_data, created_at
		FROM tax_submissions WHERE invoice_number = ?
	`, invoiceNumber)
	sub, err := scanSubmission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get submission %s: %w", invoiceNumber, err)
	}
	return &sub, nil
}

// PendingSubmissions returns all submissions still awaiting confirmation,
// oldest first.
func (s *Store) PendingSubmissions(ctx context.Context) ([]pos.TaxSubmission, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, store_id, invoice_number, status, submitted_at, response_data, created_at
		FROM tax_submissions WHERE status = 'pending' ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query pending submissions: %w", err)
	}
	defer rows.Close()

	var subs []pos.TaxSubmission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pending submission: %w", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending submissions: %w", err)
	}
	return subs, nil
}

// CountPendingSubmissions returns the number of submissions still pending.
func (s *Store) CountPendingSubmissions(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tax_submissions WHERE status = 'pending'`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pending submissions: %w", err)
	}
	return n, nil
}

// TransitionSubmission moves a pending submission to a terminal status and
// records the response payload. The WHERE status = 'pending' guard makes
// the transition idempotent: an already-submitted record is left unchanged
// and the call reports updated=false.
func (s *Store) TransitionSubmission(
	ctx context.Context,
	invoiceNumber string,
	status pos.SubmissionStatus,
	submittedAt time.Time,
	responseData []byte,
) (updated bool, err error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tax_submissions
		SET status = ?, submitted_at = ?, response_data = ?
		WHERE invoice_number = ? AND status = 'pending'
	`,
		string(status), encodeTime(submittedAt), string(responseData), invoiceNumber,
	)
	if err != nil {
		return false, fmt.Errorf("transition submission %s: %w", invoiceNumber, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition submission %s: rows affected: %w", invoiceNumber, err)
	}
	return n > 0, nil
}

func scanSubmission(r rowScanner) (pos.TaxSubmission, error) {
	var sub pos.TaxSubmission
	var status, createdAt, responseData string
	var submittedAt sql.NullString
	err := r.Scan(
		&sub.ID, &sub.StoreID, &sub.InvoiceNumber,
		&status, &submittedAt, &responseData, &createdAt,
	)
	if err != nil {
		return pos.TaxSubmission{}, err
	}
	sub.Status = pos.SubmissionStatus(status)
	if responseData != "" {
		sub.ResponseData = []byte(responseData)
	}
	if submittedAt.Valid && submittedAt.String != "" {
		t, err := decodeTime(submittedAt.String)
		if err != nil {
			return pos.TaxSubmission{}, err
		}
		sub.SubmittedAt = &t
	}
	if sub.CreatedAt, err = decodeTime(createdAt); err != nil {
		return pos.TaxSubmission{}, err
	}
	return sub, nil
}
