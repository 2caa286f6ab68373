// Package etims manages the lifecycle of regulatory tax invoice
// submissions.
//
// Submissions are created synchronously by stock-increasing mutations and
// delivered over one of two paths: the direct network path, or an
// air-gapped file exchange for terminals that may never reach
// connectivity. The submission status field is the single source of truth
// checked before any retry - a record marked submitted by one path is
// never re-sent by the other.
package etims

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dukahub/dukasync/internal/mode"
	"github.com/dukahub/dukasync/internal/outbox"
	"github.com/dukahub/dukasync/internal/pos"
	"github.com/dukahub/dukasync/internal/remote"
)

// Relay prepares, queues, and transports tax submissions.
type Relay struct {
	outbox  *outbox.Store
	backend remote.Backend
	modes   *mode.Manager // nil means always attempt direct delivery
	storeID string
	vatRate float64

	now   func() time.Time
	newID func() string
}

// Option configures a Relay.
type Option func(*Relay)

// WithClock overrides the time source for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(r *Relay) {
		r.now = now
	}
}

// WithIDGenerator overrides the session/record id source for
// deterministic tests and golden files.
func WithIDGenerator(gen func() string) Option {
	return func(r *Relay) {
		r.newID = gen
	}
}

// NewRelay creates a relay for the given store and VAT rate.
func NewRelay(ob *outbox.Store, backend remote.Backend, modes *mode.Manager, storeID string, vatRate float64, opts ...Option) *Relay {
	r := &Relay{
		outbox:  ob,
		backend: backend,
		modes:   modes,
		storeID: storeID,
		vatRate: vatRate,
		now:     time.Now,
		newID: func() string {
			return uuid.Must(uuid.NewV7()).String()
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// StockIn describes a stock-increasing mutation: a new product with a
// positive opening quantity, a bulk stock update with a positive delta, or
// a recorded purchase line.
type StockIn struct {
	ProductID   string
	Description string
	Quantity    int
	UnitCost    float64
	VATStatus   pos.VATStatus
}

// ComputeVAT returns the VAT amount for a cost basis and quantity under
// the given classification, rounded to cents. Zero-rated and exempt goods
// carry no VAT.
func ComputeVAT(unitCost float64, quantity int, status pos.VATStatus, rate float64) float64 {
	if status != pos.VATTaxable || quantity <= 0 {
		return 0
	}
	vat := unitCost * float64(quantity) * rate
	return math.Round(vat*100) / 100
}

// RecordStockIn builds and queues a submission for a stock-increasing
// mutation with taxable value, attempting immediate direct delivery when
// online. Mutations with no taxable value produce no submission.
//
// Delivery is best-effort relative to the inventory operation that caused
// it: a failed remote call leaves the submission pending and is only
// logged. RecordStockIn returns an error only when the local store itself
// fails.
func (r *Relay) RecordStockIn(ctx context.Context, in StockIn) (*pos.TaxSubmission, error) {
	vat := ComputeVAT(in.UnitCost, in.Quantity, in.VATStatus, r.vatRate)
	if vat <= 0 {
		return nil, nil
	}

	now := r.now()
	content, err := json.Marshal(map[string]any{
		"product_id":     in.ProductID,
		"description":    in.Description,
		"quantity":       in.Quantity,
		"unit_cost":      in.UnitCost,
		"taxable_amount": math.Round(in.UnitCost*float64(in.Quantity)*100) / 100,
		"vat_amount":     vat,
		"vat_status":     string(in.VATStatus),
	})
	if err != nil {
		return nil, fmt.Errorf("encode invoice content: %w", err)
	}

	sub := pos.TaxSubmission{
		ID:            r.newID(),
		StoreID:       r.storeID,
		InvoiceNumber: r.invoiceNumber(now),
		Status:        pos.SubmissionPending,
		ResponseData:  content,
		CreatedAt:     now,
	}
	if err := r.outbox.InsertSubmission(ctx, sub); err != nil {
		return nil, fmt.Errorf("queue tax submission: %w", err)
	}
	slog.Info("tax submission queued",
		"invoice_number", sub.InvoiceNumber,
		"vat_amount", vat,
	)

	if r.online() {
		r.trySubmit(ctx, sub)
	}
	return &sub, nil
}

// SubmitPending drains every pending submission over the direct path.
// Returns the number delivered and the number that stayed pending.
func (r *Relay) SubmitPending(ctx context.Context) (delivered, remaining int, err error) {
	pending, err := r.outbox.PendingSubmissions(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("load pending submissions: %w", err)
	}

	for _, sub := range pending {
		// Re-read the status before any retry: a file-exchange import may
		// have confirmed this submission since the list was loaded.
		current, err := r.outbox.GetSubmission(ctx, sub.InvoiceNumber)
		if err != nil {
			return delivered, remaining, err
		}
		if current == nil || current.Status != pos.SubmissionPending {
			continue
		}
		if r.trySubmit(ctx, *current) {
			delivered++
		} else {
			remaining++
		}
	}
	return delivered, remaining, nil
}

// trySubmit attempts one direct delivery. Failure leaves the record
// pending for a later drain or file exchange.
func (r *Relay) trySubmit(ctx context.Context, sub pos.TaxSubmission) bool {
	result, err := r.backend.SubmitTaxInvoice(ctx, remote.InvoicePayload{
		InvoiceNumber: sub.InvoiceNumber,
		StoreID:       sub.StoreID,
		IssuedAt:      sub.CreatedAt,
		Content:       sub.ResponseData,
	})
	if err != nil {
		slog.Warn("direct tax submission failed, left pending",
			"invoice_number", sub.InvoiceNumber,
			"error", err,
		)
		return false
	}

	response := result.Response
	if response == nil {
		response = sub.ResponseData
	}
	updated, err := r.outbox.TransitionSubmission(
		ctx, sub.InvoiceNumber, pos.SubmissionSubmitted, r.now(), response)
	if err != nil {
		slog.Error("record tax submission result failed",
			"invoice_number", sub.InvoiceNumber,
			"error", err,
		)
		return false
	}
	if updated {
		slog.Info("tax submission accepted", "invoice_number", sub.InvoiceNumber)
	}
	return true
}

func (r *Relay) online() bool {
	if r.modes == nil {
		return true
	}
	return r.modes.CurrentMode() == mode.Online
}

// invoiceNumber derives a globally unique invoice number from the store,
// the date, and a random suffix.
func (r *Relay) invoiceNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(r.newID(), "-", ""))
	if len(suffix) > 8 {
		suffix = suffix[:8]
	}
	return fmt.Sprintf("%s-%s-%s", r.storeID, now.UTC().Format("20060102"), suffix)
}
