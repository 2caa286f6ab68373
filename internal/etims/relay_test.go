package etims

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukahub/dukasync/internal/mode"
	"github.com/dukahub/dukasync/internal/outbox"
	"github.com/dukahub/dukasync/internal/pos"
	"github.com/dukahub/dukasync/internal/testutil"
)

func newTestRelay(t *testing.T, modes *mode.Manager) (*Relay, *outbox.Store, *testutil.FakeBackend, *testutil.Clock) {
	t.Helper()
	st, err := outbox.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	clock := testutil.NewClock(time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC))
	backend := testutil.NewFakeBackend()
	ids := testutil.NewFixedIDs(
		"sub-0001", "INVSUF01",
		"sub-0002", "INVSUF02",
		"sub-0003", "INVSUF03",
		"session-0001",
	)
	relay := NewRelay(st, backend, modes, "ST01", 0.16,
		WithClock(clock.Now),
		WithIDGenerator(ids.Next),
	)
	return relay, st, backend, clock
}

func offlineManager() *mode.Manager {
	return mode.NewManager(mode.Settings{Preference: mode.PreferenceOffline})
}

func TestComputeVAT(t *testing.T) {
	tests := []struct {
		name     string
		unitCost float64
		quantity int
		status   pos.VATStatus
		want     float64
	}{
		{"taxable", 120, 10, pos.VATTaxable, 192},
		{"taxable rounds to cents", 33.33, 3, pos.VATTaxable, 16},
		{"zero rated", 120, 10, pos.VATZeroRated, 0},
		{"exempt", 120, 10, pos.VATExempt, 0},
		{"zero quantity", 120, 0, pos.VATTaxable, 0},
		{"negative quantity", 120, -5, pos.VATTaxable, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeVAT(tt.unitCost, tt.quantity, tt.status, 0.16)
			assert.InDelta(t, tt.want, got, 0.001)
		})
	}
}

func TestRecordStockIn_NoTaxableValueNoSubmission(t *testing.T) {
	relay, st, _, _ := newTestRelay(t, offlineManager())
	ctx := context.Background()

	sub, err := relay.RecordStockIn(ctx, StockIn{
		ProductID: "p1", Description: "Maize Flour", Quantity: 10,
		UnitCost: 100, VATStatus: pos.VATZeroRated,
	})
	require.NoError(t, err)
	assert.Nil(t, sub)

	n, err := st.CountPendingSubmissions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestRecordStockIn_OfflineQueuesPending(t *testing.T) {
	relay, st, backend, _ := newTestRelay(t, offlineManager())
	ctx := context.Background()

	sub, err := relay.RecordStockIn(ctx, StockIn{
		ProductID: "p1", Description: "Sugar 1kg", Quantity: 10,
		UnitCost: 120, VATStatus: pos.VATTaxable,
	})
	require.NoError(t, err)
	require.NotNil(t, sub)
	assert.Equal(t, "ST01-20260201-INVSUF01", sub.InvoiceNumber)
	assert.Equal(t, pos.SubmissionPending, sub.Status)
	assert.Empty(t, backend.Invoices, "no delivery attempt while offline")

	stored, err := st.GetSubmission(ctx, sub.InvoiceNumber)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, pos.SubmissionPending, stored.Status)

	var content map[string]any
	require.NoError(t, json.Unmarshal(stored.ResponseData, &content))
	assert.Equal(t, 192.0, content["vat_amount"])
	assert.Equal(t, 1200.0, content["taxable_amount"])
}

func TestRecordStockIn_OnlineDeliversImmediately(t *testing.T) {
	relay, st, backend, _ := newTestRelay(t, nil) // nil manager: direct path always on
	ctx := context.Background()
	backend.SubmitResponse = json.RawMessage(`{"receipt_no":"KRA-001"}`)

	sub, err := relay.RecordStockIn(ctx, StockIn{
		ProductID: "p1", Description: "Sugar 1kg", Quantity: 10,
		UnitCost: 120, VATStatus: pos.VATTaxable,
	})
	require.NoError(t, err)
	require.Len(t, backend.Invoices, 1)
	assert.Equal(t, sub.InvoiceNumber, backend.Invoices[0].InvoiceNumber)
	assert.Equal(t, "ST01", backend.Invoices[0].StoreID)

	stored, err := st.GetSubmission(ctx, sub.InvoiceNumber)
	require.NoError(t, err)
	assert.Equal(t, pos.SubmissionSubmitted, stored.Status)
	assert.JSONEq(t, `{"receipt_no":"KRA-001"}`, string(stored.ResponseData))
}

func TestRecordStockIn_DeliveryFailureLeavesPending(t *testing.T) {
	relay, st, backend, _ := newTestRelay(t, nil)
	ctx := context.Background()
	backend.SubmitErr = assert.AnError

	sub, err := relay.RecordStockIn(ctx, StockIn{
		ProductID: "p1", Description: "Sugar 1kg", Quantity: 10,
		UnitCost: 120, VATStatus: pos.VATTaxable,
	})
	require.NoError(t, err, "delivery is best-effort relative to the stock mutation")

	stored, err := st.GetSubmission(ctx, sub.InvoiceNumber)
	require.NoError(t, err)
	assert.Equal(t, pos.SubmissionPending, stored.Status)
}

func TestSubmitPending_DrainsAndSkipsConfirmed(t *testing.T) {
	relay, st, backend, clock := newTestRelay(t, offlineManager())
	ctx := context.Background()

	sub1, err := relay.RecordStockIn(ctx, StockIn{
		ProductID: "p1", Description: "Sugar 1kg", Quantity: 10,
		UnitCost: 120, VATStatus: pos.VATTaxable,
	})
	require.NoError(t, err)
	clock.Tick()
	sub2, err := relay.RecordStockIn(ctx, StockIn{
		ProductID: "p2", Description: "Cooking Oil 1L", Quantity: 5,
		UnitCost: 250, VATStatus: pos.VATTaxable,
	})
	require.NoError(t, err)

	// A file-exchange import confirms sub1 between listing and drain.
	_, err = st.TransitionSubmission(ctx, sub1.InvoiceNumber, pos.SubmissionSubmitted, clock.Now(), nil)
	require.NoError(t, err)

	delivered, remaining, err := relay.SubmitPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, delivered)
	assert.Equal(t, 0, remaining)
	require.Len(t, backend.Invoices, 1, "already-confirmed submission is never re-sent")
	assert.Equal(t, sub2.InvoiceNumber, backend.Invoices[0].InvoiceNumber)
}

func TestSubmitPending_FailuresStayPending(t *testing.T) {
	relay, st, backend, _ := newTestRelay(t, offlineManager())
	ctx := context.Background()

	_, err := relay.RecordStockIn(ctx, StockIn{
		ProductID: "p1", Description: "Sugar 1kg", Quantity: 10,
		UnitCost: 120, VATStatus: pos.VATTaxable,
	})
	require.NoError(t, err)
	backend.SubmitErr = assert.AnError

	delivered, remaining, err := relay.SubmitPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, delivered)
	assert.Equal(t, 1, remaining)

	n, err := st.CountPendingSubmissions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
