package etims

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukahub/dukasync/internal/pos"
)

// seedPending queues two deterministic submissions via the relay.
func seedPending(t *testing.T, relay *Relay, clockTick func()) []string {
	t.Helper()
	ctx := context.Background()

	sub1, err := relay.RecordStockIn(ctx, StockIn{
		ProductID: "p1", Description: "Sugar 1kg", Quantity: 10,
		UnitCost: 120, VATStatus: pos.VATTaxable,
	})
	require.NoError(t, err)
	clockTick()
	sub2, err := relay.RecordStockIn(ctx, StockIn{
		ProductID: "p2", Description: "Cooking Oil 1L", Quantity: 5,
		UnitCost: 250, VATStatus: pos.VATTaxable,
	})
	require.NoError(t, err)
	return []string{sub1.InvoiceNumber, sub2.InvoiceNumber}
}

func TestExport_NothingPendingWritesNoFile(t *testing.T) {
	relay, _, _, _ := newTestRelay(t, offlineManager())
	dir := t.TempDir()

	path, count, err := relay.Export(context.Background(), dir)
	require.NoError(t, err)
	assert.Empty(t, path)
	assert.Zero(t, count)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestExport_Golden(t *testing.T) {
	relay, _, _, clock := newTestRelay(t, offlineManager())
	seedPending(t, relay, func() { clock.Tick() })
	dir := t.TempDir()

	path, count, err := relay.Export(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Equal(t, ExportFileName("session-0001"), "etims-sync-session-0001.json")
	assert.Contains(t, path, "etims-sync-session-0001.json")

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "etims_export", data)
}

func resultsDocument(sessionID string, invoices []string, status string) []byte {
	type result struct {
		InvoiceNumber string `json:"invoice_number"`
		Status        string `json:"status"`
		ReceiptNo     string `json:"receipt_no,omitempty"`
	}
	doc := struct {
		SessionID string   `json:"session_id"`
		StoreID   string   `json:"store_id"`
		Processed []result `json:"processed_submissions"`
	}{SessionID: sessionID, StoreID: "ST01"}
	for i, inv := range invoices {
		doc.Processed = append(doc.Processed, result{
			InvoiceNumber: inv,
			Status:        status,
			ReceiptNo:     fmt.Sprintf("KRA-%03d", i+1),
		})
	}
	data, _ := json.Marshal(doc)
	return data
}

func TestImportResults_AppliesAndIsIdempotent(t *testing.T) {
	relay, st, _, clock := newTestRelay(t, offlineManager())
	invoices := seedPending(t, relay, func() { clock.Tick() })
	ctx := context.Background()

	doc := resultsDocument("session-xyz", invoices, "submitted")
	summary, err := relay.ImportResults(ctx, doc)
	require.NoError(t, err)
	assert.Equal(t, "session-xyz", summary.SessionID)
	assert.Equal(t, 2, summary.Applied)
	assert.Equal(t, 0, summary.Skipped)

	sub, err := st.GetSubmission(ctx, invoices[0])
	require.NoError(t, err)
	assert.Equal(t, pos.SubmissionSubmitted, sub.Status)
	require.NotNil(t, sub.SubmittedAt)
	// The raw per-result JSON is stored verbatim as the response.
	assert.Contains(t, string(sub.ResponseData), `"receipt_no":"KRA-001"`)

	// Re-importing the same file applies nothing and errors nothing.
	summary, err = relay.ImportResults(ctx, doc)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Applied)
	assert.Equal(t, 2, summary.Skipped)
}

func TestImportResults_FailedStatusRecorded(t *testing.T) {
	relay, st, _, clock := newTestRelay(t, offlineManager())
	invoices := seedPending(t, relay, func() { clock.Tick() })
	ctx := context.Background()

	doc := resultsDocument("session-xyz", invoices[:1], "failed")
	summary, err := relay.ImportResults(ctx, doc)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Applied)

	sub, err := st.GetSubmission(ctx, invoices[0])
	require.NoError(t, err)
	assert.Equal(t, pos.SubmissionFailed, sub.Status)

	// The failed record is retained, and the second submission is still
	// pending for a later session.
	n, err := st.CountPendingSubmissions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestImportResults_UnknownInvoiceRejectsWholeFile(t *testing.T) {
	relay, st, _, clock := newTestRelay(t, offlineManager())
	invoices := seedPending(t, relay, func() { clock.Tick() })
	ctx := context.Background()

	doc := resultsDocument("session-xyz",
		[]string{invoices[0], "ST01-20260201-NOTMINE1"}, "submitted")
	_, err := relay.ImportResults(ctx, doc)
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
	assert.Contains(t, err.Error(), "NOTMINE1")

	// Nothing was applied, the known submission included.
	sub, err := st.GetSubmission(ctx, invoices[0])
	require.NoError(t, err)
	assert.Equal(t, pos.SubmissionPending, sub.Status)
}

func TestImportResults_StructurallyInvalidRejected(t *testing.T) {
	relay, _, _, _ := newTestRelay(t, offlineManager())
	ctx := context.Background()

	for name, doc := range map[string]string{
		"not json":           `{{{`,
		"wrong field type":   `{"session_id":"s","store_id":"ST01","processed_submissions":"nope"}`,
		"status outside set": `{"session_id":"s","store_id":"ST01","processed_submissions":[{"invoice_number":"X","status":"maybe"}]}`,
		"numeric session id": `{"session_id":7,"store_id":"ST01","processed_submissions":[]}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := relay.ImportResults(ctx, []byte(doc))
			require.Error(t, err)
			assert.True(t, IsValidationError(err))
		})
	}
}

func TestImportResultsFile_ReadsFromDisk(t *testing.T) {
	relay, st, _, clock := newTestRelay(t, offlineManager())
	invoices := seedPending(t, relay, func() { clock.Tick() })
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "results.json")
	require.NoError(t, os.WriteFile(path, resultsDocument("s", invoices, "submitted"), 0o644))

	summary, err := relay.ImportResultsFile(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Applied)

	n, err := st.CountPendingSubmissions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
