// Package syncengine drains unsynced outbox records against the remote
// backend with correctness under partial failure and concurrent triggers.
//
// INVARIANTS:
//   - At most one sync pass is in flight at a time; concurrent triggers
//     are no-ops, not queued.
//   - Products fully sync before any sale is synced, globally.
//   - Within a record type, records sync oldest-created-first.
//   - Quantity converges by delta adjustment (add-delta, never set-value).
//     The backend applies the delta atomically, which is what makes the
//     read-then-adjust window benign under concurrent writers on other
//     terminals: a blind overwrite would silently erase their changes,
//     a delta composes.
package syncengine

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/dukahub/dukasync/internal/mode"
	"github.com/dukahub/dukasync/internal/outbox"
	"github.com/dukahub/dukasync/internal/pos"
	"github.com/dukahub/dukasync/internal/remote"
)

// DefaultRetryDelay is how long a cycle waits before re-checking pending
// products ahead of sale sync.
const DefaultRetryDelay = time.Second

// Orchestrator coordinates sync cycles.
//
// Thread-safety: Sync may be called from any goroutine; overlapping calls
// are serialized by the in-flight guard (the overlapped call returns
// immediately without starting a second pass).
type Orchestrator struct {
	outbox  *outbox.Store
	backend remote.Backend
	modes   *mode.Manager // nil disables the mode gate (one-shot CLI sync)
	status  *Status

	retryDelay time.Duration
	now        func() time.Time

	inFlight atomic.Bool
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRetryDelay sets the wait before re-checking pending products ahead
// of sale sync. Tests use a tiny delay.
func WithRetryDelay(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.retryDelay = d
	}
}

// WithNow overrides the time source. Used by tests for deterministic
// last-sync timestamps.
func WithNow(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// New creates an Orchestrator. The status object is injected so UI code
// and the orchestrator share one explicitly-owned instance; modes may be
// nil for one-shot invocations that bypass the mode gate.
func New(ob *outbox.Store, backend remote.Backend, modes *mode.Manager, status *Status, opts ...Option) *Orchestrator {
	if status == nil {
		status = NewStatus()
	}
	o := &Orchestrator{
		outbox:     ob,
		backend:    backend,
		modes:      modes,
		status:     status,
		retryDelay: DefaultRetryDelay,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Status returns the shared status object.
func (o *Orchestrator) Status() *Status {
	return o.status
}

// Sync runs one full cycle: products, then purchases, then sales.
//
// Returns nil when the cycle is skipped (another pass in flight, or the
// mode gate says offline). Connectivity errors are swallowed into the
// status object - the affected records stay unsynced and the next cycle
// retries them. Everything else (SKU conflicts, local store failures) is
// returned to the caller: those require operator intervention and must
// not be silently retried.
func (o *Orchestrator) Sync(ctx context.Context) error {
	if !o.inFlight.CompareAndSwap(false, true) {
		slog.Debug("sync already in progress, trigger ignored")
		return nil
	}
	defer o.inFlight.Store(false)

	if !o.shouldAct(ctx) {
		return nil
	}

	o.status.begin(0)
	defer o.status.finish(o.now())

	if err := o.syncProducts(ctx); err != nil {
		// A failed product cycle skips sale and purchase sync entirely
		// until the next scheduled cycle, to avoid compounding
		// inconsistency.
		o.status.fail(err.Error())
		slog.Error("product sync failed", "error", err)
		if IsConnectivityError(err) {
			return nil
		}
		return err
	}

	ok, err := o.awaitNoPendingProducts(ctx)
	if err != nil {
		return err
	}
	if !ok {
		slog.Warn("unsynced products remain, deferring sale sync to next cycle")
		return nil
	}

	o.syncPurchases(ctx)
	o.syncSales(ctx)
	return nil
}

// shouldAct applies the mode gate.
//
// Under the offline-first preference the mode stays pinned Offline and the
// interval timer still fires; the orchestrator probes reachability itself
// before acting. Under auto, an Offline mode skips the cycle. Under
// online-only the cycle always proceeds and remote failures surface fast.
func (o *Orchestrator) shouldAct(ctx context.Context) bool {
	if o.modes == nil {
		return true
	}
	settings := o.modes.Settings()
	switch settings.Preference {
	case mode.PreferenceOffline:
		if err := o.backend.Ping(ctx); err != nil {
			slog.Debug("backend unreachable, deferring cycle", "error", err)
			return false
		}
		return true
	case mode.PreferenceAuto:
		return o.modes.CurrentMode() == mode.Online
	default:
		return true
	}
}

// awaitNoPendingProducts guards the products-before-sales invariant
// against UI writes that landed while the product pass ran. If new
// unsynced products appeared, it waits retryDelay, runs one more product
// pass, and reports whether the outbox is clear.
func (o *Orchestrator) awaitNoPendingProducts(ctx context.Context) (bool, error) {
	pending, err := o.outbox.CountUnsyncedProducts(ctx)
	if err != nil {
		o.status.fail(err.Error())
		return false, err
	}
	if pending == 0 {
		return true, nil
	}

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case <-time.After(o.retryDelay):
	}

	if err := o.syncProducts(ctx); err != nil {
		o.status.fail(err.Error())
		if IsConnectivityError(err) {
			return false, nil
		}
		return false, err
	}
	pending, err = o.outbox.CountUnsyncedProducts(ctx)
	if err != nil {
		o.status.fail(err.Error())
		return false, err
	}
	return pending == 0, nil
}

// syncProducts reconciles the unsynced product batch.
//
// The batch is all-or-nothing with respect to the synced flag: if any step
// fails, no local record is marked synced and the next cycle retries the
// whole batch from scratch. Re-running is idempotent by construction -
// delta computation against whatever the remote quantity has become by
// then still converges.
func (o *Orchestrator) syncProducts(ctx context.Context) error {
	unsynced, err := o.outbox.UnsyncedProducts(ctx)
	if err != nil {
		return fmt.Errorf("load unsynced products: %w", err)
	}
	if len(unsynced) == 0 {
		return nil
	}
	o.status.addTotal(len(unsynced))

	ids := make([]string, 0, len(unsynced))
	skus := make([]string, 0, len(unsynced))
	for _, p := range unsynced {
		ids = append(ids, p.ID)
		if p.SKU != "" {
			skus = append(skus, p.SKU)
		}
	}

	// Two lookups: ids and SKUs can diverge because a locally new product
	// might collide with a remote SKU created by another terminal.
	remoteByID := make(map[string]remote.RemoteProduct)
	fetched, err := o.backend.FetchProductsByID(ctx, ids)
	if err != nil {
		return NewConnectivityError("fetch products by id", err)
	}
	for _, r := range fetched {
		remoteByID[r.ID] = r
	}

	remoteBySKU := make(map[string]remote.RemoteProduct)
	if len(skus) > 0 {
		fetched, err = o.backend.FetchProductsBySKU(ctx, skus)
		if err != nil {
			return NewConnectivityError("fetch products by sku", err)
		}
		for _, r := range fetched {
			remoteBySKU[r.SKU] = r
		}
	}

	var newRecords, existing []pos.Product
	for _, p := range unsynced {
		if _, ok := remoteByID[p.ID]; ok {
			existing = append(existing, p)
		} else {
			newRecords = append(newRecords, p)
		}
	}

	// Reject the whole batch on any cross-terminal SKU conflict: silently
	// overwriting or duplicating would merge distinct products.
	for _, p := range newRecords {
		if p.SKU == "" {
			continue
		}
		if r, ok := remoteBySKU[p.SKU]; ok && r.ID != p.ID {
			return NewSKUConflictError(p.SKU, p.ID, r.ID)
		}
	}

	if err := o.backend.InsertProducts(ctx, newRecords); err != nil {
		return NewConnectivityError("insert products", err)
	}

	adjustments := make([]remote.StockAdjustment, 0, len(existing))
	for _, p := range existing {
		delta := p.Quantity - remoteByID[p.ID].Quantity
		if delta == 0 {
			continue
		}
		adjustments = append(adjustments, remote.StockAdjustment{
			ProductID:      p.ID,
			QuantityChange: delta,
		})
	}
	if len(adjustments) > 0 {
		if _, err := o.backend.AdjustStockBatch(ctx, adjustments); err != nil {
			return NewConnectivityError("adjust stock batch", err)
		}
	}

	if err := o.backend.UpsertProducts(ctx, unsynced); err != nil {
		return NewConnectivityError("upsert products", err)
	}

	if err := o.outbox.MarkProductsSynced(ctx, ids); err != nil {
		return fmt.Errorf("mark products synced: %w", err)
	}
	for range unsynced {
		o.status.step()
	}

	slog.Info("products synced",
		"total", len(unsynced),
		"inserted", len(newRecords),
		"adjusted", len(adjustments),
	)
	return nil
}

// syncSales drains unsynced sales oldest-first. Per-transaction failure is
// recorded individually and does not abort the loop; a failed sale stays
// unsynced and is retried on the next cycle.
func (o *Orchestrator) syncSales(ctx context.Context) {
	sales, err := o.outbox.UnsyncedSales(ctx)
	if err != nil {
		o.status.fail(err.Error())
		slog.Error("load unsynced sales failed", "error", err)
		return
	}
	if len(sales) == 0 {
		return
	}
	o.status.addTotal(len(sales))

	var failed int
	var lastErr error
	for _, sale := range sales {
		o.status.step()

		// Re-read before acting: a previous partially-failed cycle or a
		// concurrent UI write may have changed the record since the list
		// was loaded.
		current, err := o.outbox.GetSale(ctx, sale.ID)
		if err != nil {
			failed++
			lastErr = NewPartialItemError(sale.ID, err)
			continue
		}
		if current == nil || current.Synced {
			continue
		}

		_, err = o.backend.CreateSale(ctx, remote.SaleRequest{
			StoreID:       current.StoreID,
			PaymentMethod: current.PaymentMethod,
			TotalAmount:   current.TotalAmount,
			VATTotal:      current.VATTotal,
			Timestamp:     current.Timestamp,
			Items:         current.Items,
		})
		if err != nil {
			failed++
			lastErr = NewPartialItemError(sale.ID, err)
			slog.Error("sale sync failed", "sale_id", sale.ID, "error", err)
			continue
		}

		if err := o.outbox.MarkSaleSynced(ctx, sale.ID); err != nil {
			failed++
			lastErr = NewPartialItemError(sale.ID, err)
			continue
		}
	}

	if failed > 0 {
		o.status.fail(fmt.Sprintf("%d of %d sales failed: %v", failed, len(sales), lastErr))
	}
	slog.Info("sales synced", "total", len(sales), "failed", failed)
}

// syncPurchases drains unsynced purchases oldest-first with the same
// per-record isolation as sales. Purchases ride after products because
// their lines reference product ids; their stock effect already reached
// the backend through product delta adjustment, so CreatePurchase records
// the document only.
func (o *Orchestrator) syncPurchases(ctx context.Context) {
	purchases, err := o.outbox.UnsyncedPurchases(ctx)
	if err != nil {
		o.status.fail(err.Error())
		slog.Error("load unsynced purchases failed", "error", err)
		return
	}
	if len(purchases) == 0 {
		return
	}
	o.status.addTotal(len(purchases))

	var failed int
	var lastErr error
	for _, p := range purchases {
		o.status.step()

		var supplier *pos.Supplier
		if p.SupplierID != "" {
			supplier, err = o.outbox.GetSupplier(ctx, p.SupplierID)
			if err != nil {
				failed++
				lastErr = NewPartialItemError(p.ID, err)
				continue
			}
		}

		_, err = o.backend.CreatePurchase(ctx, remote.PurchaseRequest{
			StoreID:        p.StoreID,
			Supplier:       supplier,
			InvoiceNumber:  p.InvoiceNumber,
			IsVATIncluded:  p.IsVATIncluded,
			InputVATAmount: p.InputVATAmount,
			Timestamp:      p.CreatedAt,
			Items:          p.Items,
		})
		if err != nil {
			failed++
			lastErr = NewPartialItemError(p.ID, err)
			slog.Error("purchase sync failed", "purchase_id", p.ID, "error", err)
			continue
		}

		if err := o.outbox.MarkPurchaseSynced(ctx, p.ID); err != nil {
			failed++
			lastErr = NewPartialItemError(p.ID, err)
			continue
		}
	}

	if failed > 0 {
		o.status.fail(fmt.Sprintf("%d of %d purchases failed: %v", failed, len(purchases), lastErr))
	}
	slog.Info("purchases synced", "total", len(purchases), "failed", failed)
}
