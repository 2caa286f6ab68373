package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dukahub/dukasync/internal/pos"
	"github.com/dukahub/dukasync/internal/remote"
)

// FakeBackend is an in-memory remote.Backend with call recording and
// scriptable failures.
//
// Remote product state lives in Products, keyed by id. AdjustStockBatch
// composes deltas onto that state, so tests can interleave a simulated
// concurrent writer (via AfterFetch) and assert that quantities still
// converge.
//
// Thread-safety: all methods are safe for concurrent use via internal mutex.
type FakeBackend struct {
	mu sync.Mutex

	// Products is the backend's authoritative product state, keyed by id.
	Products map[string]remote.RemoteProduct

	// Calls records method names in invocation order.
	Calls []string

	// Recorded requests, in order of arrival.
	Sales     []remote.SaleRequest
	Purchases []remote.PurchaseRequest
	Invoices  []remote.InvoicePayload

	// Scriptable failures. A non-nil error is returned by the matching
	// method before any state change.
	PingErr     error
	FetchErr    error
	InsertErr   error
	UpsertErr   error
	AdjustErr   error
	SaleErr     error
	PurchaseErr error
	SubmitErr   error

	// AfterFetch, when set, runs after each fetch while the backend is
	// unlocked. Tests use it to mutate Products between the engine's
	// snapshot and its adjustment, simulating another terminal.
	AfterFetch func(b *FakeBackend)

	// FetchGate, when non-nil, blocks FetchProductsByID until the gate is
	// closed or receives. Used to hold a sync pass in flight.
	FetchGate chan struct{}

	// OnCreateSale, when set, runs before each sale is recorded. A non-nil
	// return fails that sale only, for per-record isolation tests.
	OnCreateSale func(req remote.SaleRequest) error

	// SubmitResponse is returned by SubmitTaxInvoice on success.
	SubmitResponse json.RawMessage
}

// NewFakeBackend creates an empty backend.
func NewFakeBackend() *FakeBackend {
	return &FakeBackend{Products: make(map[string]remote.RemoteProduct)}
}

// SetProduct seeds or replaces backend product state.
func (b *FakeBackend) SetProduct(p remote.RemoteProduct) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Products[p.ID] = p
}

// Quantity returns the backend quantity for a product id, or 0 when the
// backend has never seen it.
func (b *FakeBackend) Quantity(id string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.Products[id].Quantity
}

// CallCount returns how many times the named method was invoked.
func (b *FakeBackend) CallCount(method string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, c := range b.Calls {
		if c == method {
			n++
		}
	}
	return n
}

func (b *FakeBackend) record(method string) {
	b.mu.Lock()
	b.Calls = append(b.Calls, method)
	b.mu.Unlock()
}

// Ping implements remote.Backend.
func (b *FakeBackend) Ping(ctx context.Context) error {
	b.record("Ping")
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.PingErr
}

// SetPingErr scripts the reachability probe while the backend is in use
// by another goroutine.
func (b *FakeBackend) SetPingErr(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.PingErr = err
}

// FetchProductsByID implements remote.Backend.
func (b *FakeBackend) FetchProductsByID(ctx context.Context, ids []string) ([]remote.RemoteProduct, error) {
	b.record("FetchProductsByID")
	if b.FetchGate != nil {
		select {
		case <-b.FetchGate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if b.FetchErr != nil {
		return nil, b.FetchErr
	}

	b.mu.Lock()
	var out []remote.RemoteProduct
	for _, id := range ids {
		if p, ok := b.Products[id]; ok {
			out = append(out, p)
		}
	}
	b.mu.Unlock()

	if b.AfterFetch != nil {
		b.AfterFetch(b)
	}
	return out, nil
}

// FetchProductsBySKU implements remote.Backend.
func (b *FakeBackend) FetchProductsBySKU(ctx context.Context, skus []string) ([]remote.RemoteProduct, error) {
	b.record("FetchProductsBySKU")
	if b.FetchErr != nil {
		return nil, b.FetchErr
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	var out []remote.RemoteProduct
	for _, sku := range skus {
		for _, p := range b.Products {
			if p.SKU != "" && p.SKU == sku {
				out = append(out, p)
			}
		}
	}
	return out, nil
}

// InsertProducts implements remote.Backend.
func (b *FakeBackend) InsertProducts(ctx context.Context, products []pos.Product) error {
	b.record("InsertProducts")
	if b.InsertErr != nil {
		return b.InsertErr
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, p := range products {
		if _, exists := b.Products[p.ID]; exists {
			return fmt.Errorf("duplicate product id %s", p.ID)
		}
		b.Products[p.ID] = remote.RemoteProduct{ID: p.ID, SKU: p.SKU, Quantity: p.Quantity}
	}
	return nil
}

// UpsertProducts implements remote.Backend. Quantity is deliberately left
// untouched, matching the contract.
func (b *FakeBackend) UpsertProducts(ctx context.Context, products []pos.Product) error {
	b.record("UpsertProducts")
	if b.UpsertErr != nil {
		return b.UpsertErr
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, p := range products {
		existing, ok := b.Products[p.ID]
		if !ok {
			existing = remote.RemoteProduct{ID: p.ID, Quantity: p.Quantity}
		}
		existing.SKU = p.SKU
		b.Products[p.ID] = existing
	}
	return nil
}

// AdjustStockBatch implements remote.Backend, composing signed deltas
// onto current state.
func (b *FakeBackend) AdjustStockBatch(ctx context.Context, adjustments []remote.StockAdjustment) ([]remote.RemoteProduct, error) {
	b.record("AdjustStockBatch")
	if b.AdjustErr != nil {
		return nil, b.AdjustErr
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]remote.RemoteProduct, 0, len(adjustments))
	for _, adj := range adjustments {
		p, ok := b.Products[adj.ProductID]
		if !ok {
			return nil, fmt.Errorf("unknown product id %s", adj.ProductID)
		}
		p.Quantity += adj.QuantityChange
		b.Products[adj.ProductID] = p
		out = append(out, p)
	}
	return out, nil
}

// CreateSale implements remote.Backend. The document is recorded without
// moving stock; it enforces the same referenced-product check as the real
// adapters.
func (b *FakeBackend) CreateSale(ctx context.Context, req remote.SaleRequest) (string, error) {
	b.record("CreateSale")
	if b.SaleErr != nil {
		return "", b.SaleErr
	}
	if b.OnCreateSale != nil {
		if err := b.OnCreateSale(req); err != nil {
			return "", err
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, item := range req.Items {
		if _, ok := b.Products[item.ProductID]; !ok {
			return "", fmt.Errorf("unknown product %s", item.ProductID)
		}
	}
	b.Sales = append(b.Sales, req)
	return fmt.Sprintf("remote-sale-%d", len(b.Sales)), nil
}

// CreatePurchase implements remote.Backend. It records the document only;
// stock arrives through AdjustStockBatch.
func (b *FakeBackend) CreatePurchase(ctx context.Context, req remote.PurchaseRequest) (string, error) {
	b.record("CreatePurchase")
	if b.PurchaseErr != nil {
		return "", b.PurchaseErr
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.Purchases = append(b.Purchases, req)
	return fmt.Sprintf("remote-purchase-%d", len(b.Purchases)), nil
}

// SubmitTaxInvoice implements remote.Backend.
func (b *FakeBackend) SubmitTaxInvoice(ctx context.Context, payload remote.InvoicePayload) (remote.SubmitResult, error) {
	b.record("SubmitTaxInvoice")
	if b.SubmitErr != nil {
		return remote.SubmitResult{}, b.SubmitErr
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.Invoices = append(b.Invoices, payload)
	return remote.SubmitResult{Status: "accepted", Response: b.SubmitResponse}, nil
}

var _ remote.Backend = (*FakeBackend)(nil)
