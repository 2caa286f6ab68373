// Package remote defines the contract the sync engine consumes from the
// authoritative backend, plus network adapters implementing it.
//
// The backend is opaque to the engine: an HTTP JSON service in hosted
// deployments, or the store server's MySQL database on a LAN. Stock
// effects travel exclusively through AdjustStockBatch. CreateSale and
// CreatePurchase record transaction documents only; their quantity effect
// is already folded into the local product quantity at the terminal and
// reaches the backend through product delta adjustment. Moving stock in
// the document calls too would double-count it.
package remote

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dukahub/dukasync/internal/pos"
)

// RemoteProduct is the backend's view of a product, reduced to the fields
// reconciliation needs.
type RemoteProduct struct {
	ID       string `json:"id"`
	SKU      string `json:"sku,omitempty"`
	Quantity int    `json:"quantity"`
}

// StockAdjustment is a signed quantity change applied atomically by the
// backend (add-delta, never set-value). The atomicity is load-bearing: it
// is what makes the engine's read-then-adjust window benign under
// concurrent writers on other terminals.
type StockAdjustment struct {
	ProductID      string `json:"product_id"`
	QuantityChange int    `json:"quantity_change"`
}

// SaleRequest carries a whole sale transaction as one atomic remote
// operation, preserving the original client timestamp.
type SaleRequest struct {
	StoreID       string         `json:"store_id"`
	PaymentMethod string         `json:"payment_method"`
	TotalAmount   float64        `json:"total_amount"`
	VATTotal      float64        `json:"vat_total"`
	Timestamp     time.Time      `json:"timestamp"`
	Items         []pos.SaleItem `json:"line_items"`
}

// PurchaseRequest carries a purchase document and its supplier for the
// backend's ledger. Supplier dedup happens backend-side by vat_no then name.
type PurchaseRequest struct {
	StoreID        string             `json:"store_id"`
	Supplier       *pos.Supplier      `json:"supplier,omitempty"`
	InvoiceNumber  string             `json:"invoice_number,omitempty"`
	IsVATIncluded  bool               `json:"is_vat_included"`
	InputVATAmount float64            `json:"input_vat_amount"`
	Timestamp      time.Time          `json:"timestamp"`
	Items          []pos.PurchaseItem `json:"line_items"`
}

// InvoicePayload is the tax invoice content sent to the regulatory
// endpoint.
type InvoicePayload struct {
	InvoiceNumber string          `json:"invoice_number"`
	StoreID       string          `json:"store_id"`
	IssuedAt      time.Time       `json:"issued_at"`
	Content       json.RawMessage `json:"content"`
}

// SubmitResult is the regulatory endpoint's answer to an invoice
// submission.
type SubmitResult struct {
	Status   string          `json:"status"`
	Response json.RawMessage `json:"response,omitempty"`
}

// Backend is the remote contract the orchestrator and relay drain against.
//
// Every method is an async boundary: calls may take arbitrarily long and
// honor ctx cancellation where the transport supports it.
type Backend interface {
	// Ping reports raw reachability. Used by the run loop to feed the
	// mode manager.
	Ping(ctx context.Context) error

	// FetchProductsByID returns the backend records matching the given ids.
	// Missing ids are simply absent from the result.
	FetchProductsByID(ctx context.Context, ids []string) ([]RemoteProduct, error)

	// FetchProductsBySKU returns the backend records matching the given
	// SKUs. Ids and SKUs are looked up separately because a locally new
	// product can collide with a SKU created by another terminal.
	FetchProductsBySKU(ctx context.Context, skus []string) ([]RemoteProduct, error)

	// InsertProducts creates records the backend has never seen. Their
	// quantity is authoritative as-is, since the remote point of
	// reference is zero.
	InsertProducts(ctx context.Context, products []pos.Product) error

	// UpsertProducts writes mutable attributes (prices, category, tax
	// status) keyed by id in one batch. It must NOT touch quantity;
	// quantity converges through AdjustStockBatch only.
	UpsertProducts(ctx context.Context, products []pos.Product) error

	// AdjustStockBatch atomically applies signed quantity deltas and
	// returns the updated records.
	AdjustStockBatch(ctx context.Context, adjustments []StockAdjustment) ([]RemoteProduct, error)

	// CreateSale records the transaction atomically and returns the
	// backend transaction id. It does not move stock.
	CreateSale(ctx context.Context, req SaleRequest) (string, error)

	// CreatePurchase records a purchase document and upserts its supplier.
	// It does not move stock.
	CreatePurchase(ctx context.Context, req PurchaseRequest) (string, error)

	// SubmitTaxInvoice delivers a regulatory invoice submission.
	SubmitTaxInvoice(ctx context.Context, payload InvoicePayload) (SubmitResult, error)
}
