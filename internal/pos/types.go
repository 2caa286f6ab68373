// Package pos defines the domain records a retail terminal buffers locally
// and reconciles against the remote backend.
//
// Every record carries a Synced flag and a creation timestamp. The outbox
// store owns all four collections on the terminal; the remote backend owns
// the canonical cross-terminal state. Only the sync orchestrator may
// transition Synced false -> true.
package pos

import (
	"encoding/json"
	"time"
)

// VATStatus is the tri-state tax classification of a product.
type VATStatus string

const (
	VATTaxable   VATStatus = "taxable"
	VATZeroRated VATStatus = "zero_rated"
	VATExempt    VATStatus = "exempt"
)

// Valid reports whether s is one of the three known classifications.
func (s VATStatus) Valid() bool {
	switch s {
	case VATTaxable, VATZeroRated, VATExempt:
		return true
	}
	return false
}

// Product is an inventory record.
//
// Quantity is always expressed in base units, derived from
// units_per_pack x pack_count at write time (see BaseQuantity).
// Quantity is authoritative locally until synced; after sync the remote
// quantity must equal the local quantity via delta application, never via
// overwrite.
type Product struct {
	ID                 string    `json:"id"`
	StoreID            string    `json:"store_id"`
	Name               string    `json:"name"`
	SKU                string    `json:"sku,omitempty"`     // unique within a store when present
	Barcode            string    `json:"barcode,omitempty"` // unique within a store when present
	Category           string    `json:"category,omitempty"`
	CostPrice          float64   `json:"cost_price"`
	RetailPrice        float64   `json:"retail_price"`
	WholesalePrice     float64   `json:"wholesale_price"`
	WholesaleThreshold int       `json:"wholesale_threshold"`
	Quantity           int       `json:"quantity"` // base units
	VATStatus          VATStatus `json:"vat_status"`
	Synced             bool      `json:"synced"`
	CreatedAt          time.Time `json:"created_at"`
}

// BaseQuantity converts pack counts to base units.
// Packs with zero or negative units per pack count as single units.
func BaseQuantity(unitsPerPack, packCount int) int {
	if unitsPerPack <= 0 {
		unitsPerPack = 1
	}
	return unitsPerPack * packCount
}

// Sale is a completed sale transaction with its owned line items.
//
// A sale may reference only products that exist locally or remotely, and
// must never be synced before its referenced products are synced: the
// remote sale-creation procedure rejects line items naming products the
// backend has never seen.
type Sale struct {
	ID            string     `json:"id"`
	StoreID       string     `json:"store_id"`
	Timestamp     time.Time  `json:"timestamp"`
	PaymentMethod string     `json:"payment_method"`
	TotalAmount   float64    `json:"total_amount"`
	VATTotal      float64    `json:"vat_total"`
	Synced        bool       `json:"synced"`
	CreatedAt     time.Time  `json:"created_at"`
	Items         []SaleItem `json:"items"`
}

// SaleItem is one line of a sale.
type SaleItem struct {
	ProductID string  `json:"product_id"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
	VATAmount float64 `json:"vat_amount"`
}

// Supplier identifies the counterparty of a purchase.
// Suppliers deduplicate by VAT number first, then by name.
type Supplier struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	VATNo     string    `json:"vat_no,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Purchase is a stock-increasing event tied to an optional supplier.
type Purchase struct {
	ID             string         `json:"id"`
	StoreID        string         `json:"store_id"`
	SupplierID     string         `json:"supplier_id,omitempty"`
	InvoiceNumber  string         `json:"invoice_number,omitempty"`
	IsVATIncluded  bool           `json:"is_vat_included"`
	InputVATAmount float64        `json:"input_vat_amount"`
	Synced         bool           `json:"synced"`
	CreatedAt      time.Time      `json:"created_at"`
	Items          []PurchaseItem `json:"items"`
}

// PurchaseItem is one line of a purchase.
type PurchaseItem struct {
	ProductID string  `json:"product_id"`
	Quantity  int     `json:"quantity"`
	UnitCost  float64 `json:"unit_cost"`
	VATAmount float64 `json:"vat_amount"`
}

// SubmissionStatus is the lifecycle state of a tax submission.
type SubmissionStatus string

const (
	SubmissionPending   SubmissionStatus = "pending"
	SubmissionSubmitted SubmissionStatus = "submitted"
	SubmissionFailed    SubmissionStatus = "failed"
)

// TaxSubmission is a regulatory invoice submission.
//
// Submissions are created synchronously whenever a stock-increasing
// mutation with taxable value occurs. They transition to submitted only
// after the remote tax endpoint (or a file-exchange results import)
// confirms acceptance, and are never deleted, only status-transitioned,
// for audit purposes.
type TaxSubmission struct {
	ID            string           `json:"id"`
	StoreID       string           `json:"store_id"`
	InvoiceNumber string           `json:"invoice_number"` // globally unique
	Status        SubmissionStatus `json:"status"`
	SubmittedAt   *time.Time       `json:"submitted_at,omitempty"`
	ResponseData  json.RawMessage  `json:"response_data,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
}
