package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dukahub/dukasync/internal/pos"
)

// HTTPBackend talks to the hosted backend over JSON/HTTP.
//
// Endpoints mirror the Backend contract one to one. Authentication is a
// bearer token; the server scopes every call to the token's store.
type HTTPBackend struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPBackend creates an HTTP adapter for the given base URL.
// A zero timeout falls back to 30 seconds.
func NewHTTPBackend(baseURL, apiKey string, timeout time.Duration) *HTTPBackend {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPBackend{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

// Ping hits the health endpoint.
func (b *HTTPBackend) Ping(ctx context.Context) error {
	return b.do(ctx, http.MethodGet, "/health", nil, nil)
}

func (b *HTTPBackend) FetchProductsByID(ctx context.Context, ids []string) ([]RemoteProduct, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var out []RemoteProduct
	q := url.Values{"id": ids}
	if err := b.do(ctx, http.MethodGet, "/products?"+q.Encode(), nil, &out); err != nil {
		return nil, fmt.Errorf("fetch products by id: %w", err)
	}
	return out, nil
}

func (b *HTTPBackend) FetchProductsBySKU(ctx context.Context, skus []string) ([]RemoteProduct, error) {
	if len(skus) == 0 {
		return nil, nil
	}
	var out []RemoteProduct
	q := url.Values{"sku": skus}
	if err := b.do(ctx, http.MethodGet, "/products?"+q.Encode(), nil, &out); err != nil {
		return nil, fmt.Errorf("fetch products by sku: %w", err)
	}
	return out, nil
}

func (b *HTTPBackend) InsertProducts(ctx context.Context, products []pos.Product) error {
	if len(products) == 0 {
		return nil
	}
	if err := b.do(ctx, http.MethodPost, "/products", products, nil); err != nil {
		return fmt.Errorf("insert products: %w", err)
	}
	return nil
}

func (b *HTTPBackend) UpsertProducts(ctx context.Context, products []pos.Product) error {
	if len(products) == 0 {
		return nil
	}
	if err := b.do(ctx, http.MethodPut, "/products", products, nil); err != nil {
		return fmt.Errorf("upsert products: %w", err)
	}
	return nil
}

func (b *HTTPBackend) AdjustStockBatch(ctx context.Context, adjustments []StockAdjustment) ([]RemoteProduct, error) {
	if len(adjustments) == 0 {
		return nil, nil
	}
	var out []RemoteProduct
	if err := b.do(ctx, http.MethodPost, "/stock/adjust", adjustments, &out); err != nil {
		return nil, fmt.Errorf("adjust stock batch: %w", err)
	}
	return out, nil
}

func (b *HTTPBackend) CreateSale(ctx context.Context, req SaleRequest) (string, error) {
	var out struct {
		TransactionID string `json:"transaction_id"`
	}
	if err := b.do(ctx, http.MethodPost, "/sales", req, &out); err != nil {
		return "", fmt.Errorf("create sale: %w", err)
	}
	return out.TransactionID, nil
}

func (b *HTTPBackend) CreatePurchase(ctx context.Context, req PurchaseRequest) (string, error) {
	var out struct {
		PurchaseID string `json:"purchase_id"`
	}
	if err := b.do(ctx, http.MethodPost, "/purchases", req, &out); err != nil {
		return "", fmt.Errorf("create purchase: %w", err)
	}
	return out.PurchaseID, nil
}

func (b *HTTPBackend) SubmitTaxInvoice(ctx context.Context, payload InvoicePayload) (SubmitResult, error) {
	var out SubmitResult
	if err := b.do(ctx, http.MethodPost, "/tax/invoices", payload, &out); err != nil {
		return SubmitResult{}, fmt.Errorf("submit tax invoice: %w", err)
	}
	return out, nil
}

// do runs one JSON round trip. A nil in sends no body; a nil out discards
// the response body.
func (b *HTTPBackend) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if b.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.apiKey)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
