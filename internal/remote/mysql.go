package remote

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"

	"github.com/dukahub/dukasync/internal/pos"
)

// MySQLBackend drains the outbox directly against the store server's
// MySQL database. Used on LAN deployments where the terminal reaches the
// backend database without an API tier.
//
// AdjustStockBatch uses relative UPDATE ... SET quantity = quantity + ?
// statements so concurrent writers compose; the adapter never writes an
// absolute quantity outside InsertProducts.
type MySQLBackend struct {
	db *sql.DB
}

// OpenMySQL connects with the given DSN and verifies the connection.
func OpenMySQL(dsn string) (*MySQLBackend, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	db.SetConnMaxLifetime(3 * time.Minute)
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect mysql: %w", err)
	}
	return &MySQLBackend{db: db}, nil
}

// NewMySQLBackend wraps an existing connection pool.
func NewMySQLBackend(db *sql.DB) *MySQLBackend {
	return &MySQLBackend{db: db}
}

// Close closes the connection pool.
func (b *MySQLBackend) Close() error {
	return b.db.Close()
}

func (b *MySQLBackend) Ping(ctx context.Context) error {
	return b.db.PingContext(ctx)
}

func (b *MySQLBackend) FetchProductsByID(ctx context.Context, ids []string) ([]RemoteProduct, error) {
	return b.fetchProductsBy(ctx, "id", ids)
}

func (b *MySQLBackend) FetchProductsBySKU(ctx context.Context, skus []string) ([]RemoteProduct, error) {
	return b.fetchProductsBy(ctx, "sku", skus)
}

func (b *MySQLBackend) fetchProductsBy(ctx context.Context, column string, keys []string) ([]RemoteProduct, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}
	query := fmt.Sprintf(
		`SELECT id, sku, quantity FROM products WHERE %s IN (%s)`,
		column, placeholders(len(keys)))

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("fetch products by %s: %w", column, err)
	}
	defer rows.Close()

	var products []RemoteProduct
	for rows.Next() {
		var p RemoteProduct
		var sku sql.NullString
		if err := rows.Scan(&p.ID, &sku, &p.Quantity); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		p.SKU = sku.String
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}
	return products, nil
}

func (b *MySQLBackend) InsertProducts(ctx context.Context, products []pos.Product) error {
	if len(products) == 0 {
		return nil
	}
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("insert products: begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, p := range products {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO products
			(id, store_id, name, sku, barcode, category,
			 cost_price, retail_price, wholesale_price, wholesale_threshold,
			 quantity, vat_status)
			VALUES (?, ?, ?, NULLIF(?, ''), NULLIF(?, ''), ?, ?, ?, ?, ?, ?, ?)
		`,
			p.ID, p.StoreID, p.Name, p.SKU, p.Barcode, p.Category,
			p.CostPrice, p.RetailPrice, p.WholesalePrice, p.WholesaleThreshold,
			p.Quantity, string(p.VATStatus),
		)
		if err != nil {
			return fmt.Errorf("insert product %s: %w", p.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("insert products: commit: %w", err)
	}
	return nil
}

func (b *MySQLBackend) UpsertProducts(ctx context.Context, products []pos.Product) error {
	if len(products) == 0 {
		return nil
	}
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("upsert products: begin tx: %w", err)
	}
	defer tx.Rollback()

	// Quantity is deliberately absent from the update list: it converges
	// through AdjustStockBatch only.
	for _, p := range products {
		_, err := tx.ExecContext(ctx, `
			UPDATE products
			SET name = ?, sku = NULLIF(?, ''), barcode = NULLIF(?, ''), category = ?,
			    cost_price = ?, retail_price = ?, wholesale_price = ?,
			    wholesale_threshold = ?, vat_status = ?
			WHERE id = ?
		`,
			p.Name, p.SKU, p.Barcode, p.Category,
			p.CostPrice, p.RetailPrice, p.WholesalePrice,
			p.WholesaleThreshold, string(p.VATStatus), p.ID,
		)
		if err != nil {
			return fmt.Errorf("upsert product %s: %w", p.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("upsert products: commit: %w", err)
	}
	return nil
}

func (b *MySQLBackend) AdjustStockBatch(ctx context.Context, adjustments []StockAdjustment) ([]RemoteProduct, error) {
	if len(adjustments) == 0 {
		return nil, nil
	}
	updated, err := b.adjustStockBatch(ctx, adjustments)
	if err != nil && IsTransientError(err) && ctx.Err() == nil {
		// Terminals adjusting overlapping products can deadlock on row
		// locks. The failed transaction rolled back in full, so one
		// immediate retry is safe.
		updated, err = b.adjustStockBatch(ctx, adjustments)
	}
	return updated, err
}

func (b *MySQLBackend) adjustStockBatch(ctx context.Context, adjustments []StockAdjustment) ([]RemoteProduct, error) {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("adjust stock: begin tx: %w", err)
	}
	defer tx.Rollback()

	ids := make([]string, 0, len(adjustments))
	for _, adj := range adjustments {
		// Relative update: composes with concurrent writers.
		res, err := tx.ExecContext(ctx,
			`UPDATE products SET quantity = quantity + ? WHERE id = ?`,
			adj.QuantityChange, adj.ProductID)
		if err != nil {
			return nil, fmt.Errorf("adjust stock for %s: %w", adj.ProductID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("adjust stock for %s: rows affected: %w", adj.ProductID, err)
		}
		if n == 0 {
			return nil, fmt.Errorf("adjust stock for %s: product not found", adj.ProductID)
		}
		ids = append(ids, adj.ProductID)
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := tx.QueryContext(ctx,
		fmt.Sprintf(`SELECT id, sku, quantity FROM products WHERE id IN (%s)`, placeholders(len(ids))),
		args...)
	if err != nil {
		return nil, fmt.Errorf("adjust stock: read back: %w", err)
	}
	var updated []RemoteProduct
	for rows.Next() {
		var p RemoteProduct
		var sku sql.NullString
		if err := rows.Scan(&p.ID, &sku, &p.Quantity); err != nil {
			rows.Close()
			return nil, fmt.Errorf("adjust stock: scan: %w", err)
		}
		p.SKU = sku.String
		updated = append(updated, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("adjust stock: iterate: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("adjust stock: commit: %w", err)
	}
	return updated, nil
}

func (b *MySQLBackend) CreateSale(ctx context.Context, req SaleRequest) (string, error) {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("create sale: begin tx: %w", err)
	}
	defer tx.Rollback()

	// Every referenced product must already exist remotely; the
	// orchestrator guarantees products sync first.
	for _, item := range req.Items {
		var n int
		err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM products WHERE id = ?`, item.ProductID).Scan(&n)
		if err != nil {
			return "", fmt.Errorf("create sale: check product %s: %w", item.ProductID, err)
		}
		if n == 0 {
			return "", fmt.Errorf("create sale: unknown product %s", item.ProductID)
		}
	}

	id := uuid.Must(uuid.NewV7()).String()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO sales (id, store_id, payment_method, total_amount, vat_total, sale_time)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id, req.StoreID, req.PaymentMethod, req.TotalAmount, req.VATTotal, req.Timestamp.UTC())
	if err != nil {
		return "", fmt.Errorf("create sale: insert header: %w", err)
	}

	for _, item := range req.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO sale_items (sale_id, product_id, quantity, unit_price, vat_amount)
			VALUES (?, ?, ?, ?, ?)
		`, id, item.ProductID, item.Quantity, item.UnitPrice, item.VATAmount)
		if err != nil {
			return "", fmt.Errorf("create sale: insert item %s: %w", item.ProductID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("create sale: commit: %w", err)
	}
	return id, nil
}

func (b *MySQLBackend) CreatePurchase(ctx context.Context, req PurchaseRequest) (string, error) {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("create purchase: begin tx: %w", err)
	}
	defer tx.Rollback()

	var supplierID sql.NullString
	if req.Supplier != nil {
		id, err := upsertSupplierTx(ctx, tx, *req.Supplier)
		if err != nil {
			return "", fmt.Errorf("create purchase: %w", err)
		}
		supplierID = sql.NullString{String: id, Valid: true}
	}

	id := uuid.Must(uuid.NewV7()).String()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO purchases
		(id, store_id, supplier_id, invoice_number, is_vat_included, input_vat_amount, purchase_time)
		VALUES (?, ?, ?, NULLIF(?, ''), ?, ?, ?)
	`, id, req.StoreID, supplierID, req.InvoiceNumber, req.IsVATIncluded, req.InputVATAmount, req.Timestamp.UTC())
	if err != nil {
		return "", fmt.Errorf("create purchase: insert header: %w", err)
	}

	for _, item := range req.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO purchase_items (purchase_id, product_id, quantity, unit_cost, vat_amount)
			VALUES (?, ?, ?, ?, ?)
		`, id, item.ProductID, item.Quantity, item.UnitCost, item.VATAmount)
		if err != nil {
			return "", fmt.Errorf("create purchase: insert item %s: %w", item.ProductID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("create purchase: commit: %w", err)
	}
	return id, nil
}

// SubmitTaxInvoice is not served by the database tier; the regulatory
// channel is HTTP-only. LAN deployments pair MySQLBackend with the relay's
// file-exchange path instead.
func (b *MySQLBackend) SubmitTaxInvoice(ctx context.Context, payload InvoicePayload) (SubmitResult, error) {
	return SubmitResult{}, errors.New("tax invoice submission is not available on the database transport")
}

func upsertSupplierTx(ctx context.Context, tx *sql.Tx, sup pos.Supplier) (string, error) {
	// Dedup by VAT number first, then by name.
	if sup.VATNo != "" {
		var id string
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM suppliers WHERE vat_no = ?`, sup.VATNo).Scan(&id)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("lookup supplier by vat_no: %w", err)
		}
	}
	var id string
	err := tx.QueryRowContext(ctx,
		`SELECT id FROM suppliers WHERE name = ?`, sup.Name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("lookup supplier by name: %w", err)
	}

	id = uuid.Must(uuid.NewV7()).String()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO suppliers (id, name, vat_no) VALUES (?, ?, NULLIF(?, ''))`,
		id, sup.Name, sup.VATNo)
	if err != nil {
		return "", fmt.Errorf("insert supplier %s: %w", sup.Name, err)
	}
	return id, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// IsTransientError reports whether err is a MySQL error worth retrying on
// the next sync cycle (connection loss, lock timeouts, deadlocks).
func IsTransientError(err error) bool {
	var driverErr *mysql.MySQLError
	if errors.As(err, &driverErr) {
		switch driverErr.Number {
		case 1040, // ER_CON_COUNT_ERROR: too many connections
			1205, // ER_LOCK_WAIT_TIMEOUT
			1213, // ER_LOCK_DEADLOCK
			2003, // CR_CONN_HOST_ERROR
			2006, // CR_SERVER_GONE_ERROR
			2013: // CR_SERVER_LOST
			return true
		}
	}
	return false
}
