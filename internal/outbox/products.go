package outbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dukahub/dukasync/internal/pos"
)

const productColumns = `id, store_id, name, sku, barcode, category,
	cost_price, retail_price, wholesale_price, wholesale_threshold,
	quantity, vat_status, synced, created_at`

// InsertProduct inserts a new product record. New records always start
// unsynced; callers cannot insert a pre-synced product. Identity fields
// are canonicalized so the unique indexes catch duplicates entered
// through different input methods.
func (s *Store) InsertProduct(ctx context.Context, p pos.Product) error {
	p.Name = pos.NormalizeName(p.Name)
	p.SKU = pos.NormalizeKey(p.SKU)
	p.Barcode = pos.NormalizeKey(p.Barcode)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products
		(id, store_id, name, sku, barcode, category,
		 cost_price, retail_price, wholesale_price, wholesale_threshold,
		 quantity, vat_status, synced, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?)
	`,
		p.ID, p.StoreID, p.Name, p.SKU, p.Barcode, p.Category,
		p.CostPrice, p.RetailPrice, p.WholesalePrice, p.WholesaleThreshold,
		p.Quantity, string(p.VATStatus), encodeTime(p.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert product %s: %w", p.ID, err)
	}
	return nil
}

// UpdateProduct rewrites a product's mutable fields and flags it unsynced
// so the next cycle pushes the change out.
func (s *Store) UpdateProduct(ctx context.Context, p pos.Product) error {
	p.Name = pos.NormalizeName(p.Name)
	p.SKU = pos.NormalizeKey(p.SKU)
	p.Barcode = pos.NormalizeKey(p.Barcode)
	err := s.execAffectingOne(ctx, `
		UPDATE products
		SET name = ?, sku = ?, barcode = ?, category = ?,
		    cost_price = ?, retail_price = ?, wholesale_price = ?,
		    wholesale_threshold = ?, quantity = ?, vat_status = ?, synced = 0
		WHERE id = ?
	`,
		p.Name, p.SKU, p.Barcode, p.Category,
		p.CostPrice, p.RetailPrice, p.WholesalePrice,
		p.WholesaleThreshold, p.Quantity, string(p.VATStatus), p.ID,
	)
	if err != nil {
		return fmt.Errorf("update product %s: %w", p.ID, err)
	}
	return nil
}

// AdjustProductQuantity applies a signed quantity change to a product and
// flags it unsynced. Used by sale and purchase recording.
func (s *Store) AdjustProductQuantity(ctx context.Context, id string, change int) error {
	err := s.execAffectingOne(ctx, `
		UPDATE products SET quantity = quantity + ?, synced = 0 WHERE id = ?
	`, change, id)
	if err != nil {
		return fmt.Errorf("adjust product %s quantity: %w", id, err)
	}
	return nil
}

// GetProduct returns a single product by id.
// Returns (nil, nil) if the product does not exist.
func (s *Store) GetProduct(ctx context.Context, id string) (*pos.Product, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = ?`, id)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get product %s: %w", id, err)
	}
	return &p, nil
}

// UnsyncedProducts returns all products with synced = 0, ordered by
// creation time (oldest first) for deterministic processing.
func (s *Store) UnsyncedProducts(ctx context.Context) ([]pos.Product, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE synced = 0 ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("query unsynced products: %w", err)
	}
	defer rows.Close()

	var products []pos.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan unsynced product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate unsynced products: %w", err)
	}
	return products, nil
}

// CountUnsyncedProducts returns the number of products awaiting sync.
func (s *Store) CountUnsyncedProducts(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM products WHERE synced = 0`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count unsynced products: %w", err)
	}
	return n, nil
}

// MarkProductsSynced flips synced for every listed product in a single
// transaction. All-or-nothing: a partially failed reconciliation batch must
// leave every record unsynced so the next cycle retries it from scratch.
func (s *Store) MarkProductsSynced(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("mark products synced: begin tx: %w", err)
	}
	defer tx.Rollback()

	placeholders := strings.Repeat("?,", len(ids)-1) + "?"
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE products SET synced = 1 WHERE id IN (`+placeholders+`)`, args...); err != nil {
		return fmt.Errorf("mark products synced: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("mark products synced: commit: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(r rowScanner) (pos.Product, error) {
	var p pos.Product
	var vatStatus, createdAt string
	var synced int
	err := r.Scan(
		&p.ID, &p.StoreID, &p.Name, &p.SKU, &p.Barcode, &p.Category,
		&p.CostPrice, &p.RetailPrice, &p.WholesalePrice, &p.WholesaleThreshold,
		&p.Quantity, &vatStatus, &synced, &createdAt,
	)
	if err != nil {
		return pos.Product{}, err
	}
	p.VATStatus = pos.VATStatus(vatStatus)
	p.Synced = synced != 0
	p.CreatedAt, err = decodeTime(createdAt)
	if err != nil {
		return pos.Product{}, err
	}
	return p, nil
}
