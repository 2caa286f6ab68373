package outbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dukahub/dukasync/internal/pos"
)

// InsertSale writes a sale header and its line items in one transaction.
// New sales always start unsynced.
func (s *Store) InsertSale(ctx context.Context, sale pos.Sale) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("insert sale: begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sales
		(id, store_id, payment_method, total_amount, vat_total, sale_time, synced, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?)
	`,
		sale.ID, sale.StoreID, sale.PaymentMethod,
		sale.TotalAmount, sale.VATTotal,
		encodeTime(sale.Timestamp), encodeTime(sale.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert sale %s: %w", sale.ID, err)
	}

	for _, item := range sale.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO sale_items (sale_id, product_id, quantity, unit_price, vat_amount)
			VALUES (?, ?, ?, ?, ?)
		`, sale.ID, item.ProductID, item.Quantity, item.UnitPrice, item.VATAmount)
		if err != nil {
			return fmt.Errorf("insert sale %s item %s: %w", sale.ID, item.ProductID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("insert sale %s: commit: %w", sale.ID, err)
	}
	return nil
}

// GetSale returns a sale with its line items.
// Returns (nil, nil) if the sale does not exist.
func (s *Store) GetSale(ctx context.Context, id string) (*pos.Sale, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, store_id, payment_method, total_amount, vat_total, sale_time, synced, created_at
		FROM sales WHERE id = ?
	`, id)

	sale, err := scanSale(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get sale %s: %w", id, err)
	}

	if err := s.loadSaleItems(ctx, &sale); err != nil {
		return nil, err
	}
	return &sale, nil
}

// UnsyncedSales returns all sales with synced = 0, oldest first, with line
// items attached.
func (s *Store) UnsyncedSales(ctx context.Context) ([]pos.Sale, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, store_id, payment_method, total_amount, vat_total, sale_time, synced, created_at
		FROM sales WHERE synced = 0 ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query unsynced sales: %w", err)
	}
	defer rows.Close()

	var sales []pos.Sale
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, fmt.Errorf("scan unsynced sale: %w", err)
		}
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate unsynced sales: %w", err)
	}

	for i := range sales {
		if err := s.loadSaleItems(ctx, &sales[i]); err != nil {
			return nil, err
		}
	}
	return sales, nil
}

// CountUnsyncedSales returns the number of sales awaiting sync.
func (s *Store) CountUnsyncedSales(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sales WHERE synced = 0`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count unsynced sales: %w", err)
	}
	return n, nil
}

// MarkSaleSynced flips a single sale to synced. Sales are marked one at a
// time because each is submitted as its own atomic remote operation and
// failures are isolated per transaction.
func (s *Store) MarkSaleSynced(ctx context.Context, id string) error {
	err := s.execAffectingOne(ctx, `UPDATE sales SET synced = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark sale %s synced: %w", id, err)
	}
	return nil
}

func (s *Store) loadSaleItems(ctx context.Context, sale *pos.Sale) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, quantity, unit_price, vat_amount
		FROM sale_items WHERE sale_id = ? ORDER BY id ASC
	`, sale.ID)
	if err != nil {
		return fmt.Errorf("query sale %s items: %w", sale.ID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var item pos.SaleItem
		if err := rows.Scan(&item.ProductID, &item.Quantity, &item.UnitPrice, &item.VATAmount); err != nil {
			return fmt.Errorf("scan sale %s item: %w", sale.ID, err)
		}
		sale.Items = append(sale.Items, item)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate sale %s items: %w", sale.ID, err)
	}
	return nil
}

func scanSale(r rowScanner) (pos.Sale, error) {
	var sale pos.Sale
	var saleTime, createdAt string
	var synced int
	err := r.Scan(
		&sale.ID, &sale.StoreID, &sale.PaymentMethod,
		&sale.TotalAmount, &sale.VATTotal, &saleTime, &synced, &createdAt,
	)
	if err != nil {
		return pos.Sale{}, err
	}
	sale.Synced = synced != 0
	if sale.Timestamp, err = decodeTime(saleTime); err != nil {
		return pos.Sale{}, err
	}
	if sale.CreatedAt, err = decodeTime(createdAt); err != nil {
		return pos.Sale{}, err
	}
	return sale, nil
}
