package outbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dukahub/dukasync/internal/pos"
)

// UpsertSupplier stores a supplier, deduplicating by VAT number first and
// by name second. Returns the id of the stored (new or existing) supplier.
func (s *Store) UpsertSupplier(ctx context.Context, sup pos.Supplier) (string, error) {
	sup.Name = pos.NormalizeName(sup.Name)
	sup.VATNo = pos.NormalizeKey(sup.VATNo)
	if sup.VATNo != "" {
		var id string
		err := s.db.QueryRowContext(ctx,
			`SELECT id FROM suppliers WHERE vat_no = ?`, sup.VATNo).Scan(&id)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("lookup supplier by vat_no: %w", err)
		}
	}

	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM suppliers WHERE name = ?`, sup.Name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("lookup supplier by name: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO suppliers (id, name, vat_no, created_at) VALUES (?, ?, ?, ?)
	`, sup.ID, sup.Name, sup.VATNo, encodeTime(sup.CreatedAt))
	if err != nil {
		return "", fmt.Errorf("insert supplier %s: %w", sup.Name, err)
	}
	return sup.ID, nil
}

// GetSupplier returns a supplier by id, or (nil, nil) when absent.
func (s *Store) GetSupplier(ctx context.Context, id string) (*pos.Supplier, error) {
	var sup pos.Supplier
	var createdAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, vat_no, created_at FROM suppliers WHERE id = ?`, id).
		Scan(&sup.ID, &sup.Name, &sup.VATNo, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get supplier %s: %w", id, err)
	}
	if sup.CreatedAt, err = decodeTime(createdAt); err != nil {
		return nil, err
	}
	return &sup, nil
}

// InsertPurchase writes a purchase header and its line items in one
// transaction. New purchases always start unsynced.
func (s *Store) InsertPurchase(ctx context.Context, p pos.Purchase) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("insert purchase: begin tx: %w", err)
	}
	defer tx.Rollback()

	vatIncluded := 0
	if p.IsVATIncluded {
		vatIncluded = 1
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO purchases
		(id, store_id, supplier_id, invoice_number, is_vat_included, input_vat_amount, synced, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?)
	`,
		p.ID, p.StoreID, p.SupplierID, p.InvoiceNumber,
		vatIncluded, p.InputVATAmount, encodeTime(p.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert purchase %s: %w", p.ID, err)
	}

	for _, item := range p.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO purchase_items (purchase_id, product_id, quantity, unit_cost, vat_amount)
			VALUES (?, ?, ?, ?, ?)
		`, p.ID, item.ProductID, item.Quantity, item.UnitCost, item.VATAmount)
		if err != nil {
			return fmt.Errorf("insert purchase %s item %s: %w", p.ID, item.ProductID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("insert purchase %s: commit: %w", p.ID, err)
	}
	return nil
}

// UnsyncedPurchases returns all purchases with synced = 0, oldest first,
// with line items attached.
func (s *Store) UnsyncedPurchases(ctx context.Context) ([]pos.Purchase, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, store_id, supplier_id, invoice_number, is_vat_included, input_vat_amount, synced, created_at
		FROM purchases WHERE synced = 0 ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query unsynced purchases: %w", err)
	}
	defer rows.Close()

	var purchases []pos.Purchase
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, fmt.Errorf("scan unsynced purchase: %w", err)
		}
		purchases = append(purchases, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate unsynced purchases: %w", err)
	}

	for i := range purchases {
		if err := s.loadPurchaseItems(ctx, &purchases[i]); err != nil {
			return nil, err
		}
	}
	return purchases, nil
}

// CountUnsyncedPurchases returns the number of purchases awaiting sync.
func (s *Store) CountUnsyncedPurchases(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM purchases WHERE synced = 0`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count unsynced purchases: %w", err)
	}
	return n, nil
}

// MarkPurchaseSynced flips a single purchase to synced.
func (s *Store) MarkPurchaseSynced(ctx context.Context, id string) error {
	err := s.execAffectingOne(ctx, `UPDATE purchases SET synced = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark purchase %s synced: %w", id, err)
	}
	return nil
}

func (s *Store) loadPurchaseItems(ctx context.Context, p *pos.Purchase) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, quantity, unit_cost, vat_amount
		FROM purchase_items WHERE purchase_id = ? ORDER BY id ASC
	`, p.ID)
	if err != nil {
		return fmt.Errorf("query purchase %s items: %w", p.ID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var item pos.PurchaseItem
		if err := rows.Scan(&item.ProductID, &item.Quantity, &item.UnitCost, &item.VATAmount); err != nil {
			return fmt.Errorf("scan purchase %s item: %w", p.ID, err)
		}
		p.Items = append(p.Items, item)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate purchase %s items: %w", p.ID, err)
	}
	return nil
}

func scanPurchase(r rowScanner) (pos.Purchase, error) {
	var p pos.Purchase
	var createdAt string
	var vatIncluded, synced int
	err := r.Scan(
		&p.ID, &p.StoreID, &p.SupplierID, &p.InvoiceNumber,
		&vatIncluded, &p.InputVATAmount, &synced, &createdAt,
	)
	if err != nil {
		return pos.Purchase{}, err
	}
	p.IsVATIncluded = vatIncluded != 0
	p.Synced = synced != 0
	if p.CreatedAt, err = decodeTime(createdAt); err != nil {
		return pos.Purchase{}, err
	}
	return p, nil
}
