package outbox

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/dukahub/dukasync/internal/pos"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testProduct(id string, created time.Time) pos.Product {
	return pos.Product{
		ID:          id,
		StoreID:     "store-1",
		Name:        "Unga 2kg",
		SKU:         "SKU-" + id,
		CostPrice:   120,
		RetailPrice: 150,
		Quantity:    10,
		VATStatus:   pos.VATZeroRated,
		CreatedAt:   created,
	}
}

func TestOpen_CreatesSchema(t *testing.T) {
	s := newTestStore(t)

	var version int
	if err := s.db.QueryRow(`PRAGMA user_version`).Scan(&version); err != nil {
		t.Fatalf("read user_version: %v", err)
	}
	if version != currentSchemaVersion {
		t.Errorf("user_version = %d, want %d", version, currentSchemaVersion)
	}
}

func TestOpen_ReopenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}

	if err := s.InsertProduct(context.Background(), testProduct("p1", time.Now())); err != nil {
		t.Fatalf("InsertProduct() failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s.Close()

	p, err := s.GetProduct(context.Background(), "p1")
	if err != nil {
		t.Fatalf("GetProduct() failed: %v", err)
	}
	if p == nil {
		t.Fatal("product lost across reopen")
	}
}

func TestTimeRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created := time.Date(2026, 3, 14, 9, 26, 53, 589_793_000, time.UTC)
	if err := s.InsertProduct(ctx, testProduct("p1", created)); err != nil {
		t.Fatalf("InsertProduct() failed: %v", err)
	}

	p, err := s.GetProduct(ctx, "p1")
	if err != nil {
		t.Fatalf("GetProduct() failed: %v", err)
	}
	if !p.CreatedAt.Equal(created) {
		t.Errorf("created_at = %v, want %v", p.CreatedAt, created)
	}
}
