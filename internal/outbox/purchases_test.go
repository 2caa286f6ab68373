package outbox

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukahub/dukasync/internal/pos"
)

func TestUpsertSupplier_DedupByVATNo(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id1, err := s.UpsertSupplier(ctx, pos.Supplier{
		ID: "sup-1", Name: "Bidco Ltd", VATNo: "P0512345A", CreatedAt: time.Now(),
	})
	require.NoError(t, err)
	assert.Equal(t, "sup-1", id1)

	// Same VAT number under a different trading name resolves to the
	// existing record.
	id2, err := s.UpsertSupplier(ctx, pos.Supplier{
		ID: "sup-2", Name: "Bidco Africa", VATNo: "P0512345A", CreatedAt: time.Now(),
	})
	require.NoError(t, err)
	assert.Equal(t, "sup-1", id2)
}

func TestUpsertSupplier_DedupByNameWhenNoVATNo(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id1, err := s.UpsertSupplier(ctx, pos.Supplier{
		ID: "sup-1", Name: "Mama Mboga", CreatedAt: time.Now(),
	})
	require.NoError(t, err)

	id2, err := s.UpsertSupplier(ctx, pos.Supplier{
		ID: "sup-2", Name: "Mama Mboga  ", CreatedAt: time.Now(),
	})
	require.NoError(t, err)
	assert.Equal(t, id1, id2, "trailing whitespace must not create a duplicate")
}

func TestInsertPurchase_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	supID, err := s.UpsertSupplier(ctx, pos.Supplier{
		ID: "sup-1", Name: "Bidco Ltd", VATNo: "P0512345A", CreatedAt: time.Now(),
	})
	require.NoError(t, err)

	p := pos.Purchase{
		ID:             "pur-1",
		StoreID:        "store-1",
		SupplierID:     supID,
		InvoiceNumber:  "INV-778",
		IsVATIncluded:  true,
		InputVATAmount: 96,
		CreatedAt:      time.Now(),
		Items: []pos.PurchaseItem{
			{ProductID: "p1", Quantity: 24, UnitCost: 25, VATAmount: 96},
		},
	}
	require.NoError(t, s.InsertPurchase(ctx, p))

	purchases, err := s.UnsyncedPurchases(ctx)
	require.NoError(t, err)
	require.Len(t, purchases, 1)
	got := purchases[0]
	assert.Equal(t, supID, got.SupplierID)
	assert.True(t, got.IsVATIncluded)
	require.Len(t, got.Items, 1)
	assert.Equal(t, 24, got.Items[0].Quantity)

	require.NoError(t, s.MarkPurchaseSynced(ctx, "pur-1"))
	n, err := s.CountUnsyncedPurchases(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
