package pos

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVATStatusValid(t *testing.T) {
	assert.True(t, VATTaxable.Valid())
	assert.True(t, VATZeroRated.Valid())
	assert.True(t, VATExempt.Valid())
	assert.False(t, VATStatus("").Valid())
	assert.False(t, VATStatus("vatable").Valid())
}

func TestBaseQuantity(t *testing.T) {
	assert.Equal(t, 24, BaseQuantity(12, 2))
	assert.Equal(t, 3, BaseQuantity(1, 3))
	// Unset pack size counts units directly.
	assert.Equal(t, 5, BaseQuantity(0, 5))
	assert.Equal(t, 5, BaseQuantity(-4, 5))
}

func TestNormalizeKey(t *testing.T) {
	assert.Equal(t, "ABC-123", NormalizeKey("  ABC-123 "))
	assert.Equal(t, "", NormalizeKey("   "))
	// Composed and decomposed forms of the same character collapse.
	assert.Equal(t, NormalizeKey("caf\u00e9"), NormalizeKey("cafe\u0301"))
}
