package pos

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeKey canonicalizes an identity-bearing string (SKU, barcode,
// supplier VAT number) for storage and comparison: NFC normalization plus
// whitespace trimming. Two terminals entering the same SKU through
// different input methods must collide on the unique index rather than
// create silent duplicates.
func NormalizeKey(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// NormalizeName canonicalizes a display name. Trailing whitespace is
// trimmed but inner spacing is preserved.
func NormalizeName(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
