// Package content holds the text primitives shared by extraction and
// change detection: normalization, noise filtering and content digests.
package content

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// DigestLength is the number of hex characters kept from a sha256 digest.
const DigestLength = 16

// fieldSeparator joins identity fields; it is not expected in promo text.
const fieldSeparator = "|"

// Digest returns the truncated sha256 hex digest of s. It is stable across
// processes and used for storage keys.
func Digest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:DigestLength]
}

// Identity derives the stable id of a promotion from its fields. Each field
// is normalized independently before hashing.
func Identity(title, perk, dates, price string) string {
	return Digest(strings.Join([]string{
		Normalize(title),
		Normalize(perk),
		Normalize(dates),
		Normalize(price),
	}, fieldSeparator))
}

// ListHash digests an ordered list of ids.
func ListHash(ids []string) string {
	return Digest(strings.Join(ids, ","))
}
