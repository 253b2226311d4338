package changes

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/sw33tLie/promowatch/pkg/promo"
)

const (
	minTitleLength   = 3
	minPerkLength    = 10
	minContentLength = 6
)

// noiseSignatures match page chrome that the extractor can mistake for an
// offer. Placeholders are anchored to the start of the text and boilerplate
// needs a whole phrase, so a deal that mentions cookies or a room numbered
// 404 is still an offer.
var noiseSignatures = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^\s*(?:loading|please wait|spinner)\b`),
	regexp.MustCompile(`(?i)^\s*(?:error|oops|something went wrong|page not found|404|503)\b`),
	regexp.MustCompile(`(?i)\b(?:we use cookies|(?:accept|allow|reject) (?:all )?cookies|cookies? (?:policy|settings|preferences|notice|consent)|privacy (?:policy|notice|settings)|terms of (?:use|service)|all rights reserved|gdpr)\b`),
	regexp.MustCompile(`(?i)^\s*(?:copyright\b|©)`),
	regexp.MustCompile(`(?i)^\s*(?:advertisement|sponsored|ad choices|adchoices)\b`),
	regexp.MustCompile(`^[\p{P}\p{S}\s]*$`),
}

// IsMaterialPromotion reports whether p carries real offer content rather
// than placeholder or boilerplate text.
func IsMaterialPromotion(p promo.Promotion) bool {
	hasContent := utf8.RuneCountInString(p.Title) > minTitleLength ||
		utf8.RuneCountInString(p.Perk) > minPerkLength
	if !hasContent {
		return false
	}
	text := strings.TrimSpace(p.Title + " " + p.Perk)
	if utf8.RuneCountInString(text) < minContentLength {
		return false
	}
	for _, sig := range noiseSignatures {
		if sig.MatchString(text) {
			return false
		}
	}
	return true
}

// IsMaterialChange reports whether any field of a pair moved beyond its
// similarity or tolerance threshold.
func IsMaterialChange(pair Pair) bool {
	prev, cur := pair.Previous, pair.Current
	return !TextSimilar(prev.Title, cur.Title) ||
		!TextSimilar(prev.Perk, cur.Perk) ||
		!PriceEqual(prev.Price, cur.Price) ||
		!DatesProximate(prev.Dates, cur.Dates)
}

// FilterMaterial drops noise additions and removals and immaterial updates
// from raw, then recomputes HasChanges and Summary. Each list of the
// result is a subset of the corresponding raw list.
func FilterMaterial(raw Result) Result {
	r := Result{
		Added:   []promo.Promotion{},
		Removed: []promo.Promotion{},
		Changed: []Pair{},
	}
	for _, p := range raw.Added {
		if IsMaterialPromotion(p) {
			r.Added = append(r.Added, p)
		}
	}
	for _, p := range raw.Removed {
		if IsMaterialPromotion(p) {
			r.Removed = append(r.Removed, p)
		}
	}
	for _, pair := range raw.Changed {
		if IsMaterialChange(pair) {
			r.Changed = append(r.Changed, pair)
		}
	}
	r.finalize(SummaryNoMaterial)
	return r
}

// Detect runs Diff followed by FilterMaterial.
func Detect(current, previous []promo.Promotion) (raw, material Result) {
	raw = Diff(current, previous)
	return raw, FilterMaterial(raw)
}
