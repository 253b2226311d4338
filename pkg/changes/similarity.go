package changes

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/agext/levenshtein"
	"github.com/shopspring/decimal"

	"github.com/sw33tLie/promowatch/pkg/content"
)

// Tunable thresholds.
var (
	// SimilarityThreshold is the minimum edit-distance similarity for two
	// texts to count as the same.
	SimilarityThreshold = 0.85
	// PriceTolerance is the relative drift accepted between two amounts.
	PriceTolerance = decimal.RequireFromString("0.01")
	// PriceFloor is the absolute drift always accepted.
	PriceFloor = decimal.NewFromInt(1)
	// DateWindow is the largest gap between two dates that still counts as
	// the same validity period.
	DateWindow = 7 * 24 * time.Hour
)

// TextSimilar reports whether a and b say the same thing once volatile
// fragments, filler and case are ignored.
func TextSimilar(a, b string) bool {
	a = strings.ToLower(content.Clean(a))
	b = strings.ToLower(content.Clean(b))
	if a == b {
		return true
	}
	return similarity(a, b) >= SimilarityThreshold
}

// similarity is 1 - distance/maxLen over runes.
func similarity(a, b string) float64 {
	maxLen := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n > maxLen {
		maxLen = n
	}
	if maxLen == 0 {
		return 1
	}
	d := levenshtein.Distance(a, b, nil)
	return 1 - float64(d)/float64(maxLen)
}

var amountPattern = regexp.MustCompile(`(?i)[$€£]\s?(\d[\d,]*(?:\.\d+)?)|(\d[\d,]*(?:\.\d+)?)\s?(?:usd|eur|gbp|dollars)\b`)

// amounts extracts currency amounts in order of appearance.
func amounts(s string) []decimal.Decimal {
	var out []decimal.Decimal
	for _, m := range amountPattern.FindAllStringSubmatch(s, -1) {
		raw := m[1]
		if raw == "" {
			raw = m[2]
		}
		d, err := decimal.NewFromString(strings.ReplaceAll(raw, ",", ""))
		if err != nil {
			continue
		}
		out = append(out, d)
	}
	return out
}

// PriceEqual reports whether cur is within tolerance of prev: every amount
// may drift by 1% of the previous amount or by PriceFloor, whichever is
// larger. Without amounts on either side, text similarity decides.
func PriceEqual(prev, cur string) bool {
	pa, ca := amounts(prev), amounts(cur)
	if len(pa) == 0 && len(ca) == 0 {
		return TextSimilar(prev, cur)
	}
	if len(pa) != len(ca) {
		return false
	}
	for i := range pa {
		tol := decimal.Max(pa[i].Abs().Mul(PriceTolerance), PriceFloor)
		if ca[i].Sub(pa[i]).Abs().GreaterThan(tol) {
			return false
		}
	}
	return true
}

var (
	slashDate = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(\d{4})\b`)
	isoDate   = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	longDate  = regexp.MustCompile(`(?i)\b(jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|june?|july?|aug(?:ust)?|sep(?:t(?:ember)?)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)\.?\s+(\d{1,2})(?:st|nd|rd|th)?,?\s+(\d{4})\b`)
)

var monthByPrefix = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March, "apr": time.April,
	"may": time.May, "jun": time.June, "jul": time.July, "aug": time.August,
	"sep": time.September, "oct": time.October, "nov": time.November, "dec": time.December,
}

// dates extracts calendar dates written as MM/DD/YYYY, YYYY-MM-DD or
// "Month DD, YYYY". Impossible dates are skipped.
func dates(s string) []time.Time {
	var out []time.Time
	add := func(y, m, d int) {
		t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
		if t.Year() == y && int(t.Month()) == m && t.Day() == d {
			out = append(out, t)
		}
	}
	for _, m := range slashDate.FindAllStringSubmatch(s, -1) {
		add(atoi(m[3]), atoi(m[1]), atoi(m[2]))
	}
	for _, m := range isoDate.FindAllStringSubmatch(s, -1) {
		add(atoi(m[1]), atoi(m[2]), atoi(m[3]))
	}
	for _, m := range longDate.FindAllStringSubmatch(s, -1) {
		month := monthByPrefix[strings.ToLower(m[1][:3])]
		add(atoi(m[3]), int(month), atoi(m[2]))
	}
	return out
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

// DatesProximate reports whether two validity strings describe roughly the
// same period: some date on one side lies within DateWindow of a date on the
// other. Without dates on either side, text similarity decides.
func DatesProximate(prev, cur string) bool {
	pd, cd := dates(prev), dates(cur)
	if len(pd) == 0 && len(cd) == 0 {
		return TextSimilar(prev, cur)
	}
	for _, a := range pd {
		for _, b := range cd {
			gap := a.Sub(b)
			if gap < 0 {
				gap = -gap
			}
			if gap <= DateWindow {
				return true
			}
		}
	}
	return false
}
