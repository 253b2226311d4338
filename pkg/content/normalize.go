package content

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	slashDatePattern = regexp.MustCompile(`\b\d{1,2}/\d{1,2}/\d{2,4}\b`)
	isoDatePattern   = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}(?:[T ]\d{2}:\d{2}(?::\d{2}(?:\.\d+)?)?(?:Z|[+-]\d{2}:?\d{2})?)?\b`)
	clockPattern     = regexp.MustCompile(`(?i)\b\d{1,2}:\d{2}(?::\d{2})?(?:\s*[ap]\.?m\.?)?`)
	tokenPattern     = regexp.MustCompile(`\b[A-Za-z0-9]{8,}\b`)
	paramPattern     = regexp.MustCompile(`(?i)\b(?:ref|utm_[a-z]+|track[a-z_]*|id)[:=][^\s&]+&?`)
	counterPattern   = regexp.MustCompile(`(?i)\b\d[\d,.]*[km]?\+?\s*(?:views?|clicks?|visits?|visitors?)\b`)
	trailerParen     = regexp.MustCompile(`(?i)\(\s*(?:last\s+)?(?:updated|modified|posted)\b[^)]*\)`)
	trailerPattern   = regexp.MustCompile(`(?i)\b(?:last\s+)?(?:updated|modified|posted)\s*(?:on|at)?\s*:[^\n]*`)

	spacePattern     = regexp.MustCompile(`[ \t\f\v\r]+`)
	blankLinePattern = regexp.MustCompile(`\n(?:[ \t]*\n)+`)
	lineEdgePattern  = regexp.MustCompile(`[ \t]*\n[ \t]*`)
)

// Normalize removes volatile fragments (dates, clock times, tracking codes,
// counters and "updated:" trailers) and collapses whitespace.
// Normalize(Normalize(s)) == Normalize(s): the passes repeat until the text
// stops changing, since one removal can bring two fragments together.
func Normalize(s string) string {
	for s != "" {
		next := normalizeOnce(s)
		if next == s {
			break
		}
		s = next
	}
	return s
}

func normalizeOnce(s string) string {
	s = slashDatePattern.ReplaceAllString(s, " ")
	s = isoDatePattern.ReplaceAllString(s, " ")
	s = clockPattern.ReplaceAllString(s, " ")
	s = paramPattern.ReplaceAllString(s, " ")
	s = tokenPattern.ReplaceAllStringFunc(s, dropOpaqueToken)
	s = counterPattern.ReplaceAllString(s, " ")
	s = trailerParen.ReplaceAllString(s, " ")
	s = trailerPattern.ReplaceAllString(s, " ")
	return collapseWhitespace(s)
}

// dropOpaqueToken removes tokens that look machine generated. Plain words
// (no digits) are kept, so "Complimentary" survives while "A1B2C3D4E5" does not.
func dropOpaqueToken(tok string) string {
	for _, r := range tok {
		if unicode.IsDigit(r) {
			return " "
		}
	}
	return tok
}

func collapseWhitespace(s string) string {
	s = spacePattern.ReplaceAllString(s, " ")
	s = lineEdgePattern.ReplaceAllString(s, "\n")
	s = blankLinePattern.ReplaceAllString(s, "\n")
	return strings.TrimSpace(s)
}
