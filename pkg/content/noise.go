package content

import (
	"regexp"
	"strings"
)

// noisePatterns strip promotional filler. They assume Normalize already ran:
// single spaces, no volatile dates or counters.
var noisePatterns = []*regexp.Regexp{
	// urgency
	regexp.MustCompile(`(?i)\b(?:limited[- ]time(?: only| offer)?|act (?:now|fast)|hurry(?: up)?|expires? soon|ending soon|ends soon|last chance|don'?t miss (?:out|this)|while (?:supplies|stocks?) last|today only|only \d+ left|selling fast)\b!*`),
	// calls to action
	regexp.MustCompile(`(?i)\b(?:call|book|reserve|order|buy|shop|sign up|register) (?:now|today)\b!*`),
	regexp.MustCompile(`(?i)\b(?:click here|learn more|find out more|see details)\b!*`),
	// disclaimers between asterisks, or a single leading asterisk to end of line
	regexp.MustCompile(`\*[^*\n]+\*`),
	regexp.MustCompile(`(?m)^\s*\*+[^\n]*$`),
	// parenthetical terms references
	regexp.MustCompile(`(?i)\([^)]*\b(?:terms|conditions|restrictions|exclusions|t&cs?|t's? ?& ?c's?)\b[^)]*\)`),
	// social proof
	regexp.MustCompile(`(?i)\b\d[\d,]*\+?\s+(?:people|travell?ers|guests|customers|shoppers|others|users)\s+(?:have\s+|are\s+)?(?:booked|viewed|bought|purchased|viewing|looking|watching|claimed)[^.!\n]*[.!]?`),
	regexp.MustCompile(`(?i)\b(?:trending(?: now)?|popular(?: choice| pick)?|most popular|best ?seller|most booked|hot deal)\b!*`),
}

var strayBangs = regexp.MustCompile(`^[\s!]+|[\s!]+$`)

// FilterNoise removes urgency, call-to-action, disclaimer and social-proof
// phrases from already normalized text.
func FilterNoise(s string) string {
	if s == "" {
		return ""
	}
	for _, p := range noisePatterns {
		s = p.ReplaceAllString(s, " ")
	}
	s = collapseWhitespace(s)
	s = strayBangs.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// Clean is Normalize followed by FilterNoise. The order matters.
func Clean(s string) string {
	return FilterNoise(Normalize(s))
}
