package extract

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"

	"github.com/sw33tLie/promowatch/pkg/promo"
)

// minBlockLength discards fragments too short to describe an offer.
const minBlockLength = 10

const maxTitleLength = 120

// Elements whose text never belongs to an offer.
var skipElements = map[string]bool{
	"head": true, "title": true, "script": true, "style": true, "noscript": true,
	"template": true, "svg": true, "iframe": true,
}

// Sectioning elements separate blocks; line elements separate lines.
var (
	sectionElements = map[string]bool{
		"div": true, "section": true, "article": true, "aside": true, "header": true,
		"footer": true, "main": true, "nav": true, "ul": true, "ol": true, "dl": true,
		"table": true, "form": true, "figure": true, "body": true,
	}
	lineElements = map[string]bool{
		"p": true, "h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
		"li": true, "dt": true, "dd": true, "tr": true, "blockquote": true, "pre": true,
		"figcaption": true, "address": true,
	}
)

func breakFor(tag string) string {
	switch {
	case sectionElements[tag]:
		return "\n\n"
	case lineElements[tag]:
		return "\n"
	case tag == "br":
		return "\n"
	case tag == "hr":
		return "\n\n"
	}
	return ""
}

// blockText renders the text below n, turning the document structure into
// line and blank-line breaks.
func blockText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(wsRun.ReplaceAllString(n.Data, " "))
			return
		case html.ElementNode:
			if skipElements[n.Data] {
				return
			}
			br := breakFor(n.Data)
			if voidElements[n.Data] {
				b.WriteString(br)
				return
			}
			b.WriteString(br)
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				walk(c)
			}
			b.WriteString(br)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

var (
	blankLineSplit = regexp.MustCompile(`\n[ \t]*\n`)

	pricePattern = regexp.MustCompile(`(?i)(?:[$€£]\s?\d[\d,]*(?:\.\d{1,2})?|\d[\d,]*(?:\.\d{1,2})?\s?(?:usd|eur|gbp|dollars)\b)`)

	validityPattern  = regexp.MustCompile(`(?i)\b(?:valid|available|book by|travel by|stay by|expires?|through|until|thru)\b.*`)
	monthDatePattern = regexp.MustCompile(`(?i)\b(?:jan|feb|mar|apr|may|jun|jul|aug|sep|sept|oct|nov|dec)[a-z]*\.?\s+\d{1,2}(?:st|nd|rd|th)?(?:,?\s+\d{4})?(?:\s*[-–]\s*(?:(?:jan|feb|mar|apr|may|jun|jul|aug|sep|sept|oct|nov|dec)[a-z]*\.?\s+)?\d{1,2}(?:st|nd|rd|th)?(?:,?\s+\d{4})?)?`)
	numericDate      = regexp.MustCompile(`\b\d{1,2}/\d{1,2}/\d{2,4}\b|\b\d{4}-\d{2}-\d{2}\b`)

	benefitPattern = regexp.MustCompile(`(?i)\b(?:free|complimentary|includes?|included|bonus|upgrades?|perks?)\b`)
	titlePattern   = regexp.MustCompile(`(?i)^(?:deal|offer|package|promo(?:tion)?|special|featured)\s*[:\-–]\s*(.+)$`)
)

// parseBlocks splits text on blank lines and pattern matches each block.
func parseBlocks(text string) []promo.Promotion {
	var out []promo.Promotion
	for _, block := range blankLineSplit.Split(text, -1) {
		lines := blockLines(block)
		if len(lines) == 0 || len(strings.Join(lines, " ")) < minBlockLength {
			continue
		}
		if p, ok := parseBlock(lines); ok {
			out = append(out, p)
		}
	}
	return out
}

func blockLines(block string) []string {
	var lines []string
	for _, l := range strings.Split(block, "\n") {
		l = strings.TrimSpace(wsRun.ReplaceAllString(l, " "))
		if l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

func parseBlock(lines []string) (promo.Promotion, bool) {
	var fields [numFields]string
	text := strings.Join(lines, "\n")

	fields[fieldPrice] = pricePattern.FindString(text)

	for _, l := range lines {
		if m := validityPattern.FindString(l); m != "" {
			fields[fieldDates] = m
			break
		}
	}
	if fields[fieldDates] == "" {
		fields[fieldDates] = monthDatePattern.FindString(text)
	}
	if fields[fieldDates] == "" {
		fields[fieldDates] = numericDate.FindString(text)
	}

	for _, l := range lines {
		if benefitPattern.MatchString(l) {
			fields[fieldPerk] = l
			break
		}
	}

	for _, l := range lines {
		if m := titlePattern.FindStringSubmatch(l); m != nil {
			fields[fieldTitle] = m[1]
			break
		}
	}
	if fields[fieldTitle] == "" {
		fields[fieldTitle] = truncate(lines[0], maxTitleLength)
	}

	return fromFields(fields)
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return strings.TrimSpace(string([]rune(s)[:n]))
}
