// Package extract turns raw page markup into Promotion records.
//
// Two backends implement the same contract: Query walks a parsed DOM with
// goquery, Token streams the markup through the x/net/html tokenizer. Both
// look for structured fields inside selector-matched containers and fall
// back to parsing blank-line separated text blocks.
package extract

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/cockroachdb/errors"
	strip "github.com/grokify/html-strip-tags-go"

	"github.com/sw33tLie/promowatch/pkg/promo"
)

// ErrParse marks markup the backend could not read at all. An empty result
// is not an error.
var ErrParse = errors.New("extract: unable to parse markup")

// ErrSelector marks a valid CSS selector that a backend cannot evaluate.
var ErrSelector = errors.New("extract: selector not supported by backend")

// Extractor turns markup and a container selector into promotions.
type Extractor interface {
	Name() string
	Extract(markup, selector string) ([]promo.Promotion, error)
}

// Backend names accepted by New.
const (
	BackendQuery = "query"
	BackendToken = "token"
)

// New returns the extractor backend registered under name.
func New(name string) (Extractor, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", BackendQuery:
		return Query{}, nil
	case BackendToken:
		return Token{}, nil
	default:
		return nil, fmt.Errorf("unknown extractor backend: %s", name)
	}
}

type field int

const (
	fieldTitle field = iota
	fieldPerk
	fieldDates
	fieldPrice
	numFields
)

// fieldHints lists, per field, the selectors tried in priority order.
var fieldHints = [numFields][]string{
	fieldTitle: {"h1", "h2", "h3", "h4", ".title", ".headline"},
	fieldPerk:  {".perk", ".benefit", ".offer", "p"},
	fieldDates: {".dates", ".validity", ".valid-dates", ".date"},
	fieldPrice: {".price", ".cost", ".rate"},
}

var wsRun = regexp.MustCompile(`\s+`)

// fieldText cleans the text content of a field element.
func fieldText(s string) string {
	s = strip.StripTags(s)
	return strings.TrimSpace(wsRun.ReplaceAllString(s, " "))
}

func fromFields(fields [numFields]string) (promo.Promotion, bool) {
	if fields[fieldTitle] == "" && fields[fieldPerk] == "" {
		return promo.Promotion{}, false
	}
	p := promo.New(fields[fieldTitle], fields[fieldPerk], fields[fieldDates], fields[fieldPrice])
	return p, p.HasContent()
}

// finish drops empty promotions and duplicates, keeping document order.
func finish(promos []promo.Promotion) []promo.Promotion {
	out := make([]promo.Promotion, 0, len(promos))
	for _, p := range promos {
		if p.HasContent() {
			out = append(out, p)
		}
	}
	return promo.Dedupe(out)
}
