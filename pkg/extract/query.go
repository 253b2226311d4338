package extract

import (
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/cockroachdb/errors"

	"github.com/sw33tLie/promowatch/pkg/promo"
)

// Query extracts promotions from a goquery DOM.
type Query struct{}

func (Query) Name() string { return BackendQuery }

func (q Query) Extract(markup, selector string) ([]promo.Promotion, error) {
	if strings.TrimSpace(markup) == "" {
		return nil, nil
	}
	return q.extractFrom(strings.NewReader(markup), selector)
}

func (Query) extractFrom(r io.Reader, selector string) ([]promo.Promotion, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, errors.Wrap(errors.Mark(err, ErrParse), "parse html")
	}

	var containers *goquery.Selection
	if validSelector(selector) {
		containers = doc.Find(selector)
	}
	if containers == nil || containers.Length() == 0 {
		return finish(parseBlocks(documentText(doc))), nil
	}

	var promos []promo.Promotion
	containers.Each(func(_ int, s *goquery.Selection) {
		if p, ok := fromFields(queryFields(s)); ok {
			promos = append(promos, p)
			return
		}
		for _, n := range s.Nodes {
			promos = append(promos, parseBlocks(blockText(n))...)
		}
	})
	return finish(promos), nil
}

// queryFields picks, per field, the first non-empty element matching the
// highest priority hint.
func queryFields(s *goquery.Selection) [numFields]string {
	var fields [numFields]string
	for f := field(0); f < numFields; f++ {
		for _, hint := range fieldHints[f] {
			s.Find(hint).EachWithBreak(func(_ int, el *goquery.Selection) bool {
				fields[f] = fieldText(el.Text())
				return fields[f] == ""
			})
			if fields[f] != "" {
				break
			}
		}
	}
	return fields
}

func documentText(doc *goquery.Document) string {
	body := doc.Find("body")
	if body.Length() == 0 {
		body = doc.Selection
	}
	var b strings.Builder
	for _, n := range body.Nodes {
		b.WriteString(blockText(n))
	}
	return b.String()
}

// validSelector reports whether selector compiles. An invalid selector is
// treated like one that matches nothing.
func validSelector(selector string) bool {
	if strings.TrimSpace(selector) == "" {
		return false
	}
	_, err := cascadia.Compile(selector)
	return err == nil
}
