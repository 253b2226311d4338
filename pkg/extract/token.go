package extract

import (
	"io"
	"strings"

	"github.com/cockroachdb/errors"
	"golang.org/x/net/html"

	"github.com/sw33tLie/promowatch/pkg/promo"
)

// Token extracts promotions in a single streaming pass over the markup.
// Selectors are limited to compounds joined by descendant or child
// combinators (see parseSelectorGroup).
type Token struct{}

func (Token) Name() string { return BackendToken }

func (t Token) Extract(markup, selector string) ([]promo.Promotion, error) {
	if strings.TrimSpace(markup) == "" {
		return nil, nil
	}
	return t.extractFrom(strings.NewReader(markup), selector)
}

func (Token) extractFrom(r io.Reader, selector string) ([]promo.Promotion, error) {
	w := &tokenWalker{}
	if validSelector(selector) {
		group, err := parseSelectorGroup(selector)
		if err != nil {
			return nil, err
		}
		w.sel = group
	}

	z := html.NewTokenizer(r)
	for {
		switch z.Next() {
		case html.ErrorToken:
			if err := z.Err(); err != io.EOF {
				return nil, errors.Wrap(errors.Mark(err, ErrParse), "tokenize html")
			}
			w.closeAll()
			return w.result(), nil
		case html.StartTagToken:
			w.start(z.Token(), false)
		case html.SelfClosingTagToken:
			w.start(z.Token(), true)
		case html.EndTagToken:
			w.end(z.Token().Data)
		case html.TextToken:
			w.text(string(z.Text()))
		}
	}
}

var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true, "hr": true,
	"img": true, "input": true, "link": true, "meta": true, "source": true,
	"track": true, "wbr": true,
}

type capture struct {
	field field
	rank  int
	depth int
	buf   strings.Builder
}

type container struct {
	depth    int
	text     strings.Builder
	captures []*capture
	fields   [numFields]string
	ranks    [numFields]int
}

type tokenWalker struct {
	sel       selectorGroup
	stack     []element
	skipDepth int
	doc       strings.Builder
	cur       *container
	matched   bool
	promos    []promo.Promotion
}

func (w *tokenWalker) write(s string) {
	if s == "" {
		return
	}
	w.doc.WriteString(s)
	if w.cur != nil {
		w.cur.text.WriteString(s)
	}
}

func (w *tokenWalker) start(tok html.Token, selfClosing bool) {
	name := tok.Data
	if voidElements[name] || selfClosing {
		if w.skipDepth == 0 {
			w.write(breakFor(name))
		}
		return
	}
	if w.skipDepth == 0 {
		w.implicitEnd(name)
	}
	id, classes := attrs(tok)
	w.stack = append(w.stack, element{tag: name, id: id, classes: classes})
	depth := len(w.stack)
	if w.skipDepth > 0 {
		return
	}
	if skipElements[name] {
		w.skipDepth = depth
		return
	}
	w.write(breakFor(name))

	if w.cur == nil {
		if w.sel.match(w.stack) {
			w.cur = &container{depth: depth}
			w.matched = true
		}
		return
	}
	el := w.stack[depth-1]
	for f := field(0); f < numFields; f++ {
		if w.cur.capturing(f) {
			continue
		}
		if r := hintRank(f, el); r >= 0 {
			w.cur.captures = append(w.cur.captures, &capture{field: f, rank: r, depth: depth})
		}
	}
}

func (w *tokenWalker) text(s string) {
	if w.skipDepth > 0 {
		return
	}
	s = wsRun.ReplaceAllString(s, " ")
	w.write(s)
	if w.cur != nil {
		for _, c := range w.cur.captures {
			c.buf.WriteString(s)
		}
	}
}

// end closes every element opened after the most recent name on the stack,
// which tolerates unclosed children such as <p> and <li>.
func (w *tokenWalker) end(name string) {
	i := len(w.stack) - 1
	for ; i >= 0; i-- {
		if w.stack[i].tag == name {
			break
		}
	}
	if i < 0 {
		return
	}
	for d := len(w.stack); d > i; d-- {
		w.close(d)
	}
	w.stack = w.stack[:i]
}

// closesParagraph lists start tags that end an open <p>.
var closesParagraph = map[string]bool{
	"address": true, "article": true, "aside": true, "blockquote": true, "div": true,
	"dl": true, "fieldset": true, "footer": true, "form": true, "h1": true, "h2": true,
	"h3": true, "h4": true, "h5": true, "h6": true, "header": true, "main": true,
	"nav": true, "ol": true, "p": true, "pre": true, "section": true, "table": true,
	"ul": true, "li": true, "dd": true, "dt": true,
}

// implicitEnd applies the end tags HTML lets authors omit before a new
// start tag: an open <p> before a block, and a sibling <li>, <dt> or <dd>.
func (w *tokenWalker) implicitEnd(name string) {
	if closesParagraph[name] {
		for i := len(w.stack) - 1; i >= 0; i-- {
			open := w.stack[i].tag
			if open == "p" {
				w.end("p")
				break
			}
			if sectionElements[open] || lineElements[open] {
				break
			}
		}
	}
	var siblings, scope []string
	switch name {
	case "li":
		siblings, scope = []string{"li"}, []string{"ul", "ol"}
	case "dt", "dd":
		siblings, scope = []string{"dt", "dd"}, []string{"dl"}
	default:
		return
	}
	for i := len(w.stack) - 1; i >= 0; i-- {
		open := w.stack[i].tag
		if contains(scope, open) {
			return
		}
		if contains(siblings, open) {
			w.end(open)
			return
		}
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (w *tokenWalker) closeAll() {
	for d := len(w.stack); d > 0; d-- {
		w.close(d)
	}
	w.stack = nil
}

func (w *tokenWalker) close(depth int) {
	if w.skipDepth > 0 {
		if w.skipDepth == depth {
			w.skipDepth = 0
		}
		return
	}
	w.write(breakFor(w.stack[depth-1].tag))
	if w.cur == nil {
		return
	}
	w.cur.closeCaptures(depth)
	if w.cur.depth == depth {
		if p, ok := fromFields(w.cur.fields); ok {
			w.promos = append(w.promos, p)
		} else {
			w.promos = append(w.promos, parseBlocks(w.cur.text.String())...)
		}
		w.cur = nil
	}
}

func (w *tokenWalker) result() []promo.Promotion {
	if !w.matched {
		return finish(parseBlocks(w.doc.String()))
	}
	return finish(w.promos)
}

func (c *container) capturing(f field) bool {
	for _, cp := range c.captures {
		if cp.field == f {
			return true
		}
	}
	return false
}

// closeCaptures finalizes captures opened at depth. A field keeps the value
// from its best ranked hint; ties go to the earlier element.
func (c *container) closeCaptures(depth int) {
	kept := c.captures[:0]
	for _, cp := range c.captures {
		if cp.depth != depth {
			kept = append(kept, cp)
			continue
		}
		text := fieldText(cp.buf.String())
		if text == "" {
			continue
		}
		if c.fields[cp.field] == "" || cp.rank < c.ranks[cp.field] {
			c.fields[cp.field] = text
			c.ranks[cp.field] = cp.rank
		}
	}
	c.captures = kept
}

func attrs(tok html.Token) (id string, classes []string) {
	for _, a := range tok.Attr {
		switch a.Key {
		case "id":
			id = a.Val
		case "class":
			classes = strings.Fields(a.Val)
		}
	}
	return id, classes
}
