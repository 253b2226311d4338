package extract

import (
	"regexp"
	"strings"

	"github.com/cockroachdb/errors"
)

// element is an open tag as seen by the token backend.
type element struct {
	tag     string
	id      string
	classes []string
}

// compound is one compound selector: optional tag, id and classes.
type compound struct {
	tag     string
	id      string
	classes []string
}

type combinator byte

const (
	descendant combinator = ' '
	child      combinator = '>'
)

// chain is a complex selector such as ".deals > li.promo". combs[i] joins
// parts[i] to parts[i+1]; the rightmost part addresses the element itself.
type chain struct {
	parts []compound
	combs []combinator
}

type selectorGroup []chain

var compoundPattern = regexp.MustCompile(`^([a-zA-Z][a-zA-Z0-9-]*|\*)?((?:[.#][A-Za-z0-9_-]+)*)$`)

// parseSelectorGroup parses the subset of CSS the token backend can match
// while streaming: comma separated chains of compounds like "div.promo",
// "#deals li" or ".deals > .card", joined by descendant or child
// combinators. Anything else wraps ErrSelector.
func parseSelectorGroup(s string) (selectorGroup, error) {
	var group selectorGroup
	for _, part := range strings.Split(s, ",") {
		c, err := parseChain(part)
		if err != nil {
			return nil, errors.Wrapf(err, "selector %q", s)
		}
		group = append(group, c)
	}
	return group, nil
}

func parseChain(s string) (chain, error) {
	var c chain
	pending := descendant
	expectCompound := true
	for _, tok := range strings.Fields(strings.ReplaceAll(s, ">", " > ")) {
		if tok == ">" {
			if expectCompound {
				return chain{}, errors.Mark(errors.Newf("misplaced combinator in %q", strings.TrimSpace(s)), ErrSelector)
			}
			pending, expectCompound = child, true
			continue
		}
		sel, ok := parseCompound(tok)
		if !ok {
			return chain{}, errors.Mark(errors.Newf("unsupported compound %q", tok), ErrSelector)
		}
		if len(c.parts) > 0 {
			c.combs = append(c.combs, pending)
		}
		c.parts = append(c.parts, sel)
		pending, expectCompound = descendant, false
	}
	if len(c.parts) == 0 || expectCompound {
		return chain{}, errors.Mark(errors.Newf("incomplete selector %q", strings.TrimSpace(s)), ErrSelector)
	}
	return c, nil
}

func parseCompound(s string) (compound, bool) {
	m := compoundPattern.FindStringSubmatch(s)
	if m == nil || s == "" {
		return compound{}, false
	}
	sel := compound{tag: strings.ToLower(m[1])}
	if sel.tag == "*" {
		sel.tag = ""
	}
	rest := m[2]
	for rest != "" {
		kind := rest[0]
		rest = rest[1:]
		end := strings.IndexAny(rest, ".#")
		if end < 0 {
			end = len(rest)
		}
		name := rest[:end]
		rest = rest[end:]
		if kind == '#' {
			sel.id = name
		} else {
			sel.classes = append(sel.classes, name)
		}
	}
	return sel, true
}

func (s compound) match(el element) bool {
	if s.tag != "" && s.tag != el.tag {
		return false
	}
	if s.id != "" && s.id != el.id {
		return false
	}
	for _, want := range s.classes {
		if !contains(el.classes, want) {
			return false
		}
	}
	return true
}

// match reports whether the last element of path, with the rest of path as
// its ancestors, satisfies c.
func (c chain) match(path []element) bool {
	last := len(c.parts) - 1
	if len(path) == 0 || !c.parts[last].match(path[len(path)-1]) {
		return false
	}
	return c.matchAncestors(last-1, path[:len(path)-1])
}

// matchAncestors matches parts[:i+1] against ancestors, whose last entry is
// the parent of the element matched by parts[i+1].
func (c chain) matchAncestors(i int, ancestors []element) bool {
	if i < 0 {
		return true
	}
	if c.combs[i] == child {
		n := len(ancestors)
		return n > 0 && c.parts[i].match(ancestors[n-1]) && c.matchAncestors(i-1, ancestors[:n-1])
	}
	for j := len(ancestors) - 1; j >= 0; j-- {
		if c.parts[i].match(ancestors[j]) && c.matchAncestors(i-1, ancestors[:j]) {
			return true
		}
	}
	return false
}

func (g selectorGroup) match(path []element) bool {
	for _, c := range g {
		if c.match(path) {
			return true
		}
	}
	return false
}

// tokenHints are fieldHints compiled for the token backend.
var tokenHints = func() [numFields][]compound {
	var out [numFields][]compound
	for f := field(0); f < numFields; f++ {
		for _, h := range fieldHints[f] {
			sel, ok := parseCompound(h)
			if !ok {
				panic("extract: bad field hint " + h)
			}
			out[f] = append(out[f], sel)
		}
	}
	return out
}()

// hintRank returns the priority of the first hint of f matching el, or -1.
func hintRank(f field, el element) int {
	for i, h := range tokenHints[f] {
		if h.match(el) {
			return i
		}
	}
	return -1
}
