// Package promo defines the Promotion value extracted from a target page.
package promo

import "github.com/sw33tLie/promowatch/pkg/content"

// Promotion is one extracted offer. Fields are normalized and ID is derived
// from them, so a Promotion must be built with New.
type Promotion struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Perk  string `json:"perk"`
	Dates string `json:"dates"`
	Price string `json:"price"`
}

// New normalizes every field and computes the content identity.
func New(title, perk, dates, price string) Promotion {
	p := Promotion{
		Title: content.Normalize(title),
		Perk:  content.Normalize(perk),
		Dates: content.Normalize(dates),
		Price: content.Normalize(price),
	}
	p.ID = content.Identity(p.Title, p.Perk, p.Dates, p.Price)
	return p
}

// HasContent reports whether the promotion carries a title or a perk.
func (p Promotion) HasContent() bool {
	return p.Title != "" || p.Perk != ""
}

// IDs returns the ids of promos in order.
func IDs(promos []Promotion) []string {
	out := make([]string, 0, len(promos))
	for _, p := range promos {
		out = append(out, p.ID)
	}
	return out
}

// Hash is the whole-list digest stored with a target's state.
func Hash(promos []Promotion) string {
	return content.ListHash(IDs(promos))
}

// Dedupe drops later promotions that share an id with an earlier one.
func Dedupe(promos []Promotion) []Promotion {
	seen := make(map[string]bool, len(promos))
	out := make([]Promotion, 0, len(promos))
	for _, p := range promos {
		if seen[p.ID] {
			continue
		}
		seen[p.ID] = true
		out = append(out, p)
	}
	return out
}
