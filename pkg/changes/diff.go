// Package changes computes and filters differences between two promotion
// snapshots of the same target.
package changes

import (
	"fmt"
	"strings"

	"github.com/sw33tLie/promowatch/pkg/content"
	"github.com/sw33tLie/promowatch/pkg/promo"
)

// Fixed summaries.
const (
	SummaryNone         = "No changes detected"
	SummaryNoMaterial   = "No material changes detected"
	SummaryInitialState = "Initial state captured"
)

// Pair is a promotion present on both sides under the same id.
type Pair struct {
	Previous promo.Promotion `json:"previous"`
	Current  promo.Promotion `json:"current"`
}

// Result is the outcome of comparing two snapshots.
type Result struct {
	HasChanges bool              `json:"hasChanges"`
	Added      []promo.Promotion `json:"added"`
	Removed    []promo.Promotion `json:"removed"`
	Changed    []Pair            `json:"changed"`
	Summary    string            `json:"summary"`
}

// Initial is the result reported when a target has no previous state.
func Initial() Result {
	return Result{
		Added:   []promo.Promotion{},
		Removed: []promo.Promotion{},
		Changed: []Pair{},
		Summary: SummaryInitialState,
	}
}

// Diff compares current against previous by promotion id.
func Diff(current, previous []promo.Promotion) Result {
	cur := index(current)
	prev := index(previous)

	r := Result{
		Added:   []promo.Promotion{},
		Removed: []promo.Promotion{},
		Changed: []Pair{},
	}
	for _, p := range promo.Dedupe(current) {
		old, ok := prev[p.ID]
		if !ok {
			r.Added = append(r.Added, p)
			continue
		}
		if !cleanEqual(old, p) {
			r.Changed = append(r.Changed, Pair{Previous: old, Current: p})
		}
	}
	for _, p := range promo.Dedupe(previous) {
		if _, ok := cur[p.ID]; !ok {
			r.Removed = append(r.Removed, p)
		}
	}
	r.finalize(SummaryNone)
	return r
}

func index(promos []promo.Promotion) map[string]promo.Promotion {
	m := make(map[string]promo.Promotion, len(promos))
	for _, p := range promos {
		if _, ok := m[p.ID]; !ok {
			m[p.ID] = p
		}
	}
	return m
}

// cleanEqual compares promotions after normalization and noise filtering,
// so filler drift on a shared id is not a change.
func cleanEqual(a, b promo.Promotion) bool {
	return content.Clean(a.Title) == content.Clean(b.Title) &&
		content.Clean(a.Perk) == content.Clean(b.Perk) &&
		content.Clean(a.Dates) == content.Clean(b.Dates) &&
		content.Clean(a.Price) == content.Clean(b.Price)
}

func (r *Result) finalize(empty string) {
	r.HasChanges = len(r.Added) > 0 || len(r.Removed) > 0 || len(r.Changed) > 0
	if r.HasChanges {
		r.Summary = Summarize(len(r.Added), len(r.Removed), len(r.Changed))
	} else {
		r.Summary = empty
	}
}

// Summarize builds the sentence for non-zero counts, always in the order
// added, removed, changed.
func Summarize(added, removed, changed int) string {
	var parts []string
	if added > 0 {
		parts = append(parts, fmt.Sprintf("%d new %s", added, plural(added, "promotion")))
	}
	if removed > 0 {
		parts = append(parts, fmt.Sprintf("%d %s removed", removed, plural(removed, "promotion")))
	}
	if changed > 0 {
		parts = append(parts, fmt.Sprintf("%d %s updated", changed, plural(changed, "promotion")))
	}
	if len(parts) == 0 {
		return SummaryNone
	}
	return joinClauses(parts)
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}

// joinClauses renders "a", "a and b" or "a, b, and c".
func joinClauses(parts []string) string {
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	case 2:
		return parts[0] + " and " + parts[1]
	}
	return strings.Join(parts[:len(parts)-1], ", ") + ", and " + parts[len(parts)-1]
}
