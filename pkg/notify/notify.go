// Package notify delivers material promotion changes to a human.
package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sw33tLie/promowatch/pkg/changes"
	"github.com/sw33tLie/promowatch/pkg/targets"
)

// Notifier delivers one target's change result.
type Notifier interface {
	Notify(ctx context.Context, t targets.Target, r changes.Result, at time.Time) error
}

// Multi sends to every notifier and returns the first error.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, t targets.Target, r changes.Result, at time.Time) error {
	var first error
	for _, n := range m {
		if err := n.Notify(ctx, t, r, at); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Printer writes changes to a terminal.
type Printer struct {
	W io.Writer
}

func NewPrinter() *Printer { return &Printer{W: os.Stdout} }

func (p *Printer) Notify(_ context.Context, t targets.Target, r changes.Result, at time.Time) error {
	w := p.W
	if w == nil {
		w = os.Stdout
	}
	fmt.Fprintf(w, "📣  %s  %s  %s  (%s)\n", t.DisplayName(), t.URL, r.Summary, at.UTC().Format(time.RFC3339))
	for _, a := range r.Added {
		fmt.Fprintf(w, "🆕  %s\n", describe(a.Title, a.Perk, a.Price, a.Dates))
	}
	for _, rm := range r.Removed {
		fmt.Fprintf(w, "❌  %s\n", describe(rm.Title, rm.Perk, rm.Price, rm.Dates))
	}
	for _, c := range r.Changed {
		fmt.Fprintf(w, "🔄  %s\n", describe(c.Current.Title, c.Current.Perk, c.Current.Price, c.Current.Dates))
		if c.Previous.Price != c.Current.Price {
			fmt.Fprintf(w, "      price: %s -> %s\n", orDash(c.Previous.Price), orDash(c.Current.Price))
		}
		if c.Previous.Dates != c.Current.Dates {
			fmt.Fprintf(w, "      dates: %s -> %s\n", orDash(c.Previous.Dates), orDash(c.Current.Dates))
		}
	}
	return nil
}

func describe(title, perk, price, dates string) string {
	s := title
	if s == "" {
		s = perk
	} else if perk != "" {
		s += ": " + perk
	}
	if price != "" {
		s += "  " + price
	}
	if dates != "" {
		s += "  [" + dates + "]"
	}
	return s
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
