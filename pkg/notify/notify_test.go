package notify

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tidwall/gjson"

	"github.com/sw33tLie/promowatch/pkg/changes"
	"github.com/sw33tLie/promowatch/pkg/promo"
	"github.com/sw33tLie/promowatch/pkg/targets"
)

var at = time.Date(2025, 3, 1, 8, 30, 0, 0, time.UTC)

func sampleResult() changes.Result {
	prev := promo.New("Maui Escape", "Spa credit", "", "$1,299")
	cur := prev
	cur.Price = "$1,099"
	return changes.Result{
		HasChanges: true,
		Added:      []promo.Promotion{promo.New("Hawaii Package", "Free breakfast", "March 1, 2025", "$899")},
		Removed:    []promo.Promotion{},
		Changed:    []changes.Pair{{Previous: prev, Current: cur}},
		Summary:    "1 new promotion and 1 promotion updated",
	}
}

func TestPayload(t *testing.T) {
	tgt := targets.Target{URL: "https://deals.example.com/hawaii", Selector: ".promo", Notes: "spring"}
	body, err := Payload(tgt, sampleResult(), at)
	if err != nil {
		t.Fatalf("Payload: %v", err)
	}
	if !gjson.ValidBytes(body) {
		t.Fatalf("invalid JSON: %s", body)
	}
	checks := map[string]string{
		"target.name":             "example.com",
		"target.url":              "https://deals.example.com/hawaii",
		"target.notes":            "spring",
		"summary":                 "1 new promotion and 1 promotion updated",
		"timestamp":               "2025-03-01T08:30:00Z",
		"counts.added":            "1",
		"counts.removed":          "0",
		"added.0.title":           "Hawaii Package",
		"changed.0.current.price": "$1,099",
	}
	for path, want := range checks {
		if got := gjson.GetBytes(body, path).String(); got != want {
			t.Errorf("%s = %q, want %q", path, got, want)
		}
	}
	if !gjson.GetBytes(body, "removed").IsArray() {
		t.Error("removed should be an array")
	}
}

func TestWebhookDelivers(t *testing.T) {
	var got []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("unexpected request %s %s", r.Method, r.Header.Get("Content-Type"))
		}
		got, _ = io.ReadAll(r.Body)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	tgt := targets.Target{URL: "https://example.com", Name: "Example"}
	if err := NewWebhook(srv.URL, time.Second).Notify(context.Background(), tgt, sampleResult(), at); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if gjson.GetBytes(got, "text").String() != "Example: 1 new promotion and 1 promotion updated" {
		t.Fatalf("unexpected body: %s", got)
	}
}

func TestWebhookRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":false,"error":"invalid_token"}`))
	}))
	defer srv.Close()

	err := NewWebhook(srv.URL, time.Second).Notify(context.Background(), targets.Target{URL: "https://example.com"}, sampleResult(), at)
	if err == nil || !strings.Contains(err.Error(), "invalid_token") {
		t.Fatalf("expected rejection error, got %v", err)
	}
}

func TestWebhookStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	err := NewWebhook(srv.URL, time.Second).Notify(context.Background(), targets.Target{URL: "https://example.com"}, sampleResult(), at)
	if err == nil {
		t.Fatal("expected status error")
	}
}

func TestWebhookTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	start := time.Now()
	err := NewWebhook(srv.URL, 50*time.Millisecond).Notify(context.Background(), targets.Target{URL: "https://example.com"}, sampleResult(), at)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if time.Since(start) > time.Second {
		t.Fatalf("timeout not enforced: took %s", time.Since(start))
	}
}

func TestPrinter(t *testing.T) {
	var buf bytes.Buffer
	p := &Printer{W: &buf}
	if err := p.Notify(context.Background(), targets.Target{URL: "https://example.com", Name: "Example"}, sampleResult(), at); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Example", "🆕  Hawaii Package: Free breakfast  $899  [March 1, 2025]", "🔄  Maui Escape", "price: $1,299 -> $1,099"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

type failing struct{ calls *int }

func (f failing) Notify(context.Context, targets.Target, changes.Result, time.Time) error {
	*f.calls++
	return io.ErrUnexpectedEOF
}

func TestMultiTriesAll(t *testing.T) {
	calls := 0
	var buf bytes.Buffer
	m := Multi{failing{&calls}, &Printer{W: &buf}, failing{&calls}}
	if err := m.Notify(context.Background(), targets.Target{URL: "https://example.com"}, sampleResult(), at); err == nil {
		t.Fatal("expected first error")
	}
	if calls != 2 || buf.Len() == 0 {
		t.Fatalf("every notifier should run: calls=%d printed=%d", calls, buf.Len())
	}
}
