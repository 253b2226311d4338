package polling

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/sw33tLie/promowatch/pkg/cache"
	"github.com/sw33tLie/promowatch/pkg/changes"
	"github.com/sw33tLie/promowatch/pkg/extract"
	"github.com/sw33tLie/promowatch/pkg/promo"
	"github.com/sw33tLie/promowatch/pkg/storage"
	"github.com/sw33tLie/promowatch/pkg/targets"
	"github.com/sw33tLie/promowatch/pkg/whttp"
)

type offer struct{ title, perk, price string }

var offers = []offer{
	{"Hawaii Package", "Free breakfast for two", "$899"},
	{"Maui Escape", "Complimentary spa credit", "$1,299"},
	{"Kauai Getaway", "Room upgrade included", "$649"},
	{"Oahu Weekend", "Free valet parking nightly", "$499"},
	{"Lanai Retreat", "Resort credit on arrival", "$1,099"},
	{"Molokai Escape", "Fourth night free", "$799"},
	{"Big Island Tour", "Helicopter tour included", "$1,499"},
}

func page(list ...offer) string {
	var b strings.Builder
	b.WriteString("<html><body><h1>Deals</h1>")
	for _, o := range list {
		fmt.Fprintf(&b, `<div class="promo"><h3>%s</h3><p class="perk">%s</p><span class="price">%s</span></div>`, o.title, o.perk, o.price)
	}
	b.WriteString("</body></html>")
	return b.String()
}

type fakeFetcher struct {
	mu    sync.Mutex
	pages map[string]string
	errs  map[string]error
	panic map[string]bool
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{pages: map[string]string{}, errs: map[string]error{}, panic: map[string]bool{}}
}

func (f *fakeFetcher) set(url, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages[url] = body
	delete(f.errs, url)
}

func (f *fakeFetcher) fail(url string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[url] = err
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (*whttp.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panic[url] {
		panic("boom")
	}
	if err, ok := f.errs[url]; ok {
		return nil, err
	}
	body, ok := f.pages[url]
	if !ok {
		return nil, &whttp.FetchError{URL: url, StatusCode: 404}
	}
	return &whttp.Page{URL: url, StatusCode: 200, Body: body}, nil
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls []changes.Result
	err   error
}

func (n *fakeNotifier) Notify(_ context.Context, _ targets.Target, r changes.Result, _ time.Time) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, r)
	return n.err
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}

// stepClock advances one hour on every read.
type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Hour)
	return c.t
}

type harness struct {
	fetcher  *fakeFetcher
	notifier *fakeNotifier
	kv       storage.KV
	store    *storage.Store
	cfg      Config
}

func newHarness(ts ...targets.Target) *harness {
	h := &harness{fetcher: newFakeFetcher(), notifier: &fakeNotifier{}, kv: storage.NewMemory()}
	h.store = storage.NewStore(h.kv, storage.DefaultHistoryKeep)
	h.cfg = Config{
		Source:    targets.Static(ts),
		Fetcher:   h.fetcher,
		Extractor: extract.Query{},
		Store:     h.store,
		Notifier:  h.notifier,
		Clock:     &stepClock{t: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)},
	}
	return h
}

func target(url string) targets.Target {
	return targets.Target{URL: url, Selector: ".promo"}
}

func disabled(url string) targets.Target {
	off := false
	t := target(url)
	t.Enabled = &off
	return t
}

func TestFirstRunCapturesInitialState(t *testing.T) {
	const url = "https://deals.example.com/hawaii"
	h := newHarness(target(url))
	h.fetcher.set(url, page(offers[:2]...))

	r := PollTarget(context.Background(), h.cfg, target(url))
	if !r.Success || !r.FirstRun {
		t.Fatalf("expected successful first run, got %#v", r)
	}
	if r.Changes.HasChanges || r.Changes.Summary != changes.SummaryInitialState {
		t.Fatalf("unexpected result: %#v", r.Changes)
	}
	if h.notifier.count() != 0 {
		t.Fatal("first run must never notify")
	}
	st, err := h.store.LoadState(context.Background(), url)
	if err != nil || st == nil {
		t.Fatalf("state not written: %v", err)
	}
	if len(st.Promos) != 2 || st.Hash != promo.Hash(r.Promotions) {
		t.Fatalf("unexpected state: %#v", st)
	}
	hist, _ := h.store.History(context.Background(), url)
	if len(hist) != 0 {
		t.Fatalf("first run must not snapshot, got %d", len(hist))
	}
}

func TestMaterialChangeNotifiesAndSnapshots(t *testing.T) {
	const url = "https://deals.example.com/hawaii"
	h := newHarness(target(url))
	ctx := context.Background()

	h.fetcher.set(url, page(offers[:2]...))
	PollTarget(ctx, h.cfg, target(url))

	h.fetcher.set(url, page(offers[1:3]...))
	r := PollTarget(ctx, h.cfg, target(url))
	if !r.Success || r.FirstRun || !r.Changes.HasChanges || !r.Notified {
		t.Fatalf("expected notified change, got %#v", r)
	}
	if r.Changes.Summary != "1 new promotion and 1 promotion removed" {
		t.Fatalf("unexpected summary %q", r.Changes.Summary)
	}
	if h.notifier.count() != 1 {
		t.Fatalf("expected 1 notification, got %d", h.notifier.count())
	}
	hist, _ := h.store.History(ctx, url)
	if len(hist) != 1 || hist[0].Hash != promo.Hash(r.Promotions) {
		t.Fatalf("unexpected history: %#v", hist)
	}
}

func TestUnchangedPageSkipsDiff(t *testing.T) {
	const url = "https://deals.example.com/hawaii"
	h := newHarness(target(url))
	ctx := context.Background()
	h.fetcher.set(url, page(offers[:2]...))

	PollTarget(ctx, h.cfg, target(url))
	first, _ := h.store.LoadState(ctx, url)
	r := PollTarget(ctx, h.cfg, target(url))
	if r.Changes.HasChanges || r.Changes.Summary != changes.SummaryNone {
		t.Fatalf("unexpected result: %#v", r.Changes)
	}
	second, _ := h.store.LoadState(ctx, url)
	if second.LastSeen == first.LastSeen {
		t.Fatal("state should be refreshed on every successful run")
	}
	if h.notifier.count() != 0 {
		t.Fatal("no notification expected")
	}
}

func TestImmaterialChangeIsNotReported(t *testing.T) {
	const url = "https://deals.example.com/hawaii"
	h := newHarness(target(url))
	ctx := context.Background()
	h.fetcher.set(url, page(offers[:2]...))
	PollTarget(ctx, h.cfg, target(url))

	h.fetcher.set(url, strings.Replace(page(offers[:2]...), "</body>", `<div class="promo"><h3>Loading deals...</h3></div></body>`, 1))
	r := PollTarget(ctx, h.cfg, target(url))
	if !r.Raw.HasChanges {
		t.Fatalf("raw diff should see the placeholder: %#v", r.Raw)
	}
	if r.Changes.HasChanges || r.Changes.Summary != changes.SummaryNoMaterial {
		t.Fatalf("placeholder should be filtered: %#v", r.Changes)
	}
	if h.notifier.count() != 0 {
		t.Fatal("immaterial change must not notify")
	}
	hist, _ := h.store.History(ctx, url)
	if len(hist) != 0 {
		t.Fatalf("immaterial change must not snapshot, got %d", len(hist))
	}
}

func TestHistoryKeepsFiveMostRecent(t *testing.T) {
	const url = "https://deals.example.com/hawaii"
	h := newHarness(target(url))
	ctx := context.Background()

	var hashes []string
	for i := 1; i <= len(offers); i++ {
		h.fetcher.set(url, page(offers[:i]...))
		r := PollTarget(ctx, h.cfg, target(url))
		if i > 1 && !r.Changes.HasChanges {
			t.Fatalf("run %d: expected material change, got %#v", i, r.Changes)
		}
		hashes = append(hashes, promo.Hash(r.Promotions))
	}

	hist, err := h.store.History(ctx, url)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist) != 5 {
		t.Fatalf("expected 5 snapshots after 6 changes, got %d", len(hist))
	}
	// Newest first; the change of run 2 was evicted.
	if hist[0].Hash != hashes[6] || hist[4].Hash != hashes[2] {
		t.Fatalf("wrong snapshots retained: newest=%s oldest=%s", hist[0].Hash, hist[4].Hash)
	}
}

func TestNotifyFailureIsNonFatal(t *testing.T) {
	const url = "https://deals.example.com/hawaii"
	h := newHarness(target(url))
	ctx := context.Background()
	h.fetcher.set(url, page(offers[:1]...))
	PollTarget(ctx, h.cfg, target(url))

	h.notifier.err = errors.New("webhook down")
	h.fetcher.set(url, page(offers[:2]...))
	r := PollTarget(ctx, h.cfg, target(url))
	if !r.Success || r.Notified || len(r.Warnings) != 1 {
		t.Fatalf("expected success with one warning, got %#v", r)
	}
	st, _ := h.store.LoadState(ctx, url)
	if len(st.Promos) != 2 {
		t.Fatal("state must still be written")
	}
	hist, _ := h.store.History(ctx, url)
	if len(hist) != 1 {
		t.Fatal("snapshot must still be written")
	}
}

func TestFetchFailureKeepsState(t *testing.T) {
	const url = "https://deals.example.com/hawaii"
	h := newHarness(target(url))
	ctx := context.Background()
	h.fetcher.set(url, page(offers[:1]...))
	PollTarget(ctx, h.cfg, target(url))
	before, _ := h.store.LoadState(ctx, url)

	h.fetcher.fail(url, &whttp.FetchError{URL: url, StatusCode: 503})
	r := PollTarget(ctx, h.cfg, target(url))
	if r.Success || r.Stage != StageFetch {
		t.Fatalf("expected fetch failure, got %#v", r)
	}
	var fe *whttp.FetchError
	if !errors.As(r.Err, &fe) {
		t.Fatalf("expected FetchError, got %v", r.Err)
	}
	after, _ := h.store.LoadState(ctx, url)
	if after.LastSeen != before.LastSeen {
		t.Fatal("fetch failure must not touch state")
	}
}

type brokenExtractor struct{}

func (brokenExtractor) Name() string { return "broken" }
func (brokenExtractor) Extract(string, string) ([]promo.Promotion, error) {
	return nil, errors.Mark(errors.New("bad markup"), extract.ErrParse)
}

func TestExtractFailure(t *testing.T) {
	const url = "https://deals.example.com/hawaii"
	h := newHarness(target(url))
	h.cfg.Extractor = brokenExtractor{}
	h.fetcher.set(url, page(offers[:1]...))

	r := PollTarget(context.Background(), h.cfg, target(url))
	if r.Success || r.Stage != StageExtract || !errors.Is(r.Err, extract.ErrParse) {
		t.Fatalf("expected extract failure, got %#v", r)
	}
	if st, _ := h.store.LoadState(context.Background(), url); st != nil {
		t.Fatal("extract failure must not write state")
	}
}

// stateReadFails fails every state read.
type stateReadFails struct{ storage.KV }

func (s stateReadFails) Get(ctx context.Context, key string) ([]byte, error) {
	if strings.HasPrefix(key, "state:") {
		return nil, errors.New("store offline")
	}
	return s.KV.Get(ctx, key)
}

func TestStateReadErrorDegradesToFirstRun(t *testing.T) {
	const url = "https://deals.example.com/hawaii"
	h := newHarness(target(url))
	h.cfg.Store = storage.NewStore(stateReadFails{h.kv}, 0)
	h.fetcher.set(url, page(offers[:1]...))

	r := PollTarget(context.Background(), h.cfg, target(url))
	if !r.Success || !r.FirstRun || r.Changes.Summary != changes.SummaryInitialState {
		t.Fatalf("expected first-run semantics, got %#v", r)
	}
	if len(r.Warnings) != 1 || h.notifier.count() != 0 {
		t.Fatalf("expected one warning and no notification, got %d/%d", len(r.Warnings), h.notifier.count())
	}
}

func TestInvalidTarget(t *testing.T) {
	h := newHarness()
	r := PollTarget(context.Background(), h.cfg, targets.Target{URL: "https://example.com"})
	if r.Success || r.Stage != StageInvalid || !errors.Is(r.Err, targets.ErrInvalidTarget) {
		t.Fatalf("expected invalid target, got %#v", r)
	}
}

func TestPollAllFiltersAndIsolatesFailures(t *testing.T) {
	urls := []string{"https://a.example.com", "https://b.example.com", "https://c.example.com"}
	h := newHarness(
		target(urls[0]),
		disabled("https://d.example.com"),
		target(urls[1]),
		disabled("https://e.example.com"),
		target(urls[2]),
	)
	h.fetcher.set(urls[0], page(offers[0]))
	h.fetcher.fail(urls[1], &whttp.FetchError{URL: urls[1], Err: context.DeadlineExceeded})
	h.fetcher.set(urls[2], page(offers[2]))

	var mu sync.Mutex
	done := 0
	h.cfg.OnTargetDone = func(TargetResult) {
		mu.Lock()
		done++
		mu.Unlock()
	}

	b := PollAll(context.Background(), h.cfg)
	if b.Err != nil {
		t.Fatalf("unexpected batch error: %v", b.Err)
	}
	if b.Total != 3 || b.Successful != 2 || b.Failed != 1 {
		t.Fatalf("unexpected counts: %+v", b)
	}
	if done != 3 {
		t.Fatalf("OnTargetDone called %d times", done)
	}
	for i, r := range b.Results {
		if r.Target.URL != urls[i] {
			t.Fatalf("result %d is %s, want %s", i, r.Target.URL, urls[i])
		}
	}
	if !b.Results[0].Success || b.Results[1].Success || !b.Results[2].Success {
		t.Fatalf("failure leaked across targets: %+v", b.Results)
	}
	if b.Summary != "3 targets processed, 2 successful, 1 failed" {
		t.Fatalf("unexpected summary %q", b.Summary)
	}
	if b.RunID == "" {
		t.Fatal("run id missing")
	}
}

func TestPollAllRecoversPanics(t *testing.T) {
	urls := []string{"https://a.example.com", "https://b.example.com"}
	h := newHarness(target(urls[0]), target(urls[1]))
	h.fetcher.panic[urls[0]] = true
	h.fetcher.set(urls[1], page(offers[0]))

	b := PollAll(context.Background(), h.cfg)
	if b.Results[0].Success || b.Results[0].Stage != StagePanic {
		t.Fatalf("expected panic result, got %#v", b.Results[0])
	}
	if !b.Results[1].Success {
		t.Fatalf("sibling target should succeed: %#v", b.Results[1])
	}
}

func TestPollAllCountsChangesAndNotifications(t *testing.T) {
	urls := []string{"https://a.example.com", "https://b.example.com"}
	h := newHarness(target(urls[0]), target(urls[1]))
	ctx := context.Background()
	h.fetcher.set(urls[0], page(offers[0]))
	h.fetcher.set(urls[1], page(offers[1]))
	PollAll(ctx, h.cfg)

	h.fetcher.set(urls[0], page(offers[0], offers[3]))
	b := PollAll(ctx, h.cfg)
	if b.WithChanges != 1 || b.NotificationsSent != 1 {
		t.Fatalf("unexpected counts: %+v", b)
	}
	if b.Summary != "2 targets processed, 2 successful, 1 with changes, 1 notification sent" {
		t.Fatalf("unexpected summary %q", b.Summary)
	}
}

type brokenSource struct{}

func (brokenSource) Targets(context.Context) ([]targets.Target, error) {
	return nil, errors.New("config file unreadable")
}

func TestPollAllConfigError(t *testing.T) {
	h := newHarness()
	h.cfg.Source = brokenSource{}
	b := PollAll(context.Background(), h.cfg)
	if !errors.Is(b.Err, ErrConfig) || b.Total != 0 || len(b.Results) != 0 {
		t.Fatalf("expected whole-batch config failure, got %+v", b)
	}
	if !strings.Contains(b.Summary, "config file unreadable") {
		t.Fatalf("summary should explain the failure: %q", b.Summary)
	}
}

type countingExtractor struct {
	extract.Extractor
	mu    sync.Mutex
	calls int
}

func (c *countingExtractor) Extract(markup, selector string) ([]promo.Promotion, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return c.Extractor.Extract(markup, selector)
}

func TestExtractionCache(t *testing.T) {
	const url = "https://deals.example.com/hawaii"
	h := newHarness(target(url))
	ce := &countingExtractor{Extractor: extract.Token{}}
	h.cfg.Extractor = ce
	h.cfg.Cache = cache.New[string, []promo.Promotion](4)
	h.fetcher.set(url, page(offers[:2]...))

	PollTarget(context.Background(), h.cfg, target(url))
	r := PollTarget(context.Background(), h.cfg, target(url))
	if ce.calls != 1 {
		t.Fatalf("expected one extraction, got %d", ce.calls)
	}
	if len(r.Promotions) != 2 {
		t.Fatalf("cached promotions lost: %#v", r.Promotions)
	}
}

func TestBatchSummary(t *testing.T) {
	tests := []struct {
		total, ok, failed, changed, notified int
		want                                 string
	}{
		{0, 0, 0, 0, 0, "No targets processed"},
		{1, 1, 0, 0, 0, "1 target processed, 1 successful"},
		{3, 0, 3, 0, 0, "3 targets processed, 3 failed"},
		{4, 3, 1, 2, 2, "4 targets processed, 3 successful, 1 failed, 2 with changes, 2 notifications sent"},
	}
	for _, tc := range tests {
		if got := BatchSummary(tc.total, tc.ok, tc.failed, tc.changed, tc.notified); got != tc.want {
			t.Errorf("BatchSummary(%d, %d, %d, %d, %d) = %q, want %q", tc.total, tc.ok, tc.failed, tc.changed, tc.notified, got, tc.want)
		}
	}
}
