package polling

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/sw33tLie/promowatch/pkg/cache"
	"github.com/sw33tLie/promowatch/pkg/changes"
	"github.com/sw33tLie/promowatch/pkg/content"
	"github.com/sw33tLie/promowatch/pkg/extract"
	"github.com/sw33tLie/promowatch/pkg/notify"
	"github.com/sw33tLie/promowatch/pkg/promo"
	"github.com/sw33tLie/promowatch/pkg/storage"
	"github.com/sw33tLie/promowatch/pkg/targets"
	"github.com/sw33tLie/promowatch/pkg/whttp"
)

// Logger abstracts logging so callers can use logrus, stdlib log, or any
// other logger that satisfies this interface.
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

// nopLogger silently discards all messages.
type nopLogger struct{}

func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Warnf(string, ...interface{})  {}
func (nopLogger) Errorf(string, ...interface{}) {}
func (nopLogger) Debugf(string, ...interface{}) {}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// SystemClock reads the wall clock.
var SystemClock Clock = ClockFunc(time.Now)

// Fetcher downloads a target page. *whttp.Fetcher satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*whttp.Page, error)
}

// ErrConfig marks a target list that could not be read.
var ErrConfig = errors.New("target configuration unavailable")

// Stage names the pipeline step a target failed in.
type Stage string

const (
	StageInvalid Stage = "invalid"
	StageFetch   Stage = "fetch"
	StageExtract Stage = "extract"
	StagePanic   Stage = "panic"
)

const (
	DefaultConcurrency   = 5
	DefaultFetchTimeout  = 30 * time.Second
	DefaultNotifyTimeout = 10 * time.Second
)

// Config holds everything PollTarget and PollAll need.
type Config struct {
	Source    targets.Source
	Fetcher   Fetcher
	Extractor extract.Extractor
	Store     *storage.Store
	Notifier  notify.Notifier // optional; nil = no notification channel
	Clock     Clock           // optional; nil = SystemClock
	// Cache memoizes extraction results keyed by selector and markup.
	Cache         *cache.FIFO[string, []promo.Promotion]
	Concurrency   int           // defaults to 5 if <= 0
	FetchTimeout  time.Duration // defaults to 30s if <= 0
	NotifyTimeout time.Duration // defaults to 10s if <= 0
	Log           Logger        // optional; nil = no logging

	// OnTargetDone is called per target as soon as it finishes (from worker
	// goroutines). Nil = no callback.
	OnTargetDone func(TargetResult)
}

func (cfg *Config) defaults() {
	if cfg.Log == nil {
		cfg.Log = nopLogger{}
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = DefaultNotifyTimeout
	}
}

func (cfg *Config) validate() error {
	switch {
	case cfg.Fetcher == nil:
		return errors.New("no fetcher configured")
	case cfg.Extractor == nil:
		return errors.New("no extractor configured")
	case cfg.Store == nil:
		return errors.New("no store configured")
	}
	return nil
}

// TargetResult is the outcome of processing one target.
type TargetResult struct {
	Target  targets.Target
	Success bool
	Stage   Stage // set when Success is false
	Err     error

	Promotions []promo.Promotion
	FirstRun   bool
	// Raw is the unfiltered diff, Changes the material one.
	Raw      changes.Result
	Changes  changes.Result
	Notified bool
	// Warnings collects the non-fatal failures of the run.
	Warnings []error
}

func failed(t targets.Target, stage Stage, err error) TargetResult {
	return TargetResult{Target: t, Stage: stage, Err: err}
}

// BatchResult aggregates one run over all enabled targets.
type BatchResult struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Results    []TargetResult

	Total             int
	Successful        int
	Failed            int
	WithChanges       int
	NotificationsSent int
	Summary           string
	// Err is set when the target list itself could not be read.
	Err error
}

// PollTarget runs fetch, extract, diff, filter, notify and persist for a
// single target. Only fetch and extract failures fail the result.
func PollTarget(ctx context.Context, cfg Config, t targets.Target) TargetResult {
	cfg.defaults()
	if err := cfg.validate(); err != nil {
		return failed(t, StageInvalid, errors.Mark(err, ErrConfig))
	}
	return pollTarget(ctx, &cfg, t)
}

func pollTarget(ctx context.Context, cfg *Config, t targets.Target) TargetResult {
	log := cfg.Log

	if err := t.Validate(); err != nil {
		log.Warnf("Skipping invalid target %s: %v", t.URL, err)
		return failed(t, StageInvalid, err)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, cfg.FetchTimeout)
	page, err := cfg.Fetcher.Fetch(fetchCtx, t.URL)
	cancel()
	if err != nil {
		log.Warnf("Failed to fetch %s: %v", t.URL, err)
		return failed(t, StageFetch, err)
	}

	promos, err := extractCached(cfg, page.Body, t.Selector)
	if err != nil {
		log.Warnf("Failed to extract promotions from %s: %v", t.URL, err)
		return failed(t, StageExtract, err)
	}
	log.Debugf("Extracted %d promotions from %s", len(promos), t.URL)

	res := TargetResult{Target: t, Success: true, Promotions: promos}
	warn := func(format string, err error) {
		log.Warnf(format, t.URL, err)
		res.Warnings = append(res.Warnings, err)
	}

	now := cfg.Clock.Now()
	hash := promo.Hash(promos)

	prev, err := cfg.Store.LoadState(ctx, t.URL)
	if err != nil {
		warn("Could not read previous state for %s, treating as first run: %v", err)
		prev = nil
	}

	switch {
	case prev == nil:
		log.Infof("First poll for %s, capturing initial state", t.URL)
		res.FirstRun = true
		res.Raw = changes.Initial()
		res.Changes = changes.Initial()
	case prev.Hash == hash:
		res.Raw = noChanges()
		res.Changes = noChanges()
	default:
		res.Raw, res.Changes = changes.Detect(promos, prev.Promos)
	}

	if res.Changes.HasChanges && cfg.Notifier != nil {
		notifyCtx, cancel := context.WithTimeout(ctx, cfg.NotifyTimeout)
		err := cfg.Notifier.Notify(notifyCtx, t, res.Changes, now)
		cancel()
		if err != nil {
			warn("Failed to notify changes for %s: %v", err)
		} else {
			res.Notified = true
		}
	}

	ts := storage.FormatTime(now)
	if err := cfg.Store.SaveState(ctx, t.URL, storage.TargetState{Hash: hash, Promos: promos, LastSeen: ts}); err != nil {
		warn("Could not save state for %s: %v", err)
	}

	if res.Changes.HasChanges {
		if err := cfg.Store.AppendSnapshot(ctx, t.URL, storage.Snapshot{Promos: promos, Hash: hash, Timestamp: ts}); err != nil {
			warn("Could not record snapshot for %s: %v", err)
		}
	}

	return res
}

func noChanges() changes.Result {
	return changes.Result{
		Added:   []promo.Promotion{},
		Removed: []promo.Promotion{},
		Changed: []changes.Pair{},
		Summary: changes.SummaryNone,
	}
}

func extractCached(cfg *Config, markup, selector string) ([]promo.Promotion, error) {
	key := cfg.Extractor.Name() + ":" + content.Digest(selector+"\x00"+markup)
	if promos, ok := cfg.Cache.Get(key); ok {
		return promos, nil
	}
	promos, err := cfg.Extractor.Extract(markup, selector)
	if err != nil {
		return nil, err
	}
	cfg.Cache.Put(key, promos)
	return promos, nil
}

// PollAll reads the target list and polls every enabled target with a
// bounded worker pool. It always returns a result; a target list that
// cannot be read yields zero processed targets and Err set.
func PollAll(ctx context.Context, cfg Config) *BatchResult {
	cfg.defaults()
	log := cfg.Log

	batch := &BatchResult{RunID: uuid.NewString(), StartedAt: cfg.Clock.Now(), Results: []TargetResult{}}

	all, err := readTargets(ctx, cfg.Source)
	if err == nil {
		err = cfg.validate()
	}
	if err != nil {
		batch.Err = errors.Mark(err, ErrConfig)
		batch.Summary = fmt.Sprintf("Batch failed: could not read target configuration: %v", err)
		batch.FinishedAt = cfg.Clock.Now()
		log.Errorf("Run %s: %v", batch.RunID, err)
		return batch
	}

	enabled := targets.Enabled(all)
	log.Infof("Run %s: polling %d of %d configured targets", batch.RunID, len(enabled), len(all))

	batch.Results = processTargetsConcurrently(ctx, &cfg, enabled)
	batch.FinishedAt = cfg.Clock.Now()

	for _, r := range batch.Results {
		batch.Total++
		if r.Success {
			batch.Successful++
		} else {
			batch.Failed++
		}
		if r.Changes.HasChanges {
			batch.WithChanges++
		}
		if r.Notified {
			batch.NotificationsSent++
		}
	}
	batch.Summary = BatchSummary(batch.Total, batch.Successful, batch.Failed, batch.WithChanges, batch.NotificationsSent)
	log.Infof("Run %s: %s", batch.RunID, batch.Summary)
	return batch
}

func readTargets(ctx context.Context, src targets.Source) (ts []targets.Target, err error) {
	if src == nil {
		return nil, errors.New("no target source configured")
	}
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("target source panicked: %v", r)
		}
	}()
	return src.Targets(ctx)
}

// processTargetsConcurrently polls targets using a worker pool. Results keep
// the order of ts.
func processTargetsConcurrently(ctx context.Context, cfg *Config, ts []targets.Target) []TargetResult {
	results := make([]TargetResult, len(ts))
	if len(ts) == 0 {
		return results
	}

	idxChan := make(chan int, len(ts))

	var wg sync.WaitGroup
	for i := 0; i < cfg.Concurrency && i < len(ts); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range idxChan {
				r := safePollTarget(ctx, cfg, ts[idx])
				results[idx] = r
				if cfg.OnTargetDone != nil {
					cfg.OnTargetDone(r)
				}
			}
		}()
	}

	for i := range ts {
		idxChan <- i
	}
	close(idxChan)
	wg.Wait()

	return results
}

// safePollTarget turns a panic inside one target's pipeline into a failed
// result.
func safePollTarget(ctx context.Context, cfg *Config, t targets.Target) (res TargetResult) {
	defer func() {
		if r := recover(); r != nil {
			cfg.Log.Errorf("Panic while polling %s: %v\n%s", t.URL, r, debug.Stack())
			res = failed(t, StagePanic, errors.Newf("panic: %v", r))
		}
	}()
	return pollTarget(ctx, cfg, t)
}

// BatchSummary renders the non-zero counts in a fixed order.
func BatchSummary(total, successful, failed, withChanges, notified int) string {
	if total == 0 {
		return "No targets processed"
	}
	parts := []string{fmt.Sprintf("%d %s processed", total, plural(total, "target", "targets"))}
	if successful > 0 {
		parts = append(parts, fmt.Sprintf("%d successful", successful))
	}
	if failed > 0 {
		parts = append(parts, fmt.Sprintf("%d failed", failed))
	}
	if withChanges > 0 {
		parts = append(parts, fmt.Sprintf("%d with changes", withChanges))
	}
	if notified > 0 {
		parts = append(parts, fmt.Sprintf("%d %s sent", notified, plural(notified, "notification", "notifications")))
	}
	return strings.Join(parts, ", ")
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
