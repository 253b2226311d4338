package storage

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/sw33tLie/promowatch/pkg/content"
	"github.com/sw33tLie/promowatch/pkg/promo"
)

// DefaultHistoryKeep is the number of snapshots retained per target.
const DefaultHistoryKeep = 5

// TimestampLayout is the fixed-width ISO form used in history keys, so that
// lexical and chronological order agree.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// TargetState is the latest known promotion list of one target.
type TargetState struct {
	Hash     string            `json:"hash"`
	Promos   []promo.Promotion `json:"promos"`
	LastSeen string            `json:"lastSeenISO"`
}

// Snapshot is one entry of a target's history log.
type Snapshot struct {
	Promos    []promo.Promotion `json:"promos"`
	Hash      string            `json:"hash"`
	Timestamp string            `json:"timestamp"`
}

func (s Snapshot) parsedTime() time.Time {
	t, err := time.Parse(time.RFC3339Nano, s.Timestamp)
	if err != nil {
		return time.Time{}
	}
	return t
}

// FormatTime renders t in TimestampLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

func StateKey(url string) string {
	return "state:" + content.Digest(url)
}

func HistoryPrefix(url string) string {
	return "hist:" + content.Digest(url) + ":"
}

func HistoryKey(url, timestamp string) string {
	return HistoryPrefix(url) + timestamp
}

// Store reads and writes target state and history through a KV.
type Store struct {
	kv   KV
	keep int
}

// NewStore wraps kv. A keep below one falls back to DefaultHistoryKeep.
func NewStore(kv KV, keep int) *Store {
	if keep < 1 {
		keep = DefaultHistoryKeep
	}
	return &Store{kv: kv, keep: keep}
}

func (s *Store) KV() KV { return s.kv }

// LoadState returns the stored state of url, or nil when there is none.
func (s *Store) LoadState(ctx context.Context, url string) (*TargetState, error) {
	raw, err := s.kv.Get(ctx, StateKey(url))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read state of %s", url)
	}
	var st TargetState
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, errors.Wrapf(err, "decode state of %s", url)
	}
	return &st, nil
}

// SaveState replaces the stored state of url.
func (s *Store) SaveState(ctx context.Context, url string, st TargetState) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return errors.Wrap(err, "encode state")
	}
	return errors.Wrapf(s.kv.Put(ctx, StateKey(url), raw), "write state of %s", url)
}

// AppendSnapshot records snap for url and prunes the history.
func (s *Store) AppendSnapshot(ctx context.Context, url string, snap Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return errors.Wrap(err, "encode snapshot")
	}
	if err := s.kv.Put(ctx, HistoryKey(url, snap.Timestamp), raw); err != nil {
		return errors.Wrapf(err, "write snapshot of %s", url)
	}
	return s.PruneHistory(ctx, url)
}

type entry struct {
	key  string
	snap Snapshot
}

func (s *Store) entries(ctx context.Context, url string) ([]entry, error) {
	keys, err := s.kv.List(ctx, HistoryPrefix(url))
	if err != nil {
		return nil, errors.Wrapf(err, "list history of %s", url)
	}
	out := make([]entry, 0, len(keys))
	for _, k := range keys {
		raw, err := s.kv.Get(ctx, k)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, errors.Wrapf(err, "read snapshot %s", k)
		}
		var snap Snapshot
		if err := json.Unmarshal(raw, &snap); err != nil {
			// Undecodable entries keep their key timestamp so they still age out.
			snap = Snapshot{Timestamp: strings.TrimPrefix(k, HistoryPrefix(url))}
		}
		out = append(out, entry{key: k, snap: snap})
	}
	// Newest first.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].snap.parsedTime().After(out[j].snap.parsedTime())
	})
	return out, nil
}

// History returns the snapshots of url, newest first.
func (s *Store) History(ctx context.Context, url string) ([]Snapshot, error) {
	es, err := s.entries(ctx, url)
	if err != nil {
		return nil, err
	}
	out := make([]Snapshot, len(es))
	for i, e := range es {
		out[i] = e.snap
	}
	return out, nil
}

// PruneHistory deletes all but the newest keep snapshots of url.
func (s *Store) PruneHistory(ctx context.Context, url string) error {
	es, err := s.entries(ctx, url)
	if err != nil {
		return err
	}
	if len(es) <= s.keep {
		return nil
	}
	for _, e := range es[s.keep:] {
		if err := s.kv.Delete(ctx, e.key); err != nil {
			return errors.Wrapf(err, "prune snapshot %s", e.key)
		}
	}
	return nil
}
