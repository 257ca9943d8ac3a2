// Package journal serves the hand-edited daily log. Entries are read from
// a JSON file, or from the embedded seed when no file is configured.
package journal

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"personalos/internal/core"
)

//go:embed seed.json
var seed []byte

// Freshness labels for how recently the journal was updated.
const (
	FreshnessLive    = "live"
	FreshnessRecent  = "recent"
	FreshnessStale   = "stale"
	FreshnessOffline = "offline"
)

// Store holds the journal in memory. It is safe for concurrent use and
// can be reloaded from its file.
type Store struct {
	path string

	mu      sync.RWMutex
	journal core.Journal
	byDate  map[string]int
	dates   []core.Date
}

// Open loads the journal at path, or the embedded seed when path is empty.
func Open(path string) (*Store, error) {
	s := &Store{path: path}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads the journal file. On error the previous contents stay.
func (s *Store) Reload() error {
	var r io.Reader = bytes.NewReader(seed)
	if s.path != "" {
		f, err := os.Open(s.path)
		if err != nil {
			return fmt.Errorf("open entries file: %w", err)
		}
		defer f.Close()
		r = f
	}

	j, byDate, dates, err := parse(r)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.journal, s.byDate, s.dates = j, byDate, dates
	s.mu.Unlock()

	slog.Info("Journal loaded",
		"component", "journal",
		"entries", len(dates),
		"last_updated", j.LastUpdated,
		"source", s.source())
	return nil
}

func (s *Store) source() string {
	if s.path == "" {
		return "embedded"
	}
	return s.path
}

// parse decodes and validates a journal. Every entry must be valid and
// dates must be unique.
func parse(r io.Reader) (core.Journal, map[string]int, []core.Date, error) {
	var j core.Journal
	dec := json.NewDecoder(r)
	if err := dec.Decode(&j); err != nil {
		return core.Journal{}, nil, nil, fmt.Errorf("decode journal: %w", err)
	}

	byDate := make(map[string]int, len(j.Entries))
	dates := make([]core.Date, 0, len(j.Entries))
	for i, e := range j.Entries {
		if err := e.Validate(); err != nil {
			return core.Journal{}, nil, nil, fmt.Errorf("entry %d (%s): %w", i, e.Date, err)
		}
		d, _ := core.ParseDate(e.Date)
		if _, dup := byDate[d.String()]; dup {
			return core.Journal{}, nil, nil, fmt.Errorf("entry %d: duplicate date %s", i, e.Date)
		}
		byDate[d.String()] = i
		dates = append(dates, d)
	}
	sort.Slice(dates, func(a, b int) bool { return dates[a].Before(dates[b].Time) })

	return j, byDate, dates, nil
}

// Dates returns every logged date in ascending order.
func (s *Store) Dates(_ context.Context) ([]core.Date, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]core.Date(nil), s.dates...), nil
}

// Entry returns the entry logged for date.
func (s *Store) Entry(_ context.Context, date core.Date) (core.DailyEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.byDate[date.String()]
	if !ok {
		return core.DailyEntry{}, fmt.Errorf("entry %s: %w", date, core.ErrNotFound)
	}
	return s.journal.Entries[i], nil
}

func (s *Store) LastUpdated(_ context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.journal.LastUpdated, nil
}

// Adjacent returns the closest logged dates strictly before and after date.
// date itself need not be logged.
func (s *Store) Adjacent(_ context.Context, date core.Date) (*core.Date, *core.Date, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := sort.Search(len(s.dates), func(i int) bool { return !s.dates[i].Before(date.Time) })

	var prev, next *core.Date
	if i > 0 {
		d := s.dates[i-1]
		prev = &d
	}
	j := i
	if j < len(s.dates) && s.dates[j].Equal(date.Time) {
		j++
	}
	if j < len(s.dates) {
		d := s.dates[j]
		next = &d
	}
	return prev, next, nil
}

// DaysSinceUpdate returns whole days since the journal's lastUpdated; ok
// is false when the timestamp is unreadable.
func (s *Store) DaysSinceUpdate(now time.Time) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.journal.DaysSince(now)
}

// Freshness classifies days since the last update: same day is live, one
// day is recent, up to three is stale, anything else offline. Negative
// days (an update stamped in the future) count as stale.
func Freshness(days int) string {
	switch {
	case days == 0:
		return FreshnessLive
	case days == 1:
		return FreshnessRecent
	case days <= 3:
		return FreshnessStale
	default:
		return FreshnessOffline
	}
}
