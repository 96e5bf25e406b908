// Package history keeps a per-user record of finished batches, feeding the
// stats command. Records live in a single JSON file under the data dir;
// losing it costs nothing but the counters.
package history

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Outcome values recorded per batch.
const (
	OutcomeDelivered = "delivered"
	OutcomeFailed    = "failed"
)

type Record struct {
	Timestamp  time.Time `json:"timestamp"`
	DayKey     string    `json:"day_key"`
	UserKey    string    `json:"user_key"`
	Channel    string    `json:"channel"`
	Pages      int       `json:"pages"`
	SizeBytes  int64     `json:"size_bytes"`
	DurationMS int64     `json:"duration_ms"`
	Outcome    string    `json:"outcome"`
	Reason     string    `json:"reason,omitempty"`
}

type Filter struct {
	UserKey string
	DayKey  string
	Outcome string
	Limit   int
}

type Aggregate struct {
	Batches   int
	Delivered int
	Failed    int
	Pages     int
	SizeBytes int64
}

type Store struct {
	mu      sync.RWMutex
	records []Record
	path    string
}

// NewStore loads existing history from dir; an empty dir disables
// persistence, which the tests use.
func NewStore(dir string) *Store {
	s := &Store{
		records: make([]Record, 0, 256),
	}
	if dir == "" {
		return s
	}
	_ = os.MkdirAll(dir, 0755)
	s.path = filepath.Join(dir, "history.json")
	s.load()
	return s
}

func (s *Store) TodayKey() string {
	return time.Now().UTC().Format("2006-01-02")
}

func (s *Store) Add(r Record) {
	if r.DayKey == "" {
		r.DayKey = s.TodayKey()
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now().UTC()
	}
	if r.Outcome == "" {
		r.Outcome = OutcomeDelivered
	}

	s.mu.Lock()
	s.records = append(s.records, r)
	s.mu.Unlock()

	s.save()
}

// LastByUser returns the most recent record for a user key.
func (s *Store) LastByUser(userKey string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := len(s.records) - 1; i >= 0; i-- {
		if s.records[i].UserKey == userKey {
			return s.records[i], true
		}
	}
	return Record{}, false
}

func (s *Store) Query(f Filter) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Record, 0, len(s.records))
	for _, r := range s.records {
		if f.UserKey != "" && r.UserKey != f.UserKey {
			continue
		}
		if f.DayKey != "" && r.DayKey != f.DayKey {
			continue
		}
		if f.Outcome != "" && r.Outcome != f.Outcome {
			continue
		}
		out = append(out, r)
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[len(out)-f.Limit:]
	}
	return out
}

func AggregateRecords(records []Record) Aggregate {
	var agg Aggregate
	for _, r := range records {
		agg.Batches++
		if r.Outcome == OutcomeDelivered {
			agg.Delivered++
			agg.Pages += r.Pages
			agg.SizeBytes += r.SizeBytes
		} else {
			agg.Failed++
		}
	}
	return agg
}

func (s *Store) load() {
	if s.path == "" {
		return
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return
	}
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return
	}
	s.records = records
}

func (s *Store) save() {
	if s.path == "" {
		return
	}
	s.mu.RLock()
	snapshot := make([]Record, len(s.records))
	copy(snapshot, s.records)
	s.mu.RUnlock()

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return
	}
	_ = os.WriteFile(s.path, data, 0644)
}
