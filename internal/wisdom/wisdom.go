// Package wisdom implements the persisted advisory statistics from the
// design's §6 "Persisted state": a JSON file keyed by tasktype label,
// tracking a rolling average cost per label across runs. It is purely
// advisory — nothing in the scheduler or dependency engine requires it
// to be present, accurate, or even loadable, matching the design's
// framing of "wisdom" as an optional hint. Grounded on lotus's
// stats.go windowed-average sampling, generalized from per-worker
// hardware stats to per-tasktype cost stats, and kept bounded in
// memory by an LRU (golang-lru/v2) so a run through many transient
// dynamic tasktypes never grows the resident set or the persisted file
// unboundedly.
package wisdom

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/corert/corert/internal/rtlog"
)

var log = rtlog.Named("wisdom")

const defaultWindow = 16

// entry is one label's fixed-size window of observed durations, whose
// mean is the label's rolling average, matching lotus's fixed-size
// sample window shape in WorkerStats.
type entry struct {
	samples [defaultWindow]float64
	count   int
	next    int
}

func (e *entry) record(v float64) {
	e.samples[e.next] = v
	e.next = (e.next + 1) % defaultWindow
	if e.count < defaultWindow {
		e.count++
	}
}

func (e *entry) mean() float64 {
	if e.count == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < e.count; i++ {
		sum += e.samples[i]
	}
	return sum / float64(e.count)
}

// Store is the in-memory, LRU-bounded advisory cost table. All methods
// are safe for concurrent use.
type Store struct {
	mu    sync.Mutex
	cache *lru.Cache[string, *entry]
}

// NewStore builds an empty store bounded to at most maxLabels distinct
// tasktypes.
func NewStore(maxLabels int) *Store {
	if maxLabels <= 0 {
		maxLabels = 4096
	}
	c, err := lru.New[string, *entry](maxLabels)
	if err != nil {
		// Only returned by golang-lru for a non-positive size, excluded
		// above.
		panic(err)
	}
	return &Store{cache: c}
}

// Record folds one observed duration for label into its rolling
// average, evicting the least-recently-used label if the store is at
// capacity and label is new.
func (s *Store) Record(label string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.cache.Get(label)
	if !ok {
		e = &entry{}
		s.cache.Add(label, e)
	}
	e.record(float64(d.Microseconds()) / 1000.0)
}

// MeanMillis returns the current rolling average cost for label in
// milliseconds, and whether any samples have been recorded for it.
func (s *Store) MeanMillis(label string) (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.cache.Get(label)
	if !ok || e.count == 0 {
		return 0, false
	}
	return e.mean(), true
}

// snapshot is the on-disk JSON shape: one entry per tasktype label.
type snapshot struct {
	Labels map[string]labelStats `json:"labels"`
}

type labelStats struct {
	MeanMillis float64 `json:"mean_ms"`
}

// Load reads a wisdom file written by a previous run into s, seeding
// each label with a single sample equal to its persisted mean. A
// missing file is not an error — a fresh runtime simply starts with no
// advisory data, per §6's "purely advisory" framing.
func (s *Store) Load(path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		log.Warnw("wisdom file unreadable, starting empty", "path", path, "err", err)
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for label, st := range snap.Labels {
		e := &entry{}
		e.record(st.MeanMillis)
		s.cache.Add(label, e)
	}
	return nil
}

// Save writes the current advisory table to path as JSON, called at
// shutdown per §6.
func (s *Store) Save(path string) error {
	s.mu.Lock()
	snap := snapshot{Labels: make(map[string]labelStats, s.cache.Len())}
	for _, label := range s.cache.Keys() {
		e, ok := s.cache.Peek(label)
		if !ok || e.count == 0 {
			continue
		}
		snap.Labels[label] = labelStats{MeanMillis: e.mean()}
	}
	s.mu.Unlock()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
