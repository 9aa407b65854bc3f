// Package cache holds the in-process caches for computed reports. Entries
// are partitioned by user so a ledger change drops exactly that user's
// results.
package cache

import (
	"log/slog"
	"sync/atomic"
	"time"

	"insights/internal/log"
)

// Cache stores computed results under (user, key).
type Cache[T any] interface {
	Get(userID, key string) (T, bool)
	Set(userID, key string, data T)

	// Generation is bumped by every InvalidateUser of the user. Read it
	// before loading the data a result is built from.
	Generation(userID string) uint64
	// SetIfGeneration stores data only while the user's generation still
	// equals gen, so a result computed across an invalidation is dropped.
	SetIfGeneration(userID, key string, data T, gen uint64) bool

	// InvalidateUser drops every entry of the user, bumps its generation and
	// returns how many entries went away.
	InvalidateUser(userID string) int

	Stats() Stats
}

// Stats is a point-in-time view of a cache's counters.
type Stats struct {
	Entries   int
	Users     int
	Hits      int64
	Misses    int64
	Evictions int64
	Expired   int64
	Stale     int64 // writes refused by SetIfGeneration
}

// HitRatio is hits over lookups, 0 before the first lookup.
func (s Stats) HitRatio() float64 {
	lookups := s.Hits + s.Misses
	if lookups == 0 {
		return 0
	}
	return float64(s.Hits) / float64(lookups)
}

// Cleaner interface for caches that support cleanup
type Cleaner interface {
	CleanExpired() int
	Stats() Stats
}

type registered struct {
	name  string
	cache Cleaner
}

// Manager runs the periodic expiry sweep over named caches.
type Manager struct {
	caches      []registered
	stopCleanup chan struct{}
	cleanupDone chan struct{}
	running     atomic.Bool
}

func NewManager() *Manager {
	return &Manager{
		stopCleanup: make(chan struct{}),
		cleanupDone: make(chan struct{}),
	}
}

// Register adds a cache to the sweep. Call before StartCleanup.
func (m *Manager) Register(name string, cache Cleaner) {
	m.caches = append(m.caches, registered{name: name, cache: cache})
}

// Stats returns the counters of every registered cache by name.
func (m *Manager) Stats() map[string]Stats {
	if m == nil {
		return nil
	}
	out := make(map[string]Stats, len(m.caches))
	for _, r := range m.caches {
		out[r.name] = r.cache.Stats()
	}
	return out
}

// StartCleanup begins the sweep. Later calls are no-ops.
func (m *Manager) StartCleanup(interval time.Duration) {
	if !m.running.CompareAndSwap(false, true) {
		return
	}
	go m.cleanup(interval)
}

func (m *Manager) cleanup(interval time.Duration) {
	defer close(m.cleanupDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.sweep()
		case <-m.stopCleanup:
			return
		}
	}
}

func (m *Manager) sweep() {
	for _, r := range m.caches {
		removed := r.cache.CleanExpired()
		if removed == 0 {
			continue
		}
		stats := r.cache.Stats()
		slog.Debug("Expired report entries removed",
			log.FieldComponent, log.ComponentCache,
			"cache", r.name,
			"count", removed,
			"entries", stats.Entries,
			"hit_ratio", stats.HitRatio())
	}
}

// Stop ends the sweep and waits for it. Safe to call more than once, and
// before StartCleanup.
func (m *Manager) Stop() {
	if !m.running.CompareAndSwap(true, false) {
		return
	}
	close(m.stopCleanup)
	<-m.cleanupDone
}
