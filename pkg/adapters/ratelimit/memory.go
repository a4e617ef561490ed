package ratelimit

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/wadjakorntonsri/go-dynamic-redirect/pkg/core/domain"
	"github.com/wadjakorntonsri/go-dynamic-redirect/pkg/ports"
)

// sweepEvery bounds how often MemoryLimiter scans for idle windows.
const sweepEvery = time.Minute

type window struct {
	stamps []int64 // unix millis, ascending
	length int64   // window length in millis, for sweeping
}

// MemoryLimiter is an in-process sliding-window log.
//
// It is safe for concurrent use by multiple goroutines, but its state is local
// to the process and is not shared across replicas. Use RedisLimiter when more
// than one process serves the same keys.
type MemoryLimiter struct {
	mu        sync.Mutex
	windows   map[string]*window
	lastSweep int64
}

// NewMemoryLimiter constructs a MemoryLimiter with empty state.
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		windows: make(map[string]*window),
	}
}

// Admit prunes the window, then records now if fewer than limit.Count
// requests remain inside it.
func (m *MemoryLimiter) Admit(_ context.Context, routingKey, caller string, limit domain.RateLimit, now time.Time) (domain.Admission, error) {
	nowMs := now.UnixMilli()
	length := limit.WindowMillis()
	key := windowKey(routingKey, caller)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.sweep(nowMs)

	w, ok := m.windows[key]
	if !ok {
		w = &window{}
		m.windows[key] = w
	}
	w.length = length
	w.stamps = prune(w.stamps, nowMs-length)

	count := int64(len(w.stamps))
	if count >= limit.Count {
		var retry time.Duration
		if count > 0 {
			retry = time.Duration(w.stamps[0]+length-nowMs) * time.Millisecond
		}
		if count == 0 {
			delete(m.windows, key)
		}
		return domain.Admission{Admitted: false, Remaining: 0, RetryAfter: retry}, nil
	}

	w.stamps = insertSorted(w.stamps, nowMs)
	return domain.Admission{Admitted: true, Remaining: limit.Count - count - 1}, nil
}

// Shared is false: every process has its own windows.
func (m *MemoryLimiter) Shared() bool { return false }

// Len returns the number of live windows.
func (m *MemoryLimiter) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.windows)
}

// sweep drops windows whose newest entry has aged out. Caller holds mu.
func (m *MemoryLimiter) sweep(nowMs int64) {
	if nowMs-m.lastSweep < sweepEvery.Milliseconds() {
		return
	}
	m.lastSweep = nowMs
	for k, w := range m.windows {
		if n := len(w.stamps); n == 0 || w.stamps[n-1] <= nowMs-w.length {
			delete(m.windows, k)
		}
	}
}

// prune removes timestamps at or before cutoff.
func prune(stamps []int64, cutoff int64) []int64 {
	i := 0
	for i < len(stamps) && stamps[i] <= cutoff {
		i++
	}
	if i == 0 {
		return stamps
	}
	return append(stamps[:0], stamps[i:]...)
}

// insertSorted places stamp after every entry not later than it. Callers read
// the clock before taking mu, so arrivals can be out of order.
func insertSorted(stamps []int64, stamp int64) []int64 {
	i := sort.Search(len(stamps), func(i int) bool { return stamps[i] > stamp })
	stamps = append(stamps, 0)
	copy(stamps[i+1:], stamps[i:])
	stamps[i] = stamp
	return stamps
}

func windowKey(routingKey, caller string) string {
	return routingKey + ":" + caller
}

var _ ports.RateLimiter = (*MemoryLimiter)(nil)
