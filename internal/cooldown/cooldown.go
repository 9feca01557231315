// Package cooldown tracks per-key suppression windows.
package cooldown

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
)

// Tracker holds one timer per key. A key is active from Arm until the
// configured duration elapses; expired entries remove themselves.
type Tracker[K comparable] struct {
	clock    clockwork.Clock
	duration atomic.Int64
	entries  sync.Map // K -> *entry
}

type entry struct {
	deadline time.Time

	mu      sync.Mutex
	timer   clockwork.Timer
	stopped bool
}

// setTimer attaches t unless the entry was already superseded.
func (e *entry) setTimer(t clockwork.Timer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		t.Stop()
		return
	}
	e.timer = t
}

func (e *entry) stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopped = true
	if e.timer != nil {
		e.timer.Stop()
	}
}

// New creates a Tracker. A nil clock means the real wall clock.
func New[K comparable](d time.Duration, clock clockwork.Clock) *Tracker[K] {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	t := &Tracker[K]{clock: clock}
	t.duration.Store(int64(d))
	return t
}

// SetDuration changes the window used by later Arm calls.
func (t *Tracker[K]) SetDuration(d time.Duration) {
	t.duration.Store(int64(d))
}

// Duration returns the window used by Arm.
func (t *Tracker[K]) Duration() time.Duration {
	return time.Duration(t.duration.Load())
}

// Arm starts the window for key, replacing any running one.
func (t *Tracker[K]) Arm(key K) {
	d := t.Duration()
	e := &entry{deadline: t.clock.Now().Add(d)}
	if prev, loaded := t.entries.Swap(key, e); loaded {
		prev.(*entry).stop()
	}
	// Only this exact entry may be removed by its own timer.
	e.setTimer(t.clock.AfterFunc(d, func() {
		t.entries.CompareAndDelete(key, e)
	}))
}

// IsActive reports whether key has a live, unexpired window.
func (t *Tracker[K]) IsActive(key K) bool {
	v, ok := t.entries.Load(key)
	if !ok {
		return false
	}
	e := v.(*entry)
	if t.clock.Now().Before(e.deadline) {
		return true
	}
	t.entries.CompareAndDelete(key, e)
	return false
}

// Reset cancels key's window, if any.
func (t *Tracker[K]) Reset(key K) {
	if v, ok := t.entries.LoadAndDelete(key); ok {
		v.(*entry).stop()
	}
}

// Len returns the number of tracked keys.
func (t *Tracker[K]) Len() int {
	n := 0
	t.entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
