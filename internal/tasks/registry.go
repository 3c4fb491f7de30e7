// Package tasks tracks fire-and-forget background work so in-flight
// units are observable and failures are logged instead of lost.
package tasks

import (
	"log/slog"
	"sync"
	"time"
)

// Registry is a process-wide live set of background units. Spawned units
// are removed when they finish; panics are recovered and logged at the
// unit boundary and never reach the scheduler.
type Registry struct {
	mu   sync.Mutex
	live map[int64]string
	next int64
	wg   sync.WaitGroup
}

func NewRegistry() *Registry {
	return &Registry{live: make(map[int64]string)}
}

// Spawn runs fn on its own goroutine and tracks it until completion.
func (r *Registry) Spawn(name string, fn func()) {
	r.mu.Lock()
	r.next++
	id := r.next
	r.live[id] = name
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			r.mu.Lock()
			delete(r.live, id)
			r.mu.Unlock()
		}()
		defer func() {
			if p := recover(); p != nil {
				slog.Error("background task panicked", "task", name, "panic", p)
			}
		}()
		fn()
	}()
}

// Active returns the number of currently tracked units.
func (r *Registry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.live)
}

// Wait blocks until every tracked unit finishes or the timeout expires.
// Returns true if the registry drained. Shutdown uses this as a bounded
// grace period; tasks are not cancellable once started.
func (r *Registry) Wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
