// Package schedule provides the host's recurring-task scheduler.
// Handles it produces satisfy lifecycle.Interval, so nodes can take
// ownership of a task in the same expression that schedules it.
package schedule

import (
	"sync"
	"time"
)

// Interval is a handle to one recurring task.
type Interval struct {
	ticker *time.Ticker
	done   chan struct{}
	once   sync.Once
}

// Cancel stops the recurring task. Safe to call more than once.
func (iv *Interval) Cancel() {
	iv.once.Do(func() {
		iv.ticker.Stop()
		close(iv.done)
	})
}

// Scheduler runs recurring tasks on background goroutines.
type Scheduler struct {
	mu     sync.Mutex
	active map[*Interval]struct{}
}

// New creates a Scheduler.
func New() *Scheduler {
	return &Scheduler{
		active: make(map[*Interval]struct{}),
	}
}

// Repeat runs fn every d until the returned handle is cancelled.
// The first run happens after the first tick, not immediately.
func (s *Scheduler) Repeat(d time.Duration, fn func()) *Interval {
	iv := &Interval{
		ticker: time.NewTicker(d),
		done:   make(chan struct{}),
	}

	s.mu.Lock()
	s.active[iv] = struct{}{}
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.active, iv)
			s.mu.Unlock()
		}()
		for {
			select {
			case <-iv.done:
				return
			case <-iv.ticker.C:
				fn()
			}
		}
	}()

	return iv
}

// ActiveCount returns the number of intervals not yet cancelled.
func (s *Scheduler) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// Shutdown cancels every active interval.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	intervals := make([]*Interval, 0, len(s.active))
	for iv := range s.active {
		intervals = append(intervals, iv)
	}
	s.mu.Unlock()

	for _, iv := range intervals {
		iv.Cancel()
	}
}
