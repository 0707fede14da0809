package runtime

import (
	"sync"
	"sync/atomic"
	"time"
)

// Timer is a cancellable periodic registration.
type Timer interface {
	// Stop cancels future firings. It does not wait for a firing that is
	// already in progress and may be called from inside the callback.
	Stop()
}

// Scheduler arms periodic callbacks. Callbacks of one Timer never overlap.
type Scheduler interface {
	Every(interval time.Duration, fn func()) Timer
}

// TickerScheduler fires callbacks from a goroutine driven by time.Ticker.
// Ticks the callback cannot keep up with are dropped, not queued.
type TickerScheduler struct{}

// Every implements Scheduler.
func (TickerScheduler) Every(interval time.Duration, fn func()) Timer {
	t := &tickerTimer{done: make(chan struct{})}
	go t.run(interval, fn)
	return t
}

type tickerTimer struct {
	done     chan struct{}
	doneOnce sync.Once
}

func (t *tickerTimer) run(interval time.Duration, fn func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			// Stop may race with a ready tick; done wins.
			select {
			case <-t.done:
				return
			default:
			}
			fn()
		case <-t.done:
			return
		}
	}
}

func (t *tickerTimer) Stop() {
	t.doneOnce.Do(func() {
		close(t.done)
	})
}

// ManualScheduler fires ticks only when Step is called. It drives
// deterministic runs in tests and in `pixelbox check`.
type ManualScheduler struct {
	mu       sync.Mutex
	timers   []*manualTimer
	interval time.Duration
}

// NewManualScheduler creates a scheduler with no timers.
func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{}
}

// Every implements Scheduler.
func (s *ManualScheduler) Every(interval time.Duration, fn func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := &manualTimer{fn: fn}
	s.timers = append(s.timers, t)
	s.interval = interval
	return t
}

// Step fires every active timer once, in registration order, and returns
// how many fired. Stopped timers are dropped.
func (s *ManualScheduler) Step() int {
	s.mu.Lock()
	active := s.timers[:0]
	for _, t := range s.timers {
		if !t.stopped.Load() {
			active = append(active, t)
		}
	}
	s.timers = active
	timers := append([]*manualTimer(nil), active...)
	s.mu.Unlock()

	fired := 0
	for _, t := range timers {
		if t.stopped.Load() {
			continue
		}
		t.fn()
		fired++
	}
	return fired
}

// Active returns the number of timers that have not been stopped.
func (s *ManualScheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, t := range s.timers {
		if !t.stopped.Load() {
			n++
		}
	}
	return n
}

// Interval returns the interval of the most recently armed timer.
func (s *ManualScheduler) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

type manualTimer struct {
	fn      func()
	stopped atomic.Bool
}

func (t *manualTimer) Stop() {
	t.stopped.Store(true)
}
