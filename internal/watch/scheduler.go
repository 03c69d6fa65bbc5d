// Package watch owns the engine's time-driven behavior: an explicit
// scheduler abstraction (so tests simulate time instead of sleeping), a
// debouncer, and the navigation watcher built on both.
package watch

import (
	"sort"
	"sync"
	"time"
)

// CancelFunc stops a scheduled callback. Safe to call more than once.
type CancelFunc func()

// Scheduler abstracts timer creation so components hold cancellable handles
// rather than raw timers, and tests can drive time explicitly.
type Scheduler interface {
	// After runs fn once after d.
	After(d time.Duration, fn func()) CancelFunc
	// Every runs fn repeatedly at interval d until cancelled.
	Every(d time.Duration, fn func()) CancelFunc
	Now() time.Time
}

// realScheduler delegates to the runtime timers.
type realScheduler struct{}

// NewScheduler returns the wall-clock scheduler.
func NewScheduler() Scheduler {
	return realScheduler{}
}

func (realScheduler) After(d time.Duration, fn func()) CancelFunc {
	t := time.AfterFunc(d, fn)
	return func() { t.Stop() }
}

func (realScheduler) Every(d time.Duration, fn func()) CancelFunc {
	ticker := time.NewTicker(d)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				fn()
			case <-done:
				return
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			ticker.Stop()
			close(done)
		})
	}
}

func (realScheduler) Now() time.Time { return time.Now() }

// Debouncer coalesces bursts of events into one callback after a quiet
// period. Rapid successive calls reset the timer.
type Debouncer struct {
	mu       sync.Mutex
	sched    Scheduler
	duration time.Duration
	cancel   CancelFunc
}

func NewDebouncer(sched Scheduler, duration time.Duration) *Debouncer {
	return &Debouncer{sched: sched, duration: duration}
}

func (d *Debouncer) Trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		d.cancel()
	}
	d.cancel = d.sched.After(d.duration, fn)
}

func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
}

// FakeScheduler is a deterministic scheduler for tests. Callbacks fire
// synchronously from Advance.
type FakeScheduler struct {
	mu     sync.Mutex
	now    time.Time
	nextID int
	timers map[int]*fakeTimer
}

type fakeTimer struct {
	at       time.Time
	interval time.Duration // zero for one-shot
	fn       func()
}

func NewFakeScheduler() *FakeScheduler {
	return &FakeScheduler{
		now:    time.Unix(0, 0),
		timers: map[int]*fakeTimer{},
	}
}

func (f *FakeScheduler) After(d time.Duration, fn func()) CancelFunc {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	f.timers[id] = &fakeTimer{at: f.now.Add(d), fn: fn}
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.timers, id)
	}
}

func (f *FakeScheduler) Every(d time.Duration, fn func()) CancelFunc {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	f.timers[id] = &fakeTimer{at: f.now.Add(d), interval: d, fn: fn}
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.timers, id)
	}
}

func (f *FakeScheduler) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Advance moves the fake clock forward, firing due timers in time order.
// Timers scheduled by fired callbacks participate if they land in range.
func (f *FakeScheduler) Advance(d time.Duration) {
	f.mu.Lock()
	deadline := f.now.Add(d)
	f.mu.Unlock()

	for {
		f.mu.Lock()
		var dueID = -1
		var dueAt time.Time
		ids := make([]int, 0, len(f.timers))
		for id := range f.timers {
			ids = append(ids, id)
		}
		sort.Ints(ids)
		for _, id := range ids {
			t := f.timers[id]
			if t.at.After(deadline) {
				continue
			}
			if dueID == -1 || t.at.Before(dueAt) {
				dueID = id
				dueAt = t.at
			}
		}
		if dueID == -1 {
			f.now = deadline
			f.mu.Unlock()
			return
		}
		t := f.timers[dueID]
		f.now = t.at
		if t.interval > 0 {
			t.at = t.at.Add(t.interval)
		} else {
			delete(f.timers, dueID)
		}
		fn := t.fn
		f.mu.Unlock()
		fn()
	}
}
