// Package scheduler runs application tasks one at a time on a single goroutine.
//
// Alarms are one-shot delayed tasks keyed by name. Re-arming a key replaces the
// pending instance, so there is never more than one pending alarm per key.
// Post and Alarm are safe to call from any goroutine: GPIO event handlers and
// MQTT callbacks hand their work to the scheduler instead of touching component
// state themselves.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultQueueSize is the capacity of the task queue.
const DefaultQueueSize = 64

var (
	// ErrStopped is returned when scheduling on a scheduler that has shut down.
	ErrStopped = errors.New("scheduler: stopped")

	// ErrQueueFull is returned when the task queue has no free slot.
	ErrQueueFull = errors.New("scheduler: queue full")
)

// Task is a short, non-blocking unit of work.
type Task func()

// Scheduler executes posted tasks and fired alarms in order on the goroutine
// that calls Run (or RunPending).
type Scheduler struct {
	clock Clock
	queue chan Task
	log   *zap.Logger

	mu      sync.Mutex
	alarms  map[string]*alarm
	seq     uint64
	stopped bool
}

type alarm struct {
	id    uint64
	timer Timer
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock sets the clock used for alarms.
func WithClock(c Clock) Option {
	return func(s *Scheduler) {
		s.clock = c
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Scheduler) {
		s.log = l
	}
}

// WithQueueSize sets the task queue capacity.
func WithQueueSize(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.queue = make(chan Task, n)
		}
	}
}

// New creates a Scheduler using the system clock unless overridden.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		clock:  realClock{},
		queue:  make(chan Task, DefaultQueueSize),
		log:    zap.NewNop(),
		alarms: make(map[string]*alarm),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Now returns the scheduler clock's current time.
func (s *Scheduler) Now() time.Time {
	return s.clock.Now()
}

// Post queues t to run after the tasks already queued. It never blocks.
func (s *Scheduler) Post(t Task) error {
	s.mu.Lock()
	stopped := s.stopped
	s.mu.Unlock()
	if stopped {
		return ErrStopped
	}

	select {
	case s.queue <- t:
		return nil
	default:
		return ErrQueueFull
	}
}

// Alarm schedules t to run once after delay under the given key. A pending
// alarm with the same key is cancelled and replaced.
func (s *Scheduler) Alarm(key string, delay time.Duration, t Task) error {
	if delay < 0 {
		delay = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrStopped
	}
	if prev, ok := s.alarms[key]; ok {
		prev.timer.Stop()
	}

	s.seq++
	id := s.seq
	a := &alarm{id: id}
	s.alarms[key] = a
	a.timer = s.clock.AfterFunc(delay, func() { s.fire(key, id, t) })
	return nil
}

// Cancel removes the pending alarm for key. It reports whether one was pending.
func (s *Scheduler) Cancel(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.alarms[key]
	if !ok {
		return false
	}
	a.timer.Stop()
	delete(s.alarms, key)
	return true
}

// Pending reports whether an alarm for key is armed and has not run yet.
func (s *Scheduler) Pending(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.alarms[key]
	return ok
}

// fire runs on the clock's goroutine. The alarm is re-validated when the task
// executes, so a cancel or re-arm in between wins.
func (s *Scheduler) fire(key string, id uint64, t Task) {
	if !s.current(key, id) {
		return
	}

	err := s.Post(func() {
		s.mu.Lock()
		a, ok := s.alarms[key]
		if !ok || a.id != id {
			s.mu.Unlock()
			return
		}
		delete(s.alarms, key)
		s.mu.Unlock()
		t()
	})
	if err != nil {
		s.mu.Lock()
		if a, ok := s.alarms[key]; ok && a.id == id {
			delete(s.alarms, key)
		}
		s.mu.Unlock()
		s.log.Error("alarm dropped", zap.String("alarm", key), zap.Error(err))
	}
}

func (s *Scheduler) current(key string, id uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alarms[key]
	return ok && a.id == id
}

// Run executes tasks until ctx is done, then stops the scheduler.
func (s *Scheduler) Run(ctx context.Context) error {
	defer s.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Debug("scheduler stopping", zap.Error(ctx.Err()))
			return nil
		case t := <-s.queue:
			t()
		}
	}
}

// RunPending executes queued tasks until the queue is empty and returns how
// many ran. Tasks queued by those tasks run too.
func (s *Scheduler) RunPending() int {
	n := 0
	for {
		select {
		case t := <-s.queue:
			t()
			n++
		default:
			return n
		}
	}
}

// Stop cancels every pending alarm and rejects further scheduling.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	s.stopped = true
	for key, a := range s.alarms {
		a.timer.Stop()
		delete(s.alarms, key)
	}
}
