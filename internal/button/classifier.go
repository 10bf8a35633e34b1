package button

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/env-sensor/internal/gpio"
	"github.com/sweeney/env-sensor/internal/metrics"
	"github.com/sweeney/env-sensor/internal/scheduler"
)

// Timing of the classifier.
const (
	DefaultSettleDelay = 15 * time.Millisecond
	DefaultLongPress   = 5 * time.Second
)

// Alarm keys used on the scheduler.
const (
	settleAlarm    = "button.settle"
	longPressAlarm = "button.long-press"
)

// ErrNoListener is returned by New without a listener.
var ErrNoListener = errors.New("button: listener required")

// Scheduler is the part of the application scheduler the classifier uses.
type Scheduler interface {
	Alarm(key string, delay time.Duration, t scheduler.Task) error
	Cancel(key string) bool
	Pending(key string) bool
}

// Classifier debounces the button and classifies press duration.
type Classifier struct {
	pin         gpio.Input
	sched       Scheduler
	listener    Listener
	settleDelay time.Duration
	longPress   time.Duration
	log         *zap.Logger
	metrics     *metrics.Metrics

	// Written only from scheduler tasks; the mutex serves outside readers.
	mu      sync.Mutex
	held    State
	current Event
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Classifier) {
		c.log = l
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Classifier) {
		c.metrics = m
	}
}

// WithTiming overrides the settle delay and long-press threshold.
func WithTiming(settle, longPress time.Duration) Option {
	return func(c *Classifier) {
		c.settleDelay = settle
		c.longPress = longPress
	}
}

// New creates a Classifier reading pin and delivering release events to listener.
func New(pin gpio.Input, sched Scheduler, listener Listener, opts ...Option) (*Classifier, error) {
	if listener == nil {
		return nil, ErrNoListener
	}
	c := &Classifier{
		pin:         pin,
		sched:       sched,
		listener:    listener,
		settleDelay: DefaultSettleDelay,
		longPress:   DefaultLongPress,
		log:         zap.NewNop(),
		held:        StateIdle,
		current:     EventNone,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Edge handles a raw edge interrupt. It only re-arms the settle alarm, so a
// burst of bounces collapses into one settle check after the line is quiet.
func (c *Classifier) Edge() {
	if err := c.sched.Alarm(settleAlarm, c.settleDelay, c.settle); err != nil {
		c.log.Error("failed to schedule debounce", zap.Error(err))
		c.metrics.ScheduleFailed(settleAlarm)
	}
}

// Current returns the live classification.
func (c *Classifier) Current() Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// State returns the classifier state.
func (c *Classifier) State() State {
	c.mu.Lock()
	held := c.held
	c.mu.Unlock()

	if c.sched.Pending(settleAlarm) {
		if held == StateIdle {
			return StateSettlingPress
		}
		return StateSettlingRelease
	}
	return held
}

func (c *Classifier) settle() {
	pressed, err := c.pin.Read()
	if err != nil {
		c.log.Error("failed to read user button state", zap.Error(err))
		c.metrics.ButtonReadFailed()
		return
	}

	if pressed {
		c.mu.Lock()
		if c.held != StateIdle {
			c.mu.Unlock()
			return
		}
		c.held = StateHeldShort
		c.current = EventPressedShort
		c.mu.Unlock()

		if err := c.sched.Alarm(longPressAlarm, c.longPress, c.checkLongPress); err != nil {
			c.log.Error("failed to schedule long press check", zap.Error(err))
			c.metrics.ScheduleFailed(longPressAlarm)
		}
		return
	}

	c.sched.Cancel(longPressAlarm)

	c.mu.Lock()
	if c.held == StateIdle {
		c.mu.Unlock()
		c.log.Debug("release without registered press ignored")
		return
	}
	evt := EventReleasedShort
	if c.held == StateHeldLong {
		evt = EventReleasedLong
	}
	c.held = StateIdle
	c.current = evt
	c.mu.Unlock()

	c.log.Debug("button event", zap.String("event", string(evt)))
	c.metrics.ButtonEvent(string(evt))
	c.listener.HandleButton(evt)
}

// checkLongPress runs when the long-press threshold elapses.
func (c *Classifier) checkLongPress() {
	pressed, err := c.pin.Read()
	if err != nil {
		c.log.Error("failed to read user button state", zap.Error(err))
		c.metrics.ButtonReadFailed()
		return
	}
	if !pressed {
		return
	}

	c.mu.Lock()
	if c.held == StateHeldShort {
		c.held = StateHeldLong
		c.current = EventPressedLong
	}
	c.mu.Unlock()
}
