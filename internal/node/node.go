// Package node wires the button classifier, the measurement service and the
// status LED to the protocol stack. It reacts to stack lifecycle signals,
// identify notifications and classified button events.
package node

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/env-sensor/internal/button"
	"github.com/sweeney/env-sensor/internal/metrics"
	"github.com/sweeney/env-sensor/internal/scheduler"
	"github.com/sweeney/env-sensor/internal/stack"
	"github.com/sweeney/env-sensor/internal/status"
	"github.com/sweeney/env-sensor/internal/zcl"
)

const blinkAlarm = "identify.blink"

// BlinkInterval is the identify LED toggle period.
const BlinkInterval = 100 * time.Millisecond

// Defaults for Config.
const (
	DefaultEndpoint        = 10
	DefaultLongPollPeriod  = 30 * time.Second
	DefaultKeepAlivePeriod = 5 * time.Minute
	DefaultEDTimeoutIndex  = 8
)

// Config holds the node's provisioning constants.
type Config struct {
	Endpoint              uint8
	FirstMeasurementDelay time.Duration
	LongPollPeriod        time.Duration
	KeepAlivePeriod       time.Duration
	EDTimeoutIndex        uint8
}

// Scheduler is the part of the application scheduler the node uses.
type Scheduler interface {
	Now() time.Time
	Post(t scheduler.Task) error
	Alarm(key string, delay time.Duration, t scheduler.Task) error
	Cancel(key string) bool
	Pending(key string) bool
}

// Measurer arms the measurement timeline.
type Measurer interface {
	Arm(delay time.Duration) error
}

// Indicator is the status LED.
type Indicator interface {
	Off() error
	Toggle() error
}

// Node is the network signal orchestrator.
type Node struct {
	stack   stack.Stack
	ctx     *zcl.DeviceContext
	meas    Measurer
	led     Indicator
	sched   Scheduler
	cfg     Config
	log     *zap.Logger
	metrics *metrics.Metrics
	tracker *status.Tracker
}

// Option configures a Node.
type Option func(*Node)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(n *Node) {
		n.log = l
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(n *Node) {
		n.metrics = m
	}
}

// WithTracker records signals and button events in t.
func WithTracker(t *status.Tracker) Option {
	return func(n *Node) {
		n.tracker = t
	}
}

// New creates a Node. The device context is shared with the stack, which
// owns writes to it.
func New(st stack.Stack, ctx *zcl.DeviceContext, meas Measurer, led Indicator, sched Scheduler, cfg Config, opts ...Option) *Node {
	if cfg.Endpoint == 0 {
		cfg.Endpoint = DefaultEndpoint
	}
	n := &Node{
		stack: st,
		ctx:   ctx,
		meas:  meas,
		led:   led,
		sched: sched,
		cfg:   cfg,
		log:   zap.NewNop(),
	}
	for _, o := range opts {
		o(n)
	}
	return n
}

// Init registers the endpoint and the identify handler with the stack and
// turns the status LED off.
func (n *Node) Init() error {
	if err := n.stack.RegisterEndpoint(n.cfg.Endpoint, n.ctx, n); err != nil {
		return fmt.Errorf("register endpoint: %w", err)
	}
	if err := n.led.Off(); err != nil {
		n.log.Error("failed to turn off status LED", zap.Error(err))
	}
	return nil
}

// Start configures sleepy end device behaviour and enables the stack with
// the node as signal handler.
func (n *Node) Start() error {
	n.stack.SetRxOnWhenIdle(false)
	n.stack.SetEndDeviceTimeout(n.cfg.EDTimeoutIndex)
	n.stack.SetKeepAlive(n.cfg.KeepAlivePeriod)

	if err := n.stack.Enable(n); err != nil {
		return fmt.Errorf("enable stack: %w", err)
	}
	n.log.Info("environmental sensor started",
		zap.Uint8("endpoint", n.cfg.Endpoint),
		zap.Duration("keep_alive", n.cfg.KeepAlivePeriod),
		zap.Duration("ed_timeout", stack.EndDeviceTimeout(n.cfg.EDTimeoutIndex)))
	return nil
}

// HandleSignal applies the stack's default handling, then on a successful
// reboot or steering arms the first measurement and sets the long poll
// interval. Both are best-effort; the next signal retries them.
func (n *Node) HandleSignal(sig stack.Signal) {
	if err := n.stack.DefaultSignalHandler(sig); err != nil {
		n.log.Error("default signal handling failed", zap.String("signal", string(sig.Type)), zap.Error(err))
	}

	switch sig.Type {
	case stack.SignalDeviceReboot, stack.SignalSteering:
		if !sig.OK() {
			break
		}
		if err := n.meas.Arm(n.cfg.FirstMeasurementDelay); err != nil {
			n.log.Error("failed to schedule app alarm", zap.Error(err))
		}
		n.configureLongPoll()
	}

	if n.tracker != nil {
		n.tracker.RecordSignal(sig, n.stack.IsJoined(), n.sched.Now())
	}
}

func (n *Node) configureLongPoll() {
	if !n.stack.IsJoined() {
		n.log.Warn("device is not joined to the network, cannot set long poll interval")
		return
	}
	if err := n.stack.SetLongPollInterval(n.cfg.LongPollPeriod); err != nil {
		n.log.Error("failed to set long poll interval", zap.Error(err))
		return
	}
	n.log.Debug("long poll interval set", zap.Duration("interval", n.cfg.LongPollPeriod))
}

// Identify is called by the stack when identify mode starts (non-zero token)
// or ends (zero token).
func (n *Node) Identify(token uint8) {
	if token != 0 {
		if err := n.sched.Alarm(blinkAlarm, 0, n.blink); err != nil {
			n.log.Error("failed to schedule identify blink", zap.Error(err))
			n.metrics.ScheduleFailed(blinkAlarm)
		}
		if n.tracker != nil {
			n.tracker.RecordIdentify()
		}
		return
	}

	n.sched.Cancel(blinkAlarm)
	if err := n.led.Off(); err != nil {
		n.log.Error("failed to turn off status LED", zap.Error(err))
	}
}

// Blinking reports whether the identify blink is running.
func (n *Node) Blinking() bool {
	return n.sched.Pending(blinkAlarm)
}

func (n *Node) blink() {
	if err := n.led.Toggle(); err != nil {
		n.log.Error("failed to toggle status LED", zap.Error(err))
	}
	if err := n.sched.Alarm(blinkAlarm, BlinkInterval, n.blink); err != nil {
		n.log.Error("failed to schedule identify blink", zap.Error(err))
		n.metrics.ScheduleFailed(blinkAlarm)
	}
}

// HandleButton reacts to classified button events. A short press toggles
// identify mode and counts as user activity; a long press requests a
// factory reset. Other events are ignored.
func (n *Node) HandleButton(evt button.Event) {
	if n.tracker != nil {
		n.tracker.RecordButton(evt)
	}

	switch evt {
	case button.EventReleasedShort:
		if err := n.sched.Post(n.toggleIdentify); err != nil {
			n.log.Error("failed to schedule app callback", zap.Error(err))
			n.metrics.ScheduleFailed("identify")
		}
		n.stack.NotifyUserActivity()
	case button.EventReleasedLong:
		if err := n.sched.Post(n.factoryReset); err != nil {
			n.log.Error("failed to schedule app callback", zap.Error(err))
			n.metrics.ScheduleFailed("factory-reset")
		}
	}
}

func (n *Node) toggleIdentify() {
	if !n.stack.IsJoined() {
		n.log.Warn("device not in a network, cannot identify itself")
		return
	}

	if n.ctx.Identifying() {
		if err := n.stack.CancelIdentifyTarget(); err != nil {
			n.log.Warn("failed to cancel identify mode", zap.Error(err))
			return
		}
		n.log.Debug("manually cancelled identify mode")
		return
	}

	err := n.stack.EnterIdentifyTarget(n.cfg.Endpoint)
	switch {
	case errors.Is(err, stack.ErrInvalidState):
		n.log.Warn("cannot enter identify mode", zap.Error(err))
	case err != nil:
		n.log.Error("failed to enter identify mode", zap.Error(err))
	default:
		n.log.Debug("manually entered identify mode")
	}
}

func (n *Node) factoryReset() {
	n.log.Info("factory reset requested")
	if n.tracker != nil {
		n.tracker.RecordFactoryReset()
	}
	if err := n.stack.RequestFactoryReset(); err != nil {
		n.log.Error("factory reset failed", zap.Error(err))
	}
}
