// Package measure periodically samples the humidity/temperature sensor and
// publishes the converted readings as protocol attributes.
//
// The tick body (Sample) is separate from the alarm that drives it (Arm), so
// a refused re-arm is its own logged error path. The next tick is re-armed
// after every sample regardless of what failed.
package measure

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/env-sensor/internal/metrics"
	"github.com/sweeney/env-sensor/internal/scheduler"
	"github.com/sweeney/env-sensor/internal/sensor"
	"github.com/sweeney/env-sensor/internal/zcl"
)

const alarmKey = "measure"

// Defaults for the measurement timeline.
const (
	DefaultPeriod     = 60 * time.Second
	DefaultFirstDelay = 2 * time.Second
)

// Store is the protocol attribute-set interface.
type Store interface {
	SetAttribute(endpoint uint8, cluster zcl.ClusterID, role zcl.Role, attr zcl.AttrID, value int16, checkAccess bool) zcl.Status
}

// Scheduler is the part of the application scheduler the service uses.
type Scheduler interface {
	Now() time.Time
	Alarm(key string, delay time.Duration, t scheduler.Task) error
	Cancel(key string) bool
	Pending(key string) bool
}

// Config holds the measurement timing and target endpoint.
type Config struct {
	Endpoint   uint8
	Period     time.Duration
	FirstDelay time.Duration
}

// ChannelResult is the outcome of one channel within a sample.
type ChannelResult struct {
	Raw    sensor.Value
	Value  int16
	Err    error
	Status zcl.Status
}

// Published reports whether the channel reached the attribute store.
func (c ChannelResult) Published() bool {
	return c.Err == nil && c.Status.OK()
}

// Result is the outcome of one tick.
type Result struct {
	Time        time.Time
	TriggerErr  error
	Temperature ChannelResult
	Humidity    ChannelResult
}

// OK reports whether both channels were published.
func (r Result) OK() bool {
	return r.TriggerErr == nil && r.Temperature.Published() && r.Humidity.Published()
}

// Service is the measurement scheduler.
type Service struct {
	sensor  sensor.Sensor
	store   Store
	sched   Scheduler
	cfg     Config
	log     *zap.Logger
	metrics *metrics.Metrics
	observe func(Result)

	mu    sync.Mutex
	last  Result
	ticks int
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		s.log = l
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithObserver registers a function called with every tick's result.
func WithObserver(f func(Result)) Option {
	return func(s *Service) {
		s.observe = f
	}
}

// New creates a measurement Service.
func New(sn sensor.Sensor, store Store, sched Scheduler, cfg Config, opts ...Option) *Service {
	if cfg.Period <= 0 {
		cfg.Period = DefaultPeriod
	}
	if cfg.FirstDelay < 0 {
		cfg.FirstDelay = 0
	}
	s := &Service{
		sensor: sn,
		store:  store,
		sched:  sched,
		cfg:    cfg,
		log:    zap.NewNop(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// FirstDelay returns the configured delay before the first tick.
func (s *Service) FirstDelay() time.Duration {
	return s.cfg.FirstDelay
}

// Arm schedules the next tick after delay, replacing any pending tick.
func (s *Service) Arm(delay time.Duration) error {
	if err := s.sched.Alarm(alarmKey, delay, s.tick); err != nil {
		s.metrics.ScheduleFailed(alarmKey)
		return fmt.Errorf("schedule measurement: %w", err)
	}
	return nil
}

// Armed reports whether a tick is pending.
func (s *Service) Armed() bool {
	return s.sched.Pending(alarmKey)
}

// Stop cancels the pending tick.
func (s *Service) Stop() bool {
	return s.sched.Cancel(alarmKey)
}

func (s *Service) tick() {
	s.Sample()

	if err := s.Arm(s.cfg.Period); err != nil {
		s.log.Error("failed to schedule app alarm", zap.Error(err))
	}
}

// Sample triggers the sensor and publishes both channels. A failed trigger
// skips publishing; a failed channel leaves its previous attribute value and
// does not affect the other channel.
func (s *Service) Sample() Result {
	res := Result{Time: s.sched.Now()}
	s.metrics.MeasurementTick()

	if err := s.sensor.Trigger(); err != nil {
		res.TriggerErr = err
		s.log.Error("failed to trigger humidity and temperature measurement", zap.Error(err))
		s.metrics.SampleFailed("trigger")
		s.record(res)
		return res
	}

	res.Temperature = s.publish(sensor.ChannelTemperature, zcl.ClusterTemperature, zcl.Temperature)
	res.Humidity = s.publish(sensor.ChannelHumidity, zcl.ClusterHumidity, zcl.Humidity)

	if res.Temperature.Published() {
		s.metrics.Temperature(res.Temperature.Raw.Float())
	}
	if res.Humidity.Published() {
		s.metrics.Humidity(res.Humidity.Raw.Float())
	}
	s.record(res)
	return res
}

func (s *Service) publish(ch sensor.Channel, cluster zcl.ClusterID, q zcl.Quantity) ChannelResult {
	var cr ChannelResult

	v, err := s.sensor.Channel(ch)
	if err != nil {
		cr.Err = err
		s.log.Error("failed to get sensor channel", zap.Stringer("channel", ch), zap.Error(err))
		s.metrics.SampleFailed(ch.String())
		return cr
	}

	cr.Raw = v
	cr.Value = q.ConvertMicro(v.Micro())
	s.log.Debug("measured", zap.Stringer("channel", ch), zap.Stringer("value", v), zap.Int16("attribute", cr.Value))

	cr.Status = s.store.SetAttribute(s.cfg.Endpoint, cluster, zcl.RoleServer, zcl.AttrMeasuredValue, cr.Value, false)
	if !cr.Status.OK() {
		s.log.Error("failed to set attribute",
			zap.Stringer("cluster", cluster),
			zap.Stringer("status", cr.Status))
		s.metrics.PublishFailed(cluster.String())
	}
	return cr
}

func (s *Service) record(res Result) {
	s.mu.Lock()
	s.last = res
	s.ticks++
	s.mu.Unlock()

	if s.observe != nil {
		s.observe(res)
	}
}

// Last returns the most recent result and the number of ticks so far.
func (s *Service) Last() (Result, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.ticks
}
