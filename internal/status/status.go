// Package status provides a thread-safe view of node state for the HTTP
// status page and the --print-state command.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/env-sensor/internal/button"
	"github.com/sweeney/env-sensor/internal/measure"
	"github.com/sweeney/env-sensor/internal/stack"
	"github.com/sweeney/env-sensor/internal/zcl"
)

// Config contains daemon configuration for display.
type Config struct {
	Endpoint              uint8
	MeasurementPeriod     time.Duration
	FirstMeasurementDelay time.Duration
	KeepAlive             time.Duration
	LongPoll              time.Duration
	Broker                string
	ClientID              string
	PayloadFormat         string
	HTTPAddr              string
}

// SignalRecord is the last lifecycle signal seen.
type SignalRecord struct {
	Type   stack.SignalType
	Status string
	Err    string
	Time   time.Time
}

// Counts are event totals since start.
type Counts struct {
	Signals         int
	ShortPresses    int
	LongPresses     int
	Measurements    int
	FailedSamples   int
	FactoryResets   int
	IdentifyEntries int
}

// Snapshot is a point-in-time view of node state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Joined      bool
	Button      button.Event
	LastSignal  *SignalRecord
	Measurement *measure.Result
	Attributes  zcl.Attributes
	Buffered    int
	Counts      Counts
	StartTime   time.Time
	Now         time.Time
	Config      Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Identifying reports whether identify mode was active at snapshot time.
func (s Snapshot) Identifying() bool {
	return s.Attributes.Identify.IdentifyTime != zcl.IdentifyTimeDefault
}

// Tracker holds mutable node state behind an RWMutex. Attribute values are
// read live from the device context.
type Tracker struct {
	ctx *zcl.DeviceContext

	mu       sync.RWMutex
	snap     Snapshot
	buffered func() int
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config, ctx *zcl.DeviceContext) *Tracker {
	return &Tracker{
		ctx: ctx,
		snap: Snapshot{
			Button:    button.EventNone,
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// SetBufferedFunc sets the source of the offline report count.
func (t *Tracker) SetBufferedFunc(f func() int) {
	t.mu.Lock()
	t.buffered = f
	t.mu.Unlock()
}

// RecordSignal stores a lifecycle signal and the join state after handling it.
func (t *Tracker) RecordSignal(sig stack.Signal, joined bool, at time.Time) {
	rec := &SignalRecord{Type: sig.Type, Status: sig.Status(), Time: at}
	if sig.Err != nil {
		rec.Err = sig.Err.Error()
	}

	t.mu.Lock()
	t.snap.LastSignal = rec
	t.snap.Joined = joined
	t.snap.Counts.Signals++
	t.mu.Unlock()
}

// RecordButton stores a classified button event.
func (t *Tracker) RecordButton(evt button.Event) {
	t.mu.Lock()
	t.snap.Button = evt
	switch evt {
	case button.EventReleasedShort:
		t.snap.Counts.ShortPresses++
	case button.EventReleasedLong:
		t.snap.Counts.LongPresses++
	}
	t.mu.Unlock()
}

// RecordMeasurement stores the outcome of a measurement tick.
func (t *Tracker) RecordMeasurement(r measure.Result) {
	t.mu.Lock()
	t.snap.Measurement = &r
	t.snap.Counts.Measurements++
	if !r.OK() {
		t.snap.Counts.FailedSamples++
	}
	t.mu.Unlock()
}

// RecordIdentify counts an identify mode entry.
func (t *Tracker) RecordIdentify() {
	t.mu.Lock()
	t.snap.Counts.IdentifyEntries++
	t.mu.Unlock()
}

// RecordFactoryReset counts a factory reset request.
func (t *Tracker) RecordFactoryReset() {
	t.mu.Lock()
	t.snap.Counts.FactoryResets++
	t.snap.Joined = false
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the node state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	buffered := t.buffered
	t.mu.RUnlock()

	if s.LastSignal != nil {
		sig := *s.LastSignal
		s.LastSignal = &sig
	}
	if s.Measurement != nil {
		m := *s.Measurement
		s.Measurement = &m
	}
	if t.ctx != nil {
		s.Attributes = t.ctx.Snapshot()
	}
	if buffered != nil {
		s.Buffered = buffered()
	}
	s.Now = time.Now()
	return s
}
