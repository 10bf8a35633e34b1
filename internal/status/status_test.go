package status

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/env-sensor/internal/button"
	"github.com/sweeney/env-sensor/internal/measure"
	"github.com/sweeney/env-sensor/internal/sensor"
	"github.com/sweeney/env-sensor/internal/stack"
	"github.com/sweeney/env-sensor/internal/zcl"
)

var start = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func testConfig() Config {
	return Config{
		Endpoint:              10,
		MeasurementPeriod:     time.Minute,
		FirstMeasurementDelay: 2 * time.Second,
		KeepAlive:             5 * time.Minute,
		LongPoll:              30 * time.Second,
		Broker:                "tcp://localhost:1883",
		ClientID:              "node-1",
		PayloadFormat:         "json",
		HTTPAddr:              ":8080",
	}
}

func TestNewTracker(t *testing.T) {
	ctx := zcl.NewDeviceContext("Acme", "env-sensor", "")
	tr := NewTracker(start, testConfig(), ctx)

	snap := tr.Snapshot()
	assert.True(t, snap.StartTime.Equal(start))
	assert.Equal(t, ":8080", snap.Config.HTTPAddr)
	assert.False(t, snap.Joined)
	assert.Equal(t, button.EventNone, snap.Button)
	assert.Nil(t, snap.LastSignal)
	assert.Nil(t, snap.Measurement)
	assert.Equal(t, "Acme", snap.Attributes.Basic.ManufacturerName)
	assert.False(t, snap.Identifying())
	assert.Greater(t, snap.Uptime(), time.Duration(0))
}

func TestRecordSignal(t *testing.T) {
	tr := NewTracker(start, Config{}, nil)

	tr.RecordSignal(stack.Signal{Type: stack.SignalSteering}, true, start.Add(time.Second))
	snap := tr.Snapshot()
	require.NotNil(t, snap.LastSignal)
	assert.Equal(t, stack.SignalSteering, snap.LastSignal.Type)
	assert.Equal(t, "ok", snap.LastSignal.Status)
	assert.True(t, snap.Joined)

	tr.RecordSignal(stack.Signal{Type: stack.SignalParentLinkFailure, Err: errors.New("EOF")}, false, start.Add(2*time.Second))
	snap = tr.Snapshot()
	assert.Equal(t, "error", snap.LastSignal.Status)
	assert.Equal(t, "EOF", snap.LastSignal.Err)
	assert.False(t, snap.Joined)
	assert.Equal(t, 2, snap.Counts.Signals)
}

func TestRecordButton(t *testing.T) {
	tr := NewTracker(start, Config{}, nil)

	tr.RecordButton(button.EventReleasedShort)
	tr.RecordButton(button.EventReleasedShort)
	tr.RecordButton(button.EventReleasedLong)

	snap := tr.Snapshot()
	assert.Equal(t, button.EventReleasedLong, snap.Button)
	assert.Equal(t, 2, snap.Counts.ShortPresses)
	assert.Equal(t, 1, snap.Counts.LongPresses)
}

func TestRecordMeasurement(t *testing.T) {
	tr := NewTracker(start, Config{}, nil)

	tr.RecordMeasurement(measure.Result{Time: start, TriggerErr: sensor.ErrReadFailure})
	tr.RecordMeasurement(measure.Result{
		Time:        start.Add(time.Minute),
		Temperature: measure.ChannelResult{Raw: sensor.Value{Int: 21, Frac: 500000}, Value: 2150},
		Humidity:    measure.ChannelResult{Raw: sensor.Value{Int: 40}, Value: 4000},
	})

	snap := tr.Snapshot()
	require.NotNil(t, snap.Measurement)
	assert.Equal(t, int16(2150), snap.Measurement.Temperature.Value)
	assert.Equal(t, 2, snap.Counts.Measurements)
	assert.Equal(t, 1, snap.Counts.FailedSamples)
}

func TestSnapshotIsCopy(t *testing.T) {
	tr := NewTracker(start, Config{}, nil)
	tr.RecordSignal(stack.Signal{Type: stack.SignalSteering}, true, start)

	snap := tr.Snapshot()
	snap.LastSignal.Status = "tampered"

	assert.Equal(t, "ok", tr.Snapshot().LastSignal.Status)
}

func TestBufferedFunc(t *testing.T) {
	tr := NewTracker(start, Config{}, nil)
	assert.Zero(t, tr.Snapshot().Buffered)

	tr.SetBufferedFunc(func() int { return 7 })
	assert.Equal(t, 7, tr.Snapshot().Buffered)
}

func TestRecordFactoryReset(t *testing.T) {
	tr := NewTracker(start, Config{}, nil)
	tr.RecordSignal(stack.Signal{Type: stack.SignalSteering}, true, start)
	tr.RecordIdentify()
	tr.RecordFactoryReset()

	snap := tr.Snapshot()
	assert.False(t, snap.Joined)
	assert.Equal(t, 1, snap.Counts.FactoryResets)
	assert.Equal(t, 1, snap.Counts.IdentifyEntries)
}

func TestConcurrentAccess(t *testing.T) {
	tr := NewTracker(start, Config{}, zcl.NewDeviceContext("Acme", "env-sensor", ""))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			tr.RecordButton(button.EventReleasedShort)
			tr.RecordSignal(stack.Signal{Type: stack.SignalSteering}, true, start)
		}()
		go func() {
			defer wg.Done()
			_ = tr.Snapshot()
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, tr.Snapshot().Counts.ShortPresses)
}

func TestFormatJSON(t *testing.T) {
	ctx := zcl.NewDeviceContext("Acme", "env-sensor", "20260101")
	ctx.Set(zcl.ClusterTemperature, zcl.RoleServer, zcl.AttrMeasuredValue, 2150, false)
	ctx.SetIdentifyTime(42)

	tr := NewTracker(start, testConfig(), ctx)
	tr.RecordSignal(stack.Signal{Type: stack.SignalSteering}, true, start.Add(time.Second))
	tr.RecordMeasurement(measure.Result{
		Time:        start.Add(2 * time.Second),
		Temperature: measure.ChannelResult{Raw: sensor.Value{Int: 21, Frac: 500000}, Value: 2150},
		Humidity:    measure.ChannelResult{Err: sensor.ErrReadFailure},
	})

	snap := tr.Snapshot()
	snap.Now = start.Add(90 * time.Second)

	var out StatusJSON
	require.NoError(t, json.Unmarshal(FormatJSON(snap), &out))
	s := out.Status

	assert.Equal(t, int64(90), s.UptimeSeconds)
	assert.Equal(t, "2026-01-01T00:00:00Z", s.StartTime)
	assert.True(t, s.Network.Joined)
	require.NotNil(t, s.Network.LastSignal)
	assert.Equal(t, "STEERING", s.Network.LastSignal.Type)
	assert.True(t, s.Identify.Active)
	assert.Equal(t, uint16(42), s.Identify.Time)
	assert.Equal(t, "NONE", s.Button)

	require.NotNil(t, s.Attributes.Temperature)
	assert.InDelta(t, 21.5, *s.Attributes.Temperature, 1e-9)
	assert.Nil(t, s.Attributes.Humidity, "unknown humidity is null")

	require.NotNil(t, s.Measurement)
	require.NotNil(t, s.Measurement.Temperature)
	assert.Equal(t, "21.500000", s.Measurement.Temperature.Reading)
	assert.True(t, s.Measurement.Temperature.Published)
	require.NotNil(t, s.Measurement.Humidity)
	assert.NotEmpty(t, s.Measurement.Humidity.Error)
	assert.False(t, s.Measurement.Humidity.Published)

	assert.Equal(t, int64(60), s.Config.MeasurementPeriodSeconds)
	assert.Equal(t, int64(2), s.Config.FirstMeasurementSeconds)
}

func TestFormatJSONTriggerFailure(t *testing.T) {
	tr := NewTracker(start, Config{}, nil)
	tr.RecordMeasurement(measure.Result{Time: start, TriggerErr: sensor.ErrNotReady})

	var out StatusJSON
	require.NoError(t, json.Unmarshal(FormatJSON(tr.Snapshot()), &out))
	require.NotNil(t, out.Status.Measurement)
	assert.NotEmpty(t, out.Status.Measurement.TriggerError)
	assert.Nil(t, out.Status.Measurement.Temperature)
}
