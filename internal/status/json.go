package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/env-sensor/internal/measure"
	"github.com/sweeney/env-sensor/internal/zcl"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	UptimeSeconds int64            `json:"uptime_seconds"`
	StartTime     string           `json:"start_time"`
	Timestamp     string           `json:"timestamp"`
	Network       NetworkJSON      `json:"network"`
	Identify      IdentifyJSON     `json:"identify"`
	Button        string           `json:"button"`
	Measurement   *MeasurementJSON `json:"measurement,omitempty"`
	Attributes    AttributesJSON   `json:"attributes"`
	Counts        CountsJSON       `json:"counts"`
	Config        ConfigJSON       `json:"config"`
}

// NetworkJSON reports network membership.
type NetworkJSON struct {
	Joined     bool        `json:"joined"`
	Broker     string      `json:"broker"`
	ClientID   string      `json:"client_id"`
	Buffered   int         `json:"buffered_reports"`
	LastSignal *SignalJSON `json:"last_signal,omitempty"`
}

// SignalJSON is the JSON representation of a lifecycle signal.
type SignalJSON struct {
	Type   string `json:"type"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
	Time   string `json:"time"`
}

// IdentifyJSON reports identify mode.
type IdentifyJSON struct {
	Active bool   `json:"active"`
	Time   uint16 `json:"time"`
}

// MeasurementJSON is the last measurement tick.
type MeasurementJSON struct {
	Time         string       `json:"time"`
	TriggerError string       `json:"trigger_error,omitempty"`
	Temperature  *ChannelJSON `json:"temperature,omitempty"`
	Humidity     *ChannelJSON `json:"humidity,omitempty"`
}

// ChannelJSON is one channel of a measurement.
type ChannelJSON struct {
	Reading   string `json:"reading,omitempty"`
	Attribute int16  `json:"attribute"`
	Status    string `json:"status,omitempty"`
	Error     string `json:"error,omitempty"`
	Published bool   `json:"published"`
}

// AttributesJSON holds the exposed attribute values. Unknown measured values
// are null.
type AttributesJSON struct {
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
	DateCode     string   `json:"date_code,omitempty"`
	Temperature  *float64 `json:"temperature_celsius"`
	Humidity     *float64 `json:"humidity_percent"`
}

// CountsJSON is the JSON representation of event counts.
type CountsJSON struct {
	Signals         int `json:"signals"`
	ShortPresses    int `json:"short_presses"`
	LongPresses     int `json:"long_presses"`
	Measurements    int `json:"measurements"`
	FailedSamples   int `json:"failed_samples"`
	IdentifyEntries int `json:"identify_entries"`
	FactoryResets   int `json:"factory_resets"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Endpoint                 uint8  `json:"endpoint"`
	MeasurementPeriodSeconds int64  `json:"measurement_period_seconds"`
	FirstMeasurementSeconds  int64  `json:"first_measurement_delay_seconds"`
	KeepAliveSeconds         int64  `json:"keep_alive_seconds"`
	LongPollSeconds          int64  `json:"long_poll_seconds"`
	PayloadFormat            string `json:"payload_format"`
	HTTPAddr                 string `json:"http_addr,omitempty"`
}

func attribute(v int16, unknown int16, scale float64) *float64 {
	if v == unknown {
		return nil
	}
	f := float64(v) / scale
	return &f
}

func buildInner(snap Snapshot) StatusInner {
	a := snap.Attributes
	inner := StatusInner{
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		Network: NetworkJSON{
			Joined:   snap.Joined,
			Broker:   snap.Config.Broker,
			ClientID: snap.Config.ClientID,
			Buffered: snap.Buffered,
		},
		Identify: IdentifyJSON{Active: snap.Identifying(), Time: a.Identify.IdentifyTime},
		Button:   string(snap.Button),
		Attributes: AttributesJSON{
			Manufacturer: a.Basic.ManufacturerName,
			Model:        a.Basic.ModelID,
			DateCode:     a.Basic.DateCode,
			Temperature:  attribute(a.Temperature.Measured, zcl.Temperature.Unknown, zcl.Temperature.Multiplier),
			Humidity:     attribute(a.Humidity.Measured, zcl.Humidity.Unknown, zcl.Humidity.Multiplier),
		},
		Counts: CountsJSON{
			Signals:         snap.Counts.Signals,
			ShortPresses:    snap.Counts.ShortPresses,
			LongPresses:     snap.Counts.LongPresses,
			Measurements:    snap.Counts.Measurements,
			FailedSamples:   snap.Counts.FailedSamples,
			IdentifyEntries: snap.Counts.IdentifyEntries,
			FactoryResets:   snap.Counts.FactoryResets,
		},
		Config: ConfigJSON{
			Endpoint:                 snap.Config.Endpoint,
			MeasurementPeriodSeconds: int64(snap.Config.MeasurementPeriod / time.Second),
			FirstMeasurementSeconds:  int64(snap.Config.FirstMeasurementDelay / time.Second),
			KeepAliveSeconds:         int64(snap.Config.KeepAlive / time.Second),
			LongPollSeconds:          int64(snap.Config.LongPoll / time.Second),
			PayloadFormat:            snap.Config.PayloadFormat,
			HTTPAddr:                 snap.Config.HTTPAddr,
		},
	}

	if sig := snap.LastSignal; sig != nil {
		inner.Network.LastSignal = &SignalJSON{
			Type:   string(sig.Type),
			Status: sig.Status,
			Error:  sig.Err,
			Time:   sig.Time.UTC().Format(time.RFC3339),
		}
	}
	if m := snap.Measurement; m != nil {
		mj := &MeasurementJSON{Time: m.Time.UTC().Format(time.RFC3339)}
		if m.TriggerErr != nil {
			mj.TriggerError = m.TriggerErr.Error()
		} else {
			mj.Temperature = buildChannel(m.Temperature)
			mj.Humidity = buildChannel(m.Humidity)
		}
		inner.Measurement = mj
	}
	return inner
}

func buildChannel(r measure.ChannelResult) *ChannelJSON {
	c := &ChannelJSON{Attribute: r.Value, Published: r.Published()}
	if r.Err != nil {
		c.Error = r.Err.Error()
		return c
	}
	c.Reading = r.Raw.String()
	c.Status = r.Status.String()
	return c
}

// FormatJSON returns the indented JSON status.
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}
