// Package sensor provides the humidity/temperature transducer behind a small
// trigger-then-read interface. The real implementation reads the Linux sysfs
// attributes of an SHT3x-class device; the fake allows testing without hardware.
package sensor

import (
	"errors"
	"fmt"
)

var (
	// ErrNotReady is returned when the device is missing at initialization.
	ErrNotReady = errors.New("sensor: device not ready")

	// ErrReadFailure is returned when a sample cannot be fetched.
	ErrReadFailure = errors.New("sensor: read failure")

	// ErrNoSample is returned when a channel is read before any sample was fetched.
	ErrNoSample = errors.New("sensor: no sample")
)

// Channel selects a measured quantity.
type Channel int

const (
	ChannelTemperature Channel = iota
	ChannelHumidity
)

func (c Channel) String() string {
	switch c {
	case ChannelTemperature:
		return "temperature"
	case ChannelHumidity:
		return "humidity"
	default:
		return fmt.Sprintf("channel(%d)", int(c))
	}
}

// Value is a reading in sensor-native form: an integer part and a fractional
// part in millionths, both carrying the sign of the value.
type Value struct {
	Int  int32
	Frac int32
}

// ValueFromMilli converts a milli-unit reading into a Value.
func ValueFromMilli(milli int64) Value {
	return Value{
		Int:  int32(milli / 1000),
		Frac: int32(milli%1000) * 1000,
	}
}

// Micro returns the reading in millionths of the unit.
func (v Value) Micro() int64 {
	return int64(v.Int)*1_000_000 + int64(v.Frac)
}

// Float returns the reading as a floating point number.
func (v Value) Float() float64 {
	return float64(v.Int) + float64(v.Frac)/1e6
}

func (v Value) String() string {
	f := v.Frac
	if f < 0 {
		f = -f
	}
	if v.Int == 0 && v.Frac < 0 {
		return fmt.Sprintf("-0.%06d", f)
	}
	return fmt.Sprintf("%d.%06d", v.Int, f)
}

// Sensor is a humidity/temperature transducer.
type Sensor interface {
	// Trigger fetches a new sample of every channel.
	Trigger() error

	// Channel returns a channel of the most recent sample.
	Channel(ch Channel) (Value, error)
}

// Unavailable stands in for a device that failed initialization. Every
// trigger and channel read fails with Err.
type Unavailable struct {
	Err error
}

func (u Unavailable) Trigger() error { return u.err() }

func (u Unavailable) Channel(Channel) (Value, error) { return Value{}, u.err() }

func (u Unavailable) err() error {
	if u.Err == nil {
		return ErrNotReady
	}
	return u.Err
}
