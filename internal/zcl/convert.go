package zcl

import "math"

// Quantity describes how a physical measurement maps to a fixed-point attribute.
type Quantity struct {
	// Multiplier scales the physical value into attribute units. It must be
	// a whole number.
	Multiplier float64
	// Unknown is the sentinel published when no valid reading exists.
	Unknown int16
}

var (
	// Temperature is encoded in centi-degrees Celsius.
	Temperature = Quantity{Multiplier: 100, Unknown: math.MinInt16}

	// Humidity is encoded in centi-percent relative humidity. The unknown
	// sentinel is 0xffff on the wire.
	Humidity = Quantity{Multiplier: 100, Unknown: -1}
)

const micro = 1_000_000

// maxMicroMagnitude bounds inputs so micro*Multiplier cannot overflow int64.
const maxMicroMagnitude = 1e9

// Convert returns physical*Multiplier truncated toward zero. The input is
// first rounded to millionths, the resolution of sensor readings, so exact
// decimal readings are not truncated one unit low by binary rounding.
// NaN converts to Unknown. See ConvertMicro for saturation.
func (q Quantity) Convert(physical float64) int16 {
	if math.IsNaN(physical) {
		return q.Unknown
	}
	if physical > maxMicroMagnitude {
		return q.saturate(math.MaxInt64)
	}
	if physical < -maxMicroMagnitude {
		return q.saturate(math.MinInt64)
	}
	return q.ConvertMicro(int64(math.Round(physical * micro)))
}

// ConvertMicro converts a reading given in millionths of the physical unit.
// The result is truncated toward zero and saturates at the int16 limits.
// A result equal to Unknown moves one unit toward zero, so a real reading
// never publishes as unknown. Declared min/max ranges are not applied here.
func (q Quantity) ConvertMicro(millionths int64) int16 {
	return q.saturate(millionths * int64(q.Multiplier) / micro)
}

func (q Quantity) saturate(v int64) int16 {
	if v > math.MaxInt16 {
		v = math.MaxInt16
	}
	if v < math.MinInt16 {
		v = math.MinInt16
	}
	if v == int64(q.Unknown) {
		if v < 0 {
			v++
		} else {
			v--
		}
	}
	return int16(v)
}
