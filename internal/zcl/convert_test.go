package zcl

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sweeney/env-sensor/internal/sensor"
)

func TestConvertTruncates(t *testing.T) {
	tests := []struct {
		name string
		q    Quantity
		in   float64
		want int16
	}{
		{"temperature whole", Temperature, 25.0, 2500},
		{"temperature fraction", Temperature, 21.456789, 2145},
		{"temperature negative", Temperature, -12.345, -1234},
		{"temperature negative below one unit", Temperature, -0.009, 0},
		{"humidity near full", Humidity, 99.999, 9999},
		{"humidity zero", Humidity, 0, 0},
		{"humidity half", Humidity, 45.5, 4550},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.q.Convert(tt.in))
		})
	}
}

func TestConvertDeterministic(t *testing.T) {
	for i := 0; i < 100; i++ {
		assert.Equal(t, int16(2345), Temperature.Convert(23.456))
	}
}

func TestConvertUnknownAndSaturation(t *testing.T) {
	assert.Equal(t, Temperature.Unknown, Temperature.Convert(math.NaN()))
	assert.Equal(t, Humidity.Unknown, Humidity.Convert(math.NaN()))

	assert.Equal(t, int16(math.MaxInt16), Temperature.Convert(1000))
	assert.Equal(t, int16(math.MinInt16+1), Temperature.Convert(-1000), "saturation never yields the unknown sentinel")
	assert.Equal(t, int16(math.MaxInt16), Temperature.Convert(math.Inf(1)))
	assert.Equal(t, int16(math.MinInt16+1), Temperature.Convert(math.Inf(-1)))
}

func TestConvertIgnoresDeclaredRange(t *testing.T) {
	// 130 °C is above the declared maximum but is published as measured.
	assert.Equal(t, int16(13000), Temperature.Convert(130))
	assert.Greater(t, Temperature.Convert(130), TemperatureMax)
}

func TestConvertExactDecimalReadings(t *testing.T) {
	// Readings whose centi value is exact must not lose a unit to binary
	// floating point rounding.
	for _, milli := range []int64{21290, 290, 4570, 55290, 1150, 23560, -21290, -1150, 10, -10} {
		v := sensor.ValueFromMilli(milli)
		want := int16(milli / 10)
		assert.Equal(t, want, Temperature.ConvertMicro(v.Micro()), "micro %d milli", milli)
		assert.Equal(t, want, Temperature.Convert(v.Float()), "float %d milli", milli)
	}
}

func TestConvertMicroTruncates(t *testing.T) {
	assert.Equal(t, int16(2145), Temperature.ConvertMicro(21_456_789))
	assert.Equal(t, int16(-1234), Temperature.ConvertMicro(-12_345_678))
	assert.Equal(t, int16(0), Temperature.ConvertMicro(-9_999))
	assert.Equal(t, int16(9999), Humidity.ConvertMicro(99_999_999))
	assert.Equal(t, int16(math.MaxInt16), Temperature.ConvertMicro(400_000_000))
	assert.Equal(t, int16(math.MinInt16+1), Temperature.ConvertMicro(-400_000_000))
}

func TestConvertNeverYieldsUnknown(t *testing.T) {
	// -0.01 %RH would encode as 0xffff, the humidity unknown sentinel.
	assert.Equal(t, int16(0), Humidity.Convert(-0.01))
	assert.Equal(t, int16(0), Humidity.ConvertMicro(-10_000))
	assert.Equal(t, int16(-2), Humidity.ConvertMicro(-20_000))
	assert.NotEqual(t, Humidity.Unknown, Humidity.Convert(-0.019))
}
