package zcl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDeviceContextDefaults(t *testing.T) {
	c := NewDeviceContext("Acme", "env-sensor", "20260101")
	a := c.Snapshot()

	assert.Equal(t, uint8(Version), a.Basic.ZCLVersion)
	assert.Equal(t, uint8(PowerSourceBattery), a.Basic.PowerSource)
	assert.Equal(t, "Acme", a.Basic.ManufacturerName)
	assert.Equal(t, "env-sensor", a.Basic.ModelID)
	assert.Equal(t, "20260101", a.Basic.DateCode)

	assert.Equal(t, uint16(IdentifyTimeDefault), a.Identify.IdentifyTime)
	assert.False(t, c.Identifying())

	assert.Equal(t, Temperature.Unknown, a.Temperature.Measured)
	assert.Equal(t, int16(-4000), a.Temperature.Min)
	assert.Equal(t, int16(12500), a.Temperature.Max)
	assert.Equal(t, uint16(20), a.Temperature.Tolerance)

	assert.Equal(t, Humidity.Unknown, a.Humidity.Measured)
	assert.Equal(t, int16(0), a.Humidity.Min)
	assert.Equal(t, int16(10000), a.Humidity.Max)
}

func TestDeviceContextSetGet(t *testing.T) {
	c := NewDeviceContext("Acme", "env-sensor", "")

	st := c.Set(ClusterTemperature, RoleServer, AttrMeasuredValue, 2150, false)
	require.Equal(t, StatusSuccess, st)

	v, st := c.Get(ClusterTemperature, RoleServer, AttrMeasuredValue)
	require.True(t, st.OK())
	assert.Equal(t, int16(2150), v)

	assert.Equal(t, int16(2150), c.Snapshot().Temperature.Measured)
}

func TestDeviceContextSetRejections(t *testing.T) {
	c := NewDeviceContext("Acme", "env-sensor", "")

	assert.Equal(t, StatusReadOnly, c.Set(ClusterHumidity, RoleServer, AttrMeasuredValue, 1, true))
	assert.Equal(t, StatusUnsupportedAttribute, c.Set(ClusterHumidity, RoleClient, AttrMeasuredValue, 1, false))
	assert.Equal(t, StatusUnsupportedAttribute, c.Set(ClusterBasic, RoleServer, AttrModelID, 1, false))
	assert.Equal(t, StatusUnsupportedAttribute, c.Set(ClusterHumidity, RoleServer, AttrTolerance, 1, false))

	assert.Equal(t, Humidity.Unknown, c.Snapshot().Humidity.Measured, "rejected writes leave the value untouched")
}

func TestDeviceContextIdentifyTime(t *testing.T) {
	c := NewDeviceContext("Acme", "env-sensor", "")

	c.SetIdentifyTime(180)
	assert.True(t, c.Identifying())
	assert.Equal(t, uint16(180), c.IdentifyTime())

	c.SetIdentifyTime(IdentifyTimeDefault)
	assert.False(t, c.Identifying())
}

func TestEncodeString(t *testing.T) {
	assert.Equal(t, []byte{4, 't', 'e', 's', 't'}, EncodeString("test"))
	assert.Equal(t, []byte{0}, EncodeString(""))

	long := make([]byte, 300)
	for i := range long {
		long[i] = 'x'
	}
	enc := EncodeString(string(long))
	assert.Len(t, enc, MaxStringLen+1)
	assert.Equal(t, byte(MaxStringLen), enc[0])

	s, ok := DecodeString(EncodeString("Acme"))
	assert.True(t, ok)
	assert.Equal(t, "Acme", s)

	_, ok = DecodeString([]byte{5, 'a'})
	assert.False(t, ok)
}
