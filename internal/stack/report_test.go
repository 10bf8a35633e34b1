package stack

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/env-sensor/internal/zcl"
)

func TestTopics(t *testing.T) {
	tp := NewTopics("zigbee", "node-1")

	assert.Equal(t, "zigbee/node-1/state", tp.State())
	assert.Equal(t, "zigbee/node-1/ep/10/0405/0000", tp.Attribute(10, zcl.ClusterHumidity, zcl.AttrMeasuredValue))
	assert.Equal(t, "zigbee/node-1/cmd/+", tp.Commands())
	assert.Equal(t, "zigbee/node-1/cmd/leave", tp.Command(CommandLeave))

	name, ok := tp.CommandName("zigbee/node-1/cmd/identify")
	assert.True(t, ok)
	assert.Equal(t, "identify", name)

	for _, topic := range []string{"zigbee/node-1/cmd/", "zigbee/node-2/cmd/identify", "zigbee/node-1/state"} {
		_, ok := tp.CommandName(topic)
		assert.False(t, ok, topic)
	}
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)

	f, err = ParseFormat("cbor")
	require.NoError(t, err)
	assert.Equal(t, FormatCBOR, f)

	_, err = ParseFormat("xml")
	assert.Error(t, err)
}

func TestReportEncoding(t *testing.T) {
	ts := time.Date(2026, 3, 1, 9, 30, 0, 0, time.FixedZone("CET", 3600))
	r := NewReport(ts, 10, zcl.ClusterTemperature, zcl.AttrMeasuredValue, -512)
	assert.Equal(t, "2026-03-01T08:30:00Z", r.Timestamp)

	js, err := FormatJSON.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, `{"timestamp":"2026-03-01T08:30:00Z","endpoint":10,"cluster":1026,"attribute":0,"value":-512}`, string(js))

	cb, err := FormatCBOR.Marshal(r)
	require.NoError(t, err)
	assert.Less(t, len(cb), len(js))

	var back Report
	require.NoError(t, FormatCBOR.Unmarshal(cb, &back))
	assert.Equal(t, r, back)
}

func TestAnnounceOmitsEmpty(t *testing.T) {
	js, err := FormatJSON.Marshal(Announce{State: StateOffline})
	require.NoError(t, err)
	assert.JSONEq(t, `{"timestamp":"","state":"offline","rx_on_when_idle":false}`, string(js))
}

func TestEndDeviceTimeout(t *testing.T) {
	assert.Equal(t, 10*time.Second, EndDeviceTimeout(0))
	assert.Equal(t, 2*time.Minute, EndDeviceTimeout(1))
	assert.Equal(t, 256*time.Minute, EndDeviceTimeout(8))
	assert.Equal(t, 16384*time.Minute, EndDeviceTimeout(14))
	assert.Equal(t, 16384*time.Minute, EndDeviceTimeout(200))
}

func TestSignalStatus(t *testing.T) {
	assert.Equal(t, "ok", Signal{Type: SignalSteering}.Status())
	assert.True(t, Signal{Type: SignalSteering}.OK())
	assert.Equal(t, "error", Signal{Type: SignalSteering, Err: ErrNotJoined}.Status())
}
