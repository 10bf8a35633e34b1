package stack

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/sweeney/env-sensor/internal/zcl"
)

// Format is the wire encoding of published payloads.
type Format string

const (
	FormatJSON Format = "json"
	FormatCBOR Format = "cbor"
)

// ParseFormat validates a payload format name. Empty means JSON.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatCBOR:
		return FormatCBOR, nil
	}
	return "", fmt.Errorf("unknown payload format %q", s)
}

// Marshal encodes v in format f.
func (f Format) Marshal(v any) ([]byte, error) {
	if f == FormatCBOR {
		return cbor.Marshal(v)
	}
	return json.Marshal(v)
}

// Unmarshal decodes data in format f into v.
func (f Format) Unmarshal(data []byte, v any) error {
	if f == FormatCBOR {
		return cbor.Unmarshal(data, v)
	}
	return json.Unmarshal(data, v)
}

// Node states published on the state topic.
const (
	StateOnline  = "online"
	StateOffline = "offline"
	StateLeft    = "left"
)

// Report is an attribute report.
type Report struct {
	Timestamp string `json:"timestamp" cbor:"1,keyasint"`
	Endpoint  uint8  `json:"endpoint" cbor:"2,keyasint"`
	Cluster   uint16 `json:"cluster" cbor:"3,keyasint"`
	Attribute uint16 `json:"attribute" cbor:"4,keyasint"`
	Value     int32  `json:"value" cbor:"5,keyasint"`
}

// NewReport builds a report for one attribute value.
func NewReport(ts time.Time, endpoint uint8, cluster zcl.ClusterID, attr zcl.AttrID, value int32) Report {
	return Report{
		Timestamp: ts.UTC().Format(time.RFC3339),
		Endpoint:  endpoint,
		Cluster:   uint16(cluster),
		Attribute: uint16(attr),
		Value:     value,
	}
}

// Announce describes the node to the coordinator. It is published retained
// on the state topic, and as the will with State offline.
type Announce struct {
	Timestamp    string `json:"timestamp" cbor:"1,keyasint"`
	State        string `json:"state" cbor:"2,keyasint"`
	Endpoint     uint8  `json:"endpoint,omitempty" cbor:"3,keyasint,omitempty"`
	Manufacturer string `json:"manufacturer,omitempty" cbor:"4,keyasint,omitempty"`
	Model        string `json:"model,omitempty" cbor:"5,keyasint,omitempty"`
	DateCode     string `json:"date_code,omitempty" cbor:"6,keyasint,omitempty"`
	PowerSource  uint8  `json:"power_source,omitempty" cbor:"7,keyasint,omitempty"`
	RxOnWhenIdle bool   `json:"rx_on_when_idle" cbor:"8,keyasint"`
	// Durations are in seconds.
	EndDeviceTimeout int64 `json:"end_device_timeout,omitempty" cbor:"9,keyasint,omitempty"`
	KeepAlive        int64 `json:"keep_alive,omitempty" cbor:"10,keyasint,omitempty"`
	LongPoll         int64 `json:"long_poll,omitempty" cbor:"11,keyasint,omitempty"`
}

// Topics are the MQTT topics of one node.
type Topics struct {
	base string
}

// NewTopics creates the topic set rooted at prefix/clientID.
func NewTopics(prefix, clientID string) Topics {
	return Topics{base: prefix + "/" + clientID}
}

// State is the retained node state topic.
func (t Topics) State() string {
	return t.base + "/state"
}

// Attribute is the report topic of one attribute, e.g.
// zigbee/node-1/ep/10/0402/0000.
func (t Topics) Attribute(endpoint uint8, cluster zcl.ClusterID, attr zcl.AttrID) string {
	return fmt.Sprintf("%s/ep/%d/%04x/%04x", t.base, endpoint, uint16(cluster), uint16(attr))
}

// Commands is the subscription filter for commands addressed to the node.
func (t Topics) Commands() string {
	return t.base + "/cmd/+"
}

// Command returns the topic of a named command.
func (t Topics) Command(name string) string {
	return t.base + "/cmd/" + name
}

// CommandName extracts the command name from a command topic. It reports
// false for topics outside the node's command tree.
func (t Topics) CommandName(topic string) (string, bool) {
	prefix := t.base + "/cmd/"
	if len(topic) <= len(prefix) || topic[:len(prefix)] != prefix {
		return "", false
	}
	return topic[len(prefix):], true
}
