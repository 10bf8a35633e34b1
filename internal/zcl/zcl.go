// Package zcl holds the protocol-visible attribute model of the sensor node:
// cluster and attribute identifiers, the conversion of physical readings to
// fixed-point attribute values, and the DeviceContext attribute mirror.
package zcl

import "fmt"

// ClusterID identifies a protocol cluster.
type ClusterID uint16

// Clusters exposed by the environmental sensor endpoint.
const (
	ClusterBasic       ClusterID = 0x0000
	ClusterIdentify    ClusterID = 0x0003
	ClusterTemperature ClusterID = 0x0402
	ClusterHumidity    ClusterID = 0x0405
)

func (c ClusterID) String() string {
	switch c {
	case ClusterBasic:
		return "basic"
	case ClusterIdentify:
		return "identify"
	case ClusterTemperature:
		return "temperature"
	case ClusterHumidity:
		return "humidity"
	default:
		return fmt.Sprintf("0x%04x", uint16(c))
	}
}

// AttrID identifies an attribute within a cluster.
type AttrID uint16

// Basic cluster attributes.
const (
	AttrZCLVersion       AttrID = 0x0000
	AttrManufacturerName AttrID = 0x0004
	AttrModelID          AttrID = 0x0005
	AttrDateCode         AttrID = 0x0006
	AttrPowerSource      AttrID = 0x0007
)

// Identify cluster attributes.
const (
	AttrIdentifyTime AttrID = 0x0000
)

// Measurement cluster attributes (shared by temperature and humidity).
const (
	AttrMeasuredValue    AttrID = 0x0000
	AttrMinMeasuredValue AttrID = 0x0001
	AttrMaxMeasuredValue AttrID = 0x0002
	AttrTolerance        AttrID = 0x0003
)

// Role selects the server or client side of a cluster.
type Role uint8

const (
	RoleServer Role = 0x01
	RoleClient Role = 0x02
)

// Status is the result code of an attribute operation.
type Status uint8

const (
	StatusSuccess              Status = 0x00
	StatusInvalidValue         Status = 0x87
	StatusUnsupportedAttribute Status = 0x86
	StatusReadOnly             Status = 0x88
	StatusNotFound             Status = 0x8b
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusInvalidValue:
		return "INVALID_VALUE"
	case StatusUnsupportedAttribute:
		return "UNSUPPORTED_ATTRIBUTE"
	case StatusReadOnly:
		return "READ_ONLY"
	case StatusNotFound:
		return "NOT_FOUND"
	default:
		return fmt.Sprintf("STATUS_0x%02x", uint8(s))
	}
}

// OK reports whether s is StatusSuccess.
func (s Status) OK() bool {
	return s == StatusSuccess
}

// Version is the ZCL revision reported by the Basic cluster.
const Version = 3

// PowerSourceBattery is the Basic cluster power source for battery devices.
const PowerSourceBattery = 0x03

// IdentifyTimeDefault is the identify time while not identifying.
const IdentifyTimeDefault = 0
