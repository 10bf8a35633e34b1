package zcl

import (
	"sync"
)

// Static calibration metadata of the SHT3x-class transducer, in attribute units.
// These describe the sensor; they do not bound live readings.
const (
	TemperatureMin       int16  = -40 * 100
	TemperatureMax       int16  = 125 * 100
	TemperatureTolerance uint16 = 20
	HumidityMin          int16  = 0
	HumidityMax          int16  = 100 * 100
)

// BasicAttrs is the Basic cluster.
type BasicAttrs struct {
	ZCLVersion       uint8
	PowerSource      uint8
	ManufacturerName string
	ModelID          string
	DateCode         string
}

// IdentifyAttrs is the Identify cluster.
type IdentifyAttrs struct {
	IdentifyTime uint16
}

// TemperatureAttrs is the Temperature Measurement cluster.
type TemperatureAttrs struct {
	Measured  int16
	Min       int16
	Max       int16
	Tolerance uint16
}

// HumidityAttrs is the Relative Humidity Measurement cluster.
type HumidityAttrs struct {
	Measured int16
	Min      int16
	Max      int16
}

// Attributes is a copy of every attribute in a DeviceContext.
type Attributes struct {
	Basic       BasicAttrs
	Identify    IdentifyAttrs
	Temperature TemperatureAttrs
	Humidity    HumidityAttrs
}

// DeviceContext mirrors the attributes the node exposes on its endpoint.
// It is created once at startup and shared by the components that write it;
// all access is serialized.
type DeviceContext struct {
	mu    sync.RWMutex
	attrs Attributes
}

// NewDeviceContext creates a context with the startup values of every cluster.
// Measured values start unknown until the first successful measurement.
func NewDeviceContext(manufacturer, model, dateCode string) *DeviceContext {
	return &DeviceContext{
		attrs: Attributes{
			Basic: BasicAttrs{
				ZCLVersion:       Version,
				PowerSource:      PowerSourceBattery,
				ManufacturerName: manufacturer,
				ModelID:          model,
				DateCode:         dateCode,
			},
			Identify: IdentifyAttrs{IdentifyTime: IdentifyTimeDefault},
			Temperature: TemperatureAttrs{
				Measured:  Temperature.Unknown,
				Min:       TemperatureMin,
				Max:       TemperatureMax,
				Tolerance: TemperatureTolerance,
			},
			Humidity: HumidityAttrs{
				Measured: Humidity.Unknown,
				Min:      HumidityMin,
				Max:      HumidityMax,
			},
		},
	}
}

// Snapshot returns a copy of all attributes.
func (c *DeviceContext) Snapshot() Attributes {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.attrs
}

// IdentifyTime returns the remaining identify time in seconds.
func (c *DeviceContext) IdentifyTime() uint16 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.attrs.Identify.IdentifyTime
}

// SetIdentifyTime sets the remaining identify time in seconds.
func (c *DeviceContext) SetIdentifyTime(seconds uint16) {
	c.mu.Lock()
	c.attrs.Identify.IdentifyTime = seconds
	c.mu.Unlock()
}

// Identifying reports whether identify mode is active.
func (c *DeviceContext) Identifying() bool {
	return c.IdentifyTime() != IdentifyTimeDefault
}

// Set writes a numeric server attribute. With checkAccess the write is
// rejected for attributes that are read-only to network peers; local writers
// such as the measurement pipeline pass false.
func (c *DeviceContext) Set(cluster ClusterID, role Role, attr AttrID, value int16, checkAccess bool) Status {
	if role != RoleServer {
		return StatusUnsupportedAttribute
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	ptr, writable := c.lookup(cluster, attr)
	if ptr == nil {
		return StatusUnsupportedAttribute
	}
	if checkAccess && !writable {
		return StatusReadOnly
	}
	*ptr = value
	return StatusSuccess
}

// Get reads a numeric server attribute.
func (c *DeviceContext) Get(cluster ClusterID, role Role, attr AttrID) (int16, Status) {
	if role != RoleServer {
		return 0, StatusUnsupportedAttribute
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	ptr, _ := c.lookup(cluster, attr)
	if ptr == nil {
		return 0, StatusUnsupportedAttribute
	}
	return *ptr, StatusSuccess
}

// lookup returns the storage of a numeric attribute and whether network peers
// may write it. Caller holds c.mu.
func (c *DeviceContext) lookup(cluster ClusterID, attr AttrID) (*int16, bool) {
	switch cluster {
	case ClusterTemperature:
		switch attr {
		case AttrMeasuredValue:
			return &c.attrs.Temperature.Measured, false
		case AttrMinMeasuredValue:
			return &c.attrs.Temperature.Min, false
		case AttrMaxMeasuredValue:
			return &c.attrs.Temperature.Max, false
		}
	case ClusterHumidity:
		switch attr {
		case AttrMeasuredValue:
			return &c.attrs.Humidity.Measured, false
		case AttrMinMeasuredValue:
			return &c.attrs.Humidity.Min, false
		case AttrMaxMeasuredValue:
			return &c.attrs.Humidity.Max, false
		}
	}
	return nil, false
}
