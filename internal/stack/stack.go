// Package stack is the protocol stack the node runs on: network membership,
// lifecycle signals, attribute reporting and identify mode.
//
// The node logic depends only on the Stack interface. MQTT bridges the node
// onto a broker-hosted network; Fake records calls for tests.
package stack

import (
	"errors"
	"time"

	"github.com/sweeney/env-sensor/internal/zcl"
)

// Errors returned by stack actions.
var (
	ErrInvalidState = errors.New("stack: invalid state")
	ErrNotJoined    = errors.New("stack: not joined")
)

// SignalType identifies a lifecycle notification.
type SignalType string

const (
	SignalDeviceFirstStart  SignalType = "DEVICE_FIRST_START"
	SignalDeviceReboot      SignalType = "DEVICE_REBOOT"
	SignalSteering          SignalType = "STEERING"
	SignalLeave             SignalType = "LEAVE"
	SignalParentLinkFailure SignalType = "PARENT_LINK_FAILURE"
	SignalCanSleep          SignalType = "CAN_SLEEP"
)

// Signal is a lifecycle notification. A nil Err is a success status.
type Signal struct {
	Type SignalType
	Err  error
}

// OK reports whether the signal carries a success status.
func (s Signal) OK() bool {
	return s.Err == nil
}

// Status returns "ok" or "error".
func (s Signal) Status() string {
	if s.Err != nil {
		return "error"
	}
	return "ok"
}

// SignalHandler receives lifecycle signals in scheduler context.
type SignalHandler interface {
	HandleSignal(sig Signal)
}

// IdentifyHandler is notified when identify mode starts (non-zero token) and
// when it ends (zero token).
type IdentifyHandler interface {
	Identify(token uint8)
}

// FindingBindingDuration is how long the endpoint identifies when it enters
// finding & binding target mode.
const FindingBindingDuration = 180 * time.Second

// Stack is the protocol stack as seen by the node.
type Stack interface {
	RegisterEndpoint(endpoint uint8, ctx *zcl.DeviceContext, identify IdentifyHandler) error

	SetRxOnWhenIdle(on bool)
	SetEndDeviceTimeout(index uint8)
	SetKeepAlive(d time.Duration)

	// Enable starts the stack. Signals are delivered to h from then on.
	Enable(h SignalHandler) error
	// DefaultSignalHandler applies the stack's own handling of a signal.
	DefaultSignalHandler(sig Signal) error
	IsJoined() bool

	SetAttribute(endpoint uint8, cluster zcl.ClusterID, role zcl.Role, attr zcl.AttrID, value int16, checkAccess bool) zcl.Status

	EnterIdentifyTarget(endpoint uint8) error
	CancelIdentifyTarget() error
	RequestFactoryReset() error
	SetLongPollInterval(d time.Duration) error
	NotifyUserActivity()
}

// EndDeviceTimeout converts a timeout index to the time a parent keeps an
// unresponsive end device: index 0 is 10 seconds, index n is 2^n minutes.
func EndDeviceTimeout(index uint8) time.Duration {
	if index == 0 {
		return 10 * time.Second
	}
	if index > 14 {
		index = 14
	}
	return time.Duration(1<<index) * time.Minute
}
