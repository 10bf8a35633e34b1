package stack

import (
	"sync"
	"time"

	"github.com/sweeney/env-sensor/internal/zcl"
)

// AttributeWrite is one SetAttribute call recorded by Fake.
type AttributeWrite struct {
	Endpoint    uint8
	Cluster     zcl.ClusterID
	Role        zcl.Role
	Attr        zcl.AttrID
	Value       int16
	CheckAccess bool
}

// Fake is an in-memory Stack that records every call.
type Fake struct {
	mu sync.Mutex

	// Joined is returned by IsJoined.
	Joined bool

	// Errors returned by the corresponding actions, if set.
	EnterIdentifyError  error
	CancelIdentifyError error
	FactoryResetError   error
	LongPollError       error
	EnableError         error

	// SetAttributeStatus, if non-zero, is returned by SetAttribute instead
	// of writing the registered context.
	SetAttributeStatus zcl.Status

	Endpoint        uint8
	Context         *zcl.DeviceContext
	IdentifyHandler IdentifyHandler
	Handler         SignalHandler

	RxOnWhenIdle   bool
	EDTimeoutIndex uint8
	KeepAlive      time.Duration
	LongPoll       time.Duration
	LongPollSets   int
	Writes         []AttributeWrite
	DefaultHandled []Signal
	EnterIdentify  []uint8
	CancelIdentify int
	FactoryResets  int
	UserActivity   int
	Identifying    bool
	Enabled        bool
}

// NewFake creates a Fake that is not joined.
func NewFake() *Fake {
	return &Fake{RxOnWhenIdle: true}
}

func (f *Fake) RegisterEndpoint(endpoint uint8, ctx *zcl.DeviceContext, identify IdentifyHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Endpoint = endpoint
	f.Context = ctx
	f.IdentifyHandler = identify
	return nil
}

func (f *Fake) SetRxOnWhenIdle(on bool) {
	f.mu.Lock()
	f.RxOnWhenIdle = on
	f.mu.Unlock()
}

func (f *Fake) SetEndDeviceTimeout(index uint8) {
	f.mu.Lock()
	f.EDTimeoutIndex = index
	f.mu.Unlock()
}

func (f *Fake) SetKeepAlive(d time.Duration) {
	f.mu.Lock()
	f.KeepAlive = d
	f.mu.Unlock()
}

func (f *Fake) Enable(h SignalHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.EnableError != nil {
		return f.EnableError
	}
	f.Handler = h
	f.Enabled = true
	return nil
}

func (f *Fake) DefaultSignalHandler(sig Signal) error {
	f.mu.Lock()
	f.DefaultHandled = append(f.DefaultHandled, sig)
	f.mu.Unlock()
	return nil
}

func (f *Fake) IsJoined() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Joined
}

func (f *Fake) SetAttribute(endpoint uint8, cluster zcl.ClusterID, role zcl.Role, attr zcl.AttrID, value int16, checkAccess bool) zcl.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Writes = append(f.Writes, AttributeWrite{endpoint, cluster, role, attr, value, checkAccess})
	if f.SetAttributeStatus != zcl.StatusSuccess {
		return f.SetAttributeStatus
	}
	if f.Context == nil || endpoint != f.Endpoint {
		return zcl.StatusNotFound
	}
	return f.Context.Set(cluster, role, attr, value, checkAccess)
}

// EnterIdentifyTarget starts identifying and notifies the registered
// identify handler, as the real stack does.
func (f *Fake) EnterIdentifyTarget(endpoint uint8) error {
	f.mu.Lock()
	f.EnterIdentify = append(f.EnterIdentify, endpoint)
	if f.EnterIdentifyError != nil {
		err := f.EnterIdentifyError
		f.mu.Unlock()
		return err
	}
	f.Identifying = true
	ctx, h := f.Context, f.IdentifyHandler
	f.mu.Unlock()

	if ctx != nil {
		ctx.SetIdentifyTime(uint16(FindingBindingDuration / time.Second))
	}
	if h != nil {
		h.Identify(1)
	}
	return nil
}

func (f *Fake) CancelIdentifyTarget() error {
	f.mu.Lock()
	f.CancelIdentify++
	if f.CancelIdentifyError != nil {
		err := f.CancelIdentifyError
		f.mu.Unlock()
		return err
	}
	f.Identifying = false
	ctx, h := f.Context, f.IdentifyHandler
	f.mu.Unlock()

	if ctx != nil {
		ctx.SetIdentifyTime(zcl.IdentifyTimeDefault)
	}
	if h != nil {
		h.Identify(0)
	}
	return nil
}

func (f *Fake) RequestFactoryReset() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.FactoryResets++
	return f.FactoryResetError
}

func (f *Fake) SetLongPollInterval(d time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.LongPollSets++
	if f.LongPollError != nil {
		return f.LongPollError
	}
	f.LongPoll = d
	return nil
}

func (f *Fake) NotifyUserActivity() {
	f.mu.Lock()
	f.UserActivity++
	f.mu.Unlock()
}

// Emit delivers sig to the handler passed to Enable.
func (f *Fake) Emit(sig Signal) {
	f.mu.Lock()
	h := f.Handler
	f.mu.Unlock()
	if h != nil {
		h.HandleSignal(sig)
	}
}
