package stack

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sweeney/env-sensor/internal/metrics"
	"github.com/sweeney/env-sensor/internal/scheduler"
	"github.com/sweeney/env-sensor/internal/zcl"
)

// Defaults for Config.
const (
	DefaultTopicPrefix    = "zigbee"
	DefaultBufferSize     = 128
	DefaultConnectTimeout = 10 * time.Second
)

const (
	publishTimeout       = 5 * time.Second
	steerRetryDelay      = 10 * time.Second
	userActivityInterval = 10 * time.Second

	identifyAlarm = "stack.identify"
	steerAlarm    = "stack.steer"
)

// Command names accepted on the command topic. Payloads are plain text.
const (
	CommandIdentify = "identify" // payload: identify time in seconds, 0 stops
	CommandLeave    = "leave"
)

// Config configures the MQTT stack.
type Config struct {
	Broker         string
	ClientID       string
	Username       string
	Password       string
	TopicPrefix    string
	Format         Format
	BufferSize     int
	ConnectTimeout time.Duration
}

// Scheduler is the part of the application scheduler the stack uses.
type Scheduler interface {
	Now() time.Time
	Post(t scheduler.Task) error
	Alarm(key string, delay time.Duration, t scheduler.Task) error
	Cancel(key string) bool
}

// transport is a broker session.
type transport interface {
	Connect() (sessionPresent bool, err error)
	Connected() bool
	Publish(topic string, qos byte, retained bool, payload []byte) error
	Subscribe(filter string, qos byte, h func(topic string, payload []byte)) error
	Disconnect()
}

// MQTT is a Stack bridged onto an MQTT broker. A broker session is network
// membership: a successful connect completes steering, a lost connection is
// a parent link failure. Attribute writes are published as reports and held
// in a ring buffer while offline.
type MQTT struct {
	cfg      Config
	topics   Topics
	sched    Scheduler
	log      *zap.Logger
	metrics  *metrics.Metrics
	activity *rate.Limiter
	dial     func(opts *paho.ClientOptions) transport
	async    func(f func())
	steering atomic.Bool

	mu            sync.Mutex
	client        transport
	handler       SignalHandler
	endpoint      uint8
	ctx           *zcl.DeviceContext
	identify      IdentifyHandler
	identifyToken uint8
	joined        bool
	started       bool // steered since Enable or the last leave
	left          bool
	reconnecting  bool
	rxOnWhenIdle  bool
	edTimeout     uint8
	keepAlive     time.Duration
	longPoll      time.Duration
	buffer        *ringBuffer
}

// Option configures an MQTT stack.
type Option func(*MQTT)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *MQTT) {
		m.log = l
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *MQTT) {
		m.metrics = mt
	}
}

// NewMQTT creates an MQTT stack. Nothing connects until Enable.
func NewMQTT(cfg Config, sched Scheduler, opts ...Option) (*MQTT, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("mqtt stack: broker required")
	}
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("mqtt stack: client id required")
	}
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = DefaultTopicPrefix
	}
	if cfg.Format == "" {
		cfg.Format = FormatJSON
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBufferSize
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}

	m := &MQTT{
		cfg:          cfg,
		topics:       NewTopics(cfg.TopicPrefix, cfg.ClientID),
		sched:        sched,
		log:          zap.NewNop(),
		activity:     rate.NewLimiter(rate.Every(userActivityInterval), 1),
		async:        func(f func()) { go f() },
		rxOnWhenIdle: true,
		buffer:       newRingBuffer(cfg.BufferSize),
	}
	m.dial = m.dialPaho
	for _, o := range opts {
		o(m)
	}
	return m, nil
}

// Topics returns the node's topic set.
func (m *MQTT) Topics() Topics {
	return m.topics
}

func (m *MQTT) RegisterEndpoint(endpoint uint8, ctx *zcl.DeviceContext, identify IdentifyHandler) error {
	if ctx == nil {
		return fmt.Errorf("register endpoint %d: %w", endpoint, ErrInvalidState)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctx != nil {
		return fmt.Errorf("register endpoint %d: %w", endpoint, ErrInvalidState)
	}
	m.endpoint = endpoint
	m.ctx = ctx
	m.identify = identify
	return nil
}

func (m *MQTT) SetRxOnWhenIdle(on bool) {
	m.mu.Lock()
	m.rxOnWhenIdle = on
	m.mu.Unlock()
}

func (m *MQTT) SetEndDeviceTimeout(index uint8) {
	m.mu.Lock()
	m.edTimeout = index
	m.mu.Unlock()
}

// SetKeepAlive sets the broker keep-alive. It takes effect on Enable.
func (m *MQTT) SetKeepAlive(d time.Duration) {
	m.mu.Lock()
	m.keepAlive = d
	m.mu.Unlock()
}

// Enable creates the broker client and starts steering.
func (m *MQTT) Enable(h SignalHandler) error {
	if h == nil {
		return fmt.Errorf("enable stack: %w", ErrInvalidState)
	}

	m.mu.Lock()
	if m.handler != nil || m.ctx == nil {
		m.mu.Unlock()
		return fmt.Errorf("enable stack: %w", ErrInvalidState)
	}
	m.handler = h
	m.mu.Unlock()

	opts, err := m.clientOptions()
	if err != nil {
		return fmt.Errorf("enable stack: %w", err)
	}
	client := m.dial(opts)

	m.mu.Lock()
	m.client = client
	m.mu.Unlock()

	m.log.Info("stack enabled",
		zap.String("broker", m.cfg.Broker),
		zap.String("client_id", m.cfg.ClientID),
		zap.String("format", string(m.cfg.Format)))
	m.async(m.steer)
	return nil
}

func (m *MQTT) clientOptions() (*paho.ClientOptions, error) {
	will, err := m.cfg.Format.Marshal(Announce{State: StateOffline})
	if err != nil {
		return nil, fmt.Errorf("encode will: %w", err)
	}

	m.mu.Lock()
	keepAlive := m.keepAlive
	m.mu.Unlock()

	opts := paho.NewClientOptions().
		AddBroker(m.cfg.Broker).
		SetClientID(m.cfg.ClientID).
		SetCleanSession(false).
		SetAutoReconnect(true).
		SetConnectTimeout(m.cfg.ConnectTimeout).
		SetBinaryWill(m.topics.State(), will, 1, true).
		SetOnConnectHandler(func(paho.Client) { m.onConnect() }).
		SetConnectionLostHandler(func(_ paho.Client, err error) { m.onLost(err) })
	if keepAlive > 0 {
		opts.SetKeepAlive(keepAlive)
	}
	if m.cfg.Username != "" {
		opts.SetUsername(m.cfg.Username)
		opts.SetPassword(m.cfg.Password)
	}
	return opts, nil
}

// steer connects to the broker and delivers the outcome as signals. It runs
// outside the scheduler since connecting blocks.
func (m *MQTT) steer() {
	if !m.steering.CompareAndSwap(false, true) {
		return
	}
	defer m.steering.Store(false)

	m.mu.Lock()
	client := m.client
	busy := m.joined || m.reconnecting
	m.mu.Unlock()
	if client == nil || busy {
		return
	}

	m.log.Info("network steering started", zap.String("broker", m.cfg.Broker))
	sessionPresent, err := client.Connect()
	if err != nil {
		m.deliver(Signal{Type: SignalSteering, Err: fmt.Errorf("connect to broker: %w", err)})
		return
	}

	m.mu.Lock()
	m.joined = true
	reboot := sessionPresent && !m.left
	first := !m.started
	m.started = true
	m.left = false
	m.mu.Unlock()

	switch {
	case first && reboot:
		m.deliver(Signal{Type: SignalDeviceReboot})
	case first:
		m.deliver(Signal{Type: SignalDeviceFirstStart})
		m.deliver(Signal{Type: SignalSteering})
	default:
		m.deliver(Signal{Type: SignalSteering})
	}
}

// onConnect runs on every established session, including automatic
// reconnects.
func (m *MQTT) onConnect() {
	m.mu.Lock()
	client := m.client
	m.joined = true
	recovered := m.reconnecting
	m.reconnecting = false
	msgs, dropped := m.buffer.drain()
	m.mu.Unlock()
	if client == nil {
		return
	}

	if err := client.Subscribe(m.topics.Commands(), 1, m.onCommand); err != nil {
		m.log.Error("failed to subscribe to commands", zap.Error(err))
	}
	if err := m.sendAnnounce(client, StateOnline); err != nil {
		m.log.Warn("failed to publish node state", zap.Error(err))
	}

	if dropped > 0 {
		m.log.Warn("report buffer overflowed while offline", zap.Int("dropped", dropped))
	}
	for _, msg := range msgs {
		if err := client.Publish(msg.topic, msg.qos, msg.retained, msg.payload); err != nil {
			m.log.Error("failed to replay buffered report", zap.String("topic", msg.topic), zap.Error(err))
		}
	}
	if len(msgs) > 0 {
		m.log.Info("replayed buffered reports", zap.Int("count", len(msgs)))
	}

	if recovered {
		m.deliver(Signal{Type: SignalSteering})
	}
}

func (m *MQTT) onLost(err error) {
	m.mu.Lock()
	m.joined = false
	m.reconnecting = true
	m.mu.Unlock()
	m.deliver(Signal{Type: SignalParentLinkFailure, Err: err})
}

func (m *MQTT) onCommand(topic string, payload []byte) {
	name, ok := m.topics.CommandName(topic)
	if !ok {
		return
	}

	var task scheduler.Task
	switch name {
	case CommandIdentify:
		seconds, err := strconv.ParseUint(strings.TrimSpace(string(payload)), 10, 16)
		if err != nil {
			m.log.Warn("invalid identify command", zap.ByteString("payload", payload), zap.Error(err))
			return
		}
		task = func() {
			if seconds == 0 {
				m.stopIdentify()
				return
			}
			if err := m.startIdentify(uint16(seconds)); err != nil {
				m.log.Error("failed to start identify", zap.Error(err))
			}
		}
	case CommandLeave:
		task = m.leave
	default:
		m.log.Debug("ignoring unknown command", zap.String("command", name))
		return
	}

	if err := m.sched.Post(task); err != nil {
		m.log.Error("failed to schedule command", zap.String("command", name), zap.Error(err))
		m.metrics.ScheduleFailed("command")
	}
}

// deliver posts sig to the signal handler in scheduler context.
func (m *MQTT) deliver(sig Signal) {
	m.mu.Lock()
	h := m.handler
	m.mu.Unlock()
	if h == nil {
		return
	}
	if err := m.sched.Post(func() { h.HandleSignal(sig) }); err != nil {
		m.log.Error("failed to deliver signal", zap.String("signal", string(sig.Type)), zap.Error(err))
		m.metrics.ScheduleFailed("signal")
	}
}

// DefaultSignalHandler retries failed steering, restarts steering after a
// leave and logs everything else.
func (m *MQTT) DefaultSignalHandler(sig Signal) error {
	m.metrics.Signal(string(sig.Type), sig.Status())

	switch sig.Type {
	case SignalDeviceFirstStart, SignalDeviceReboot, SignalSteering:
		if sig.OK() {
			m.log.Info("joined network", zap.String("signal", string(sig.Type)))
			return nil
		}
		m.log.Warn("network steering failed",
			zap.String("signal", string(sig.Type)),
			zap.Duration("retry_in", steerRetryDelay),
			zap.Error(sig.Err))
		return m.scheduleSteer(steerRetryDelay)
	case SignalLeave:
		m.log.Info("left network, restarting steering")
		return m.scheduleSteer(0)
	case SignalParentLinkFailure:
		m.log.Warn("parent link failure", zap.Error(sig.Err))
	default:
		m.log.Debug("signal", zap.String("signal", string(sig.Type)), zap.String("status", sig.Status()))
	}
	return nil
}

func (m *MQTT) scheduleSteer(delay time.Duration) error {
	err := m.sched.Alarm(steerAlarm, delay, func() { m.async(m.steer) })
	if err != nil {
		m.metrics.ScheduleFailed(steerAlarm)
		return fmt.Errorf("schedule steering: %w", err)
	}
	return nil
}

func (m *MQTT) IsJoined() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.joined
}

// SetAttribute writes the registered context and reports the new value.
func (m *MQTT) SetAttribute(endpoint uint8, cluster zcl.ClusterID, role zcl.Role, attr zcl.AttrID, value int16, checkAccess bool) zcl.Status {
	m.mu.Lock()
	ctx, ep := m.ctx, m.endpoint
	m.mu.Unlock()
	if ctx == nil || endpoint != ep {
		return zcl.StatusNotFound
	}

	status := ctx.Set(cluster, role, attr, value, checkAccess)
	if status.OK() {
		m.report(endpoint, cluster, attr, int32(value))
	}
	return status
}

func (m *MQTT) report(endpoint uint8, cluster zcl.ClusterID, attr zcl.AttrID, value int32) {
	r := NewReport(m.sched.Now(), endpoint, cluster, attr, value)
	if err := m.publish(m.topics.Attribute(endpoint, cluster, attr), 0, true, r); err != nil {
		m.log.Error("failed to publish attribute report",
			zap.Stringer("cluster", cluster),
			zap.Uint16("attribute", uint16(attr)),
			zap.Error(err))
		m.metrics.PublishFailed(cluster.String())
	}
}

// publish encodes v and sends it, or buffers it while not joined.
func (m *MQTT) publish(topic string, qos byte, retained bool, v any) error {
	payload, err := m.cfg.Format.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	m.mu.Lock()
	client := m.client
	if client == nil || !m.joined || !client.Connected() {
		if m.buffer.push(message{topic: topic, payload: payload, qos: qos, retained: retained}) && m.buffer.dropped == 1 {
			m.log.Warn("report buffer full, dropping oldest", zap.Int("capacity", m.cfg.BufferSize))
		}
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	if err := client.Publish(topic, qos, retained, payload); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

func (m *MQTT) announcement(state string) Announce {
	m.mu.Lock()
	defer m.mu.Unlock()

	a := Announce{
		Timestamp:        m.sched.Now().UTC().Format(time.RFC3339),
		State:            state,
		Endpoint:         m.endpoint,
		RxOnWhenIdle:     m.rxOnWhenIdle,
		EndDeviceTimeout: int64(EndDeviceTimeout(m.edTimeout) / time.Second),
		KeepAlive:        int64(m.keepAlive / time.Second),
		LongPoll:         int64(m.longPoll / time.Second),
	}
	if m.ctx != nil {
		basic := m.ctx.Snapshot().Basic
		a.Manufacturer = basic.ManufacturerName
		a.Model = basic.ModelID
		a.DateCode = basic.DateCode
		a.PowerSource = basic.PowerSource
	}
	return a
}

func (m *MQTT) sendAnnounce(client transport, state string) error {
	payload, err := m.cfg.Format.Marshal(m.announcement(state))
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if err := client.Publish(m.topics.State(), 1, true, payload); err != nil {
		return fmt.Errorf("publish state: %w", err)
	}
	return nil
}

// EnterIdentifyTarget puts the endpoint into identify mode for the finding &
// binding target duration.
func (m *MQTT) EnterIdentifyTarget(endpoint uint8) error {
	m.mu.Lock()
	joined, ctx, ep := m.joined, m.ctx, m.endpoint
	m.mu.Unlock()

	if !joined {
		return ErrNotJoined
	}
	if ctx == nil || endpoint != ep || ctx.Identifying() {
		return ErrInvalidState
	}
	return m.startIdentify(uint16(FindingBindingDuration / time.Second))
}

// CancelIdentifyTarget ends identify mode, if active.
func (m *MQTT) CancelIdentifyTarget() error {
	m.mu.Lock()
	ctx := m.ctx
	m.mu.Unlock()
	if ctx == nil {
		return ErrInvalidState
	}
	m.stopIdentify()
	return nil
}

func (m *MQTT) startIdentify(seconds uint16) error {
	m.mu.Lock()
	ctx, ep := m.ctx, m.endpoint
	m.mu.Unlock()

	was := ctx.Identifying()
	if err := m.sched.Alarm(identifyAlarm, time.Second, m.identifyTick); err != nil {
		m.metrics.ScheduleFailed(identifyAlarm)
		return fmt.Errorf("schedule identify: %w", err)
	}
	ctx.SetIdentifyTime(seconds)
	m.report(ep, zcl.ClusterIdentify, zcl.AttrIdentifyTime, int32(seconds))
	m.log.Info("identify started", zap.Uint16("seconds", seconds))

	if !was {
		m.notifyIdentify(true)
	}
	return nil
}

// identifyTick counts the identify time down once a second.
func (m *MQTT) identifyTick() {
	m.mu.Lock()
	ctx, ep := m.ctx, m.endpoint
	m.mu.Unlock()

	remaining := ctx.IdentifyTime()
	if remaining <= 1 {
		m.stopIdentify()
		return
	}
	remaining--
	ctx.SetIdentifyTime(remaining)
	m.report(ep, zcl.ClusterIdentify, zcl.AttrIdentifyTime, int32(remaining))

	if err := m.sched.Alarm(identifyAlarm, time.Second, m.identifyTick); err != nil {
		m.log.Error("failed to schedule identify countdown", zap.Error(err))
		m.metrics.ScheduleFailed(identifyAlarm)
		m.stopIdentify()
	}
}

func (m *MQTT) stopIdentify() {
	m.sched.Cancel(identifyAlarm)

	m.mu.Lock()
	ctx, ep := m.ctx, m.endpoint
	m.mu.Unlock()
	if ctx == nil || !ctx.Identifying() {
		return
	}

	ctx.SetIdentifyTime(zcl.IdentifyTimeDefault)
	m.report(ep, zcl.ClusterIdentify, zcl.AttrIdentifyTime, zcl.IdentifyTimeDefault)
	m.log.Info("identify stopped")
	m.notifyIdentify(false)
}

func (m *MQTT) notifyIdentify(on bool) {
	m.mu.Lock()
	h := m.identify
	var token uint8
	if on {
		m.identifyToken++
		if m.identifyToken == 0 {
			m.identifyToken = 1
		}
		token = m.identifyToken
	}
	m.mu.Unlock()

	if h != nil {
		h.Identify(token)
	}
}

// RequestFactoryReset leaves the network. Steering restarts from the leave
// signal's default handling.
func (m *MQTT) RequestFactoryReset() error {
	m.mu.Lock()
	enabled := m.client != nil
	m.mu.Unlock()
	if !enabled {
		return ErrInvalidState
	}
	m.leave()
	return nil
}

func (m *MQTT) leave() {
	m.stopIdentify()

	m.mu.Lock()
	client := m.client
	wasJoined := m.joined
	m.joined = false
	m.reconnecting = false
	m.started = false
	m.left = true
	m.longPoll = 0
	m.buffer.reset()
	m.mu.Unlock()

	if client != nil && wasJoined {
		// Runs off the scheduler: a QoS 1 publish waits for the broker.
		m.async(func() {
			if err := m.sendAnnounce(client, StateLeft); err != nil {
				m.log.Warn("failed to announce leave", zap.Error(err))
			}
			client.Disconnect()
		})
	}
	m.log.Info("left network")
	m.deliver(Signal{Type: SignalLeave})
}

// SetLongPollInterval records the interval and re-announces the node.
func (m *MQTT) SetLongPollInterval(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("long poll interval %v: %w", d, ErrInvalidState)
	}

	m.mu.Lock()
	client := m.client
	if !m.joined || client == nil {
		m.mu.Unlock()
		return ErrNotJoined
	}
	m.longPoll = d
	m.mu.Unlock()

	m.async(func() {
		if err := m.sendAnnounce(client, StateOnline); err != nil {
			m.log.Warn("failed to publish node state", zap.Error(err))
		}
	})
	return nil
}

// NotifyUserActivity restarts steering when the node is not joined. Calls
// are rate limited.
func (m *MQTT) NotifyUserActivity() {
	m.mu.Lock()
	idle := m.client != nil && !m.joined && !m.reconnecting
	m.mu.Unlock()
	if !idle {
		return
	}
	if !m.activity.Allow() {
		m.log.Debug("user activity ignored, steering recently restarted")
		return
	}
	m.log.Info("user activity, restarting steering")
	m.async(m.steer)
}

// Buffered returns the number of reports waiting for a connection.
func (m *MQTT) Buffered() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.buffer.len()
}

// Close announces the node offline and disconnects.
func (m *MQTT) Close() error {
	m.sched.Cancel(identifyAlarm)
	m.sched.Cancel(steerAlarm)

	m.mu.Lock()
	client := m.client
	joined := m.joined
	m.joined = false
	m.mu.Unlock()

	if client == nil {
		return nil
	}
	if joined {
		if err := m.sendAnnounce(client, StateOffline); err != nil {
			m.log.Warn("failed to announce shutdown", zap.Error(err))
		}
	}
	client.Disconnect()
	return nil
}

// pahoTransport is a transport over a paho client.
type pahoTransport struct {
	client  paho.Client
	timeout time.Duration
}

func (m *MQTT) dialPaho(opts *paho.ClientOptions) transport {
	return &pahoTransport{client: paho.NewClient(opts), timeout: m.cfg.ConnectTimeout}
}

func (p *pahoTransport) Connect() (bool, error) {
	token := p.client.Connect()
	if !token.WaitTimeout(p.timeout) {
		return false, fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return false, err
	}
	ct, ok := token.(*paho.ConnectToken)
	return ok && ct.SessionPresent(), nil
}

func (p *pahoTransport) Connected() bool {
	return p.client.IsConnectionOpen()
}

func (p *pahoTransport) Publish(topic string, qos byte, retained bool, payload []byte) error {
	token := p.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish timeout")
	}
	return token.Error()
}

func (p *pahoTransport) Subscribe(filter string, qos byte, h func(topic string, payload []byte)) error {
	token := p.client.Subscribe(filter, qos, func(_ paho.Client, msg paho.Message) {
		h(msg.Topic(), msg.Payload())
	})
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("subscribe timeout")
	}
	return token.Error()
}

func (p *pahoTransport) Disconnect() {
	p.client.Disconnect(250)
}
