// Command env-sensor runs the control logic of a battery environmental
// sensor node: periodic temperature/humidity sampling published as protocol
// attributes, the identify/factory-reset button, and the status LED.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/sweeney/env-sensor/internal/button"
	"github.com/sweeney/env-sensor/internal/config"
	"github.com/sweeney/env-sensor/internal/gpio"
	"github.com/sweeney/env-sensor/internal/led"
	"github.com/sweeney/env-sensor/internal/logging"
	"github.com/sweeney/env-sensor/internal/measure"
	"github.com/sweeney/env-sensor/internal/metrics"
	"github.com/sweeney/env-sensor/internal/node"
	"github.com/sweeney/env-sensor/internal/scheduler"
	"github.com/sweeney/env-sensor/internal/sensor"
	"github.com/sweeney/env-sensor/internal/stack"
	"github.com/sweeney/env-sensor/internal/status"
	"github.com/sweeney/env-sensor/internal/web"
	"github.com/sweeney/env-sensor/internal/zcl"
)

var version = "dev"

type options struct {
	configPath  string
	printState  bool
	showVersion bool
}

func main() {
	fs := pflag.NewFlagSet("env-sensor", pflag.ExitOnError)
	opts := registerFlags(fs)
	fs.Parse(os.Args[1:])

	if opts.showVersion {
		fmt.Println(version)
		return
	}

	cfg, err := loadConfig(opts.configPath, fs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}

	log, err := logging.New(cfg.Logging, version)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, opts.printState, log); err != nil {
		log.Fatal("fatal", zap.Error(err))
	}
}

func registerFlags(fs *pflag.FlagSet) *options {
	var o options
	fs.StringVarP(&o.configPath, "config", "c", "", "Path to YAML config file")
	fs.BoolVar(&o.printState, "print-state", false, "Take one measurement, print the node state as JSON and exit")
	fs.BoolVar(&o.showVersion, "version", false, "Print version and exit")
	fs.String("broker", "", "MQTT broker address (overrides mqtt.broker)")
	fs.String("http", "", `HTTP status address (overrides http.addr, "off" disables)`)
	fs.String("log-level", "", "Log level: debug, info, warn, error (overrides logging.level)")
	return &o
}

// loadConfig layers explicitly set flags over the file and environment.
func loadConfig(path string, fs *pflag.FlagSet) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if f := fs.Lookup("broker"); f != nil && f.Changed {
		cfg.MQTT.Broker = f.Value.String()
	}
	if f := fs.Lookup("http"); f != nil && f.Changed {
		cfg.HTTP.Addr = f.Value.String()
		if cfg.HTTP.Addr == "off" {
			cfg.HTTP.Addr = ""
		}
	}
	if f := fs.Lookup("log-level"); f != nil && f.Changed {
		cfg.Logging.Level = f.Value.String()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func statusConfig(cfg *config.Config) status.Config {
	return status.Config{
		Endpoint:              uint8(cfg.Device.Endpoint),
		MeasurementPeriod:     cfg.Device.MeasurementPeriodDuration(),
		FirstMeasurementDelay: cfg.Device.FirstMeasurementDelayDuration(),
		KeepAlive:             cfg.Device.KeepAliveDuration(),
		LongPoll:              cfg.Device.LongPollDuration(),
		Broker:                cfg.MQTT.Broker,
		ClientID:              cfg.MQTT.ClientID,
		PayloadFormat:         cfg.MQTT.PayloadFormat,
		HTTPAddr:              cfg.HTTP.Addr,
	}
}

func measureConfig(cfg *config.Config) measure.Config {
	return measure.Config{
		Endpoint:   uint8(cfg.Device.Endpoint),
		Period:     cfg.Device.MeasurementPeriodDuration(),
		FirstDelay: cfg.Device.FirstMeasurementDelayDuration(),
	}
}

func run(cfg *config.Config, printState bool, log *zap.Logger) error {
	devCtx := zcl.NewDeviceContext(cfg.Device.ManufacturerName, cfg.Device.ModelID, cfg.Device.DateCode)

	if printState {
		sn, err := sensor.NewSysfs(cfg.Sensor.IIODevice)
		if err != nil {
			return fmt.Errorf("init sensor: %w", err)
		}
		return printOnce(os.Stdout, sn, devCtx, cfg, log)
	}
	sn := openSensor(cfg, log)

	mt := metrics.New()
	tracker := status.NewTracker(time.Now(), statusConfig(cfg), devCtx)

	sched := scheduler.New(scheduler.WithLogger(log.Named("scheduler")))

	format, err := stack.ParseFormat(cfg.MQTT.PayloadFormat)
	if err != nil {
		return err
	}
	st, err := stack.NewMQTT(stack.Config{
		Broker:      cfg.MQTT.Broker,
		ClientID:    cfg.MQTT.ClientID,
		Username:    cfg.MQTT.Username,
		Password:    cfg.MQTT.Password,
		TopicPrefix: cfg.MQTT.TopicPrefix,
		Format:      format,
		BufferSize:  cfg.MQTT.BufferSize,
	}, sched, stack.WithLogger(log.Named("stack")), stack.WithMetrics(mt))
	if err != nil {
		return fmt.Errorf("init stack: %w", err)
	}
	defer st.Close()
	tracker.SetBufferedFunc(st.Buffered)

	meas := measure.New(sn, st, sched, measureConfig(cfg),
		measure.WithLogger(log.Named("measure")),
		measure.WithMetrics(mt),
		measure.WithObserver(tracker.RecordMeasurement),
	)

	// Edges arrive on the GPIO event goroutine before the classifier exists.
	var classifier atomic.Pointer[button.Classifier]
	buttonIn, ledOut, closeLines := openLines(cfg, func() {
		if c := classifier.Load(); c != nil {
			c.Edge()
		}
	}, log)
	defer closeLines()

	n := node.New(st, devCtx, meas, led.New(ledOut), sched, node.Config{
		Endpoint:              uint8(cfg.Device.Endpoint),
		FirstMeasurementDelay: cfg.Device.FirstMeasurementDelayDuration(),
		LongPollPeriod:        cfg.Device.LongPollDuration(),
		KeepAlivePeriod:       cfg.Device.KeepAliveDuration(),
		EDTimeoutIndex:        uint8(cfg.Device.EDTimeoutIndex),
	}, node.WithLogger(log.Named("node")), node.WithMetrics(mt), node.WithTracker(tracker))

	if buttonIn != nil {
		c, err := button.New(buttonIn, sched, n,
			button.WithLogger(log.Named("button")),
			button.WithMetrics(mt),
		)
		if err != nil {
			return fmt.Errorf("init button: %w", err)
		}
		classifier.Store(c)
	}

	if err := n.Init(); err != nil {
		return fmt.Errorf("init node: %w", err)
	}
	if err := n.Start(); err != nil {
		return fmt.Errorf("start node: %w", err)
	}

	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, tracker, web.WithMetrics(mt.Handler()), web.WithLogger(log.Named("web")))
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("http server error", zap.Error(err))
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			srv.Shutdown(ctx)
		}()
		log.Info("http status server listening", zap.String("addr", cfg.HTTP.Addr))
	}

	log.Info("started",
		zap.String("broker", cfg.MQTT.Broker),
		zap.String("client_id", cfg.MQTT.ClientID),
		zap.Uint8("endpoint", uint8(cfg.Device.Endpoint)),
		zap.Duration("measurement_period", cfg.Device.MeasurementPeriodDuration()),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = sched.Run(ctx)
	log.Info("shutting down")
	return err
}

// openSensor returns the sysfs sensor. A missing device is logged and
// replaced by one whose every sample fails, so the node still joins and
// keeps its measurement schedule.
func openSensor(cfg *config.Config, log *zap.Logger) sensor.Sensor {
	sn, err := sensor.NewSysfs(cfg.Sensor.IIODevice)
	if err != nil {
		log.Error("sensor not ready, measurements will fail",
			zap.String("device", cfg.Sensor.IIODevice), zap.Error(err))
		return sensor.Unavailable{Err: err}
	}
	return sn
}

// openLines acquires the button and LED lines. When the chip cannot be
// opened the button input is nil and the LED output fails every write.
func openLines(cfg *config.Config, onEdge func(), log *zap.Logger) (gpio.Input, gpio.Output, func() error) {
	lines, err := gpio.Open(gpio.Config{
		Chip:            cfg.GPIO.Chip,
		ButtonPin:       cfg.GPIO.ButtonPin,
		LEDPin:          cfg.GPIO.LEDPin,
		ButtonActiveLow: cfg.GPIO.ButtonActiveLow,
	}, onEdge)
	if err != nil {
		log.Error("gpio not ready, running without button and LED",
			zap.String("chip", cfg.GPIO.Chip), zap.Error(err))
		return nil, gpio.Unavailable{Err: err}, func() error { return nil }
	}
	return lines.Button, lines.LED, lines.Close
}

// contextStore writes attributes straight into the device context, for
// sampling without a network stack.
type contextStore struct {
	ctx *zcl.DeviceContext
}

func (s contextStore) SetAttribute(_ uint8, cluster zcl.ClusterID, role zcl.Role, attr zcl.AttrID, value int16, checkAccess bool) zcl.Status {
	return s.ctx.Set(cluster, role, attr, value, checkAccess)
}

// printOnce takes a single measurement and writes the resulting state.
func printOnce(w io.Writer, sn sensor.Sensor, devCtx *zcl.DeviceContext, cfg *config.Config, log *zap.Logger) error {
	tracker := status.NewTracker(time.Now(), statusConfig(cfg), devCtx)
	meas := measure.New(sn, contextStore{ctx: devCtx}, scheduler.New(), measureConfig(cfg),
		measure.WithLogger(log),
		measure.WithObserver(tracker.RecordMeasurement),
	)
	res := meas.Sample()

	if _, err := w.Write(append(status.FormatJSON(tracker.Snapshot()), '\n')); err != nil {
		return err
	}
	if !res.OK() {
		return errors.New("measurement incomplete")
	}
	return nil
}
