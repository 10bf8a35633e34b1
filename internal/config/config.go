// Package config loads the daemon configuration.
//
// Values are layered: built-in defaults, then the YAML file, then
// ENVSENSOR_* environment variables. Command-line flags are applied by the
// caller before Validate. Durations in the file are whole seconds.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "ENVSENSOR_"

// Config is the daemon configuration.
type Config struct {
	Device  DeviceConfig  `yaml:"device"`
	GPIO    GPIOConfig    `yaml:"gpio"`
	Sensor  SensorConfig  `yaml:"sensor"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
	HTTP    HTTPConfig    `yaml:"http"`
	Logging LoggingConfig `yaml:"logging"`
}

// DeviceConfig holds the node's provisioning constants.
type DeviceConfig struct {
	MeasurementPeriod     int    `yaml:"measurement_period"`
	FirstMeasurementDelay int    `yaml:"first_measurement_delay"`
	KeepAlivePeriod       int    `yaml:"keep_alive_period"`
	LongPollPeriod        int    `yaml:"long_poll_period"`
	ManufacturerName      string `yaml:"manufacturer_name"`
	ModelID               string `yaml:"model_id"`
	DateCode              string `yaml:"date_code"`
	Endpoint              int    `yaml:"endpoint"`
	EDTimeoutIndex        int    `yaml:"ed_timeout_index"`
}

// GPIOConfig selects the button and LED lines.
type GPIOConfig struct {
	Chip            string `yaml:"chip"`
	ButtonPin       int    `yaml:"button_pin"`
	LEDPin          int    `yaml:"led_pin"`
	ButtonActiveLow bool   `yaml:"button_active_low"`
}

// SensorConfig locates the humidity/temperature device in sysfs.
type SensorConfig struct {
	IIODevice string `yaml:"iio_device"`
}

// MQTTConfig configures the broker session.
type MQTTConfig struct {
	Broker        string `yaml:"broker"`
	ClientID      string `yaml:"client_id"`
	Username      string `yaml:"username"`
	Password      string `yaml:"password"`
	TopicPrefix   string `yaml:"topic_prefix"`
	PayloadFormat string `yaml:"payload_format"`
	BufferSize    int    `yaml:"buffer_size"`
}

// HTTPConfig configures the status server. An empty Addr disables it.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Device: DeviceConfig{
			MeasurementPeriod:     60,
			FirstMeasurementDelay: 2,
			KeepAlivePeriod:       300,
			LongPollPeriod:        30,
			ManufacturerName:      "Sweeney",
			ModelID:               "env-sensor",
			Endpoint:              10,
			EDTimeoutIndex:        8,
		},
		GPIO: GPIOConfig{
			Chip:            "gpiochip0",
			ButtonPin:       17,
			LEDPin:          27,
			ButtonActiveLow: true,
		},
		Sensor: SensorConfig{
			IIODevice: "/sys/bus/iio/devices/iio:device0",
		},
		MQTT: MQTTConfig{
			Broker:        "tcp://localhost:1883",
			TopicPrefix:   "zigbee",
			PayloadFormat: "json",
			BufferSize:    128,
		},
		HTTP: HTTPConfig{
			Addr: ":8080",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// Load reads the file at path over the defaults and applies environment
// overrides. An empty path skips the file. The result is not validated.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) error {
	strs := map[string]*string{
		"DEVICE_MANUFACTURER_NAME": &cfg.Device.ManufacturerName,
		"DEVICE_MODEL_ID":          &cfg.Device.ModelID,
		"DEVICE_DATE_CODE":         &cfg.Device.DateCode,
		"GPIO_CHIP":                &cfg.GPIO.Chip,
		"SENSOR_IIO_DEVICE":        &cfg.Sensor.IIODevice,
		"MQTT_BROKER":              &cfg.MQTT.Broker,
		"MQTT_CLIENT_ID":           &cfg.MQTT.ClientID,
		"MQTT_USERNAME":            &cfg.MQTT.Username,
		"MQTT_PASSWORD":            &cfg.MQTT.Password,
		"MQTT_TOPIC_PREFIX":        &cfg.MQTT.TopicPrefix,
		"MQTT_PAYLOAD_FORMAT":      &cfg.MQTT.PayloadFormat,
		"HTTP_ADDR":                &cfg.HTTP.Addr,
		"LOG_LEVEL":                &cfg.Logging.Level,
	}
	for key, dst := range strs {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"DEVICE_MEASUREMENT_PERIOD":      &cfg.Device.MeasurementPeriod,
		"DEVICE_FIRST_MEASUREMENT_DELAY": &cfg.Device.FirstMeasurementDelay,
		"DEVICE_KEEP_ALIVE_PERIOD":       &cfg.Device.KeepAlivePeriod,
		"DEVICE_LONG_POLL_PERIOD":        &cfg.Device.LongPollPeriod,
		"GPIO_BUTTON_PIN":                &cfg.GPIO.ButtonPin,
		"GPIO_LED_PIN":                   &cfg.GPIO.LEDPin,
		"MQTT_BUFFER_SIZE":               &cfg.MQTT.BufferSize,
	}
	for key, dst := range ints {
		v, ok := os.LookupEnv(EnvPrefix + key)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing %s%s: %w", EnvPrefix, key, err)
		}
		*dst = n
	}
	return nil
}

// Validate checks the configuration and reports every problem at once.
// An empty MQTT client id is filled in with a generated one.
func (c *Config) Validate() error {
	var errs []string

	d := c.Device
	if d.MeasurementPeriod < 1 {
		errs = append(errs, "device.measurement_period must be at least 1 second")
	}
	if d.FirstMeasurementDelay < 0 {
		errs = append(errs, "device.first_measurement_delay must not be negative")
	}
	if d.KeepAlivePeriod < 0 {
		errs = append(errs, "device.keep_alive_period must not be negative")
	}
	if d.LongPollPeriod < 1 {
		errs = append(errs, "device.long_poll_period must be at least 1 second")
	}
	if len(d.ManufacturerName) > 32 {
		errs = append(errs, "device.manufacturer_name must be at most 32 characters")
	}
	if len(d.ModelID) > 32 {
		errs = append(errs, "device.model_id must be at most 32 characters")
	}
	if len(d.DateCode) > 16 {
		errs = append(errs, "device.date_code must be at most 16 characters")
	}
	if d.Endpoint < 1 || d.Endpoint > 240 {
		errs = append(errs, "device.endpoint must be between 1 and 240")
	}
	if d.EDTimeoutIndex < 0 || d.EDTimeoutIndex > 14 {
		errs = append(errs, "device.ed_timeout_index must be between 0 and 14")
	}

	if c.GPIO.Chip == "" {
		errs = append(errs, "gpio.chip is required")
	}
	if c.GPIO.ButtonPin < 0 || c.GPIO.LEDPin < 0 {
		errs = append(errs, "gpio pins must not be negative")
	}
	if c.GPIO.ButtonPin == c.GPIO.LEDPin {
		errs = append(errs, "gpio.button_pin and gpio.led_pin must differ")
	}

	if c.MQTT.Broker == "" {
		errs = append(errs, "mqtt.broker is required")
	}
	switch c.MQTT.PayloadFormat {
	case "", "json", "cbor":
	default:
		errs = append(errs, fmt.Sprintf("mqtt.payload_format %q must be json or cbor", c.MQTT.PayloadFormat))
	}
	if c.MQTT.BufferSize < 1 {
		errs = append(errs, "mqtt.buffer_size must be at least 1")
	}
	if strings.ContainsAny(c.MQTT.TopicPrefix, "#+") {
		errs = append(errs, "mqtt.topic_prefix must not contain wildcards")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Sprintf("logging.level %q is not a level", c.Logging.Level))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "env-sensor-" + uuid.NewString()[:8]
	}
	return nil
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// MeasurementPeriodDuration returns the measurement period.
func (d DeviceConfig) MeasurementPeriodDuration() time.Duration {
	return seconds(d.MeasurementPeriod)
}

// FirstMeasurementDelayDuration returns the delay before the first measurement.
func (d DeviceConfig) FirstMeasurementDelayDuration() time.Duration {
	return seconds(d.FirstMeasurementDelay)
}

// KeepAliveDuration returns the keep-alive period.
func (d DeviceConfig) KeepAliveDuration() time.Duration {
	return seconds(d.KeepAlivePeriod)
}

// LongPollDuration returns the long poll interval.
func (d DeviceConfig) LongPollDuration() time.Duration {
	return seconds(d.LongPollPeriod)
}
