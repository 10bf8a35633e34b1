package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.True(t, strings.HasPrefix(cfg.MQTT.ClientID, "env-sensor-"))
	assert.Equal(t, 60*time.Second, cfg.Device.MeasurementPeriodDuration())
	assert.Equal(t, 2*time.Second, cfg.Device.FirstMeasurementDelayDuration())
	assert.Equal(t, 5*time.Minute, cfg.Device.KeepAliveDuration())
	assert.Equal(t, 30*time.Second, cfg.Device.LongPollDuration())
}

func TestLoadEmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeFile(t, `
device:
  measurement_period: 120
  endpoint: 3
mqtt:
  broker: tcp://hub:1883
  client_id: kitchen
  payload_format: cbor
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 120, cfg.Device.MeasurementPeriod)
	assert.Equal(t, 3, cfg.Device.Endpoint)
	assert.Equal(t, 2, cfg.Device.FirstMeasurementDelay, "unset keys keep defaults")
	assert.Equal(t, "tcp://hub:1883", cfg.MQTT.Broker)
	assert.Equal(t, "kitchen", cfg.MQTT.ClientID)
	assert.Equal(t, "cbor", cfg.MQTT.PayloadFormat)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config file")
}

func TestLoadMalformedFile(t *testing.T) {
	_, err := Load(writeFile(t, "device: [unclosed"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config file")
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeFile(t, "mqtt:\n  broker: tcp://file:1883\n")
	t.Setenv("ENVSENSOR_MQTT_BROKER", "tcp://env:1883")
	t.Setenv("ENVSENSOR_DEVICE_MEASUREMENT_PERIOD", "15")
	t.Setenv("ENVSENSOR_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "tcp://env:1883", cfg.MQTT.Broker)
	assert.Equal(t, 15, cfg.Device.MeasurementPeriod)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestEnvOverrideBadInteger(t *testing.T) {
	t.Setenv("ENVSENSOR_GPIO_BUTTON_PIN", "seventeen")
	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ENVSENSOR_GPIO_BUTTON_PIN")
}

func TestValidateAggregatesErrors(t *testing.T) {
	cfg := Default()
	cfg.Device.MeasurementPeriod = 0
	cfg.Device.Endpoint = 241
	cfg.MQTT.Broker = ""
	cfg.MQTT.PayloadFormat = "xml"
	cfg.Logging.Level = "loud"

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.True(t, strings.HasPrefix(msg, "configuration errors: "))
	for _, want := range []string{
		"device.measurement_period",
		"device.endpoint",
		"mqtt.broker",
		"mqtt.payload_format",
		"logging.level",
	} {
		assert.Contains(t, msg, want)
	}
	assert.Empty(t, cfg.MQTT.ClientID, "client id is not generated for an invalid config")
}

func TestValidateRanges(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"negative delay", func(c *Config) { c.Device.FirstMeasurementDelay = -1 }, "first_measurement_delay"},
		{"zero long poll", func(c *Config) { c.Device.LongPollPeriod = 0 }, "long_poll_period"},
		{"timeout index", func(c *Config) { c.Device.EDTimeoutIndex = 15 }, "ed_timeout_index"},
		{"long model", func(c *Config) { c.Device.ModelID = strings.Repeat("m", 33) }, "model_id"},
		{"long date code", func(c *Config) { c.Device.DateCode = strings.Repeat("2", 17) }, "date_code"},
		{"shared pin", func(c *Config) { c.GPIO.LEDPin = c.GPIO.ButtonPin }, "must differ"},
		{"no chip", func(c *Config) { c.GPIO.Chip = "" }, "gpio.chip"},
		{"wildcard prefix", func(c *Config) { c.MQTT.TopicPrefix = "home/#" }, "wildcards"},
		{"empty buffer", func(c *Config) { c.MQTT.BufferSize = 0 }, "buffer_size"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateKeepsClientID(t *testing.T) {
	cfg := Default()
	cfg.MQTT.ClientID = "node-7"
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "node-7", cfg.MQTT.ClientID)
}
