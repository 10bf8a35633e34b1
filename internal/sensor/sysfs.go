package sensor

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// channelFiles names the sysfs attributes of each channel, in milli-units.
type channelFiles struct {
	temperature string
	humidity    string
}

var (
	iioFiles   = channelFiles{temperature: "in_temp_input", humidity: "in_humidityrelative_input"}
	hwmonFiles = channelFiles{temperature: "temp1_input", humidity: "humidity1_input"}
)

// Sysfs reads an IIO or hwmon humidity/temperature device.
type Sysfs struct {
	dir   string
	files channelFiles

	mu     sync.Mutex
	sample map[Channel]Value
}

// NewSysfs opens the device directory, detecting IIO or hwmon attribute names.
func NewSysfs(dir string) (*Sysfs, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotReady, err)
	}

	files := iioFiles
	if _, err := os.Stat(filepath.Join(dir, iioFiles.temperature)); err != nil {
		files = hwmonFiles
	}
	if _, err := os.Stat(filepath.Join(dir, files.temperature)); err != nil {
		return nil, fmt.Errorf("%w: no temperature channel in %s", ErrNotReady, dir)
	}

	return &Sysfs{dir: dir, files: files}, nil
}

// Trigger reads both channels. The previous sample is kept if either read fails.
func (s *Sysfs) Trigger() error {
	t, err := s.readMilli(s.files.temperature)
	if err != nil {
		return fmt.Errorf("%w: temperature: %v", ErrReadFailure, err)
	}
	h, err := s.readMilli(s.files.humidity)
	if err != nil {
		return fmt.Errorf("%w: humidity: %v", ErrReadFailure, err)
	}

	s.mu.Lock()
	s.sample = map[Channel]Value{
		ChannelTemperature: ValueFromMilli(t),
		ChannelHumidity:    ValueFromMilli(h),
	}
	s.mu.Unlock()
	return nil
}

// Channel returns a channel of the last triggered sample.
func (s *Sysfs) Channel(ch Channel) (Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sample == nil {
		return Value{}, ErrNoSample
	}
	v, ok := s.sample[ch]
	if !ok {
		return Value{}, fmt.Errorf("sensor: unsupported %s", ch)
	}
	return v, nil
}

func (s *Sysfs) readMilli(name string) (int64, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", name, err)
	}
	return v, nil
}
