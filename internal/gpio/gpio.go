// Package gpio provides the user button input and status LED output with
// hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import "errors"

// ErrNotReady is returned when the GPIO chip or a line cannot be acquired.
var ErrNotReady = errors.New("gpio: device not ready")

// Input reads a digital input level.
type Input interface {
	// Read returns the logical level: true = active (button pressed).
	Read() (bool, error)
}

// Output drives a digital output.
type Output interface {
	// Set drives the output active (true) or inactive (false).
	Set(on bool) error

	// Toggle inverts the output.
	Toggle() error
}

// Pin definitions (BCM numbering)
const (
	DefaultChip      = "gpiochip0"
	DefaultButtonPin = 17
	DefaultLEDPin    = 27
)

// Config selects the lines used for the button and LED.
type Config struct {
	Chip      string
	ButtonPin int
	LEDPin    int
	// ButtonActiveLow is set when the button pulls the line to ground.
	ButtonActiveLow bool
}

// Unavailable stands in for lines that could not be acquired. Every
// operation returns Err.
type Unavailable struct {
	Err error
}

func (u Unavailable) Read() (bool, error) { return false, u.err() }
func (u Unavailable) Set(bool) error { return u.err() }
func (u Unavailable) Toggle() error { return u.err() }

func (u Unavailable) err() error {
	if u.Err == nil {
		return ErrNotReady
	}
	return u.Err
}
