// Package led drives the single status LED. Each call is a direct actuation of
// the output; errors go back to the caller.
package led

import (
	"fmt"

	"github.com/sweeney/env-sensor/internal/gpio"
)

// Indicator is the status LED.
type Indicator struct {
	out gpio.Output
}

// New creates an Indicator on out.
func New(out gpio.Output) *Indicator {
	return &Indicator{out: out}
}

// On lights the LED.
func (i *Indicator) On() error {
	if err := i.out.Set(true); err != nil {
		return fmt.Errorf("status led on: %w", err)
	}
	return nil
}

// Off switches the LED off.
func (i *Indicator) Off() error {
	if err := i.out.Set(false); err != nil {
		return fmt.Errorf("status led off: %w", err)
	}
	return nil
}

// Toggle inverts the LED.
func (i *Indicator) Toggle() error {
	if err := i.out.Toggle(); err != nil {
		return fmt.Errorf("status led toggle: %w", err)
	}
	return nil
}
