//go:build linux

package gpio

import (
	"fmt"
	"sync"

	"github.com/warthog618/go-gpiocdev"
)

// Lines holds the requested button and LED lines.
type Lines struct {
	chip   *gpiocdev.Chip
	Button *Button
	LED    *LED
}

// Button is the user button input line.
type Button struct {
	line *gpiocdev.Line
}

// LED is the status LED output line.
type LED struct {
	mu   sync.Mutex
	line *gpiocdev.Line
}

// Open requests the button and LED lines. onEdge is called from the GPIO
// event goroutine on every button edge; it must only hand off work.
func Open(cfg Config, onEdge func()) (*Lines, error) {
	chip, err := gpiocdev.NewChip(cfg.Chip)
	if err != nil {
		return nil, fmt.Errorf("%w: open chip %s: %v", ErrNotReady, cfg.Chip, err)
	}

	// LED starts inactive.
	ledLine, err := chip.RequestLine(cfg.LEDPin, gpiocdev.AsOutput(0))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("%w: request LED pin %d: %v", ErrNotReady, cfg.LEDPin, err)
	}

	opts := []gpiocdev.LineReqOption{
		gpiocdev.AsInput,
		gpiocdev.WithBothEdges,
		gpiocdev.WithEventHandler(func(gpiocdev.LineEvent) {
			if onEdge != nil {
				onEdge()
			}
		}),
	}
	if cfg.ButtonActiveLow {
		opts = append(opts, gpiocdev.AsActiveLow, gpiocdev.WithPullUp)
	} else {
		opts = append(opts, gpiocdev.WithPullDown)
	}

	buttonLine, err := chip.RequestLine(cfg.ButtonPin, opts...)
	if err != nil {
		ledLine.Close()
		chip.Close()
		return nil, fmt.Errorf("%w: request button pin %d: %v", ErrNotReady, cfg.ButtonPin, err)
	}

	return &Lines{
		chip:   chip,
		Button: &Button{line: buttonLine},
		LED:    &LED{line: ledLine},
	}, nil
}

// Read returns true while the button is pressed.
func (b *Button) Read() (bool, error) {
	v, err := b.line.Value()
	if err != nil {
		return false, fmt.Errorf("read button: %w", err)
	}
	return v == 1, nil
}

// Set drives the LED.
func (l *LED) Set(on bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	v := 0
	if on {
		v = 1
	}
	if err := l.line.SetValue(v); err != nil {
		return fmt.Errorf("set LED: %w", err)
	}
	return nil
}

// Toggle inverts the LED.
func (l *LED) Toggle() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	v, err := l.line.Value()
	if err != nil {
		return fmt.Errorf("read LED: %w", err)
	}
	if err := l.line.SetValue(1 - v); err != nil {
		return fmt.Errorf("toggle LED: %w", err)
	}
	return nil
}

// Close releases GPIO resources.
// The button is reconfigured as a plain input and the LED switched off first
// so the lines are left in a clean state for shutdown/reboot.
func (l *Lines) Close() error {
	var errs []error

	if l.Button != nil {
		if err := l.Button.line.Reconfigure(gpiocdev.AsInput); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure button pin: %w", err))
		}
		if err := l.Button.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close button pin: %w", err))
		}
	}
	if l.LED != nil {
		if err := l.LED.line.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("switch off LED: %w", err))
		}
		if err := l.LED.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close LED pin: %w", err))
		}
	}
	if l.chip != nil {
		if err := l.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
