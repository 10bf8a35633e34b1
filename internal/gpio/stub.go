//go:build !linux

package gpio

import "errors"

// Lines is not available on non-Linux platforms.
type Lines struct {
	Button *Button
	LED    *LED
}

// Button is not available on non-Linux platforms.
type Button struct{}

// LED is not available on non-Linux platforms.
type LED struct{}

// Open returns an error on non-Linux platforms.
func Open(cfg Config, onEdge func()) (*Lines, error) {
	return nil, errors.Join(ErrNotReady, errors.New("gpio: not supported on this platform (requires Linux)"))
}

// Read is not implemented on non-Linux platforms.
func (b *Button) Read() (bool, error) {
	return false, errors.New("gpio: not supported")
}

// Set is not implemented on non-Linux platforms.
func (l *LED) Set(on bool) error {
	return errors.New("gpio: not supported")
}

// Toggle is not implemented on non-Linux platforms.
func (l *LED) Toggle() error {
	return errors.New("gpio: not supported")
}

// Close is not implemented on non-Linux platforms.
func (l *Lines) Close() error {
	return nil
}
