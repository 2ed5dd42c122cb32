//go:build !linux

package gpio

import "errors"

// RealOutput is not available on non-Linux platforms.
type RealOutput struct{}

// NewRealOutput returns an error on non-Linux platforms.
func NewRealOutput(chipName string, pinRelay, pinLED int) (*RealOutput, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

// SetPresence is not implemented on non-Linux platforms.
func (o *RealOutput) SetPresence(on bool) error {
	return errors.New("gpio: not supported")
}

// State is not implemented on non-Linux platforms.
func (o *RealOutput) State() bool { return false }

// Close is not implemented on non-Linux platforms.
func (o *RealOutput) Close() error {
	return nil
}
