// Package gpio drives the presence outputs with hardware abstraction.
// The real implementation uses Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Output drives the relay and the indicator LED from the presence state.
type Output interface {
	// SetPresence switches the relay on (raw high) and the LED on. The LED is
	// wired active low, so its raw value is the inverse of the relay's.
	SetPresence(on bool) error

	// State returns the last state successfully written.
	State() bool

	// Close releases GPIO resources.
	Close() error
}

// Pin definitions (BCM numbering)
const (
	PinRelay = 17
	PinLED   = 27
)

// rawLevels maps the logical presence state to raw line values.
func rawLevels(on bool) (relay, led int) {
	if on {
		return 1, 0
	}
	return 0, 1
}

// Nop is an Output with no lines attached, used when GPIO is disabled.
type Nop struct {
	state bool
}

// SetPresence remembers on.
func (n *Nop) SetPresence(on bool) error {
	n.state = on
	return nil
}

// State returns the last state set.
func (n *Nop) State() bool { return n.state }

// Close does nothing.
func (n *Nop) Close() error { return nil }
