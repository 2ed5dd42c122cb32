//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealOutput drives actual hardware using Linux GPIO character device.
type RealOutput struct {
	chip  *gpiocdev.Chip
	relay *gpiocdev.Line
	led   *gpiocdev.Line
	state bool
}

// NewRealOutput requests the relay and LED lines on chipName and drives both
// to the OFF state.
func NewRealOutput(chipName string, pinRelay, pinLED int) (*RealOutput, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	relayOff, ledOff := rawLevels(false)
	relay, err := chip.RequestLine(pinRelay, gpiocdev.AsOutput(relayOff))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request relay pin %d: %w", pinRelay, err)
	}

	led, err := chip.RequestLine(pinLED, gpiocdev.AsOutput(ledOff))
	if err != nil {
		relay.Close()
		chip.Close()
		return nil, fmt.Errorf("request LED pin %d: %w", pinLED, err)
	}

	return &RealOutput{chip: chip, relay: relay, led: led}, nil
}

// SetPresence drives the relay and the inverted LED.
func (o *RealOutput) SetPresence(on bool) error {
	relayVal, ledVal := rawLevels(on)
	if err := o.relay.SetValue(relayVal); err != nil {
		return fmt.Errorf("set relay: %w", err)
	}
	if err := o.led.SetValue(ledVal); err != nil {
		return fmt.Errorf("set LED: %w", err)
	}
	o.state = on
	return nil
}

// State returns the last state written.
func (o *RealOutput) State() bool { return o.state }

// Close releases GPIO resources.
// Drives the outputs OFF and reconfigures the lines as inputs with pull-down
// (matching Pi boot defaults) so the relay drops out on shutdown.
func (o *RealOutput) Close() error {
	var errs []error

	if err := o.SetPresence(false); err != nil {
		errs = append(errs, err)
	}
	for name, line := range map[string]*gpiocdev.Line{"relay": o.relay, "LED": o.led} {
		if line == nil {
			continue
		}
		if err := line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure %s pin: %w", name, err))
		}
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s pin: %w", name, err))
		}
	}
	if o.chip != nil {
		if err := o.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
