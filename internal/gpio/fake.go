package gpio

// FakeOutput is a test double that records raw writes.
type FakeOutput struct {
	// Writes holds every successful (relay, LED) raw write in order.
	Writes []Levels

	// Closed tracks if Close was called
	Closed bool

	// WriteError, if set, will be returned by SetPresence()
	WriteError error

	state bool
}

// Levels is one pair of raw line values.
type Levels struct {
	Relay int
	LED   int
}

// NewFakeOutput creates a FakeOutput in the OFF state.
func NewFakeOutput() *FakeOutput {
	return &FakeOutput{}
}

// SetPresence records the raw levels for on.
func (f *FakeOutput) SetPresence(on bool) error {
	if f.WriteError != nil {
		return f.WriteError
	}
	relay, led := rawLevels(on)
	f.Writes = append(f.Writes, Levels{Relay: relay, LED: led})
	f.state = on
	return nil
}

// State returns the last state written.
func (f *FakeOutput) State() bool { return f.state }

// Close marks the output as closed and drives it OFF.
func (f *FakeOutput) Close() error {
	f.Closed = true
	f.state = false
	return nil
}

// Reset clears recorded writes.
func (f *FakeOutput) Reset() {
	f.Writes = nil
	f.Closed = false
}
