package logic

import "time"

// Output-log reasons for presence transitions.
const (
	ReasonDetected = "device detected"
	ReasonAbsent   = "no known device in range"
)

// Verdict is the aggregate presence decision for one tick.
type Verdict struct {
	AnyKnownNear bool

	// Trigger identifies the first known, active, near device in registry
	// order. Empty when AnyKnownNear is false.
	TriggerAddress string
	TriggerName    string
	TriggerComment string
}

// Decide classifies every record and computes the aggregate verdict. It does
// not touch the output latch.
func Decide(t *Table, r *Registry) Verdict {
	t.Classify()

	var v Verdict
	for _, k := range r.entries {
		rec, ok := t.Get(k.Address)
		if !ok || !rec.Present() {
			continue
		}
		v.AnyKnownNear = true
		v.TriggerAddress = rec.Address
		v.TriggerName = rec.DisplayName
		v.TriggerComment = rec.Comment
		break
	}
	return v
}

// OutputLatch is the two-state output machine. It only moves on an edge of
// the aggregate presence, so one known device flickering around its threshold
// cannot toggle the output while another stays near.
type OutputLatch struct {
	on   bool
	last Verdict
}

// Apply latches v. When the aggregate presence differs from the latched state
// it returns the log entry for the transition and true; otherwise nothing.
//
// Going OFF there is no near device, so the entry names the last device seen
// near while the output was on.
func (l *OutputLatch) Apply(v Verdict, now time.Time) (OutputLogEntry, bool) {
	changed := v.AnyKnownNear != l.on
	l.on = v.AnyKnownNear

	trigger := v
	reason := ReasonDetected
	if l.on {
		l.last = v
	} else {
		trigger = l.last
		reason = ReasonAbsent
	}
	if !changed {
		return OutputLogEntry{}, false
	}

	return OutputLogEntry{
		Timestamp:      now,
		TriggerAddress: trigger.TriggerAddress,
		TriggerName:    trigger.TriggerName,
		TriggerComment: trigger.TriggerComment,
		OutputState:    l.on,
		Reason:         reason,
	}, true
}

// On reports the latched output state.
func (l *OutputLatch) On() bool { return l.on }
