// Package grace tracks the sensor warm-up window that follows activation.
//
// The machine has two states. It enters WarmingUp only from Observe, when a
// freshly reported activation is less than Duration old, and leaves it only
// from Tick, once the window has elapsed. Observe never clears the state so
// that a slow sensor response cannot re-open a window Tick already closed.
package grace

import (
	"fmt"
	"time"
)

// Duration is the length of the warm-up window after activation.
const Duration = 3600 * time.Second

// Lifespan is the total sensor life from activation (14 days + warm-up hour).
const Lifespan = 337 * time.Hour

// State of the warm-up machine.
type State int

const (
	Ready State = iota
	WarmingUp
)

func (s State) String() string {
	switch s {
	case Ready:
		return "Ready"
	case WarmingUp:
		return "WarmingUp"
	default:
		return fmt.Sprintf("Invalid(%d)", int(s))
	}
}

// Machine is not safe for concurrent use; the client loop owns it.
type Machine struct {
	state      State
	activation time.Time
}

// State returns the current state.
func (m *Machine) State() State {
	return m.state
}

// InGracePeriod reports whether the machine is WarmingUp.
func (m *Machine) InGracePeriod() bool {
	return m.state == WarmingUp
}

// EndsAt returns the end of the window for the last observed activation.
func (m *Machine) EndsAt() time.Time {
	if m.activation.IsZero() {
		return time.Time{}
	}
	return m.activation.Add(Duration)
}

// Observe records a reported activation. It returns true when this call moved
// the machine from Ready to WarmingUp.
func (m *Machine) Observe(activation, now time.Time) bool {
	m.activation = activation
	if m.state == WarmingUp {
		return false
	}
	if now.Before(activation.Add(Duration)) {
		m.state = WarmingUp
		return true
	}
	return false
}

// Tick re-evaluates the window at now. expired is true exactly once per
// WarmingUp → Ready transition; remaining is only meaningful while WarmingUp.
func (m *Machine) Tick(now time.Time) (remaining time.Duration, expired bool) {
	if m.state != WarmingUp {
		return 0, false
	}
	remaining = m.EndsAt().Sub(now)
	if remaining <= 0 {
		m.state = Ready
		return 0, true
	}
	return remaining, false
}

// Remaining returns the time left in the window, or 0 outside of it.
func (m *Machine) Remaining(now time.Time) time.Duration {
	if m.state != WarmingUp {
		return 0
	}
	if r := m.EndsAt().Sub(now); r > 0 {
		return r
	}
	return 0
}

// FormatRemaining renders d as "{m}m {s}s" using whole minutes and seconds.
func FormatRemaining(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int(d / time.Second)
	return fmt.Sprintf("%dm %ds", secs/60, secs%60)
}

// ExpiryText describes the remaining sensor life for activation at now.
func ExpiryText(activation *time.Time, now time.Time) string {
	if activation == nil {
		return "Sensor info not found (maybe not activated)"
	}
	left := activation.Add(Lifespan).Sub(now)
	if left <= 0 {
		return "Sensor expired, please activate a new one."
	}
	days := int(left / (24 * time.Hour))
	hours := int((left % (24 * time.Hour)) / time.Hour)
	return fmt.Sprintf("Sensor Expiry: %d days, %d hours", days, hours)
}
