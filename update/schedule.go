// Package update computes the fetch cadence: minute-aligned fetch instants and
// the countdown shown until the next one.
package update

import (
	"fmt"
	"time"
)

const (
	// TickInterval is the countdown refresh period.
	TickInterval = time.Second
	// MinDelay is used whenever the computed delay is not positive.
	MinDelay = time.Second
)

// NextFetch returns the smallest minute boundary strictly after now.
func NextFetch(now time.Time) time.Time {
	return now.Truncate(time.Minute).Add(time.Minute)
}

// Delay returns how long to wait from now until next, never less than
// MinDelay.
func Delay(now, next time.Time) time.Duration {
	d := next.Sub(now)
	if d <= 0 {
		return MinDelay
	}
	return d
}

// Countdown formats the whole seconds left until next as "{n}s", clamped at
// "0s". It returns "" when next is unknown.
func Countdown(now, next time.Time) string {
	if next.IsZero() {
		return ""
	}
	secs := int(next.Sub(now) / time.Second)
	if secs <= 0 {
		return "0s"
	}
	return fmt.Sprintf("%ds", secs)
}
