package grace

import (
	"testing"
	"time"
)

var activation = time.Date(2025, 1, 5, 10, 0, 0, 0, time.UTC)

func TestObserveRecentActivationEntersWarmingUp(t *testing.T) {
	var m Machine
	if m.State() != Ready {
		t.Fatalf("initial state = %s, want Ready", m.State())
	}
	if !m.Observe(activation, activation.Add(10*time.Minute)) {
		t.Fatal("expected transition to WarmingUp")
	}
	if !m.InGracePeriod() {
		t.Fatal("expected grace period")
	}
	if got := m.Remaining(activation.Add(10 * time.Minute)); got != 50*time.Minute {
		t.Fatalf("remaining = %s, want 50m", got)
	}
}

func TestObserveOldActivationStaysReady(t *testing.T) {
	var m Machine
	if m.Observe(activation, activation.Add(3650*time.Second)) {
		t.Fatal("activation older than the window must not enter WarmingUp")
	}
	if m.InGracePeriod() {
		t.Fatal("expected Ready")
	}
	if _, expired := m.Tick(activation.Add(3651 * time.Second)); expired {
		t.Fatal("Tick in Ready must not report expiry")
	}
}

func TestObserveWhileWarmingUpOnlyRefreshesActivation(t *testing.T) {
	var m Machine
	m.Observe(activation, activation.Add(time.Minute))
	later := activation.Add(5 * time.Minute)
	if m.Observe(later, activation.Add(2*time.Minute)) {
		t.Fatal("second Observe must not report a transition")
	}
	if !m.EndsAt().Equal(later.Add(Duration)) {
		t.Fatalf("EndsAt = %s, want %s", m.EndsAt(), later.Add(Duration))
	}
}

func TestObserveNeverClears(t *testing.T) {
	var m Machine
	m.Observe(activation, activation.Add(time.Minute))
	// a stale activation while warming up leaves the state to Tick
	m.Observe(activation.Add(-2*time.Hour), activation.Add(2*time.Minute))
	if !m.InGracePeriod() {
		t.Fatal("Observe must not clear the grace period")
	}
	if _, expired := m.Tick(activation.Add(2 * time.Minute)); !expired {
		t.Fatal("Tick should expire the stale window")
	}
}

func TestTickExpiresExactlyOnce(t *testing.T) {
	var m Machine
	m.Observe(activation, activation.Add(59*time.Minute))

	remaining, expired := m.Tick(activation.Add(Duration - time.Second))
	if expired || remaining != time.Second {
		t.Fatalf("got remaining=%s expired=%v, want 1s false", remaining, expired)
	}

	if _, expired = m.Tick(activation.Add(Duration)); !expired {
		t.Fatal("expected expiry at the exact end instant")
	}
	if m.InGracePeriod() {
		t.Fatal("expected Ready after expiry")
	}
	for i := 1; i <= 3; i++ {
		if _, again := m.Tick(activation.Add(Duration + time.Duration(i)*time.Second)); again {
			t.Fatalf("tick %d re-reported expiry", i)
		}
	}
}

func TestFormatRemaining(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want string
	}{
		{0, "0m 0s"},
		{-time.Second, "0m 0s"},
		{59 * time.Second, "0m 59s"},
		{61 * time.Second, "1m 1s"},
		{59*time.Minute + 59*time.Second, "59m 59s"},
		{10*time.Minute + 500*time.Millisecond, "10m 0s"},
	}
	for _, tc := range cases {
		if got := FormatRemaining(tc.d); got != tc.want {
			t.Errorf("FormatRemaining(%s) = %q, want %q", tc.d, got, tc.want)
		}
	}
}

func TestExpiryText(t *testing.T) {
	if got := ExpiryText(nil, activation); got != "Sensor info not found (maybe not activated)" {
		t.Fatalf("unexpected text without activation: %q", got)
	}
	now := activation.Add(3*24*time.Hour + 5*time.Hour)
	want := "Sensor Expiry: 10 days, 20 hours"
	if got := ExpiryText(&activation, now); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
	if got := ExpiryText(&activation, activation.Add(Lifespan)); got != "Sensor expired, please activate a new one." {
		t.Fatalf("unexpected text at end of life: %q", got)
	}
}
