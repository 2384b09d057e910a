// Package diag provides diagnostics for the follower: upstream connectivity,
// a recent-logs buffer and static service information.
package diag

import (
	"sort"
	"sync"
	"time"
)

// Window is how long calls are kept for statistics.
const Window = time.Hour

// Call is a single request to an upstream endpoint.
type Call struct {
	Timestamp time.Time
	Success   bool
	Latency   time.Duration
	Error     string
}

type endpoint struct {
	name  string
	url   string
	calls []Call
}

// ConnectivityTracker records upstream calls per endpoint.
type ConnectivityTracker struct {
	mu        sync.Mutex
	endpoints map[string]*endpoint
	now       func() time.Time
}

// NewConnectivityTracker creates an empty tracker.
func NewConnectivityTracker() *ConnectivityTracker {
	return &ConnectivityTracker{
		endpoints: make(map[string]*endpoint),
		now:       time.Now,
	}
}

// TrackSuccess records a successful call.
func (t *ConnectivityTracker) TrackSuccess(name, url string, latency time.Duration) {
	t.track(name, url, Call{Success: true, Latency: latency})
}

// TrackFailure records a failed call.
func (t *ConnectivityTracker) TrackFailure(name, url string, latency time.Duration, errorMsg string) {
	t.track(name, url, Call{Success: false, Latency: latency, Error: errorMsg})
}

func (t *ConnectivityTracker) track(name, url string, call Call) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	ep, ok := t.endpoints[name]
	if !ok {
		ep = &endpoint{name: name}
		t.endpoints[name] = ep
	}
	ep.url = url

	now := t.now().UTC()
	call.Timestamp = now
	ep.calls = append(ep.calls, call)
	ep.calls = pruneBefore(ep.calls, now.Add(-Window))
}

func pruneBefore(calls []Call, cutoff time.Time) []Call {
	for i, c := range calls {
		if c.Timestamp.After(cutoff) {
			return calls[i:]
		}
	}
	return calls[:0]
}

// Latency holds latency percentiles in milliseconds.
type Latency struct {
	P50 int64 `json:"p50"`
	P95 int64 `json:"p95"`
	P99 int64 `json:"p99"`
}

// EndpointReport summarizes one endpoint over the last Window.
type EndpointReport struct {
	Name         string    `json:"name"`
	URL          string    `json:"url"`
	Status       string    `json:"status"` // healthy, degraded, unhealthy
	LastCall     time.Time `json:"last_call"`
	LastSuccess  time.Time `json:"last_success,omitzero"`
	TotalCalls   int       `json:"total_calls_1h"`
	SuccessRate  float64   `json:"success_rate_1h"`
	LatencyMs    Latency   `json:"latency_ms"`
	RecentErrors []string  `json:"recent_errors"`
}

// Report returns one entry per endpoint with calls in the window, sorted by
// name.
func (t *ConnectivityTracker) Report() []EndpointReport {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.now().UTC().Add(-Window)
	reports := make([]EndpointReport, 0, len(t.endpoints))
	for _, ep := range t.endpoints {
		ep.calls = pruneBefore(ep.calls, cutoff)
		if len(ep.calls) == 0 {
			continue
		}

		r := EndpointReport{Name: ep.name, URL: ep.url, RecentErrors: []string{}}
		latencies := make([]int64, 0, len(ep.calls))
		successes := 0
		for i := len(ep.calls) - 1; i >= 0; i-- {
			call := ep.calls[i]
			if call.Success {
				successes++
				if r.LastSuccess.IsZero() {
					r.LastSuccess = call.Timestamp
				}
			} else if len(r.RecentErrors) < 5 {
				r.RecentErrors = append(r.RecentErrors, call.Error)
			}
			latencies = append(latencies, call.Latency.Milliseconds())
		}
		r.LastCall = ep.calls[len(ep.calls)-1].Timestamp
		r.TotalCalls = len(ep.calls)
		r.SuccessRate = float64(successes) / float64(r.TotalCalls)

		sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
		r.LatencyMs = Latency{
			P50: percentile(latencies, 0.50),
			P95: percentile(latencies, 0.95),
			P99: percentile(latencies, 0.99),
		}

		switch {
		case r.SuccessRate < 0.9:
			r.Status = "unhealthy"
		case r.SuccessRate < 0.95:
			r.Status = "degraded"
		default:
			r.Status = "healthy"
		}
		reports = append(reports, r)
	}

	sort.Slice(reports, func(i, j int) bool { return reports[i].Name < reports[j].Name })
	return reports
}

func percentile(sorted []int64, p float64) int64 {
	if len(sorted) == 0 {
		return 0
	}
	return sorted[int(float64(len(sorted)-1)*p)]
}
