package librefollow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/st-keller/librefollow/diag"
	"github.com/st-keller/librefollow/display"
	"github.com/st-keller/librefollow/grace"
	"github.com/st-keller/librefollow/metrics"
	"github.com/st-keller/librefollow/types"
	"github.com/st-keller/librefollow/update"
	"github.com/st-keller/librefollow/upstream"
)

// Fetch cycle triggers.
const (
	TriggerStart        = "start"
	TriggerSchedule     = "schedule"
	TriggerGraceExpired = "grace_expired"
)

// Config holds the process-wide dependencies. Every field is optional.
type Config struct {
	HTTPClient   *http.Client
	Clock        clockwork.Clock
	Logger       *slog.Logger
	Formatter    display.Formatter
	Metrics      *metrics.Metrics
	Connectivity *diag.ConnectivityTracker
}

// Session holds the per-session inputs. They are fixed until the next Start.
type Session struct {
	ServerURL string
	UseMmol   bool
}

// Validate checks that the server URL is an absolute http(s) URL.
func (s Session) Validate() error {
	if s.ServerURL == "" {
		return fmt.Errorf("ServerURL required")
	}
	u, err := url.Parse(s.ServerURL)
	if err != nil {
		return fmt.Errorf("ServerURL invalid: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("ServerURL must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("ServerURL has no host")
	}
	return nil
}

// Unit returns the measurement unit selected by UseMmol.
func (s Session) Unit() types.Unit {
	if s.UseMmol {
		return types.MmolPerL
	}
	return types.MgPerDl
}

// Client polls the upstream server and publishes DisplayState snapshots.
type Client struct {
	config    Config
	clock     clockwork.Clock
	logger    *slog.Logger
	formatter display.Formatter
	metrics   *metrics.Metrics

	// Lifecycle
	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	// View state
	state   atomic.Pointer[types.DisplayState]
	subMu   sync.Mutex
	subs    map[int]chan types.DisplayState
	nextSub int
}

// New creates a stopped client.
func New(config Config) (*Client, error) {
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	if config.Clock == nil {
		config.Clock = clockwork.NewRealClock()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Formatter.TimeLayout == "" {
		config.Formatter.TimeLayout = display.DefaultTimeLayout
	}
	if config.Formatter.Location == nil {
		config.Formatter.Location = time.Local
	}

	c := &Client{
		config:    config,
		clock:     config.Clock,
		logger:    config.Logger,
		formatter: config.Formatter,
		metrics:   config.Metrics,
		subs:      make(map[int]chan types.DisplayState),
	}
	c.state.Store(&types.DisplayState{})
	return c, nil
}

// Start begins a session: it fetches immediately, arms the minute timer and
// the countdown ticker, then runs the event loop until Stop.
func (c *Client) Start(session Session) error {
	if err := session.Validate(); err != nil {
		return fmt.Errorf("invalid session: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return fmt.Errorf("client already running")
	}

	ctx, cancel := context.WithCancel(context.Background())
	fetcher := upstream.New(session.ServerURL, session.Unit(), c.config.HTTPClient, c.config.Connectivity)
	r := &run{
		client:    c,
		ctx:       ctx,
		sessionID: uuid.NewString(),
		upstream:  fetcher,
		unit:      fetcher.Unit(),
		results:   make(chan result, 8),
		applied:   make(map[string]uint64),
	}

	c.running = true
	c.cancel = cancel
	c.done = make(chan struct{})

	r.fetchCycle(TriggerStart)
	r.arm()
	r.ticker = c.clock.NewTicker(update.TickInterval)

	// A fresh session starts from an empty state.
	r.render(c.clock.Now())

	c.logger.Info("follower_started",
		"session_id", r.sessionID,
		"server_url", session.ServerURL,
		"unit", r.unit.String(),
		"next_fetch_at", r.next)

	go r.loop(c.done)
	return nil
}

// Stop cancels both timers and waits for the event loop to exit. Responses
// that arrive afterwards are dropped. Stop on a stopped client is a no-op.
func (c *Client) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return
	}

	c.running = false
	c.cancel()
	<-c.done

	c.logger.Info("follower_stopped", "session_id", c.Snapshot().SessionID)
}

// Running reports whether a session is active.
func (c *Client) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Snapshot returns the latest published state.
func (c *Client) Snapshot() types.DisplayState {
	return *c.state.Load()
}

// Subscribe returns a channel that always holds the most recent state not
// yet received. Intermediate states are dropped for slow readers. cancel
// unsubscribes and closes the channel.
func (c *Client) Subscribe() (<-chan types.DisplayState, func()) {
	ch := make(chan types.DisplayState, 1)

	c.subMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	ch <- c.Snapshot()
	c.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.subMu.Lock()
			delete(c.subs, id)
			close(ch)
			c.subMu.Unlock()
		})
	}
}

// publish stores s and notifies subscribers.
func (c *Client) publish(s types.DisplayState) {
	c.state.Store(&s)

	c.subMu.Lock()
	defer c.subMu.Unlock()
	for _, ch := range c.subs {
		select {
		case <-ch:
		default:
		}
		ch <- s
	}
}

// ============================================================================
// EVENT LOOP
// ============================================================================

// run is the state of one session. Only the loop goroutine touches it after
// Start returns.
type run struct {
	client    *Client
	ctx       context.Context
	sessionID string
	upstream  *upstream.Client
	unit      types.Unit

	results chan result
	seq     uint64
	applied map[string]uint64 // endpoint -> newest applied cycle

	next   time.Time
	timer  clockwork.Timer
	ticker clockwork.Ticker

	patient     *types.PatientInfo
	sensor      *types.SensorInfo
	measurement *types.Measurement
	grace       grace.Machine
}

func (r *run) loop(done chan<- struct{}) {
	defer close(done)
	defer r.ticker.Stop()
	defer func() { r.timer.Stop() }()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-r.timer.Chan():
			r.onSchedulerFire()
		case <-r.ticker.Chan():
			r.onTick()
		case res := <-r.results:
			r.apply(res)
		}
	}
}

// ============================================================================
// SCHEDULER SYSTEM
// ============================================================================

// arm derives the next minute boundary from the wall clock and starts a
// one-shot timer for it.
func (r *run) arm() {
	now := r.client.clock.Now()
	r.next = update.NextFetch(now)
	r.timer = r.client.clock.NewTimer(update.Delay(now, r.next))
}

// onSchedulerFire runs a fetch cycle and re-arms.
func (r *run) onSchedulerFire() {
	if r.ctx.Err() != nil {
		return
	}
	r.fetchCycle(TriggerSchedule)
	r.arm()
	r.render(r.client.clock.Now())
}

// ============================================================================
// TICKER SYSTEM
// ============================================================================

// onTick re-evaluates the grace period and refreshes both countdowns. The
// tick is the only place that ends a grace period.
func (r *run) onTick() {
	if r.ctx.Err() != nil {
		return
	}
	now := r.client.clock.Now()

	if _, expired := r.grace.Tick(now); expired {
		r.client.metrics.SetGracePeriod(false)
		r.client.logger.Info("grace_period_ended",
			"session_id", r.sessionID,
			"activation", r.grace.EndsAt().Add(-grace.Duration))
		r.fetchCycle(TriggerGraceExpired)
	}
	r.render(now)
}

// ============================================================================
// FETCH SYSTEM
// ============================================================================

// result is one completed request.
type result struct {
	endpoint string
	seq      uint64
	duration time.Duration
	err      error

	patient     types.PatientInfo
	sensor      types.SensorInfo
	measurement types.Measurement
}

// fetchCycle issues the three requests of a new cycle without waiting.
func (r *run) fetchCycle(trigger string) {
	r.seq++
	seq := r.seq
	r.client.metrics.CycleStarted(trigger)
	r.client.logger.Debug("fetch_cycle_started", "session_id", r.sessionID, "trigger", trigger, "seq", seq)

	go r.fetch(upstream.EndpointPatient, seq, func(ctx context.Context, res *result) (err error) {
		res.patient, err = r.upstream.PatientInfo(ctx)
		return err
	})
	go r.fetch(upstream.EndpointSensor, seq, func(ctx context.Context, res *result) (err error) {
		res.sensor, err = r.upstream.SensorInfo(ctx)
		return err
	})
	go r.fetch(upstream.EndpointMeasurement, seq, func(ctx context.Context, res *result) (err error) {
		res.measurement, err = r.upstream.Measurement(ctx)
		return err
	})
}

// fetch runs one request and posts its result to the loop.
func (r *run) fetch(endpoint string, seq uint64, do func(context.Context, *result) error) {
	res := result{endpoint: endpoint, seq: seq}
	start := r.client.clock.Now()
	res.err = do(r.ctx, &res)
	res.duration = r.client.clock.Since(start)

	select {
	case r.results <- res:
	case <-r.ctx.Done():
	}
}

// apply merges one result into the session state. Failed requests leave the
// state untouched; a result older than one already applied for the same
// endpoint is discarded.
func (r *run) apply(res result) {
	if r.ctx.Err() != nil {
		return
	}
	logger := r.client.logger.With("session_id", r.sessionID, "endpoint", res.endpoint, "seq", res.seq)

	if res.err != nil && !errors.Is(res.err, upstream.ErrTimestamp) {
		r.client.metrics.ObserveFetch(res.endpoint, errorResult(res.err), res.duration)
		logger.Warn("fetch_failed", "error", res.err)
		return
	}
	if res.seq < r.applied[res.endpoint] {
		r.client.metrics.ObserveFetch(res.endpoint, "dropped", res.duration)
		r.client.metrics.StaleDiscarded(res.endpoint)
		logger.Debug("stale_response_discarded", "newest_seq", r.applied[res.endpoint])
		return
	}
	r.applied[res.endpoint] = res.seq

	now := r.client.clock.Now()
	switch res.endpoint {
	case upstream.EndpointPatient:
		p := res.patient
		r.patient = &p
	case upstream.EndpointSensor:
		s := res.sensor
		r.sensor = &s
		if r.grace.Observe(s.Activation, now) {
			r.client.metrics.SetGracePeriod(true)
			logger.Info("grace_period_started",
				"activation", s.Activation,
				"ends_at", r.grace.EndsAt())
		}
	case upstream.EndpointMeasurement:
		m := res.measurement
		r.measurement = &m
		r.client.metrics.SetGlucose(m.Unit.String(), m.Value, m.Timestamp)
		if res.err != nil {
			logger.Warn("timestamp_unparseable", "raw", m.RawTimestamp)
		}
	}

	outcome := "ok"
	if res.err != nil {
		outcome = "partial"
	}
	r.client.metrics.ObserveFetch(res.endpoint, outcome, res.duration)
	r.render(now)
}

func errorResult(err error) string {
	switch {
	case errors.Is(err, upstream.ErrMalformed):
		return "malformed"
	case errors.Is(err, context.Canceled):
		return "dropped"
	default:
		return "network"
	}
}

// ============================================================================
// VIEW STATE
// ============================================================================

// render publishes the DisplayState derived from the session state at now.
func (r *run) render(now time.Time) {
	s := types.DisplayState{
		SessionID:   r.sessionID,
		Unit:        r.unit.String(),
		Color:       types.ColorUnknown,
		ReadingTime: display.Pending,
		UpdatedAt:   now,
	}

	if r.patient != nil {
		s.Patient = r.patient.DisplayName()
	}

	if m := r.measurement; m != nil {
		s.HasMeasurement = true
		s.Value = r.client.formatter.Value(m.Value, m.Unit)
		s.TrendArrow = m.TrendArrow
		s.Color = m.Color
		s.ReadingTime = r.client.formatter.ReadingTime(*m, r.grace.InGracePeriod())
		if m.TimestampValid {
			at := m.Timestamp
			s.MeasuredAt = &at
		}
	}

	if !r.next.IsZero() {
		next := r.next
		s.NextFetchAt = &next
		s.NextUpdateCountdown = update.Countdown(now, next)
	}

	var activation *time.Time
	if r.sensor != nil {
		a := r.sensor.Activation
		activation = &a
		s.SensorLabel = r.sensor.Label
		s.SensorActivation = activation
	}
	s.SensorExpiry = grace.ExpiryText(activation, now)
	if r.grace.InGracePeriod() {
		s.InGracePeriod = true
		s.SensorReadyCountdown = grace.FormatRemaining(r.grace.Remaining(now))
	}

	r.client.publish(s)
}
