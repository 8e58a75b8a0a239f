// Package monitor drives analysis passes continuously.
//
// A Monitor owns a single worker goroutine that is the only caller of its
// Runner. The filesystem watcher and the periodic timer never run passes
// themselves; they post requests into a one-slot pending queue that the
// worker drains. A request that arrives while another is pending is folded
// into it, and a full request supersedes a pending increment, so bursts of
// change notifications cost at most one extra pass.
//
//	IDLE -> WATCHING -> PROCESSING_INCREMENT -> WATCHING   (change)
//	        WATCHING -> PROCESSING_FULL      -> WATCHING   (timer)
//	        any      -> STOPPED                            (Stop)
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/patternd/internal/config"
	"github.com/fyrsmithlabs/patternd/internal/logging"
)

var (
	// ErrStopped is returned for requests made after Stop.
	ErrStopped = errors.New("monitor stopped")

	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("monitor already started")
)

// State is the monitor's lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateWatching
	StateProcessingIncrement
	StateProcessingFull
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateWatching:
		return "WATCHING"
	case StateProcessingIncrement:
		return "PROCESSING_INCREMENT"
	case StateProcessingFull:
		return "PROCESSING_FULL"
	case StateStopped:
		return "STOPPED"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Kind is the kind of pass requested.
type Kind int

const (
	KindIncrement Kind = iota
	KindFull
)

func (k Kind) String() string {
	if k == KindFull {
		return "full"
	}
	return "increment"
}

// Outcome is what a pass reports back to the monitor.
type Outcome struct {
	Patterns int
	Created  int
}

// Runner executes one pass. The monitor never calls it concurrently.
type Runner interface {
	RunPass(ctx context.Context, kind Kind) (Outcome, error)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, kind Kind) (Outcome, error)

// RunPass implements Runner.
func (f RunnerFunc) RunPass(ctx context.Context, kind Kind) (Outcome, error) { return f(ctx, kind) }

// EscalationFunc is called when consecutive failures reach the cap, and
// again at every further multiple of it.
type EscalationFunc func(ctx context.Context, failures int, lastErr error)

// Config controls scheduling.
type Config struct {
	// Interval between full passes.
	Interval time.Duration
	// MaxPassDuration bounds a single pass. Zero means no bound.
	MaxPassDuration time.Duration
	// MaxConsecutiveFailures is the failure streak that triggers escalation.
	MaxConsecutiveFailures int
	// MinIncrementInterval throttles incremental passes. Zero disables.
	MinIncrementInterval time.Duration
	// WatchPaths are the source files whose changes request an increment.
	WatchPaths []string
	// InitialPass requests a full pass as soon as the monitor starts.
	InitialPass bool
}

// ConfigFromSettings builds a Config from the monitor and source settings.
func ConfigFromSettings(m config.MonitorConfig, s config.SourcesConfig) Config {
	return Config{
		Interval:               m.Interval.Duration(),
		MaxPassDuration:        m.MaxPassDuration.Duration(),
		MaxConsecutiveFailures: m.MaxConsecutiveFailures,
		MinIncrementInterval:   m.MinIncrementInterval.Duration(),
		WatchPaths:             []string{s.SolutionsPath, s.MetricsPath},
		InitialPass:            true,
	}
}

// Monitor is the continuous pass scheduler.
type Monitor struct {
	cfg      Config
	runner   Runner
	logger   *logging.Logger
	metrics  *Metrics
	limiter  *rate.Limiter
	escalate EscalationFunc

	state    atomic.Int32
	failures atomic.Int64
	passes   atomic.Int64

	mu         sync.Mutex
	started    bool
	stopped    bool
	hasPending bool
	pending    Kind

	wake    chan struct{}
	stopCh  chan struct{}
	baseCtx context.Context
	cancel  context.CancelFunc
	watcher *sourceWatcher
	wg      sync.WaitGroup
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(m *Monitor) { m.logger = l }
}

// WithMetrics sets the Prometheus instruments.
func WithMetrics(metrics *Metrics) Option {
	return func(m *Monitor) { m.metrics = metrics }
}

// WithEscalation replaces the default escalation, which only logs.
func WithEscalation(f EscalationFunc) Option {
	return func(m *Monitor) { m.escalate = f }
}

// New creates a Monitor in the IDLE state.
func New(cfg Config, runner Runner, opts ...Option) (*Monitor, error) {
	if runner == nil {
		return nil, errors.New("monitor: runner is required")
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("monitor: interval must be positive, got %s", cfg.Interval)
	}
	if cfg.MaxConsecutiveFailures < 1 {
		cfg.MaxConsecutiveFailures = 1
	}

	m := &Monitor{
		cfg:    cfg,
		runner: runner,
		logger: logging.NewNop(),
		wake:   make(chan struct{}, 1),
		stopCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.metrics == nil {
		m.metrics = NewMetrics(nil)
	}
	if m.escalate == nil {
		m.escalate = m.logEscalation
	}

	limit := rate.Inf
	if cfg.MinIncrementInterval > 0 {
		limit = rate.Every(cfg.MinIncrementInterval)
	}
	m.limiter = rate.NewLimiter(limit, 1)

	m.setState(StateIdle)
	return m, nil
}

// Metrics returns the monitor's Prometheus instruments.
func (m *Monitor) Metrics() *Metrics { return m.metrics }

// State returns the current state.
func (m *Monitor) State() State { return State(m.state.Load()) }

// ConsecutiveFailures returns the current failure streak.
func (m *Monitor) ConsecutiveFailures() int { return int(m.failures.Load()) }

// Passes returns how many passes have run.
func (m *Monitor) Passes() int { return int(m.passes.Load()) }

func (m *Monitor) setState(s State) {
	m.state.Store(int32(s))
	m.metrics.State.Set(float64(s))
}

// Start begins watching, ticking and processing. ctx carries request
// scoped values for passes; cancelling it does not interrupt a pass in
// flight. Use Stop to shut down.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return ErrStopped
	}
	if m.started {
		return ErrAlreadyStarted
	}
	m.started = true
	m.baseCtx, m.cancel = context.WithCancel(context.WithoutCancel(ctx))

	sw, err := newSourceWatcher(m.cfg.WatchPaths)
	if err != nil {
		// Without change notifications the timer still drives full passes.
		m.logger.Warn(ctx, "file watching unavailable; relying on the timer", zap.Error(err))
	} else {
		m.watcher = sw
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			sw.run(m.onChange, m.onWatchError)
		}()
	}

	m.setState(StateWatching)
	m.wg.Add(2)
	go m.tick()
	go m.work()

	if m.cfg.InitialPass {
		m.postLocked(KindFull)
	}

	m.logger.Info(ctx, "monitor started",
		zap.Duration("interval", m.cfg.Interval),
		zap.Strings("watch", m.cfg.WatchPaths))
	return nil
}

// Notify requests a pass. If a request is already pending the two are
// coalesced and the stronger kind wins.
func (m *Monitor) Notify(kind Kind) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return ErrStopped
	}
	m.postLocked(kind)
	return nil
}

func (m *Monitor) postLocked(kind Kind) {
	if m.hasPending {
		m.metrics.Coalesced.Inc()
		if kind == KindFull {
			m.pending = KindFull
		}
	} else {
		m.hasPending = true
		m.pending = kind
	}
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *Monitor) take() (Kind, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.hasPending {
		return 0, false
	}
	m.hasPending = false
	return m.pending, true
}

func (m *Monitor) onChange(path string) {
	m.logger.Trace(m.baseCtx, "source changed", zap.String("path", path))
	_ = m.Notify(KindIncrement)
}

func (m *Monitor) onWatchError(err error) {
	m.logger.Warn(m.baseCtx, "file watcher error", zap.Error(err))
}

func (m *Monitor) tick() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			_ = m.Notify(KindFull)
		}
	}
}

// work is the single mutation owner. It runs one pass at a time until
// Stop.
func (m *Monitor) work() {
	defer m.wg.Done()
	for {
		select {
		case <-m.stopCh:
			return
		case <-m.wake:
		}

		kind, ok := m.take()
		if !ok {
			continue
		}
		if kind == KindIncrement {
			if err := m.limiter.Wait(m.baseCtx); err != nil {
				return
			}
		}
		select {
		case <-m.stopCh:
			return
		default:
		}
		m.runPass(kind)
	}
}

func (m *Monitor) runPass(kind Kind) {
	if kind == KindFull {
		m.setState(StateProcessingFull)
	} else {
		m.setState(StateProcessingIncrement)
	}
	defer m.setState(StateWatching)

	// Stop must not interrupt a pass; only the duration guard may.
	ctx := context.WithoutCancel(m.baseCtx)
	if m.cfg.MaxPassDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.MaxPassDuration)
		defer cancel()
	}

	start := time.Now()
	out, err := m.safeRun(ctx, kind)
	elapsed := time.Since(start)
	m.passes.Add(1)

	result := "ok"
	if err != nil {
		result = "error"
	}
	m.metrics.Passes.WithLabelValues(kind.String(), result).Inc()
	m.metrics.PassDuration.WithLabelValues(kind.String()).Observe(elapsed.Seconds())

	if err == nil {
		m.failures.Store(0)
		m.metrics.ConsecutiveFailures.Set(0)
		m.metrics.Patterns.Set(float64(out.Patterns))
		m.metrics.PatternsCreated.Add(float64(out.Created))
		return
	}

	n := m.failures.Add(1)
	m.metrics.ConsecutiveFailures.Set(float64(n))
	m.logger.Error(ctx, "pass failed",
		zap.String("kind", kind.String()),
		zap.Int64("consecutive_failures", n),
		zap.Error(err))
	if n%int64(m.cfg.MaxConsecutiveFailures) == 0 {
		m.escalate(ctx, int(n), err)
	}
}

// safeRun calls the runner and turns a panic into an error so one bad
// pass cannot take the process down.
func (m *Monitor) safeRun(ctx context.Context, kind Kind) (out Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error(ctx, "pass panicked, recovering",
				zap.Any("panic", r),
				zap.Stack("stack"))
			err = fmt.Errorf("pass panicked: %v", r)
		}
	}()
	return m.runner.RunPass(ctx, kind)
}

func (m *Monitor) logEscalation(ctx context.Context, failures int, lastErr error) {
	m.logger.Error(ctx, "ESCALATION: consecutive pass failures reached limit",
		zap.Int("failures", failures),
		zap.Int("limit", m.cfg.MaxConsecutiveFailures),
		zap.Error(lastErr))
}

// Stop stops accepting requests, lets an in-flight pass finish, and moves
// to STOPPED. Pending requests are dropped. If ctx ends first, Stop
// returns its error and the pass keeps running in the background.
func (m *Monitor) Stop(ctx context.Context) error {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return nil
	}
	m.stopped = true
	m.hasPending = false
	started := m.started
	if started {
		close(m.stopCh)
		m.cancel()
		if m.watcher != nil {
			_ = m.watcher.close()
		}
	}
	m.mu.Unlock()

	if !started {
		m.setState(StateStopped)
		return nil
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	m.setState(StateStopped)
	m.logger.Info(ctx, "monitor stopped", zap.Int("passes", m.Passes()))
	return nil
}
