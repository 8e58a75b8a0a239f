// Package engine owns the analysis pipeline: it reads evidence, groups and
// scores it, merges candidates into the pattern store and regenerates the
// report. It also serves the read-only queries (report, apply).
//
// An Engine is the only writer of its store within a process. Passes are
// serialised; queries read the last committed store state and may run
// alongside a pass.
package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/patternd/internal/aggregate"
	"github.com/fyrsmithlabs/patternd/internal/classify"
	"github.com/fyrsmithlabs/patternd/internal/evidence"
	"github.com/fyrsmithlabs/patternd/internal/insights"
	"github.com/fyrsmithlabs/patternd/internal/logging"
	"github.com/fyrsmithlabs/patternd/internal/matcher"
	"github.com/fyrsmithlabs/patternd/internal/patterns"
	"github.com/fyrsmithlabs/patternd/internal/recommend"
	"github.com/fyrsmithlabs/patternd/internal/report"
	"github.com/fyrsmithlabs/patternd/internal/scoring"
	"github.com/fyrsmithlabs/patternd/internal/telemetry"
)

// maxPending bounds the solution records carried between passes.
const maxPending = 10000

// Kind is the kind of analysis pass.
type Kind string

const (
	// KindFull re-reads both sources from the start.
	KindFull Kind = "full"
	// KindIncrement reads only solutions appended since the last pass.
	KindIncrement Kind = "increment"
)

// PassResult summarises one analysis pass.
type PassResult struct {
	ID         string        `json:"id"`
	Kind       Kind          `json:"kind"`
	StartedAt  time.Time     `json:"startedAt"`
	Duration   time.Duration `json:"duration"`
	Records    int           `json:"records"`
	Malformed  int           `json:"malformed"`
	Skipped    int           `json:"skipped"`
	Buckets    int           `json:"buckets"`
	Eligible   int           `json:"eligible"`
	Created    int           `json:"created"`
	Reinforced int           `json:"reinforced"`
	Unchanged  int           `json:"unchanged"`
	Patterns   int           `json:"patterns"`

	Report *report.Paths `json:"-"`
}

// Publisher receives a summary of every successful pass.
type Publisher interface {
	Publish(ctx context.Context, res *PassResult) error
}

// Config locates the sources and the report output.
type Config struct {
	SolutionsPath string
	MetricsPath   string
	// ReportDir receives insights.json and report.md after each pass.
	// Empty disables report writing.
	ReportDir string
	TopDetail int
	Insights  insights.Options
}

// Summary is the result of regenerating insights and recommendations.
type Summary struct {
	Insight         *insights.Insight
	Recommendations []recommend.Recommendation
	Report          *report.Paths
}

// Engine runs analysis passes against one store.
type Engine struct {
	cfg        Config
	store      *patterns.Store
	classifier *classify.Classifier
	scorer     *scoring.Scorer
	grouper    *aggregate.Grouper
	matcher    *matcher.Matcher

	logger    *logging.Logger
	tracer    trace.Tracer
	metrics   *Metrics
	publisher Publisher
	redactor  aggregate.Redactor
	now       func() time.Time

	passMu sync.Mutex
	// offset is the solutions log position consumed by the last committed
	// pass. Guarded by passMu.
	offset int64
	// pending holds solution records whose bucket was too small to create a
	// pattern. Increments regroup them with newly appended lines so a
	// pattern can form before the next full pass. Guarded by passMu.
	pending []evidence.Record
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithTelemetry takes the tracer and meter from t.
func WithTelemetry(t *telemetry.Telemetry) Option {
	return func(e *Engine) {
		e.tracer = t.Tracer(InstrumentationName)
		if m, err := NewMetrics(t.Meter(InstrumentationName)); err == nil {
			e.metrics = m
		}
	}
}

// WithPublisher publishes pass summaries.
func WithPublisher(p Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

// WithRedactor scrubs solution and error text before it becomes evidence.
func WithRedactor(r aggregate.Redactor) Option {
	return func(e *Engine) { e.redactor = r }
}

// WithClock overrides the time source used for insights.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an Engine over an open store. The store should use scorer as
// its rescorer so reinforcement and creation agree.
func New(cfg Config, store *patterns.Store, c *classify.Classifier, scorer *scoring.Scorer, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, errors.New("engine: store is required")
	}
	if c == nil {
		c = classify.New()
	}
	if scorer == nil {
		scorer = scoring.New(scoring.DefaultThresholds())
	}
	if cfg.Insights == (insights.Options{}) {
		cfg.Insights = insights.DefaultOptions()
	}

	e := &Engine{
		cfg:        cfg,
		store:      store,
		classifier: c,
		scorer:     scorer,
		matcher:    matcher.New(c),
		logger:     logging.NewNop(),
		tracer:     otel.Tracer(InstrumentationName),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.metrics == nil {
		m, err := NewMetrics(nil)
		if err != nil {
			return nil, fmt.Errorf("engine metrics: %w", err)
		}
		e.metrics = m
	}

	var gopts []aggregate.Option
	if e.redactor != nil {
		gopts = append(gopts, aggregate.WithRedactor(e.redactor))
	}
	e.grouper = aggregate.New(c, gopts...)
	return e, nil
}

// Store returns the underlying store.
func (e *Engine) Store() *patterns.Store { return e.store }

// Analyze runs a full pass.
func (e *Engine) Analyze(ctx context.Context) (*PassResult, error) {
	return e.run(ctx, KindFull)
}

// Increment runs an incremental pass over newly appended solutions and the
// current metrics collection.
func (e *Engine) Increment(ctx context.Context) (*PassResult, error) {
	return e.run(ctx, KindIncrement)
}

// Run runs a pass of the given kind.
func (e *Engine) Run(ctx context.Context, kind Kind) (*PassResult, error) {
	return e.run(ctx, kind)
}

func (e *Engine) run(ctx context.Context, kind Kind) (res *PassResult, err error) {
	e.passMu.Lock()
	defer e.passMu.Unlock()

	id := uuid.NewString()
	ctx = logging.WithPass(ctx, id, string(kind))
	ctx, span := e.tracer.Start(ctx, "engine."+spanSuffix(kind), trace.WithAttributes(
		attribute.String("pass.id", id),
		attribute.String("pass.kind", string(kind)),
	))
	start := time.Now()
	defer func() {
		elapsed := time.Since(start)
		if res != nil {
			res.Duration = elapsed
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		e.metrics.RecordPass(ctx, kind, res, elapsed, err)
		span.End()
	}()

	res = &PassResult{ID: id, Kind: kind, StartedAt: e.now()}
	e.logger.Debug(ctx, "pass started")

	records, next, stats, err := e.ingest(kind)
	if err != nil {
		return nil, err
	}
	res.Records, res.Malformed, res.Skipped = stats.Read, stats.Malformed, stats.Skipped
	if stats.Malformed > 0 {
		e.logger.Warn(ctx, "malformed evidence dropped", zap.Int("malformed", stats.Malformed))
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("pass aborted after ingest: %w", err)
	}

	buckets := e.grouper.Group(records)
	res.Buckets = len(buckets)
	candidates := make([]patterns.Candidate, 0, len(buckets))
	for _, b := range buckets {
		c := e.scorer.Score(b)
		if c.Eligible {
			res.Eligible++
		}
		candidates = append(candidates, c)
	}

	var skipped []*aggregate.Bucket
	err = e.store.Update(func(tx *patterns.Tx) error {
		skipped = skipped[:0]
		for i, c := range candidates {
			out, err := tx.Merge(c)
			if err != nil {
				return err
			}
			if out == patterns.Skipped {
				skipped = append(skipped, buckets[i])
			}
		}
		// Past the deadline nothing is committed.
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("pass aborted before commit: %w", err)
		}
		res.Created = tx.Stats.Created
		res.Reinforced = tx.Stats.Reinforced
		res.Unchanged = tx.Stats.Unchanged
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to merge candidates: %w", err)
	}
	e.offset = next
	e.pending = heldBack(records, skipped)
	res.Patterns = e.store.Len()

	span.SetAttributes(
		attribute.Int("pass.records", res.Records),
		attribute.Int("pass.created", res.Created),
		attribute.Int("pass.reinforced", res.Reinforced),
	)

	if e.cfg.ReportDir != "" {
		sum, err := e.summarize(ctx, true)
		if err != nil {
			return res, err
		}
		res.Report = sum.Report
	}

	e.logger.Info(ctx, "pass complete",
		zap.Int("records", res.Records),
		zap.Int("buckets", res.Buckets),
		zap.Int("created", res.Created),
		zap.Int("reinforced", res.Reinforced),
		zap.Int("patterns", res.Patterns),
	)

	if e.publisher != nil {
		if err := e.publisher.Publish(ctx, res); err != nil {
			e.logger.Warn(ctx, "failed to publish pass summary", zap.Error(err))
		}
	}
	return res, nil
}

// ingest reads the sources for a pass and returns the records and the
// solutions offset to resume from once the pass commits.
func (e *Engine) ingest(kind Kind) ([]evidence.Record, int64, evidence.ReadStats, error) {
	var (
		records []evidence.Record
		next    int64
		stats   evidence.ReadStats
		err     error
	)
	if kind == KindIncrement {
		records, next, stats, err = evidence.ReadSolutionsFrom(e.cfg.SolutionsPath, e.offset)
		records = append(slices.Clone(e.pending), records...)
	} else {
		records, next, stats, err = evidence.ReadSolutionsAt(e.cfg.SolutionsPath)
	}
	if err != nil {
		return nil, 0, stats, err
	}

	metrics, mstats, err := evidence.ReadMetrics(e.cfg.MetricsPath)
	if err != nil {
		return nil, 0, stats, err
	}
	stats.Add(mstats)
	return append(records, metrics...), next, stats, nil
}

// heldBack returns the solution records that fed skipped buckets, oldest
// first, keeping at most maxPending of the newest.
func heldBack(records []evidence.Record, skipped []*aggregate.Bucket) []evidence.Record {
	if len(skipped) == 0 {
		return nil
	}
	keys := make(map[string]struct{})
	for _, b := range skipped {
		for _, s := range b.Samples {
			keys[s.Key] = struct{}{}
		}
	}
	var out []evidence.Record
	for _, r := range records {
		if r.Kind != evidence.KindSolution {
			continue
		}
		if _, ok := keys[r.Key]; ok {
			out = append(out, r)
		}
	}
	if len(out) > maxPending {
		out = out[len(out)-maxPending:]
	}
	return out
}

// Report regenerates insights, recommendations and the report files from
// the current store without ingesting evidence.
func (e *Engine) Report(ctx context.Context) (*Summary, error) {
	ctx, span := e.tracer.Start(ctx, "engine.report")
	defer span.End()

	sum, err := e.summarize(ctx, e.cfg.ReportDir != "")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return sum, nil
}

// Insights computes the current insights and recommendations without
// writing anything.
func (e *Engine) Insights(ctx context.Context) (*Summary, error) {
	return e.summarize(ctx, false)
}

func (e *Engine) summarize(ctx context.Context, write bool) (*Summary, error) {
	ps := e.store.List()
	in := insights.Generate(ps, e.now(), e.cfg.Insights)
	sum := &Summary{Insight: in, Recommendations: recommend.Generate(in)}
	if !write {
		return sum, nil
	}

	paths, err := report.Write(e.cfg.ReportDir, report.Input{
		Patterns:        ps,
		Insight:         in,
		Recommendations: sum.Recommendations,
		TopDetail:       e.cfg.TopDetail,
	})
	if err != nil {
		return nil, err
	}
	sum.Report = &paths
	e.logger.Debug(ctx, "report written", zap.String("path", paths.Markdown))
	return sum, nil
}

// Apply matches a situation against the committed patterns.
func (e *Engine) Apply(ctx context.Context, sit matcher.Situation) []matcher.Suggestion {
	_, span := e.tracer.Start(ctx, "engine.apply")
	defer span.End()

	out := e.matcher.Match(e.store.List(), sit)
	span.SetAttributes(attribute.Int("apply.suggestions", len(out)))
	return out
}

// Patterns returns copies of the committed patterns accepted by pred. A
// nil pred returns all of them.
func (e *Engine) Patterns(pred func(*patterns.Pattern) bool) []*patterns.Pattern {
	return e.store.GetByTrigger(pred)
}

func spanSuffix(kind Kind) string {
	if kind == KindIncrement {
		return "increment"
	}
	return "analyze"
}
