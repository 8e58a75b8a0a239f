// Package aggregate groups evidence records into Buckets keyed by
// classification. Buckets are transient and live for one analysis pass.
package aggregate

import (
	"cmp"
	"slices"
	"time"

	"github.com/fyrsmithlabs/patternd/internal/classify"
	"github.com/fyrsmithlabs/patternd/internal/evidence"
	"github.com/fyrsmithlabs/patternd/internal/patterns"
)

// maxDetailLen bounds the error text kept per sample.
const maxDetailLen = 512

// Redactor scrubs credentials from text before it is kept.
type Redactor interface {
	Redact(text string) string
}

// Bucket collects the samples that share one classification key.
type Bucket struct {
	Key     classify.Key
	Samples []patterns.Evidence
	First   time.Time
	Last    time.Time
	Agents  map[string]struct{}
}

// Len returns the number of samples.
func (b *Bucket) Len() int { return len(b.Samples) }

// Eligible reports whether the bucket has enough samples to create a
// pattern.
func (b *Bucket) Eligible(minOccurrences int) bool {
	return len(b.Samples) >= minOccurrences
}

// AgentList returns the distinct agents in sorted order.
func (b *Bucket) AgentList() []string {
	out := make([]string, 0, len(b.Agents))
	for a := range b.Agents {
		out = append(out, a)
	}
	slices.Sort(out)
	return out
}

func (b *Bucket) add(s patterns.Evidence, agents ...string) {
	b.Samples = append(b.Samples, s)
	for _, a := range agents {
		if a != "" {
			b.Agents[a] = struct{}{}
		}
	}
}

// Grouper turns records into buckets.
type Grouper struct {
	classifier *classify.Classifier
	redactor   Redactor
}

// Option configures a Grouper.
type Option func(*Grouper)

// WithRedactor scrubs solution and error text in samples.
func WithRedactor(r Redactor) Option {
	return func(g *Grouper) { g.redactor = r }
}

// New creates a Grouper.
func New(c *classify.Classifier, opts ...Option) *Grouper {
	g := &Grouper{classifier: c}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Group buckets records by classification key. Samples within a bucket are
// ordered by timestamp (stable for ties) and de-duplicated by record key.
// Buckets are returned in a deterministic order.
func (g *Grouper) Group(records []evidence.Record) []*Bucket {
	sorted := slices.Clone(records)
	slices.SortStableFunc(sorted, func(a, b evidence.Record) int {
		return a.Timestamp.Compare(b.Timestamp)
	})

	buckets := make(map[classify.Key]*Bucket)
	seen := make(map[classify.Key]map[string]struct{})

	get := func(k classify.Key, recKey string) *Bucket {
		if _, dup := seen[k][recKey]; dup {
			return nil
		}
		if seen[k] == nil {
			seen[k] = make(map[string]struct{})
		}
		seen[k][recKey] = struct{}{}

		b, ok := buckets[k]
		if !ok {
			b = &Bucket{Key: k, Agents: make(map[string]struct{})}
			buckets[k] = b
		}
		return b
	}

	for _, rec := range sorted {
		switch rec.Kind {
		case evidence.KindSolution:
			k := g.classifier.ErrorKey(rec.Error)
			if b := get(k, rec.Key); b != nil {
				b.add(g.solutionSample(rec), rec.AgentID)
			}
		case evidence.KindMetric:
			if rec.Metric == nil {
				continue
			}
			for _, k := range classify.MetricKeys(rec.Metric) {
				if b := get(k, rec.Key); b != nil {
					b.add(metricSample(k, rec), agentIDs(rec.Metric)...)
				}
			}
		}
	}

	out := make([]*Bucket, 0, len(buckets))
	for _, b := range buckets {
		b.First = b.Samples[0].ObservedAt
		b.Last = b.Samples[len(b.Samples)-1].ObservedAt
		out = append(out, b)
	}
	slices.SortFunc(out, func(a, b *Bucket) int {
		return cmp.Or(
			cmp.Compare(typeRank(a.Key.Type), typeRank(b.Key.Type)),
			cmp.Compare(a.Key.Subtype, b.Key.Subtype),
			cmp.Compare(a.Key.Trigger, b.Key.Trigger),
		)
	})
	return out
}

func (g *Grouper) redact(s string) string {
	if g.redactor == nil || s == "" {
		return s
	}
	return g.redactor.Redact(s)
}

func (g *Grouper) solutionSample(rec evidence.Record) patterns.Evidence {
	detail := rec.Error
	if len(detail) > maxDetailLen {
		detail = detail[:maxDetailLen]
	}
	var labels []string
	if rec.TaskType != "" {
		labels = []string{rec.TaskType}
	}
	return patterns.Evidence{
		Key:        rec.Key,
		ObservedAt: rec.Timestamp,
		Outcome:    g.redact(rec.Solution),
		Detail:     g.redact(detail),
		Success:    rec.Succeeded(),
		Agent:      rec.AgentID,
		Labels:     labels,
	}
}

func metricSample(k classify.Key, rec evidence.Record) patterns.Evidence {
	m := rec.Metric
	s := patterns.Evidence{
		Key:        rec.Key,
		ObservedAt: rec.Timestamp,
		Success:    m.Succeeded(),
		Count:      m.Tasks.Total,
	}
	switch k.Type {
	case patterns.TypePerformanceOptimization:
		s.Value = classify.Improvement(m)
		s.Labels = slices.Clone(m.Optimizations)
	case patterns.TypeTaskDistribution:
		s.Outcome = m.Strategy
		s.Value = classify.Efficiency(m)
		s.Shares = classify.Shares(m)
		s.Labels = slices.Clone(m.TaskTypes)
		if len(s.Labels) == 0 && m.TaskType != "" {
			s.Labels = []string{m.TaskType}
		}
	}
	return s
}

func agentIDs(m *evidence.MetricSnapshot) []string {
	ids := make([]string, 0, len(m.Agents))
	for _, a := range m.Agents {
		ids = append(ids, a.ID)
	}
	return ids
}

func typeRank(t patterns.Type) int {
	return slices.Index(patterns.Types, t)
}
