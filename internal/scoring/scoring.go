// Package scoring turns buckets into candidate patterns and recomputes a
// pattern's derived fields from its evidence.
//
//	confidence = 0.7*consistency + 0.3*min(n/10, 1)
//
// Consistency for error and security buckets is the share of samples whose
// canonicalised solution equals the most common one. For metric buckets it
// is the share of samples whose value lies within ValueTolerance of the
// bucket mean.
package scoring

import (
	"math"
	"regexp"
	"slices"
	"strings"

	"github.com/fyrsmithlabs/patternd/internal/aggregate"
	"github.com/fyrsmithlabs/patternd/internal/config"
	"github.com/fyrsmithlabs/patternd/internal/patterns"
)

const (
	consistencyWeight = 0.7
	sizeWeight        = 0.3
	sizeSaturation    = 10

	// ValueTolerance is the distance from the mean within which a metric
	// sample counts as agreeing.
	ValueTolerance = 0.1

	maxErrorSamples = 5
)

// Thresholds are the pattern creation gates.
type Thresholds struct {
	MinOccurrences      int
	ConfidenceThreshold float64
	EfficiencyThreshold float64
	MinImprovement      float64
}

// DefaultThresholds returns the built-in gates.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinOccurrences:      3,
		ConfidenceThreshold: 0.8,
		EfficiencyThreshold: 0.7,
		MinImprovement:      0.05,
	}
}

// ThresholdsFromConfig reads the gates from config.
func ThresholdsFromConfig(c config.LearningConfig) Thresholds {
	return Thresholds{
		MinOccurrences:      c.MinOccurrences,
		ConfidenceThreshold: c.ConfidenceThreshold,
		EfficiencyThreshold: c.EfficiencyThreshold,
		MinImprovement:      c.MinImprovement,
	}
}

// Confidence combines consistency with a size bonus, clamped to [0,1].
func Confidence(consistency float64, n int) float64 {
	if n <= 0 {
		return 0
	}
	bonus := math.Min(float64(n)/sizeSaturation, 1)
	return clamp01(consistencyWeight*clamp01(consistency) + sizeWeight*bonus)
}

var (
	spaceRun      = regexp.MustCompile(`\s+`)
	trailingPunct = ".,;:!?"
)

// Canonical lower-cases s, collapses whitespace and trims trailing
// punctuation, so "Add null check." and "add  null check" agree.
func Canonical(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = spaceRun.ReplaceAllString(s, " ")
	return strings.TrimRight(s, trailingPunct)
}

// TextConsistency is the share of outcomes equal (after canonicalisation)
// to the most common outcome.
func TextConsistency(outcomes []string) float64 {
	if len(outcomes) == 0 {
		return 0
	}
	_, count := modal(outcomes)
	return float64(count) / float64(len(outcomes))
}

// ValueConsistency is the share of values within ValueTolerance of the
// mean.
func ValueConsistency(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := mean(values)
	near := 0
	for _, v := range values {
		if math.Abs(v-m) <= ValueTolerance+1e-12 {
			near++
		}
	}
	return float64(near) / float64(len(values))
}

// modal returns the first-seen original text of the most common canonical
// outcome and its count. Ties go to the outcome seen first.
func modal(outcomes []string) (string, int) {
	counts := make(map[string]int, len(outcomes))
	first := make(map[string]string, len(outcomes))
	var order []string
	for _, o := range outcomes {
		c := Canonical(o)
		if _, ok := counts[c]; !ok {
			order = append(order, c)
			first[c] = strings.TrimSpace(o)
		}
		counts[c]++
	}
	best, bestN := "", 0
	for _, c := range order {
		if counts[c] > bestN {
			best, bestN = c, counts[c]
		}
	}
	return first[best], bestN
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// Scorer scores buckets against the creation gates.
type Scorer struct {
	th Thresholds
}

// New creates a Scorer.
func New(th Thresholds) *Scorer {
	return &Scorer{th: th}
}

// Thresholds returns the active gates.
func (s *Scorer) Thresholds() Thresholds { return s.th }

// Score builds the candidate pattern for a bucket and decides whether it
// clears the creation gate.
func (s *Scorer) Score(b *aggregate.Bucket) patterns.Candidate {
	p := &patterns.Pattern{
		Type:           b.Key.Type,
		Subtype:        b.Key.Subtype,
		Trigger:        b.Key.Trigger,
		AffectedAgents: b.AgentList(),
		Evidence:       slices.Clone(b.Samples),
	}
	switch b.Key.Type {
	case patterns.TypeErrorResolution:
		p.ErrorResolution = &patterns.ErrorResolution{}
	case patterns.TypeSecurityFix:
		p.SecurityFix = &patterns.SecurityFix{RuleID: b.Key.RuleID}
	case patterns.TypePerformanceOptimization:
		p.Performance = &patterns.Performance{TaskType: b.Key.Subtype}
	case patterns.TypeTaskDistribution:
		p.Distribution = &patterns.Distribution{Strategy: b.Key.Subtype}
	}
	s.Rescore(p)
	return patterns.Candidate{Pattern: p, Eligible: s.Eligible(p)}
}

// Emit scores every bucket and returns only the candidates that clear the
// creation gate.
func (s *Scorer) Emit(buckets []*aggregate.Bucket) []patterns.Candidate {
	var out []patterns.Candidate
	for _, b := range buckets {
		if c := s.Score(b); c.Eligible {
			out = append(out, c)
		}
	}
	return out
}

// Eligible applies the type-specific creation gate.
func (s *Scorer) Eligible(p *patterns.Pattern) bool {
	if len(p.Evidence) < s.th.MinOccurrences {
		return false
	}
	switch p.Type {
	case patterns.TypeErrorResolution, patterns.TypeSecurityFix:
		return p.Confidence >= s.th.ConfidenceThreshold
	case patterns.TypeTaskDistribution:
		return p.Distribution != nil && p.Distribution.Efficiency > s.th.EfficiencyThreshold
	case patterns.TypePerformanceOptimization:
		return p.Performance != nil && p.Performance.Improvement >= s.th.MinImprovement
	}
	return false
}
