// Package insights derives a read-only summary from the pattern store:
// top patterns, emerging trends, optimization opportunities, risk factors
// and learning velocity.
package insights

import (
	"cmp"
	"slices"
	"time"

	"github.com/fyrsmithlabs/patternd/internal/config"
	"github.com/fyrsmithlabs/patternd/internal/patterns"
)

const week = 7 * 24 * time.Hour

// Options are the insight knobs.
type Options struct {
	TopN               int
	TrendWindow        time.Duration
	OptimizationFloor  float64
	RiskSuccessRate    float64
	RiskMinOccurrences int
}

// DefaultOptions returns the built-in knobs.
func DefaultOptions() Options {
	return Options{
		TopN:               5,
		TrendWindow:        week,
		OptimizationFloor:  0.1,
		RiskSuccessRate:    0.5,
		RiskMinOccurrences: 5,
	}
}

// OptionsFromConfig reads the knobs from config.
func OptionsFromConfig(c config.InsightsConfig) Options {
	return Options{
		TopN:               c.TopN,
		TrendWindow:        c.TrendWindow.Duration(),
		OptimizationFloor:  c.OptimizationFloor,
		RiskSuccessRate:    c.RiskSuccessRate,
		RiskMinOccurrences: c.RiskMinOccurrences,
	}
}

// Insight is the derived snapshot. It is recomputed on every pass and never
// persisted as state.
type Insight struct {
	GeneratedAt               time.Time             `json:"generatedAt"`
	TotalPatterns             int                   `json:"totalPatterns"`
	ByType                    map[patterns.Type]int `json:"byType"`
	TopPatterns               []*patterns.Pattern   `json:"topPatterns"`
	EmergingTrends            []*patterns.Pattern   `json:"emergingTrends"`
	OptimizationOpportunities []*patterns.Pattern   `json:"optimizationOpportunities"`
	RiskFactors               []*patterns.Pattern   `json:"riskFactors"`
	LearningVelocity          Velocity              `json:"learningVelocity"`
	Impact                    Impact                `json:"impact"`
}

// Velocity measures how fast the store is learning.
type Velocity struct {
	NewPatternsPerWeek float64 `json:"newPatternsPerWeek"`
	RefinementsPerWeek float64 `json:"refinementsPerWeek"`
	ConfidenceGrowth   float64 `json:"confidenceGrowth"`
}

// Impact aggregates what the learned patterns cover.
type Impact struct {
	ErrorsCovered    int     `json:"errorsCovered"`
	SecurityFindings int     `json:"securityFindings"`
	AvgImprovement   float64 `json:"avgImprovement"`
	AvgEfficiency    float64 `json:"avgEfficiency"`
	AvgSuccessRate   float64 `json:"avgSuccessRate"`
	AgentsInvolved   int     `json:"agentsInvolved"`
}

// Generate computes the insight snapshot for ps at now. ps is not modified.
func Generate(ps []*patterns.Pattern, now time.Time, opts Options) *Insight {
	if opts.TopN <= 0 {
		opts.TopN = DefaultOptions().TopN
	}
	if opts.TrendWindow <= 0 {
		opts.TrendWindow = week
	}
	since := now.Add(-opts.TrendWindow)

	in := &Insight{
		GeneratedAt:               now,
		TotalPatterns:             len(ps),
		ByType:                    make(map[patterns.Type]int, len(patterns.Types)),
		TopPatterns:               []*patterns.Pattern{},
		EmergingTrends:            []*patterns.Pattern{},
		OptimizationOpportunities: []*patterns.Pattern{},
		RiskFactors:               []*patterns.Pattern{},
	}
	for _, t := range patterns.Types {
		in.ByType[t] = 0
	}

	for _, p := range ps {
		in.ByType[p.Type]++
		if !p.FirstSeen.Before(since) {
			in.EmergingTrends = append(in.EmergingTrends, p)
		}
		if p.Type == patterns.TypePerformanceOptimization && p.Improvement() > opts.OptimizationFloor {
			in.OptimizationOpportunities = append(in.OptimizationOpportunities, p)
		}
		if p.SuccessRate < opts.RiskSuccessRate && p.Occurrences >= opts.RiskMinOccurrences {
			in.RiskFactors = append(in.RiskFactors, p)
		}
	}

	in.TopPatterns = Top(ps, opts.TopN)
	slices.SortStableFunc(in.EmergingTrends, func(a, b *patterns.Pattern) int {
		return cmp.Or(b.FirstSeen.Compare(a.FirstSeen), cmp.Compare(a.ID, b.ID))
	})
	slices.SortStableFunc(in.OptimizationOpportunities, func(a, b *patterns.Pattern) int {
		return cmp.Or(cmp.Compare(b.Improvement(), a.Improvement()), cmp.Compare(a.ID, b.ID))
	})
	slices.SortStableFunc(in.RiskFactors, func(a, b *patterns.Pattern) int {
		return cmp.Or(cmp.Compare(a.SuccessRate, b.SuccessRate), cmp.Compare(b.Occurrences, a.Occurrences), cmp.Compare(a.ID, b.ID))
	})

	in.LearningVelocity = velocity(ps, since, opts.TrendWindow)
	in.Impact = impact(ps)
	return in
}

// Top returns up to n patterns ordered by confidence, then occurrences,
// then id.
func Top(ps []*patterns.Pattern, n int) []*patterns.Pattern {
	sorted := slices.Clone(ps)
	slices.SortStableFunc(sorted, byRank)
	if n >= 0 && len(sorted) > n {
		sorted = sorted[:n]
	}
	if sorted == nil {
		sorted = []*patterns.Pattern{}
	}
	return sorted
}

// TopOfType is Top restricted to one pattern type.
func TopOfType(ps []*patterns.Pattern, t patterns.Type, n int) []*patterns.Pattern {
	var sel []*patterns.Pattern
	for _, p := range ps {
		if p.Type == t {
			sel = append(sel, p)
		}
	}
	return Top(sel, n)
}

func byRank(a, b *patterns.Pattern) int {
	return cmp.Or(
		cmp.Compare(b.Confidence, a.Confidence),
		cmp.Compare(b.Occurrences, a.Occurrences),
		cmp.Compare(a.ID, b.ID),
	)
}

// velocity counts activity inside the window and scales it to a week.
// Refinements exclude patterns that are new in the window.
func velocity(ps []*patterns.Pattern, since time.Time, window time.Duration) Velocity {
	var newCount, updated int
	var growth float64
	for _, p := range ps {
		isNew := !p.FirstSeen.Before(since)
		if isNew {
			newCount++
		}
		if !p.LastUpdated.Before(since) {
			updated++
		}
		growth += p.Confidence - p.InitialConfidence
	}
	refinements := max(updated-newCount, 0)

	scale := float64(week) / float64(window)
	v := Velocity{
		NewPatternsPerWeek: float64(newCount) * scale,
		RefinementsPerWeek: float64(refinements) * scale,
	}
	if len(ps) > 0 {
		v.ConfidenceGrowth = growth / float64(len(ps))
	}
	return v
}

func impact(ps []*patterns.Pattern) Impact {
	var im Impact
	var perf, dist int
	var successSum float64
	agents := make(map[string]struct{})
	for _, p := range ps {
		successSum += p.SuccessRate
		for _, a := range p.AffectedAgents {
			agents[a] = struct{}{}
		}
		switch p.Type {
		case patterns.TypeErrorResolution:
			im.ErrorsCovered += p.Occurrences
		case patterns.TypeSecurityFix:
			im.SecurityFindings += p.Occurrences
		case patterns.TypePerformanceOptimization:
			im.AvgImprovement += p.Improvement()
			perf++
		case patterns.TypeTaskDistribution:
			if p.Distribution != nil {
				im.AvgEfficiency += p.Distribution.Efficiency
			}
			dist++
		}
	}
	if perf > 0 {
		im.AvgImprovement /= float64(perf)
	}
	if dist > 0 {
		im.AvgEfficiency /= float64(dist)
	}
	if len(ps) > 0 {
		im.AvgSuccessRate = successSum / float64(len(ps))
	}
	im.AgentsInvolved = len(agents)
	return im
}
