// Package recommend turns insights into prioritized, actionable records.
package recommend

import (
	"fmt"
	"slices"
	"strings"

	"github.com/fyrsmithlabs/patternd/internal/insights"
	"github.com/fyrsmithlabs/patternd/internal/patterns"
)

// Priority ranks a recommendation. Lower ranks sort first.
type Priority string

const (
	PriorityHigh   Priority = "HIGH"
	PriorityMedium Priority = "MEDIUM"
	PriorityLow    Priority = "LOW"
)

// Rank returns 1 for HIGH, 2 for MEDIUM, 3 for LOW and 4 otherwise.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 3
	}
	return 4
}

// Kind categorizes a recommendation.
type Kind string

const (
	KindErrorPrevention Kind = "ERROR_PREVENTION"
	KindPerformance     Kind = "PERFORMANCE"
	KindOrchestration   Kind = "ORCHESTRATION"
	KindSecurity        Kind = "SECURITY"
	KindReliability     Kind = "RELIABILITY"
)

// highImpact is the improvement above which a performance recommendation
// is HIGH priority.
const highImpact = 0.3

// Recommendation is one derived, non-persistent action item.
type Recommendation struct {
	Priority       Priority `json:"priority"`
	Type           Kind     `json:"type"`
	Action         string   `json:"action"`
	Implementation string   `json:"implementation"`
	ExpectedImpact string   `json:"expectedImpact"`
	PatternID      string   `json:"patternId"`
}

// Generate builds recommendations from in and stable-sorts them by
// priority rank. Within a rank, generation order is preserved: error
// prevention, security, performance, orchestration, reliability.
func Generate(in *insights.Insight) []Recommendation {
	if in == nil {
		return []Recommendation{}
	}
	out := []Recommendation{}

	for _, p := range in.TopPatterns {
		switch p.Type {
		case patterns.TypeErrorResolution:
			out = append(out, Recommendation{
				Priority:       PriorityHigh,
				Type:           KindErrorPrevention,
				Action:         "add validation for " + p.Subtype,
				Implementation: p.Solution(),
				ExpectedImpact: fmt.Sprintf("prevent %d errors per period", p.Occurrences),
				PatternID:      p.ID,
			})
		case patterns.TypeSecurityFix:
			out = append(out, Recommendation{
				Priority:       PriorityHigh,
				Type:           KindSecurity,
				Action:         "remediate " + p.Subtype,
				Implementation: p.Solution(),
				ExpectedImpact: fmt.Sprintf("close %d recurring security findings", p.Occurrences),
				PatternID:      p.ID,
			})
		}
	}

	for _, p := range in.OptimizationOpportunities {
		prio := PriorityMedium
		if p.Improvement() > highImpact {
			prio = PriorityHigh
		}
		out = append(out, Recommendation{
			Priority:       prio,
			Type:           KindPerformance,
			Action:         "optimize " + p.Performance.TaskType + " tasks",
			Implementation: steps(p),
			ExpectedImpact: fmt.Sprintf("%.0f%% throughput improvement", p.Improvement()*100),
			PatternID:      p.ID,
		})
	}

	for _, p := range in.TopPatterns {
		if p.Type != patterns.TypeTaskDistribution || p.Distribution == nil {
			continue
		}
		out = append(out, Recommendation{
			Priority:       PriorityMedium,
			Type:           KindOrchestration,
			Action:         "use the " + p.Distribution.Strategy + " distribution strategy",
			Implementation: p.RecommendedAction.Text,
			ExpectedImpact: fmt.Sprintf("%.0f%% distribution efficiency", p.Distribution.Efficiency*100),
			PatternID:      p.ID,
		})
	}

	for _, p := range in.RiskFactors {
		out = append(out, Recommendation{
			Priority:       PriorityLow,
			Type:           KindReliability,
			Action:         "investigate recurring " + p.Subtype + " failures",
			Implementation: p.Solution(),
			ExpectedImpact: fmt.Sprintf("raise success rate from %.0f%% across %d occurrences", p.SuccessRate*100, p.Occurrences),
			PatternID:      p.ID,
		})
	}

	Sort(out)
	return out
}

// Sort stable-sorts recs ascending by priority rank.
func Sort(recs []Recommendation) {
	slices.SortStableFunc(recs, func(a, b Recommendation) int {
		return a.Priority.Rank() - b.Priority.Rank()
	})
}

func steps(p *patterns.Pattern) string {
	if len(p.Performance.Steps) == 0 {
		return p.RecommendedAction.Text
	}
	return strings.Join(p.Performance.Steps, "; ")
}
