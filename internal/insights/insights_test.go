package insights

import (
	"testing"
	"time"

	"github.com/fyrsmithlabs/patternd/internal/config"
	"github.com/fyrsmithlabs/patternd/internal/patterns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func pat(id string, typ patterns.Type, conf float64, occ int) *patterns.Pattern {
	p := &patterns.Pattern{
		ID:                id,
		Type:              typ,
		Subtype:           "S-" + id,
		Confidence:        conf,
		InitialConfidence: conf,
		Occurrences:       occ,
		SuccessRate:       1,
		FirstSeen:         now.Add(-30 * 24 * time.Hour),
		LastSeen:          now.Add(-30 * 24 * time.Hour),
		LastUpdated:       now.Add(-30 * 24 * time.Hour),
	}
	switch typ {
	case patterns.TypeErrorResolution:
		p.ErrorResolution = &patterns.ErrorResolution{Solution: "fix " + id}
	case patterns.TypePerformanceOptimization:
		p.Performance = &patterns.Performance{TaskType: "build"}
	case patterns.TypeTaskDistribution:
		p.Distribution = &patterns.Distribution{Strategy: "rr", Efficiency: 0.8}
	case patterns.TypeSecurityFix:
		p.SecurityFix = &patterns.SecurityFix{RuleID: "CVE"}
	}
	return p
}

func ids(ps []*patterns.Pattern) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.ID
	}
	return out
}

func TestTop_OrdersByConfidenceThenOccurrences(t *testing.T) {
	ps := []*patterns.Pattern{
		pat("a", patterns.TypeErrorResolution, 0.8, 4),
		pat("b", patterns.TypeErrorResolution, 0.9, 4),
		pat("c", patterns.TypeErrorResolution, 0.9, 9),
		pat("d", patterns.TypeErrorResolution, 0.8, 4),
	}
	assert.Equal(t, []string{"c", "b", "a", "d"}, ids(Top(ps, 5)))
	assert.Equal(t, []string{"c", "b"}, ids(Top(ps, 2)))
	assert.Equal(t, []string{"a", "b", "c", "d"}, ids(ps), "input must not be reordered")
	assert.NotNil(t, Top(nil, 5))
}

func TestGenerate_Sections(t *testing.T) {
	fresh := pat("fresh", patterns.TypeErrorResolution, 0.82, 4)
	fresh.FirstSeen = now.Add(-2 * 24 * time.Hour)
	fresh.LastUpdated = now.Add(-time.Hour)

	refined := pat("refined", patterns.TypeErrorResolution, 0.95, 12)
	refined.InitialConfidence = 0.85
	refined.LastUpdated = now.Add(-24 * time.Hour)

	fast := pat("fast", patterns.TypePerformanceOptimization, 0.79, 3)
	fast.Performance.Improvement = 0.4
	slow := pat("slow", patterns.TypePerformanceOptimization, 0.79, 3)
	slow.Performance.Improvement = 0.06

	risky := pat("risky", patterns.TypeErrorResolution, 0.8, 6)
	risky.SuccessRate = 0.3
	rare := pat("rare", patterns.TypeErrorResolution, 0.8, 4)
	rare.SuccessRate = 0.1

	ps := []*patterns.Pattern{fresh, refined, fast, slow, risky, rare}
	in := Generate(ps, now, DefaultOptions())

	assert.Equal(t, 6, in.TotalPatterns)
	assert.Equal(t, 4, in.ByType[patterns.TypeErrorResolution])
	assert.Equal(t, 0, in.ByType[patterns.TypeSecurityFix])
	assert.Equal(t, []string{"refined", "fresh", "risky", "rare", "fast"}, ids(in.TopPatterns))
	assert.Equal(t, []string{"fresh"}, ids(in.EmergingTrends))
	assert.Equal(t, []string{"fast"}, ids(in.OptimizationOpportunities))
	assert.Equal(t, []string{"risky"}, ids(in.RiskFactors))

	assert.Equal(t, 1.0, in.LearningVelocity.NewPatternsPerWeek)
	assert.Equal(t, 1.0, in.LearningVelocity.RefinementsPerWeek, "new patterns are not refinements")
	assert.InDelta(t, 0.1/6, in.LearningVelocity.ConfidenceGrowth, 1e-9)

	assert.Equal(t, 4+12+6+4, in.Impact.ErrorsCovered)
	assert.InDelta(t, 0.23, in.Impact.AvgImprovement, 1e-9)
}

func TestGenerate_VelocityScalesWindowToWeek(t *testing.T) {
	p := pat("p", patterns.TypeErrorResolution, 0.9, 4)
	p.FirstSeen = now.Add(-24 * time.Hour)
	p.LastUpdated = p.FirstSeen

	opts := DefaultOptions()
	opts.TrendWindow = 14 * 24 * time.Hour
	in := Generate([]*patterns.Pattern{p}, now, opts)
	assert.Equal(t, 0.5, in.LearningVelocity.NewPatternsPerWeek)
	assert.Equal(t, 0.0, in.LearningVelocity.RefinementsPerWeek)
}

func TestGenerate_Empty(t *testing.T) {
	in := Generate(nil, now, DefaultOptions())
	require.NotNil(t, in)
	assert.Zero(t, in.TotalPatterns)
	assert.Empty(t, in.TopPatterns)
	assert.Zero(t, in.LearningVelocity)
}

func TestOptionsFromConfig(t *testing.T) {
	opts := OptionsFromConfig(config.Default().Insights)
	assert.Equal(t, DefaultOptions(), opts)
}

func TestTopOfType(t *testing.T) {
	ps := []*patterns.Pattern{
		pat("e", patterns.TypeErrorResolution, 0.9, 4),
		pat("d", patterns.TypeTaskDistribution, 0.95, 4),
		pat("d2", patterns.TypeTaskDistribution, 0.7, 4),
	}
	assert.Equal(t, []string{"d", "d2"}, ids(TopOfType(ps, patterns.TypeTaskDistribution, 5)))
}
