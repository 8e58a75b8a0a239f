package recommend

import (
	"testing"
	"time"

	"github.com/fyrsmithlabs/patternd/internal/insights"
	"github.com/fyrsmithlabs/patternd/internal/patterns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriorityRank(t *testing.T) {
	assert.Equal(t, 1, PriorityHigh.Rank())
	assert.Equal(t, 2, PriorityMedium.Rank())
	assert.Equal(t, 3, PriorityLow.Rank())
	assert.Equal(t, 4, Priority("??").Rank())
}

func TestSort_StableOnTies(t *testing.T) {
	recs := []Recommendation{
		{Priority: PriorityLow, Action: "l1"},
		{Priority: PriorityMedium, Action: "m1"},
		{Priority: PriorityHigh, Action: "h1"},
		{Priority: PriorityMedium, Action: "m2"},
		{Priority: PriorityHigh, Action: "h2"},
		{Priority: PriorityLow, Action: "l2"},
	}
	Sort(recs)

	var got []string
	for _, r := range recs {
		got = append(got, r.Action)
	}
	assert.Equal(t, []string{"h1", "h2", "m1", "m2", "l1", "l2"}, got)
}

func TestGenerate(t *testing.T) {
	now := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	errP := &patterns.Pattern{
		ID: "err", Type: patterns.TypeErrorResolution, Subtype: "NULL_REFERENCE",
		Confidence: 0.9, Occurrences: 4, SuccessRate: 1, FirstSeen: now, LastUpdated: now,
		ErrorResolution: &patterns.ErrorResolution{Solution: "add null check"},
	}
	dist := &patterns.Pattern{
		ID: "dist", Type: patterns.TypeTaskDistribution, Subtype: "least-loaded",
		Confidence: 0.85, Occurrences: 5, SuccessRate: 1,
		RecommendedAction: patterns.Action{Text: "assign work using the least-loaded strategy"},
		Distribution:      &patterns.Distribution{Strategy: "least-loaded", Efficiency: 0.9},
	}
	bigPerf := &patterns.Pattern{
		ID: "perf-big", Type: patterns.TypePerformanceOptimization, Subtype: "build",
		Confidence: 0.7, Occurrences: 3, SuccessRate: 1,
		Performance: &patterns.Performance{TaskType: "build", Improvement: 0.4, Steps: []string{"cache", "parallel"}},
	}
	smallPerf := &patterns.Pattern{
		ID: "perf-small", Type: patterns.TypePerformanceOptimization, Subtype: "test",
		Confidence: 0.7, Occurrences: 3, SuccessRate: 1,
		Performance: &patterns.Performance{TaskType: "test", Improvement: 0.2},
	}
	risky := &patterns.Pattern{
		ID: "risky", Type: patterns.TypeErrorResolution, Subtype: "TIMEOUT_ERROR",
		Confidence: 0.5, Occurrences: 8, SuccessRate: 0.25,
		ErrorResolution: &patterns.ErrorResolution{Solution: "raise timeout"},
	}

	opts := insights.DefaultOptions()
	opts.TopN = 4
	in := insights.Generate([]*patterns.Pattern{errP, dist, bigPerf, smallPerf, risky}, now, opts)
	recs := Generate(in)
	require.Len(t, recs, 5)

	assert.Equal(t, Recommendation{
		Priority:       PriorityHigh,
		Type:           KindErrorPrevention,
		Action:         "add validation for NULL_REFERENCE",
		Implementation: "add null check",
		ExpectedImpact: "prevent 4 errors per period",
		PatternID:      "err",
	}, recs[0])

	assert.Equal(t, PriorityHigh, recs[1].Priority)
	assert.Equal(t, KindPerformance, recs[1].Type)
	assert.Equal(t, "cache; parallel", recs[1].Implementation)

	assert.Equal(t, PriorityMedium, recs[2].Priority)
	assert.Equal(t, "perf-small", recs[2].PatternID)
	assert.Equal(t, KindOrchestration, recs[3].Type)
	assert.Equal(t, PriorityMedium, recs[3].Priority)

	assert.Equal(t, KindReliability, recs[4].Type)
	assert.Equal(t, PriorityLow, recs[4].Priority)

	for i := 1; i < len(recs); i++ {
		assert.LessOrEqual(t, recs[i-1].Priority.Rank(), recs[i].Priority.Rank())
	}
}

func TestGenerate_NilAndEmpty(t *testing.T) {
	assert.Empty(t, Generate(nil))
	assert.Empty(t, Generate(insights.Generate(nil, time.Now(), insights.DefaultOptions())))
}
