package aggregate

import (
	"strings"
	"testing"
	"time"

	"github.com/fyrsmithlabs/patternd/internal/classify"
	"github.com/fyrsmithlabs/patternd/internal/evidence"
	"github.com/fyrsmithlabs/patternd/internal/patterns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func solution(key string, at time.Duration, errText, sol, agent string) evidence.Record {
	return evidence.Record{
		Key:       key,
		Timestamp: t0.Add(at),
		Kind:      evidence.KindSolution,
		Error:     errText,
		Solution:  sol,
		AgentID:   agent,
	}
}

func TestGroup_ErrorBuckets(t *testing.T) {
	g := New(classify.New())
	recs := []evidence.Record{
		solution("k3", 2*time.Minute, "Cannot read property 'x' of undefined", "add null check", "a2"),
		solution("k1", 0, "Cannot read property 'x' of undefined", "add null check", "a1"),
		solution("k2", time.Minute, "Cannot read property 'y' of null", "add null check", "a1"),
		solution("k4", 0, "Module not found: foo", "npm install foo", "a3"),
		solution("k1", 0, "Cannot read property 'x' of undefined", "add null check", "a1"),
	}

	buckets := g.Group(recs)
	require.Len(t, buckets, 2)

	// Deterministic order: same type, then subtype.
	assert.Equal(t, "MISSING_DEPENDENCY", buckets[0].Key.Subtype)
	null := buckets[1]
	assert.Equal(t, classify.Key{Type: patterns.TypeErrorResolution, Subtype: "NULL_REFERENCE", Trigger: "Cannot read property"}, null.Key)

	require.Equal(t, 3, null.Len(), "duplicate record keys collapse")
	assert.Equal(t, []string{"k1", "k2", "k3"}, []string{null.Samples[0].Key, null.Samples[1].Key, null.Samples[2].Key})
	assert.Equal(t, t0, null.First)
	assert.Equal(t, t0.Add(2*time.Minute), null.Last)
	assert.Equal(t, []string{"a1", "a2"}, null.AgentList())
	assert.True(t, null.Eligible(3))
	assert.False(t, null.Eligible(4))
	assert.True(t, null.Samples[0].Success)
}

type upperRedactor struct{}

func (upperRedactor) Redact(s string) string {
	return strings.ReplaceAll(s, "hunter2", "[REDACTED:test]")
}

func TestGroup_RedactsText(t *testing.T) {
	g := New(classify.New(), WithRedactor(upperRedactor{}))
	buckets := g.Group([]evidence.Record{
		solution("k1", 0, "Permission denied for password hunter2", "rotate hunter2", "a1"),
	})
	require.Len(t, buckets, 1)
	s := buckets[0].Samples[0]
	assert.NotContains(t, s.Detail, "hunter2")
	assert.NotContains(t, s.Outcome, "hunter2")
}

func TestGroup_MetricBuckets(t *testing.T) {
	g := New(classify.New())
	snap := &evidence.MetricSnapshot{
		TaskType:           "build",
		Strategy:           "least-loaded",
		Throughput:         12,
		BaselineThroughput: 10,
		Tasks:              evidence.TaskCounts{Total: 8, Completed: 8},
		Agents:             []evidence.AgentLoad{{ID: "a1", Completed: 4}, {ID: "a2", Completed: 4}},
		Optimizations:      []string{"enable cache"},
	}
	buckets := g.Group([]evidence.Record{{
		Key: "m1", Timestamp: t0, Kind: evidence.KindMetric, Metric: snap,
	}})
	require.Len(t, buckets, 2)

	perf, dist := buckets[0], buckets[1]
	assert.Equal(t, patterns.TypePerformanceOptimization, perf.Key.Type)
	assert.InDelta(t, 0.2, perf.Samples[0].Value, 1e-9)
	assert.Equal(t, []string{"enable cache"}, perf.Samples[0].Labels)

	assert.Equal(t, patterns.TypeTaskDistribution, dist.Key.Type)
	assert.Equal(t, "least-loaded", dist.Samples[0].Outcome)
	assert.InDelta(t, 1.0, dist.Samples[0].Value, 1e-9)
	assert.Equal(t, []string{"build"}, dist.Samples[0].Labels)
	assert.Equal(t, 8, dist.Samples[0].Count)
	assert.Equal(t, []string{"a1", "a2"}, dist.AgentList())
}

func TestGroup_Empty(t *testing.T) {
	assert.Empty(t, New(classify.New()).Group(nil))
}
