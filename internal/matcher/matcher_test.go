package matcher

import (
	"testing"

	"github.com/fyrsmithlabs/patternd/internal/classify"
	"github.com/fyrsmithlabs/patternd/internal/patterns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func errorPattern(id, subtype, trigger, solution string, conf float64) *patterns.Pattern {
	return &patterns.Pattern{
		ID: id, Type: patterns.TypeErrorResolution, Subtype: subtype, Trigger: trigger,
		Confidence:      conf,
		ErrorResolution: &patterns.ErrorResolution{Solution: solution},
	}
}

func distPattern(id string, min, max int, types []string, shares map[string]float64) *patterns.Pattern {
	return &patterns.Pattern{
		ID: id, Type: patterns.TypeTaskDistribution, Subtype: "least-loaded", Trigger: "strategy=least-loaded",
		Confidence: 0.85,
		Distribution: &patterns.Distribution{
			Strategy:    "least-loaded",
			Efficiency:  0.9,
			Profile:     patterns.TaskProfile{MinTasks: min, MaxTasks: max, TaskTypes: types},
			AgentShares: shares,
		},
	}
}

func perfPattern(id string, appliesTo ...string) *patterns.Pattern {
	return &patterns.Pattern{
		ID: id, Type: patterns.TypePerformanceOptimization, Subtype: appliesTo[0], Trigger: "taskType=" + appliesTo[0],
		Confidence: 0.7,
		Performance: &patterns.Performance{
			TaskType: appliesTo[0], Improvement: 0.3, Steps: []string{"enable cache"}, AppliesTo: appliesTo,
		},
	}
}

func tasks(n int, typ string) []Task {
	out := make([]Task, n)
	for i := range out {
		out[i] = Task{Type: typ}
	}
	return out
}

func TestMatch_ModuleNotFound(t *testing.T) {
	ps := []*patterns.Pattern{
		errorPattern("p1", "MISSING_DEPENDENCY", "Module not found", "npm install the module", 0.9),
		errorPattern("p2", "NULL_REFERENCE", "Cannot read property", "add null check", 0.95),
	}
	got := New(classify.New()).Match(ps, Situation{Error: "Module not found: foo"})

	require.Len(t, got, 1)
	assert.Equal(t, ActionApplyFix, got[0].Action)
	assert.Equal(t, "p1", got[0].PatternID)
	assert.Equal(t, "npm install the module", got[0].Solution)
	assert.Equal(t, 0.9, got[0].Confidence)
}

func TestMatch_ErrorByCategoryAndCase(t *testing.T) {
	m := New(nil)
	p := errorPattern("p1", "TIMEOUT_ERROR", "timeout", "retry with backoff", 0.9)

	got := m.Match([]*patterns.Pattern{p}, Situation{Error: "request TIMEOUT after 30s"})
	require.Len(t, got, 1, "trigger match is case-insensitive")

	custom := New(classify.New(classify.WithErrorRules([]classify.Rule{{Match: "deadline exceeded", Category: "TIMEOUT_ERROR"}})))
	got = custom.Match([]*patterns.Pattern{p}, Situation{Error: "context deadline exceeded"})
	require.Len(t, got, 1, "matching category matches even when the trigger text differs")
}

func TestMatch_UnknownNeverMatchesByCategory(t *testing.T) {
	p := errorPattern("p1", classify.UnknownError, classify.UnknownError, "restart", 0.9)
	got := New(nil).Match([]*patterns.Pattern{p}, Situation{Error: "something odd happened"})
	assert.Empty(t, got)

	p = errorPattern("p2", classify.UnknownError, "econnreset while fetching registry", "retry with backoff", 0.9)
	got = New(nil).Match([]*patterns.Pattern{p}, Situation{Error: "segfault in worker 3"})
	assert.Empty(t, got, "a different unknown error does not match")
}

func TestMatch_UnknownByNormalisedText(t *testing.T) {
	p := errorPattern("p1", classify.UnknownError, "econnreset while fetching registry", "retry with backoff", 0.9)
	m := New(nil)

	got := m.Match([]*patterns.Pattern{p}, Situation{Error: "ECONNRESET  while fetching registry"})
	require.Len(t, got, 1)
	assert.Equal(t, ActionApplyFix, got[0].Action)
	assert.Equal(t, "retry with backoff", got[0].Solution)

	got = m.Match([]*patterns.Pattern{p}, Situation{Error: "npm: ECONNRESET while fetching registry (attempt 2)"})
	assert.Len(t, got, 1, "the trigger may appear inside longer text")
}

func TestMatch_Security(t *testing.T) {
	p := &patterns.Pattern{
		ID: "s1", Type: patterns.TypeSecurityFix, Subtype: "VULNERABLE_DEPENDENCY", Trigger: "CVE-",
		Confidence:  0.88,
		SecurityFix: &patterns.SecurityFix{RuleID: "VULNERABLE_DEPENDENCY", Remediation: "upgrade the package"},
	}
	got := New(nil).Match([]*patterns.Pattern{p}, Situation{Error: "found CVE-2024-1234 in lodash"})
	require.Len(t, got, 1)
	assert.Equal(t, ActionApplyFix, got[0].Action)
	assert.Equal(t, "upgrade the package", got[0].Solution)
}

func TestMatch_Distribution(t *testing.T) {
	p := distPattern("d1", 10, 20, []string{"build"}, map[string]float64{"a1": 0.5, "a2": 0.3, "a3": 0.2})
	m := New(nil)

	got := m.Match([]*patterns.Pattern{p}, Situation{Tasks: tasks(10, "build")})
	require.Len(t, got, 1)
	assert.Equal(t, ActionOptimizeDistribution, got[0].Action)
	assert.Equal(t, "least-loaded", got[0].Strategy)
	assert.Equal(t, map[string]int{"a1": 5, "a2": 3, "a3": 2}, got[0].Allocation)

	assert.Empty(t, m.Match([]*patterns.Pattern{p}, Situation{Tasks: tasks(4, "build")}), "below min/2")
	assert.Empty(t, m.Match([]*patterns.Pattern{p}, Situation{Tasks: tasks(41, "build")}), "above max*2")
	assert.Empty(t, m.Match([]*patterns.Pattern{p}, Situation{Tasks: tasks(10, "deploy")}), "no type overlap")
	assert.Len(t, m.Match([]*patterns.Pattern{p}, Situation{Tasks: tasks(10, "")}), 1, "untyped tasks match on shape")
	assert.Empty(t, m.Match([]*patterns.Pattern{p}, Situation{}))
}

func TestMatch_Performance(t *testing.T) {
	p := perfPattern("perf", "build", "compile")
	m := New(nil)

	got := m.Match([]*patterns.Pattern{p}, Situation{TaskType: "compile"})
	require.Len(t, got, 1)
	assert.Equal(t, ActionApplyOptimization, got[0].Action)
	assert.Equal(t, []string{"enable cache"}, got[0].Steps)

	assert.Empty(t, m.Match([]*patterns.Pattern{p}, Situation{TaskType: "deploy"}))
}

func TestMatch_SortedByConfidence(t *testing.T) {
	ps := []*patterns.Pattern{
		perfPattern("perf", "build"),
		errorPattern("low", "MISSING_DEPENDENCY", "Module not found", "a", 0.81),
		errorPattern("high", "MISSING_DEPENDENCY", "not found", "b", 0.97),
	}
	got := New(nil).Match(ps, Situation{Error: "Module not found: x", TaskType: "build"})
	require.Len(t, got, 3)
	assert.Equal(t, "high", got[0].PatternID)
	assert.Equal(t, "low", got[1].PatternID)
	assert.Equal(t, "perf", got[2].PatternID)
}

func TestMatch_NoPatterns(t *testing.T) {
	got := New(nil).Match(nil, Situation{Error: "boom"})
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestAllocate(t *testing.T) {
	assert.Equal(t, map[string]int{"a": 2, "b": 1}, Allocate(3, map[string]float64{"a": 0.5, "b": 0.5}))
	assert.Equal(t, map[string]int{"a": 1, "b": 1, "c": 1}, Allocate(3, map[string]float64{"a": 1, "b": 1, "c": 1}))
	assert.Nil(t, Allocate(0, map[string]float64{"a": 1}))
	assert.Nil(t, Allocate(5, nil))

	got := Allocate(7, map[string]float64{"x": 0.61, "y": 0.27, "z": 0.12})
	sum := 0
	for _, v := range got {
		sum += v
	}
	assert.Equal(t, 7, sum)
	assert.Equal(t, 4, got["x"])
}
