package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/patternd/internal/engine"
	"github.com/fyrsmithlabs/patternd/internal/insights"
	"github.com/fyrsmithlabs/patternd/internal/matcher"
	"github.com/fyrsmithlabs/patternd/internal/patterns"
	"github.com/fyrsmithlabs/patternd/internal/recommend"
)

type fakeEngine struct {
	patterns    []*patterns.Pattern
	insightsErr error
	lastSit     matcher.Situation
}

func (f *fakeEngine) Apply(_ context.Context, sit matcher.Situation) []matcher.Suggestion {
	f.lastSit = sit
	m := matcher.New(nil)
	return m.Match(f.patterns, sit)
}

func (f *fakeEngine) Insights(context.Context) (*engine.Summary, error) {
	if f.insightsErr != nil {
		return nil, f.insightsErr
	}
	in := insights.Generate(f.patterns, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), insights.DefaultOptions())
	return &engine.Summary{Insight: in, Recommendations: recommend.Generate(in)}, nil
}

func (f *fakeEngine) Patterns(pred func(*patterns.Pattern) bool) []*patterns.Pattern {
	var out []*patterns.Pattern
	for _, p := range f.patterns {
		if pred == nil || pred(p) {
			out = append(out, p.Clone())
		}
	}
	return out
}

func errorPattern(id, subtype, trigger, solution string, conf float64) *patterns.Pattern {
	seen := time.Date(2026, 2, 27, 0, 0, 0, 0, time.UTC)
	return &patterns.Pattern{
		ID:                id,
		Type:              patterns.TypeErrorResolution,
		Subtype:           subtype,
		Trigger:           trigger,
		Confidence:        conf,
		InitialConfidence: conf,
		Occurrences:       4,
		SuccessRate:       1,
		FirstSeen:         seen,
		LastSeen:          seen,
		LastUpdated:       seen,
		RecommendedAction: patterns.Action{Text: solution},
		ErrorResolution:   &patterns.ErrorResolution{Solution: solution},
	}
}

func testEngine() *fakeEngine {
	return &fakeEngine{patterns: []*patterns.Pattern{
		errorPattern("p-module", "MODULE_NOT_FOUND", "Module not found", "npm install", 0.82),
		errorPattern("p-timeout", "TIMEOUT", "timeout", "raise the timeout", 0.9),
	}}
}

// connect starts the server on an in-memory transport and returns a
// client session.
func connect(t *testing.T, eng Engine) *mcp.ClientSession {
	t.Helper()
	s, err := NewServer(nil, eng)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	serverT, clientT := mcp.NewInMemoryTransports()
	ss, err := s.mcp.Connect(ctx, serverT, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ss.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	cs, err := client.Connect(ctx, clientT, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cs.Close() })
	return cs
}

func decode(t *testing.T, res *mcp.CallToolResult, out any) {
	t.Helper()
	require.False(t, res.IsError, "tool returned error: %+v", res.Content)
	data, err := json.Marshal(res.StructuredContent)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, out))
}

func TestNewServer(t *testing.T) {
	_, err := NewServer(nil, nil)
	assert.Error(t, err)

	s, err := NewServer(nil, testEngine())
	require.NoError(t, err)
	assert.NotNil(t, s.mcp)
	assert.NotNil(t, s.metrics)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "patternd", cfg.Name)
	assert.NotNil(t, cfg.Logger)
}

func TestTools_Registered(t *testing.T) {
	cs := connect(t, testEngine())

	res, err := cs.ListTools(context.Background(), &mcp.ListToolsParams{})
	require.NoError(t, err)

	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{"pattern_apply", "pattern_insights", "pattern_list"}, names)
}

func TestPatternApply(t *testing.T) {
	eng := testEngine()
	cs := connect(t, eng)

	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "pattern_apply",
		Arguments: map[string]any{"error": "Module not found: foo"},
	})
	require.NoError(t, err)

	var out applyOutput
	decode(t, res, &out)
	require.Len(t, out.Suggestions, 1)
	assert.Equal(t, matcher.ActionApplyFix, out.Suggestions[0].Action)
	assert.Equal(t, "p-module", out.Suggestions[0].PatternID)
	assert.Equal(t, "npm install", out.Suggestions[0].Solution)
	assert.Equal(t, "Module not found: foo", eng.lastSit.Error)
}

func TestPatternApply_NothingApplies(t *testing.T) {
	cs := connect(t, testEngine())

	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "pattern_apply",
		Arguments: map[string]any{"task_type": "lint"},
	})
	require.NoError(t, err)

	var out applyOutput
	decode(t, res, &out)
	assert.Empty(t, out.Suggestions)
}

func TestPatternList(t *testing.T) {
	cs := connect(t, testEngine())

	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "pattern_list",
		Arguments: map[string]any{"type": "ERROR_RESOLUTION", "limit": 1},
	})
	require.NoError(t, err)

	var out listOutput
	decode(t, res, &out)
	assert.Equal(t, 2, out.Total)
	require.Len(t, out.Patterns, 1)
	assert.Equal(t, "p-timeout", out.Patterns[0].ID, "highest confidence first")
}

func TestPatternList_MinConfidence(t *testing.T) {
	cs := connect(t, testEngine())

	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "pattern_list",
		Arguments: map[string]any{"min_confidence": 0.85},
	})
	require.NoError(t, err)

	var out listOutput
	decode(t, res, &out)
	assert.Equal(t, 1, out.Total)
}

func TestPatternList_InvalidType(t *testing.T) {
	cs := connect(t, testEngine())

	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "pattern_list",
		Arguments: map[string]any{"type": "NOPE"},
	})
	if err == nil {
		assert.True(t, res.IsError)
	}
}

func TestPatternInsights(t *testing.T) {
	cs := connect(t, testEngine())

	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "pattern_insights",
		Arguments: map[string]any{},
	})
	require.NoError(t, err)

	var out struct {
		TotalPatterns   int                        `json:"totalPatterns"`
		Recommendations []recommend.Recommendation `json:"recommendations"`
	}
	decode(t, res, &out)
	assert.Equal(t, 2, out.TotalPatterns)
	assert.NotEmpty(t, out.Recommendations)
}

func TestPatternInsights_Error(t *testing.T) {
	eng := testEngine()
	eng.insightsErr = errors.New("store unreadable")
	cs := connect(t, eng)

	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "pattern_insights",
		Arguments: map[string]any{},
	})
	if err == nil {
		assert.True(t, res.IsError)
	}
}
