package mcp

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/fyrsmithlabs/patternd/internal/matcher"
	"github.com/fyrsmithlabs/patternd/internal/patterns"
	"github.com/fyrsmithlabs/patternd/internal/report"
)

const defaultListLimit = 50

type taskInput struct {
	ID   string `json:"id,omitempty" jsonschema:"Task identifier"`
	Type string `json:"type,omitempty" jsonschema:"Task type, e.g. build or test"`
}

type applyInput struct {
	Error    string      `json:"error,omitempty" jsonschema:"Error text the agent is facing"`
	Tasks    []taskInput `json:"tasks,omitempty" jsonschema:"Pending tasks to distribute"`
	TaskType string      `json:"task_type,omitempty" jsonschema:"Task type to look up optimizations for"`
}

type applyOutput struct {
	Suggestions []matcher.Suggestion `json:"suggestions"`
}

type insightsInput struct{}

type listInput struct {
	Type          string  `json:"type,omitempty" jsonschema:"Pattern type filter: ERROR_RESOLUTION, PERFORMANCE_OPTIMIZATION, TASK_DISTRIBUTION or SECURITY_FIX"`
	MinConfidence float64 `json:"min_confidence,omitempty" jsonschema:"Minimum confidence in [0,1]"`
	Limit         int     `json:"limit,omitempty" jsonschema:"Maximum number of patterns (default 50)"`
}

type listOutput struct {
	Patterns []report.PatternSummary `json:"patterns"`
	Total    int                     `json:"total"`
}

// registerTools registers all MCP tools with the server.
func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "pattern_apply",
		Description: "Find learned patterns that apply to an error, a set of pending tasks, or a task type",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args applyInput) (*mcp.CallToolResult, applyOutput, error) {
		defer s.metrics.track(ctx, "pattern_apply")(nil)

		sit := matcher.Situation{Error: args.Error, TaskType: args.TaskType}
		for _, t := range args.Tasks {
			sit.Tasks = append(sit.Tasks, matcher.Task{ID: t.ID, Type: t.Type})
		}
		return nil, applyOutput{Suggestions: s.engine.Apply(ctx, sit)}, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "pattern_insights",
		Description: "Summarize what has been learned: top patterns, trends, opportunities, risks and recommendations",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args insightsInput) (*mcp.CallToolResult, report.Snapshot, error) {
		done := s.metrics.track(ctx, "pattern_insights")
		sum, err := s.engine.Insights(ctx)
		done(err)
		if err != nil {
			return nil, report.Snapshot{}, fmt.Errorf("generate insights: %w", err)
		}
		return nil, report.NewSnapshot(sum.Insight, sum.Recommendations), nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "pattern_list",
		Description: "List learned patterns, highest confidence first",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args listInput) (*mcp.CallToolResult, listOutput, error) {
		done := s.metrics.track(ctx, "pattern_list")
		out, err := s.list(args)
		done(err)
		if err != nil {
			return nil, listOutput{}, err
		}
		return nil, out, nil
	})
}

func (s *Server) list(args listInput) (listOutput, error) {
	typ := patterns.Type(args.Type)
	if args.Type != "" && !typ.Valid() {
		return listOutput{}, fmt.Errorf("%w: unknown pattern type %q", errInvalidArgument, args.Type)
	}
	if args.MinConfidence < 0 || args.MinConfidence > 1 {
		return listOutput{}, fmt.Errorf("%w: min_confidence %v outside [0,1]", errInvalidArgument, args.MinConfidence)
	}
	limit := args.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	ps := s.engine.Patterns(func(p *patterns.Pattern) bool {
		return (args.Type == "" || p.Type == typ) && p.Confidence >= args.MinConfidence
	})
	slices.SortFunc(ps, func(a, b *patterns.Pattern) int {
		if c := cmp.Compare(b.Confidence, a.Confidence); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	out := listOutput{Patterns: []report.PatternSummary{}, Total: len(ps)}
	for i, p := range ps {
		if i == limit {
			break
		}
		out.Patterns = append(out.Patterns, report.Summarize(p))
	}
	return out, nil
}
