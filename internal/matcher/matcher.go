// Package matcher answers "what have we learned that applies here?" for a
// runtime situation. It only reads patterns.
package matcher

import (
	"cmp"
	"math"
	"slices"
	"strings"

	"github.com/fyrsmithlabs/patternd/internal/classify"
	"github.com/fyrsmithlabs/patternd/internal/patterns"
)

// Action is what a suggestion asks the caller to do.
type Action string

const (
	ActionApplyFix             Action = "APPLY_FIX"
	ActionOptimizeDistribution Action = "OPTIMIZE_DISTRIBUTION"
	ActionApplyOptimization    Action = "APPLY_OPTIMIZATION"
)

// Task is one unit of pending work in a Situation.
type Task struct {
	ID   string `json:"id,omitempty"`
	Type string `json:"type,omitempty"`
}

// Situation describes what the caller is facing. Every field is optional.
type Situation struct {
	Error    string `json:"error,omitempty"`
	Tasks    []Task `json:"tasks,omitempty"`
	TaskType string `json:"taskType,omitempty"`
}

// Suggestion is one applicable pattern and the action it proposes.
type Suggestion struct {
	Action      Action         `json:"action"`
	PatternID   string         `json:"patternId"`
	PatternType patterns.Type  `json:"patternType"`
	Subtype     string         `json:"subtype"`
	Confidence  float64        `json:"confidence"`
	Solution    string         `json:"solution,omitempty"`
	Strategy    string         `json:"strategy,omitempty"`
	Allocation  map[string]int `json:"allocation,omitempty"`
	Steps       []string       `json:"steps,omitempty"`
}

// Matcher matches situations against patterns.
type Matcher struct {
	classifier *classify.Classifier
}

// New creates a Matcher. The classifier maps situation error text to the
// same categories the patterns were learned under.
func New(c *classify.Classifier) *Matcher {
	if c == nil {
		c = classify.New()
	}
	return &Matcher{classifier: c}
}

// Match returns the suggestions for sit, ordered by confidence descending.
// It returns an empty slice when nothing applies.
func (m *Matcher) Match(ps []*patterns.Pattern, sit Situation) []Suggestion {
	out := []Suggestion{}

	var errKey classify.Key
	hasError := strings.TrimSpace(sit.Error) != ""
	if hasError {
		errKey = m.classifier.ErrorKey(sit.Error)
	}

	for _, p := range ps {
		switch p.Type {
		case patterns.TypeErrorResolution, patterns.TypeSecurityFix:
			if hasError && errorMatches(p, sit.Error, errKey) {
				out = append(out, Suggestion{
					Action:      ActionApplyFix,
					PatternID:   p.ID,
					PatternType: p.Type,
					Subtype:     p.Subtype,
					Confidence:  p.Confidence,
					Solution:    p.Solution(),
				})
			}
		case patterns.TypeTaskDistribution:
			if p.Distribution != nil && profileMatches(p.Distribution.Profile, sit) {
				out = append(out, Suggestion{
					Action:      ActionOptimizeDistribution,
					PatternID:   p.ID,
					PatternType: p.Type,
					Subtype:     p.Subtype,
					Confidence:  p.Confidence,
					Strategy:    p.Distribution.Strategy,
					Allocation:  Allocate(len(sit.Tasks), p.Distribution.AgentShares),
				})
			}
		case patterns.TypePerformanceOptimization:
			if p.Performance != nil && sit.TaskType != "" && slices.Contains(p.Performance.AppliesTo, sit.TaskType) {
				out = append(out, Suggestion{
					Action:      ActionApplyOptimization,
					PatternID:   p.ID,
					PatternType: p.Type,
					Subtype:     p.Subtype,
					Confidence:  p.Confidence,
					Steps:       slices.Clone(p.Performance.Steps),
				})
			}
		}
	}

	slices.SortStableFunc(out, func(a, b Suggestion) int {
		return cmp.Or(cmp.Compare(b.Confidence, a.Confidence), cmp.Compare(a.PatternID, b.PatternID))
	})
	return out
}

// errorMatches is true when the pattern trigger occurs in the error text
// (case-insensitive) or the error classifies to the pattern's category.
// Unknown errors carry their normalised text as trigger and match only on
// it, never on the catch-all category.
func errorMatches(p *patterns.Pattern, text string, k classify.Key) bool {
	if p.Subtype == classify.UnknownError {
		return p.Trigger != "" && p.Trigger != classify.UnknownError &&
			strings.Contains(classify.NormalizeError(text), p.Trigger)
	}
	if p.Trigger != "" && strings.Contains(strings.ToLower(text), strings.ToLower(p.Trigger)) {
		return true
	}
	return k.Type == p.Type && k.Subtype == p.Subtype
}

// profileMatches compares the situation's workload shape to a recorded
// profile: the task count must lie within [min/2, max*2], and task types
// must overlap when both sides name any.
func profileMatches(prof patterns.TaskProfile, sit Situation) bool {
	n := len(sit.Tasks)
	if n == 0 {
		return false
	}
	if float64(n) < float64(prof.MinTasks)/2 || n > prof.MaxTasks*2 {
		return false
	}
	types := situationTypes(sit)
	if len(types) == 0 || len(prof.TaskTypes) == 0 {
		return true
	}
	for _, t := range types {
		if slices.Contains(prof.TaskTypes, t) {
			return true
		}
	}
	return false
}

func situationTypes(sit Situation) []string {
	var out []string
	add := func(t string) {
		if t != "" && !slices.Contains(out, t) {
			out = append(out, t)
		}
	}
	add(sit.TaskType)
	for _, t := range sit.Tasks {
		add(t.Type)
	}
	return out
}

// Allocate apportions n tasks over agents in proportion to shares using
// the largest remainder method. Ties go to the agent whose name sorts
// first. The result always sums to n when shares is non-empty.
func Allocate(n int, shares map[string]float64) map[string]int {
	if n <= 0 || len(shares) == 0 {
		return nil
	}
	agents := make([]string, 0, len(shares))
	var total float64
	for a, s := range shares {
		if s > 0 {
			agents = append(agents, a)
			total += s
		}
	}
	if total == 0 {
		return nil
	}
	slices.Sort(agents)

	type part struct {
		agent string
		rem   float64
	}
	out := make(map[string]int, len(agents))
	parts := make([]part, 0, len(agents))
	assigned := 0
	for _, a := range agents {
		exact := float64(n) * shares[a] / total
		whole := int(math.Floor(exact))
		out[a] = whole
		assigned += whole
		parts = append(parts, part{agent: a, rem: exact - float64(whole)})
	}
	slices.SortStableFunc(parts, func(x, y part) int { return cmp.Compare(y.rem, x.rem) })
	for i := 0; assigned < n; i++ {
		out[parts[i%len(parts)].agent]++
		assigned++
	}
	return out
}
