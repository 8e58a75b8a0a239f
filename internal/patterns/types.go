// Package patterns holds the persistent Pattern model and the store that
// owns it.
//
// A Pattern is a confidence-scored generalisation over repeated evidence.
// Every Pattern carries common bookkeeping plus exactly one type-specific
// variant. Patterns keep the de-duplicated evidence that supports them so
// confidence can always be recomputed from scratch when new evidence
// arrives.
package patterns

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"
)

// Type is the kind of a Pattern.
type Type string

const (
	TypeErrorResolution         Type = "ERROR_RESOLUTION"
	TypePerformanceOptimization Type = "PERFORMANCE_OPTIMIZATION"
	TypeTaskDistribution        Type = "TASK_DISTRIBUTION"
	TypeSecurityFix             Type = "SECURITY_FIX"
)

// Types lists every pattern type in report order.
var Types = []Type{
	TypeErrorResolution,
	TypePerformanceOptimization,
	TypeTaskDistribution,
	TypeSecurityFix,
}

// Valid reports whether t is a known pattern type.
func (t Type) Valid() bool {
	return slices.Contains(Types, t)
}

// ErrInvalidPattern is returned when a pattern fails validation.
var ErrInvalidPattern = errors.New("invalid pattern")

// Pattern is a persisted, confidence-scored generalisation.
type Pattern struct {
	ID                string    `json:"id"`
	Type              Type      `json:"type"`
	Subtype           string    `json:"subtype"`
	Trigger           string    `json:"trigger"`
	RecommendedAction Action    `json:"recommendedAction"`
	Confidence        float64   `json:"confidence"`
	InitialConfidence float64   `json:"initialConfidence"`
	Occurrences       int       `json:"occurrences"`
	SuccessRate       float64   `json:"successRate"`
	FirstSeen         time.Time `json:"firstSeen"`
	LastSeen          time.Time `json:"lastSeen"`
	LastUpdated       time.Time `json:"lastUpdated"`
	AffectedAgents    []string  `json:"affectedAgents"`

	ErrorResolution *ErrorResolution `json:"errorResolution,omitempty"`
	Performance     *Performance     `json:"performance,omitempty"`
	Distribution    *Distribution    `json:"distribution,omitempty"`
	SecurityFix     *SecurityFix     `json:"securityFix,omitempty"`

	Evidence []Evidence `json:"evidence"`
}

// Action is what a pattern recommends: free text, ordered steps, or both.
type Action struct {
	Text  string   `json:"text,omitempty"`
	Steps []string `json:"steps,omitempty"`
}

// ErrorResolution is the variant for a recurring error and its fix.
type ErrorResolution struct {
	Solution     string   `json:"solution"`
	ErrorSamples []string `json:"errorSamples,omitempty"`
}

// Performance is the variant for a throughput improvement on a task type.
type Performance struct {
	TaskType    string   `json:"taskType"`
	Improvement float64  `json:"improvement"`
	Steps       []string `json:"steps,omitempty"`
	AppliesTo   []string `json:"appliesTo"`
}

// Distribution is the variant for an efficient work assignment strategy.
type Distribution struct {
	Strategy    string             `json:"strategy"`
	Efficiency  float64            `json:"efficiency"`
	Profile     TaskProfile        `json:"profile"`
	AgentShares map[string]float64 `json:"agentShares,omitempty"`
}

// TaskProfile describes the shape of the workloads a distribution pattern
// was observed on.
type TaskProfile struct {
	MinTasks  int      `json:"minTasks"`
	MaxTasks  int      `json:"maxTasks"`
	TaskTypes []string `json:"taskTypes,omitempty"`
}

// SecurityFix is the variant for a recurring security finding.
type SecurityFix struct {
	RuleID      string `json:"ruleId"`
	Remediation string `json:"remediation"`
}

// Evidence is one de-duplicated observation supporting a pattern.
// Key is a content hash of the originating record.
type Evidence struct {
	Key        string             `json:"key"`
	ObservedAt time.Time          `json:"observedAt"`
	Outcome    string             `json:"outcome,omitempty"`
	Detail     string             `json:"detail,omitempty"`
	Success    bool               `json:"success"`
	Value      float64            `json:"value,omitempty"`
	Agent      string             `json:"agent,omitempty"`
	Count      int                `json:"count,omitempty"`
	Labels     []string           `json:"labels,omitempty"`
	Shares     map[string]float64 `json:"shares,omitempty"`
}

// Candidate is a scored pattern proposed for merging into the store.
// Non-eligible candidates may reinforce an existing pattern but never
// create one.
type Candidate struct {
	Pattern  *Pattern
	Eligible bool
}

// Solution returns the recommended fix text for error and security
// patterns, or the action text otherwise.
func (p *Pattern) Solution() string {
	switch {
	case p.ErrorResolution != nil:
		return p.ErrorResolution.Solution
	case p.SecurityFix != nil:
		return p.SecurityFix.Remediation
	}
	return p.RecommendedAction.Text
}

// Improvement returns the performance improvement, or 0 for other types.
func (p *Pattern) Improvement() float64 {
	if p.Performance == nil {
		return 0
	}
	return p.Performance.Improvement
}

// SameIdentity reports whether p and o describe the same (type, subtype,
// trigger).
func (p *Pattern) SameIdentity(o *Pattern) bool {
	return p.Type == o.Type && p.Subtype == o.Subtype && p.Trigger == o.Trigger
}

// Validate checks structural invariants.
func (p *Pattern) Validate() error {
	var errs []error
	if p.ID == "" {
		errs = append(errs, errors.New("id is required"))
	}
	if !p.Type.Valid() {
		errs = append(errs, fmt.Errorf("unknown type %q", p.Type))
	}
	if p.Subtype == "" {
		errs = append(errs, errors.New("subtype is required"))
	}
	if p.Confidence < 0 || p.Confidence > 1 {
		errs = append(errs, fmt.Errorf("confidence %v outside [0,1]", p.Confidence))
	}
	if p.InitialConfidence < 0 || p.InitialConfidence > 1 {
		errs = append(errs, fmt.Errorf("initialConfidence %v outside [0,1]", p.InitialConfidence))
	}
	if p.SuccessRate < 0 || p.SuccessRate > 1 {
		errs = append(errs, fmt.Errorf("successRate %v outside [0,1]", p.SuccessRate))
	}
	if p.Occurrences < 0 {
		errs = append(errs, fmt.Errorf("occurrences %d is negative", p.Occurrences))
	}

	variants := 0
	for _, set := range []bool{
		p.ErrorResolution != nil,
		p.Performance != nil,
		p.Distribution != nil,
		p.SecurityFix != nil,
	} {
		if set {
			variants++
		}
	}
	if variants != 1 {
		errs = append(errs, fmt.Errorf("expected exactly one variant, got %d", variants))
	} else if !p.variantMatchesType() {
		errs = append(errs, fmt.Errorf("variant does not match type %s", p.Type))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w %s: %w", ErrInvalidPattern, p.ID, errors.Join(errs...))
	}
	return nil
}

func (p *Pattern) variantMatchesType() bool {
	switch p.Type {
	case TypeErrorResolution:
		return p.ErrorResolution != nil
	case TypePerformanceOptimization:
		return p.Performance != nil
	case TypeTaskDistribution:
		return p.Distribution != nil
	case TypeSecurityFix:
		return p.SecurityFix != nil
	}
	return false
}

// Clone returns a deep copy.
func (p *Pattern) Clone() *Pattern {
	if p == nil {
		return nil
	}
	c := *p
	c.RecommendedAction.Steps = slices.Clone(p.RecommendedAction.Steps)
	c.AffectedAgents = slices.Clone(p.AffectedAgents)

	if p.ErrorResolution != nil {
		v := *p.ErrorResolution
		v.ErrorSamples = slices.Clone(v.ErrorSamples)
		c.ErrorResolution = &v
	}
	if p.Performance != nil {
		v := *p.Performance
		v.Steps = slices.Clone(v.Steps)
		v.AppliesTo = slices.Clone(v.AppliesTo)
		c.Performance = &v
	}
	if p.Distribution != nil {
		v := *p.Distribution
		v.Profile.TaskTypes = slices.Clone(v.Profile.TaskTypes)
		v.AgentShares = maps.Clone(v.AgentShares)
		c.Distribution = &v
	}
	if p.SecurityFix != nil {
		v := *p.SecurityFix
		c.SecurityFix = &v
	}

	if p.Evidence != nil {
		c.Evidence = make([]Evidence, len(p.Evidence))
		for i, e := range p.Evidence {
			e.Labels = slices.Clone(e.Labels)
			e.Shares = maps.Clone(e.Shares)
			c.Evidence[i] = e
		}
	}
	return &c
}

// unionEvidence adds entries from add that are not yet present by key and
// reports whether anything was added. The result is ordered by observation
// time, then key.
func unionEvidence(have, add []Evidence) ([]Evidence, bool) {
	seen := make(map[string]struct{}, len(have))
	for _, e := range have {
		seen[e.Key] = struct{}{}
	}
	out := slices.Clone(have)
	changed := false
	for _, e := range add {
		if _, ok := seen[e.Key]; ok {
			continue
		}
		seen[e.Key] = struct{}{}
		out = append(out, e)
		changed = true
	}
	if changed {
		SortEvidence(out)
	}
	return out, changed
}

// SortEvidence orders evidence by observation time, then key.
func SortEvidence(ev []Evidence) {
	slices.SortStableFunc(ev, func(a, b Evidence) int {
		if c := a.ObservedAt.Compare(b.ObservedAt); c != 0 {
			return c
		}
		switch {
		case a.Key < b.Key:
			return -1
		case a.Key > b.Key:
			return 1
		}
		return 0
	})
}

// unionStrings merges b into a, keeping a's order and dropping empties.
func unionStrings(a, b []string) []string {
	out := slices.Clone(a)
	for _, s := range b {
		if s != "" && !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}
