// Package report renders the insight snapshot: insights.json for machines
// and report.md for people. Both files are replaced atomically.
package report

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fyrsmithlabs/patternd/internal/fileutil"
	"github.com/fyrsmithlabs/patternd/internal/insights"
	"github.com/fyrsmithlabs/patternd/internal/patterns"
	"github.com/fyrsmithlabs/patternd/internal/recommend"
)

const (
	// InsightsFile is the machine-readable snapshot name.
	InsightsFile = "insights.json"
	// MarkdownFile is the human-readable report name.
	MarkdownFile = "report.md"
)

// PatternSummary is the evidence-free view of a pattern used in outputs.
type PatternSummary struct {
	ID          string        `json:"id"`
	Type        patterns.Type `json:"type"`
	Subtype     string        `json:"subtype"`
	Trigger     string        `json:"trigger"`
	Action      string        `json:"action"`
	Confidence  float64       `json:"confidence"`
	Occurrences int           `json:"occurrences"`
	SuccessRate float64       `json:"successRate"`
	FirstSeen   time.Time     `json:"firstSeen"`
	LastSeen    time.Time     `json:"lastSeen"`
	Agents      []string      `json:"affectedAgents,omitempty"`
}

// Summarize drops evidence and flattens the variant into an action string.
func Summarize(p *patterns.Pattern) PatternSummary {
	return PatternSummary{
		ID:          p.ID,
		Type:        p.Type,
		Subtype:     p.Subtype,
		Trigger:     p.Trigger,
		Action:      actionText(p),
		Confidence:  p.Confidence,
		Occurrences: p.Occurrences,
		SuccessRate: p.SuccessRate,
		FirstSeen:   p.FirstSeen,
		LastSeen:    p.LastSeen,
		Agents:      p.AffectedAgents,
	}
}

func summarizeAll(ps []*patterns.Pattern) []PatternSummary {
	out := make([]PatternSummary, len(ps))
	for i, p := range ps {
		out[i] = Summarize(p)
	}
	return out
}

func actionText(p *patterns.Pattern) string {
	if s := p.Solution(); s != "" {
		return s
	}
	return strings.Join(p.RecommendedAction.Steps, "; ")
}

// Snapshot is the content of insights.json.
type Snapshot struct {
	GeneratedAt               time.Time                  `json:"generatedAt"`
	TotalPatterns             int                        `json:"totalPatterns"`
	ByType                    map[patterns.Type]int      `json:"byType"`
	TopPatterns               []PatternSummary           `json:"topPatterns"`
	EmergingTrends            []PatternSummary           `json:"emergingTrends"`
	OptimizationOpportunities []PatternSummary           `json:"optimizationOpportunities"`
	RiskFactors               []PatternSummary           `json:"riskFactors"`
	LearningVelocity          insights.Velocity          `json:"learningVelocity"`
	Impact                    insights.Impact            `json:"impact"`
	Recommendations           []recommend.Recommendation `json:"recommendations"`
}

// NewSnapshot builds the machine-readable view.
func NewSnapshot(in *insights.Insight, recs []recommend.Recommendation) Snapshot {
	if recs == nil {
		recs = []recommend.Recommendation{}
	}
	return Snapshot{
		GeneratedAt:               in.GeneratedAt,
		TotalPatterns:             in.TotalPatterns,
		ByType:                    in.ByType,
		TopPatterns:               summarizeAll(in.TopPatterns),
		EmergingTrends:            summarizeAll(in.EmergingTrends),
		OptimizationOpportunities: summarizeAll(in.OptimizationOpportunities),
		RiskFactors:               summarizeAll(in.RiskFactors),
		LearningVelocity:          in.LearningVelocity,
		Impact:                    in.Impact,
		Recommendations:           recs,
	}
}

// Input is everything the report needs.
type Input struct {
	Patterns        []*patterns.Pattern
	Insight         *insights.Insight
	Recommendations []recommend.Recommendation
	// TopDetail is how many patterns get a detail section.
	TopDetail int
}

// Paths names the files a Write produced.
type Paths struct {
	Insights string
	Markdown string
}

// Write renders both outputs into dir.
func Write(dir string, in Input) (Paths, error) {
	paths := Paths{
		Insights: filepath.Join(dir, InsightsFile),
		Markdown: filepath.Join(dir, MarkdownFile),
	}

	data, err := json.MarshalIndent(NewSnapshot(in.Insight, in.Recommendations), "", "  ")
	if err != nil {
		return Paths{}, fmt.Errorf("failed to marshal insights: %w", err)
	}
	if err := fileutil.WriteFileAtomic(paths.Insights, append(data, '\n'), 0o644); err != nil {
		return Paths{}, fmt.Errorf("failed to write insights: %w", err)
	}
	if err := fileutil.WriteFileAtomic(paths.Markdown, []byte(Markdown(in)), 0o644); err != nil {
		return Paths{}, fmt.Errorf("failed to write report: %w", err)
	}
	return paths, nil
}

// Markdown renders the human-readable report.
func Markdown(in Input) string {
	ins := in.Insight
	now := ins.GeneratedAt
	var b strings.Builder

	fmt.Fprintf(&b, "# Pattern Learning Report\n\n")
	fmt.Fprintf(&b, "Generated %s\n\n", now.UTC().Format(time.RFC3339))

	b.WriteString("## Summary\n\n")
	b.WriteString("| Type | Patterns |\n|---|---|\n")
	for _, t := range patterns.Types {
		fmt.Fprintf(&b, "| %s | %d |\n", t, ins.ByType[t])
	}
	fmt.Fprintf(&b, "| **Total** | **%d** |\n\n", ins.TotalPatterns)

	b.WriteString("## Top Patterns by Type\n\n")
	for _, t := range patterns.Types {
		top := insights.TopOfType(in.Patterns, t, 3)
		if len(top) == 0 {
			continue
		}
		fmt.Fprintf(&b, "### %s\n\n", t)
		for _, p := range top {
			fmt.Fprintf(&b, "- **%s** (confidence %s, %d occurrences): %s\n",
				p.Subtype, FormatConfidence(p.Confidence), p.Occurrences, oneLine(actionText(p)))
		}
		b.WriteString("\n")
	}

	v := ins.LearningVelocity
	b.WriteString("## Learning Velocity\n\n")
	fmt.Fprintf(&b, "- New patterns: %s\n", FormatRate(v.NewPatternsPerWeek))
	fmt.Fprintf(&b, "- Refinements: %s\n", FormatRate(v.RefinementsPerWeek))
	fmt.Fprintf(&b, "- Confidence growth: %s\n", FormatDelta(v.ConfidenceGrowth))
	if len(ins.EmergingTrends) > 0 {
		fmt.Fprintf(&b, "- Emerging: %d\n", len(ins.EmergingTrends))
		for _, p := range ins.EmergingTrends {
			fmt.Fprintf(&b, "  - %s/%s first seen %s\n", p.Type, p.Subtype, FormatAge(p.FirstSeen, now))
		}
	}
	b.WriteString("\n")

	im := ins.Impact
	b.WriteString("## Impact Analysis\n\n")
	fmt.Fprintf(&b, "- Errors covered by learned fixes: %d\n", im.ErrorsCovered)
	fmt.Fprintf(&b, "- Security findings covered: %d\n", im.SecurityFindings)
	fmt.Fprintf(&b, "- Average performance improvement: %s\n", FormatPercentage(im.AvgImprovement))
	fmt.Fprintf(&b, "- Average distribution efficiency: %s\n", FormatPercentage(im.AvgEfficiency))
	fmt.Fprintf(&b, "- Average success rate: %s\n", FormatPercentage(im.AvgSuccessRate))
	fmt.Fprintf(&b, "- Agents involved: %d\n", im.AgentsInvolved)
	if len(ins.RiskFactors) > 0 {
		b.WriteString("- Risk factors:\n")
		for _, p := range ins.RiskFactors {
			fmt.Fprintf(&b, "  - %s/%s succeeds %s of %d times\n",
				p.Type, p.Subtype, FormatPercentage(p.SuccessRate), p.Occurrences)
		}
	}
	b.WriteString("\n")

	b.WriteString("## Recommendations\n\n")
	if len(in.Recommendations) == 0 {
		b.WriteString("No recommendations yet.\n\n")
	}
	for i, r := range in.Recommendations {
		fmt.Fprintf(&b, "%d. **[%s] %s**: %s\n", i+1, r.Priority, r.Type, r.Action)
		if r.Implementation != "" {
			fmt.Fprintf(&b, "   - Implementation: %s\n", oneLine(r.Implementation))
		}
		fmt.Fprintf(&b, "   - Expected impact: %s\n", r.ExpectedImpact)
	}
	if len(in.Recommendations) > 0 {
		b.WriteString("\n")
	}

	b.WriteString("## Pattern Details\n\n")
	detail := insights.Top(in.Patterns, in.TopDetail)
	if len(detail) == 0 {
		b.WriteString("No patterns learned yet.\n")
	}
	for _, p := range detail {
		fmt.Fprintf(&b, "### %s / %s\n\n", p.Type, p.Subtype)
		fmt.Fprintf(&b, "- ID: `%s`\n", p.ID)
		fmt.Fprintf(&b, "- Trigger: `%s`\n", p.Trigger)
		fmt.Fprintf(&b, "- Confidence: %s (initial %s)\n", FormatConfidence(p.Confidence), FormatConfidence(p.InitialConfidence))
		fmt.Fprintf(&b, "- Occurrences: %d\n", p.Occurrences)
		fmt.Fprintf(&b, "- Success rate: %s\n", FormatPercentage(p.SuccessRate))
		fmt.Fprintf(&b, "- First seen: %s, last seen: %s\n", FormatAge(p.FirstSeen, now), FormatAge(p.LastSeen, now))
		if len(p.AffectedAgents) > 0 {
			fmt.Fprintf(&b, "- Agents: %s\n", strings.Join(p.AffectedAgents, ", "))
		}
		writeVariant(&b, p)
		b.WriteString("\n")
	}
	return b.String()
}

func writeVariant(b *strings.Builder, p *patterns.Pattern) {
	switch {
	case p.ErrorResolution != nil:
		fmt.Fprintf(b, "- Solution: %s\n", oneLine(p.ErrorResolution.Solution))
		for _, s := range p.ErrorResolution.ErrorSamples {
			fmt.Fprintf(b, "  - `%s`\n", oneLine(s))
		}
	case p.SecurityFix != nil:
		fmt.Fprintf(b, "- Rule: %s\n", p.SecurityFix.RuleID)
		fmt.Fprintf(b, "- Remediation: %s\n", oneLine(p.SecurityFix.Remediation))
	case p.Performance != nil:
		fmt.Fprintf(b, "- Improvement: %s on %s\n", FormatPercentage(p.Performance.Improvement), strings.Join(p.Performance.AppliesTo, ", "))
		for i, s := range p.Performance.Steps {
			fmt.Fprintf(b, "  %d. %s\n", i+1, s)
		}
	case p.Distribution != nil:
		d := p.Distribution
		fmt.Fprintf(b, "- Strategy: %s, efficiency %s\n", d.Strategy, FormatPercentage(d.Efficiency))
		fmt.Fprintf(b, "- Workloads: %d-%d tasks", d.Profile.MinTasks, d.Profile.MaxTasks)
		if len(d.Profile.TaskTypes) > 0 {
			fmt.Fprintf(b, " (%s)", strings.Join(d.Profile.TaskTypes, ", "))
		}
		b.WriteString("\n")
	}
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
