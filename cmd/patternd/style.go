package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/fyrsmithlabs/patternd/internal/engine"
	"github.com/fyrsmithlabs/patternd/internal/recommend"
	"github.com/fyrsmithlabs/patternd/internal/report"
)

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("51")).
			Bold(true).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("45")).
			Width(14)

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("231")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	priorityStyles = map[recommend.Priority]lipgloss.Style{
		recommend.PriorityHigh:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		recommend.PriorityMedium: lipgloss.NewStyle().Foreground(lipgloss.Color("226")).Bold(true),
		recommend.PriorityLow:    lipgloss.NewStyle().Foreground(lipgloss.Color("46")).Bold(true),
	}

	containerStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(0, 1)
)

func row(label, value string) string {
	return labelStyle.Render(label) + " " + valueStyle.Render(value)
}

// renderPass writes the human summary of a pass.
func renderPass(w io.Writer, res *engine.PassResult, sum *engine.Summary) {
	lines := []string{
		headerStyle.Render("patternd " + string(res.Kind) + " pass"),
		"",
		row("Records", fmt.Sprintf("%d", res.Records)),
		row("Malformed", fmt.Sprintf("%d", res.Malformed)),
		row("Buckets", fmt.Sprintf("%d (%d eligible)", res.Buckets, res.Eligible)),
		row("Created", fmt.Sprintf("%d", res.Created)),
		row("Reinforced", fmt.Sprintf("%d", res.Reinforced)),
		row("Patterns", fmt.Sprintf("%d", res.Patterns)),
		row("Duration", report.FormatDuration(res.Duration)),
	}
	if res.Report != nil {
		lines = append(lines, row("Report", res.Report.Markdown))
	}
	if sum != nil {
		lines = append(lines, renderRecommendations(sum.Recommendations)...)
	}
	fmt.Fprintln(w, containerStyle.Render(strings.Join(lines, "\n")))
}

// renderSummary writes the human summary of a report run.
func renderSummary(w io.Writer, sum *engine.Summary) {
	in := sum.Insight
	lines := []string{
		headerStyle.Render("patternd report"),
		"",
		row("Patterns", fmt.Sprintf("%d", in.TotalPatterns)),
		row("Velocity", report.FormatRate(in.LearningVelocity.NewPatternsPerWeek)),
		row("Confidence", report.FormatDelta(in.LearningVelocity.ConfidenceGrowth)),
	}
	if sum.Report != nil {
		lines = append(lines,
			row("Markdown", sum.Report.Markdown),
			row("Insights", sum.Report.Insights))
	}
	lines = append(lines, renderRecommendations(sum.Recommendations)...)
	fmt.Fprintln(w, containerStyle.Render(strings.Join(lines, "\n")))
}

func renderRecommendations(recs []recommend.Recommendation) []string {
	if len(recs) == 0 {
		return []string{"", dimStyle.Render("No recommendations yet.")}
	}
	out := []string{"", headerStyle.Render("Recommendations")}
	for _, r := range recs {
		out = append(out, fmt.Sprintf("%s %s",
			priorityStyles[r.Priority].Render(string(r.Priority)),
			r.Action))
	}
	return out
}
