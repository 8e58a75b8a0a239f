package scoring

import (
	"maps"
	"slices"

	"github.com/fyrsmithlabs/patternd/internal/patterns"
)

// Rescore recomputes occurrences, confidence, success rate, recommended
// action and variant values from p.Evidence. It never touches identity or
// timestamps. Scorer satisfies patterns.Rescorer.
func (s *Scorer) Rescore(p *patterns.Pattern) {
	patterns.SortEvidence(p.Evidence)
	ev := p.Evidence
	n := len(ev)

	p.Occurrences = n
	p.SuccessRate = successRate(ev)

	var consistency float64
	switch p.Type {
	case patterns.TypeErrorResolution, patterns.TypeSecurityFix:
		outcomes := make([]string, n)
		for i, e := range ev {
			outcomes[i] = e.Outcome
		}
		consistency = TextConsistency(outcomes)
		solution, _ := modal(outcomes)
		p.RecommendedAction = patterns.Action{Text: solution}

		if p.Type == patterns.TypeErrorResolution {
			if p.ErrorResolution == nil {
				p.ErrorResolution = &patterns.ErrorResolution{}
			}
			p.ErrorResolution.Solution = solution
			p.ErrorResolution.ErrorSamples = errorSamples(ev)
		} else {
			if p.SecurityFix == nil {
				p.SecurityFix = &patterns.SecurityFix{RuleID: p.Subtype}
			}
			p.SecurityFix.Remediation = solution
		}

	case patterns.TypePerformanceOptimization:
		values := values(ev)
		consistency = ValueConsistency(values)
		if p.Performance == nil {
			p.Performance = &patterns.Performance{TaskType: p.Subtype}
		}
		p.Performance.Improvement = clamp01(mean(values))
		p.Performance.Steps = rankedLabels(ev)
		if !slices.Contains(p.Performance.AppliesTo, p.Performance.TaskType) {
			p.Performance.AppliesTo = append(p.Performance.AppliesTo, p.Performance.TaskType)
		}
		p.RecommendedAction = patterns.Action{Steps: slices.Clone(p.Performance.Steps)}

	case patterns.TypeTaskDistribution:
		values := values(ev)
		consistency = ValueConsistency(values)
		if p.Distribution == nil {
			p.Distribution = &patterns.Distribution{Strategy: p.Subtype}
		}
		p.Distribution.Efficiency = clamp01(mean(values))
		p.Distribution.Profile = profile(ev)
		p.Distribution.AgentShares = meanShares(ev)
		p.RecommendedAction = patterns.Action{Text: "assign work using the " + p.Distribution.Strategy + " strategy"}
		for agent := range p.Distribution.AgentShares {
			if !slices.Contains(p.AffectedAgents, agent) {
				p.AffectedAgents = append(p.AffectedAgents, agent)
			}
		}
		slices.Sort(p.AffectedAgents)
	}

	p.Confidence = Confidence(consistency, n)
}

func successRate(ev []patterns.Evidence) float64 {
	if len(ev) == 0 {
		return 0
	}
	ok := 0
	for _, e := range ev {
		if e.Success {
			ok++
		}
	}
	return float64(ok) / float64(len(ev))
}

func values(ev []patterns.Evidence) []float64 {
	out := make([]float64, len(ev))
	for i, e := range ev {
		out[i] = e.Value
	}
	return out
}

// errorSamples keeps the most recent distinct error texts.
func errorSamples(ev []patterns.Evidence) []string {
	var out []string
	for i := len(ev) - 1; i >= 0 && len(out) < maxErrorSamples; i-- {
		d := ev[i].Detail
		if d != "" && !slices.Contains(out, d) {
			out = append(out, d)
		}
	}
	return out
}

// rankedLabels orders labels by how many samples carry them, then by first
// appearance.
func rankedLabels(ev []patterns.Evidence) []string {
	counts := make(map[string]int)
	var order []string
	for _, e := range ev {
		for _, l := range e.Labels {
			if l == "" {
				continue
			}
			if _, ok := counts[l]; !ok {
				order = append(order, l)
			}
			counts[l]++
		}
	}
	slices.SortStableFunc(order, func(a, b string) int { return counts[b] - counts[a] })
	return order
}

func profile(ev []patterns.Evidence) patterns.TaskProfile {
	var prof patterns.TaskProfile
	for i, e := range ev {
		if i == 0 || e.Count < prof.MinTasks {
			prof.MinTasks = e.Count
		}
		if e.Count > prof.MaxTasks {
			prof.MaxTasks = e.Count
		}
		for _, l := range e.Labels {
			if l != "" && !slices.Contains(prof.TaskTypes, l) {
				prof.TaskTypes = append(prof.TaskTypes, l)
			}
		}
	}
	slices.Sort(prof.TaskTypes)
	return prof
}

// meanShares averages per-sample agent shares and renormalises them.
func meanShares(ev []patterns.Evidence) map[string]float64 {
	sums := make(map[string]float64)
	samples := 0
	for _, e := range ev {
		if len(e.Shares) == 0 {
			continue
		}
		samples++
		for agent, share := range e.Shares {
			sums[agent] += share
		}
	}
	if samples == 0 {
		return nil
	}
	var total float64
	for _, v := range sums {
		total += v
	}
	if total == 0 {
		return nil
	}
	out := maps.Clone(sums)
	for agent, v := range out {
		out[agent] = v / total
	}
	return out
}
