package classify

import (
	"math"

	"github.com/fyrsmithlabs/patternd/internal/evidence"
	"github.com/fyrsmithlabs/patternd/internal/patterns"
)

// MetricKeys returns the performance key (by task type) and the
// distribution key (by strategy) a snapshot contributes to.
func MetricKeys(m *evidence.MetricSnapshot) []Key {
	var keys []Key
	if m.TaskType != "" {
		keys = append(keys, Key{
			Type:    patterns.TypePerformanceOptimization,
			Subtype: m.TaskType,
			Trigger: "taskType=" + m.TaskType,
		})
	}
	if m.Strategy != "" && len(m.Agents) > 0 {
		keys = append(keys, Key{
			Type:    patterns.TypeTaskDistribution,
			Subtype: m.Strategy,
			Trigger: "strategy=" + m.Strategy,
		})
	}
	return keys
}

// Improvement is the relative throughput gain over baseline, clamped to
// [0,1]. Without a baseline there is nothing to compare and it is 0.
func Improvement(m *evidence.MetricSnapshot) float64 {
	if m.BaselineThroughput <= 0 {
		return 0
	}
	return clamp01((m.Throughput - m.BaselineThroughput) / m.BaselineThroughput)
}

// Efficiency is completion ratio times load balance, where balance is one
// minus the coefficient of variation of per-agent completed counts.
func Efficiency(m *evidence.MetricSnapshot) float64 {
	total := m.Tasks.Total
	if total <= 0 {
		for _, a := range m.Agents {
			total += a.Assigned
		}
	}
	if total <= 0 {
		return 0
	}
	completed := m.Tasks.Completed
	if completed == 0 {
		for _, a := range m.Agents {
			completed += a.Completed
		}
	}
	ratio := clamp01(float64(completed) / float64(total))
	return clamp01(ratio * balance(m.Agents))
}

func balance(agents []evidence.AgentLoad) float64 {
	if len(agents) < 2 {
		return 1
	}
	var sum float64
	for _, a := range agents {
		sum += float64(a.Completed)
	}
	mean := sum / float64(len(agents))
	if mean == 0 {
		return 0
	}
	var sq float64
	for _, a := range agents {
		d := float64(a.Completed) - mean
		sq += d * d
	}
	cv := math.Sqrt(sq/float64(len(agents))) / mean
	return clamp01(1 - cv)
}

// Shares returns each agent's fraction of completed work.
func Shares(m *evidence.MetricSnapshot) map[string]float64 {
	var sum float64
	for _, a := range m.Agents {
		sum += float64(a.Completed)
	}
	if sum == 0 {
		return nil
	}
	out := make(map[string]float64, len(m.Agents))
	for _, a := range m.Agents {
		if a.ID != "" {
			out[a.ID] += float64(a.Completed) / sum
		}
	}
	return out
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
