package evidence

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// ReadMetrics reads the metrics file: either a bare JSON array of
// snapshots or an object with a "snapshots" array. An unparseable
// collection yields no records and Malformed=1. Entries without a
// timestamp are dropped and counted.
func ReadMetrics(path string) ([]Record, ReadStats, error) {
	var stats ReadStats

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, stats, nil
	}
	if err != nil {
		return nil, stats, fmt.Errorf("failed to read metrics: %w", err)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, stats, nil
	}

	entries, ok := splitCollection(data)
	if !ok {
		stats.Malformed = 1
		return nil, stats, nil
	}

	records := make([]Record, 0, len(entries))
	for _, raw := range entries {
		var m MetricSnapshot
		if err := json.Unmarshal(raw, &m); err != nil {
			stats.Malformed++
			continue
		}
		if m.Timestamp.IsZero() {
			stats.Malformed++
			continue
		}

		var compact bytes.Buffer
		if err := json.Compact(&compact, raw); err != nil {
			stats.Malformed++
			continue
		}

		snap := m
		records = append(records, Record{
			Key:       contentKey(KindMetric, compact.Bytes()),
			Timestamp: m.Timestamp.Time,
			Kind:      KindMetric,
			TaskType:  m.TaskType,
			Success:   m.Success,
			Metric:    &snap,
			Raw:       compact.Bytes(),
		})
	}

	stats.Read = len(records)
	return records, stats, nil
}

func splitCollection(data []byte) ([]json.RawMessage, bool) {
	var arr []json.RawMessage
	if err := json.Unmarshal(data, &arr); err == nil {
		return arr, true
	}
	var obj struct {
		Snapshots []json.RawMessage `json:"snapshots"`
	}
	if err := json.Unmarshal(data, &obj); err == nil && obj.Snapshots != nil {
		return obj.Snapshots, true
	}
	return nil, false
}
