// Package evidence reads the two append-only evidence sources: the
// solutions log (JSON Lines, one resolved error per line) and the metrics
// file (one collection of worker snapshots).
//
// Readers never fail on bad input. A missing source is an empty source and
// a malformed entry is dropped and counted in ReadStats.
package evidence

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Kind distinguishes the two record sources.
type Kind string

const (
	KindSolution Kind = "SOLUTION"
	KindMetric   Kind = "METRIC"
)

// Record is one immutable piece of evidence.
type Record struct {
	// Key is a content hash of the raw entry. Identical entries share a key,
	// which lets the store de-duplicate evidence across passes.
	Key       string
	Timestamp time.Time
	Kind      Kind

	Error    string
	Solution string
	AgentID  string
	TaskType string
	Success  *bool

	Metric *MetricSnapshot

	Raw json.RawMessage
}

// Succeeded reports the success flag, treating an absent flag as success.
// A logged solution implies the error was resolved.
func (r Record) Succeeded() bool {
	return r.Success == nil || *r.Success
}

// solutionEntry is the wire form of one solutions log line.
type solutionEntry struct {
	Timestamp Timestamp `json:"timestamp"`
	Error     string    `json:"error"`
	Solution  string    `json:"solution"`
	Agent     string    `json:"agent"`
	TaskType  string    `json:"taskType"`
	Success   *bool     `json:"success"`
}

// MetricSnapshot is one periodic worker-pool measurement.
type MetricSnapshot struct {
	Timestamp          Timestamp   `json:"timestamp"`
	TaskType           string      `json:"taskType"`
	Strategy           string      `json:"strategy"`
	Throughput         float64     `json:"throughput"`
	BaselineThroughput float64     `json:"baselineThroughput"`
	DurationMs         int64       `json:"durationMs"`
	Tasks              TaskCounts  `json:"tasks"`
	Agents             []AgentLoad `json:"agents"`
	Optimizations      []string    `json:"optimizations"`
	TaskTypes          []string    `json:"taskTypes"`
	Success            *bool       `json:"success"`
}

// TaskCounts summarises the tasks covered by a snapshot.
type TaskCounts struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// AgentLoad is one worker's share of a snapshot.
type AgentLoad struct {
	ID        string `json:"id"`
	Assigned  int    `json:"assigned"`
	Completed int    `json:"completed"`
}

// Succeeded reports the explicit flag, or otherwise whether completed
// tasks outnumber failed ones.
func (m *MetricSnapshot) Succeeded() bool {
	if m.Success != nil {
		return *m.Success
	}
	return m.Tasks.Failed < m.Tasks.Completed
}

// Timestamp accepts RFC 3339 strings or Unix milliseconds.
type Timestamp struct {
	time.Time
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" {
			t.Time = time.Time{}
			return nil
		}
		parsed, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("invalid timestamp %q: %w", s, err)
		}
		t.Time = parsed.UTC()
		return nil
	}
	ms, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(string(b), 64)
		if ferr != nil {
			return fmt.Errorf("invalid timestamp %s: %w", b, err)
		}
		ms = int64(f)
	}
	t.Time = time.UnixMilli(ms).UTC()
	return nil
}

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time.Format(time.RFC3339Nano))
}

// contentKey hashes a raw entry into a short stable key.
func contentKey(kind Kind, raw []byte) string {
	h := sha256.New()
	h.Write([]byte(kind))
	h.Write([]byte{0})
	h.Write(raw)
	return hex.EncodeToString(h.Sum(nil)[:16])
}

// ReadStats counts what a read produced and dropped.
type ReadStats struct {
	Read      int
	Malformed int
	Skipped   int
}

// Add accumulates o into s.
func (s *ReadStats) Add(o ReadStats) {
	s.Read += o.Read
	s.Malformed += o.Malformed
	s.Skipped += o.Skipped
}
