package evidence

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
)

const maxLineSize = 1 << 20

// ReadSolutions reads the whole solutions log. A final line without a
// trailing newline is included.
func ReadSolutions(path string) ([]Record, ReadStats, error) {
	recs, _, stats, err := readSolutions(path, 0, true)
	return recs, stats, err
}

// ReadSolutionsAt is ReadSolutions that also returns the offset just past
// the last complete line, for resuming with ReadSolutionsFrom. A trailing
// partial line is included in the records but not in the offset.
func ReadSolutionsAt(path string) ([]Record, int64, ReadStats, error) {
	return readSolutions(path, 0, true)
}

// ReadSolutionsFrom reads complete lines starting at a byte offset and
// returns the offset just past the last complete line consumed. A trailing
// partial line is left for the next call. If the file is now shorter than
// offset it was truncated or rotated and reading restarts from 0.
func ReadSolutionsFrom(path string, offset int64) ([]Record, int64, ReadStats, error) {
	return readSolutions(path, offset, false)
}

func readSolutions(path string, offset int64, includePartial bool) ([]Record, int64, ReadStats, error) {
	var stats ReadStats

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, 0, stats, nil
	}
	if err != nil {
		return nil, offset, stats, fmt.Errorf("failed to open solutions log: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, offset, stats, fmt.Errorf("failed to stat solutions log: %w", err)
	}
	if offset < 0 || info.Size() < offset {
		offset = 0
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, offset, stats, fmt.Errorf("failed to seek solutions log: %w", err)
	}

	var records []Record
	r := bufio.NewReaderSize(f, 64*1024)
	pos, next := offset, offset
	for {
		line, err := r.ReadBytes('\n')
		complete := err == nil
		if err != nil && !errors.Is(err, io.EOF) {
			return records, next, stats, fmt.Errorf("failed to read solutions log: %w", err)
		}
		if !complete && !includePartial {
			break
		}
		pos += int64(len(line))
		if complete {
			next = pos
		}

		if len(line) > maxLineSize {
			stats.Malformed++
		} else if rec, ok := parseSolution(line, &stats); ok {
			records = append(records, rec)
		}

		if !complete {
			break
		}
	}

	stats.Read = len(records)
	return records, next, stats, nil
}

func parseSolution(line []byte, stats *ReadStats) (Record, bool) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return Record{}, false
	}

	var e solutionEntry
	if err := json.Unmarshal(line, &e); err != nil {
		stats.Malformed++
		return Record{}, false
	}
	if e.Timestamp.IsZero() {
		stats.Malformed++
		return Record{}, false
	}
	if e.Error == "" {
		stats.Skipped++
		return Record{}, false
	}

	return Record{
		Key:       contentKey(KindSolution, line),
		Timestamp: e.Timestamp.Time,
		Kind:      KindSolution,
		Error:     e.Error,
		Solution:  e.Solution,
		AgentID:   e.Agent,
		TaskType:  e.TaskType,
		Success:   e.Success,
		Raw:       slices.Clone(line),
	}, true
}
