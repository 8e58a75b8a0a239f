package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/patternd/internal/matcher"
)

type workspace struct {
	dir       string
	solutions string
	metrics   string
	store     string
	reports   string
}

func newWorkspace(t *testing.T) workspace {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	dir := t.TempDir()
	return workspace{
		dir:       dir,
		solutions: filepath.Join(dir, "logs", "solutions.jsonl"),
		metrics:   filepath.Join(dir, "logs", "metrics.json"),
		store:     filepath.Join(dir, "learning", "patterns.json"),
		reports:   filepath.Join(dir, "learning"),
	}
}

func (w workspace) args(cmd ...string) []string {
	return append(cmd,
		"--solutions", w.solutions,
		"--metrics", w.metrics,
		"--store", w.store,
		"--report-dir", w.reports,
		"--log-level", "error",
	)
}

func (w workspace) writeModuleErrors(t *testing.T, n int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(w.solutions), 0o755))
	var b strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, `{"timestamp":"2026-03-01T10:%02d:00Z","error":"Module not found: 'left-pad'","solution":"npm install left-pad","agent":"agent-%d"}`+"\n", i, i%2+1)
	}
	require.NoError(t, os.WriteFile(w.solutions, []byte(b.String()), 0o644))
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestAnalyze_WritesStoreAndReport(t *testing.T) {
	w := newWorkspace(t)
	w.writeModuleErrors(t, 4)

	out, err := execute(t, "", w.args("analyze")...)
	require.NoError(t, err)
	assert.Contains(t, out, "Created")
	assert.Contains(t, out, "Recommendations")

	assert.FileExists(t, w.store)
	assert.FileExists(t, filepath.Join(w.reports, "insights.json"))
	assert.FileExists(t, filepath.Join(w.reports, "report.md"))
}

func TestAnalyze_CorruptedStoreFails(t *testing.T) {
	w := newWorkspace(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(w.store), 0o755))
	require.NoError(t, os.WriteFile(w.store, []byte("{not json"), 0o600))

	_, err := execute(t, "", w.args("analyze")...)
	require.Error(t, err)

	data, err := os.ReadFile(w.store)
	require.NoError(t, err)
	assert.Equal(t, "{not json", string(data), "corrupted store must be left untouched")
}

func TestInvalidLogLevelFails(t *testing.T) {
	w := newWorkspace(t)
	args := append(w.args("report"), "--log-level", "loud")
	_, err := execute(t, "", args...)
	assert.Error(t, err)
}

func TestReport_FromExistingStore(t *testing.T) {
	w := newWorkspace(t)
	w.writeModuleErrors(t, 4)
	_, err := execute(t, "", w.args("analyze")...)
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(w.reports, "report.md")))

	out, err := execute(t, "", w.args("report")...)
	require.NoError(t, err)
	assert.Contains(t, out, "patternd report")
	assert.FileExists(t, filepath.Join(w.reports, "report.md"))
}

func TestApply_InlineAndStdin(t *testing.T) {
	w := newWorkspace(t)
	w.writeModuleErrors(t, 4)
	_, err := execute(t, "", w.args("analyze")...)
	require.NoError(t, err)

	out, err := execute(t, "", w.args("apply", `{"error":"Module not found: foo"}`)...)
	require.NoError(t, err)
	var got []matcher.Suggestion
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got, 1)
	assert.Equal(t, matcher.ActionApplyFix, got[0].Action)
	assert.Equal(t, "npm install left-pad", got[0].Solution)

	out, err = execute(t, `{"taskType":"lint"}`, w.args("apply", "-")...)
	require.NoError(t, err)
	got = nil
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Empty(t, got)
}

func TestApply_InvalidJSON(t *testing.T) {
	w := newWorkspace(t)
	_, err := execute(t, "", w.args("apply", `{"error":`)...)
	assert.Error(t, err)
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "Version:    dev")
}

func TestReadSituation_Limit(t *testing.T) {
	big := strings.Repeat("x", maxSituationSize+1)
	_, err := readSituation(strings.NewReader(big), "-")
	assert.Error(t, err)

	raw, err := readSituation(nil, `{"error":"x"}`)
	require.NoError(t, err)
	assert.Equal(t, `{"error":"x"}`, string(raw))
}
