// internal/logging/testing.go
package logging

import (
	"fmt"
	"regexp"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// TestLogger is a Logger that records every entry, down to TraceLevel, for
// assertions in other packages' tests.
type TestLogger struct {
	*Logger
	logs *observer.ObservedLogs
}

// NewTestLogger returns a recording logger.
func NewTestLogger() *TestLogger {
	core, logs := observer.New(TraceLevel)
	return &TestLogger{
		Logger: &Logger{zap: zap.New(core), config: NewDefaultConfig()},
		logs:   logs,
	}
}

// All returns the recorded entries.
func (t *TestLogger) All() []observer.LoggedEntry { return t.logs.All() }

// FilterMessage returns entries whose message contains msg.
func (t *TestLogger) FilterMessage(msg string) *observer.ObservedLogs {
	return t.logs.FilterMessageSnippet(msg)
}

// Reset discards the recorded entries.
func (t *TestLogger) Reset() { t.logs.TakeAll() }

func (t *TestLogger) at(level zapcore.Level, snippet string) []observer.LoggedEntry {
	return t.logs.FilterLevelExact(level).FilterMessageSnippet(snippet).All()
}

// AssertLogged fails tb unless an entry at level mentions snippet.
func (t *TestLogger) AssertLogged(tb testing.TB, level zapcore.Level, snippet string) {
	tb.Helper()
	if len(t.at(level, snippet)) == 0 {
		tb.Errorf("no %v entry containing %q; have %s", level, snippet, t.dump())
	}
}

// AssertNotLogged fails tb if any entry at level mentions snippet.
func (t *TestLogger) AssertNotLogged(tb testing.TB, level zapcore.Level, snippet string) {
	tb.Helper()
	if n := len(t.at(level, snippet)); n > 0 {
		tb.Errorf("%d unexpected %v entries containing %q", n, level, snippet)
	}
}

// AssertField fails tb unless an entry with message msg carries key=want.
// Values are compared through their map-encoder form, so typed fields such
// as ints and durations match their natural Go value.
func (t *TestLogger) AssertField(tb testing.TB, msg, key string, want any) {
	tb.Helper()
	for _, entry := range t.logs.FilterMessage(msg).All() {
		if got, ok := entry.ContextMap()[key]; ok && fmt.Sprint(got) == fmt.Sprint(want) {
			return
		}
	}
	tb.Errorf("no %q entry with %s=%v; have %s", msg, key, want, t.dump())
}

var leakPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._~+/=-]{6,}`),
	regexp.MustCompile(`(?i)(api[_-]?key|nats[_-]?token)[=:]\s*\S+`),
}

// AssertNoSecrets fails tb when a sensitive key holds an unmasked string or
// any message or string field looks like a credential.
func (t *TestLogger) AssertNoSecrets(tb testing.TB) {
	tb.Helper()
	keys := NewDefaultConfig().Redaction.Fields
	for _, entry := range t.logs.All() {
		texts := []string{entry.Message}
		for _, f := range entry.Context {
			if f.Type != zapcore.StringType {
				continue
			}
			texts = append(texts, f.String)
			if f.String != "" && !strings.HasPrefix(f.String, "[REDACTED") && sensitiveKey(keys, f.Key) {
				tb.Errorf("field %q logged unmasked in %q", f.Key, entry.Message)
			}
		}
		for _, text := range texts {
			for _, re := range leakPatterns {
				if re.MatchString(text) {
					tb.Errorf("credential-like text in %q: %q", entry.Message, text)
				}
			}
		}
	}
}

func sensitiveKey(keys []string, key string) bool {
	key = strings.ToLower(key)
	for _, k := range keys {
		if strings.Contains(key, k) {
			return true
		}
	}
	return false
}

// AssertPassCorrelation fails tb unless every entry with message msg is
// tagged with a pass.id.
func (t *TestLogger) AssertPassCorrelation(tb testing.TB, msg string) {
	tb.Helper()
	entries := t.logs.FilterMessage(msg).All()
	if len(entries) == 0 {
		tb.Errorf("no entries with message %q", msg)
		return
	}
	for i, entry := range entries {
		if _, ok := entry.ContextMap()["pass.id"]; !ok {
			tb.Errorf("entry %d with message %q has no pass.id", i, msg)
		}
	}
}

func (t *TestLogger) dump() string {
	var b strings.Builder
	for _, e := range t.logs.All() {
		fmt.Fprintf(&b, "\n  %v %q %v", e.Level, e.Message, e.ContextMap())
	}
	return b.String()
}
