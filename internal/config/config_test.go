package config

import (
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Learning.MinOccurrences != 3 {
		t.Errorf("Learning.MinOccurrences = %d, want 3", cfg.Learning.MinOccurrences)
	}
	if cfg.Learning.ConfidenceThreshold != 0.8 {
		t.Errorf("Learning.ConfidenceThreshold = %v, want 0.8", cfg.Learning.ConfidenceThreshold)
	}
	if cfg.Learning.EfficiencyThreshold != 0.7 {
		t.Errorf("Learning.EfficiencyThreshold = %v, want 0.7", cfg.Learning.EfficiencyThreshold)
	}
	if cfg.Insights.TopN != 5 {
		t.Errorf("Insights.TopN = %d, want 5", cfg.Insights.TopN)
	}
	if cfg.Insights.TrendWindow.Duration() != 7*24*time.Hour {
		t.Errorf("Insights.TrendWindow = %v, want 168h", cfg.Insights.TrendWindow.Duration())
	}
	if !cfg.Secrets.Enabled {
		t.Error("Secrets.Enabled = false, want true")
	}
	if cfg.Monitor.MaxConsecutiveFailures != 5 {
		t.Errorf("Monitor.MaxConsecutiveFailures = %d, want 5", cfg.Monitor.MaxConsecutiveFailures)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default().Validate() error = %v, want nil", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing store path",
			mutate:  func(c *Config) { c.Store.Path = "" },
			wantErr: "store.path is required",
		},
		{
			name:    "threshold out of range",
			mutate:  func(c *Config) { c.Learning.ConfidenceThreshold = 1.5 },
			wantErr: "learning.confidence_threshold",
		},
		{
			name:    "zero min occurrences",
			mutate:  func(c *Config) { c.Learning.MinOccurrences = -1 },
			wantErr: "learning.min_occurrences",
		},
		{
			name: "incomplete classifier rule",
			mutate: func(c *Config) {
				c.Classifier.ErrorRules = []RuleConfig{{Match: "boom"}}
			},
			wantErr: "classifier rule 0",
		},
		{
			name:    "bad log format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: "logging.format",
		},
		{
			name: "telemetry without endpoint",
			mutate: func(c *Config) {
				c.Telemetry.Enabled = true
			},
			wantErr: "telemetry.endpoint",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("Validate() error = nil, want %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestDuration_UnmarshalText(t *testing.T) {
	var d Duration
	if err := d.UnmarshalText([]byte("90s")); err != nil {
		t.Fatalf("UnmarshalText() error = %v", err)
	}
	if d.Duration() != 90*time.Second {
		t.Errorf("Duration = %v, want 90s", d.Duration())
	}
	if err := d.UnmarshalText([]byte("-1s")); err == nil {
		t.Error("UnmarshalText(-1s) error = nil, want error")
	}
}

func TestParseDuration_Days(t *testing.T) {
	tests := map[string]time.Duration{
		"7d":    7 * 24 * time.Hour,
		"1d12h": 36 * time.Hour,
		"30m":   30 * time.Minute,
		"0":     0,
	}
	for in, want := range tests {
		got, err := ParseDuration(in)
		if err != nil {
			t.Errorf("ParseDuration(%q) error = %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("ParseDuration(%q) = %v, want %v", in, got, want)
		}
	}
	for _, bad := range []string{"xd", "-2d", "7days", "d"} {
		if _, err := ParseDuration(bad); err == nil {
			t.Errorf("ParseDuration(%q) error = nil, want error", bad)
		}
	}
}

func TestSecret_Redacted(t *testing.T) {
	s := Secret("hunter2")
	if s.String() != "[REDACTED]" {
		t.Errorf("String() = %q, want [REDACTED]", s.String())
	}
	b, err := s.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON() error = %v", err)
	}
	if string(b) != `"[REDACTED]"` {
		t.Errorf("MarshalJSON() = %s, want \"[REDACTED]\"", b)
	}
	if got := fmt.Sprintf("%v %#v %q", s, s, s); strings.Contains(got, "hunter2") {
		t.Errorf("formatted secret leaked: %s", got)
	}
	if s.Value() != "hunter2" {
		t.Errorf("Value() = %q, want hunter2", s.Value())
	}
}
