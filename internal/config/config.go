// Package config provides configuration loading for patternd.
//
// Configuration is assembled from defaults, an optional YAML file, and
// PATTERND_* environment variables. Command-line flags are applied on top
// by the CLI.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the complete patternd configuration.
type Config struct {
	Sources    SourcesConfig    `koanf:"sources"`
	Store      StoreConfig      `koanf:"store"`
	Report     ReportConfig     `koanf:"report"`
	Learning   LearningConfig   `koanf:"learning"`
	Insights   InsightsConfig   `koanf:"insights"`
	Classifier ClassifierConfig `koanf:"classifier"`
	Monitor    MonitorConfig    `koanf:"monitor"`
	Secrets    SecretsConfig    `koanf:"secrets"`
	Logging    LoggingConfig    `koanf:"logging"`
	Telemetry  TelemetryConfig  `koanf:"telemetry"`
	Notify     NotifyConfig     `koanf:"notify"`
}

// SourcesConfig locates the two evidence sources.
type SourcesConfig struct {
	SolutionsPath string `koanf:"solutions_path"`
	MetricsPath   string `koanf:"metrics_path"`
}

// StoreConfig locates the pattern store file.
type StoreConfig struct {
	Path string `koanf:"path"`
}

// ReportConfig controls report output.
type ReportConfig struct {
	Dir       string `koanf:"dir"`
	TopDetail int    `koanf:"top_detail"`
}

// LearningConfig holds the pattern creation gates.
type LearningConfig struct {
	MinOccurrences      int     `koanf:"min_occurrences"`
	ConfidenceThreshold float64 `koanf:"confidence_threshold"`
	EfficiencyThreshold float64 `koanf:"efficiency_threshold"`
	MinImprovement      float64 `koanf:"min_improvement"`
}

// InsightsConfig holds insight generation knobs.
type InsightsConfig struct {
	TopN               int      `koanf:"top_n"`
	TrendWindow        Duration `koanf:"trend_window"`
	OptimizationFloor  float64  `koanf:"optimization_floor"`
	RiskSuccessRate    float64  `koanf:"risk_success_rate"`
	RiskMinOccurrences int      `koanf:"risk_min_occurrences"`
}

// RuleConfig is one (substring, category) classification rule.
type RuleConfig struct {
	Match    string `koanf:"match"`
	Category string `koanf:"category"`
}

// ClassifierConfig overrides the classification tables.
// An empty table means "use the built-in defaults".
type ClassifierConfig struct {
	ErrorRules    []RuleConfig `koanf:"error_rules"`
	SecurityRules []RuleConfig `koanf:"security_rules"`
}

// MonitorConfig controls the continuous monitor.
type MonitorConfig struct {
	Interval               Duration `koanf:"interval"`
	MaxPassDuration        Duration `koanf:"max_pass_duration"`
	MaxConsecutiveFailures int      `koanf:"max_consecutive_failures"`
	MinIncrementInterval   Duration `koanf:"min_increment_interval"`
	MetricsAddr            string   `koanf:"metrics_addr"`
}

// SecretsConfig controls secret redaction of stored triggers.
type SecretsConfig struct {
	Enabled       bool   `koanf:"enabled"`
	AllowlistPath string `koanf:"allowlist_path"`
}

// LoggingConfig selects log level and format.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// TelemetryConfig holds OpenTelemetry export settings.
type TelemetryConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Endpoint string `koanf:"endpoint"`
	Protocol string `koanf:"protocol"`
	Insecure bool   `koanf:"insecure"`
}

// NotifyConfig configures publication of pass summaries over NATS.
type NotifyConfig struct {
	NATSURL string `koanf:"nats_url"`
	Subject string `koanf:"subject"`
	Token   Secret `koanf:"token"`
}

// Default returns a Config populated with defaults.
func Default() *Config {
	cfg := &Config{Secrets: SecretsConfig{Enabled: true}}
	applyDefaults(cfg)
	return cfg
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Sources.SolutionsPath == "" {
		errs = append(errs, errors.New("sources.solutions_path is required"))
	}
	if c.Sources.MetricsPath == "" {
		errs = append(errs, errors.New("sources.metrics_path is required"))
	}
	if c.Store.Path == "" {
		errs = append(errs, errors.New("store.path is required"))
	}
	if c.Learning.MinOccurrences < 1 {
		errs = append(errs, fmt.Errorf("learning.min_occurrences must be >= 1, got %d", c.Learning.MinOccurrences))
	}
	if !unit(c.Learning.ConfidenceThreshold) {
		errs = append(errs, fmt.Errorf("learning.confidence_threshold must be in [0,1], got %v", c.Learning.ConfidenceThreshold))
	}
	if !unit(c.Learning.EfficiencyThreshold) {
		errs = append(errs, fmt.Errorf("learning.efficiency_threshold must be in [0,1], got %v", c.Learning.EfficiencyThreshold))
	}
	if !unit(c.Learning.MinImprovement) {
		errs = append(errs, fmt.Errorf("learning.min_improvement must be in [0,1], got %v", c.Learning.MinImprovement))
	}
	if c.Insights.TopN < 1 {
		errs = append(errs, fmt.Errorf("insights.top_n must be >= 1, got %d", c.Insights.TopN))
	}
	if c.Monitor.Interval.Duration() <= 0 {
		errs = append(errs, errors.New("monitor.interval must be positive"))
	}
	if c.Monitor.MaxConsecutiveFailures < 1 {
		errs = append(errs, errors.New("monitor.max_consecutive_failures must be >= 1"))
	}
	for i, r := range append(append([]RuleConfig{}, c.Classifier.ErrorRules...), c.Classifier.SecurityRules...) {
		if r.Match == "" || r.Category == "" {
			errs = append(errs, fmt.Errorf("classifier rule %d: match and category are required", i))
		}
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		errs = append(errs, fmt.Errorf("logging.format must be 'json' or 'console', got %q", c.Logging.Format))
	}
	if c.Telemetry.Enabled && c.Telemetry.Endpoint == "" {
		errs = append(errs, errors.New("telemetry.endpoint is required when telemetry is enabled"))
	}

	return errors.Join(errs...)
}

func unit(v float64) bool {
	return v >= 0 && v <= 1
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Sources.SolutionsPath == "" {
		cfg.Sources.SolutionsPath = "logs/solutions.jsonl"
	}
	if cfg.Sources.MetricsPath == "" {
		cfg.Sources.MetricsPath = "logs/metrics.json"
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = "learning/patterns.json"
	}
	if cfg.Report.Dir == "" {
		cfg.Report.Dir = "learning"
	}
	if cfg.Report.TopDetail == 0 {
		cfg.Report.TopDetail = 10
	}

	if cfg.Learning.MinOccurrences == 0 {
		cfg.Learning.MinOccurrences = 3
	}
	if cfg.Learning.ConfidenceThreshold == 0 {
		cfg.Learning.ConfidenceThreshold = 0.8
	}
	if cfg.Learning.EfficiencyThreshold == 0 {
		cfg.Learning.EfficiencyThreshold = 0.7
	}
	if cfg.Learning.MinImprovement == 0 {
		cfg.Learning.MinImprovement = 0.05
	}

	if cfg.Insights.TopN == 0 {
		cfg.Insights.TopN = 5
	}
	if cfg.Insights.TrendWindow == 0 {
		cfg.Insights.TrendWindow = Duration(7 * 24 * time.Hour)
	}
	if cfg.Insights.OptimizationFloor == 0 {
		cfg.Insights.OptimizationFloor = 0.1
	}
	if cfg.Insights.RiskSuccessRate == 0 {
		cfg.Insights.RiskSuccessRate = 0.5
	}
	if cfg.Insights.RiskMinOccurrences == 0 {
		cfg.Insights.RiskMinOccurrences = 5
	}

	if cfg.Monitor.Interval == 0 {
		cfg.Monitor.Interval = Duration(time.Hour)
	}
	if cfg.Monitor.MaxPassDuration == 0 {
		cfg.Monitor.MaxPassDuration = Duration(5 * time.Minute)
	}
	if cfg.Monitor.MaxConsecutiveFailures == 0 {
		cfg.Monitor.MaxConsecutiveFailures = 5
	}
	if cfg.Monitor.MinIncrementInterval == 0 {
		cfg.Monitor.MinIncrementInterval = Duration(2 * time.Second)
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}

	if cfg.Telemetry.Protocol == "" {
		cfg.Telemetry.Protocol = "grpc"
	}

	if cfg.Notify.Subject == "" {
		cfg.Notify.Subject = "patternd.pass.completed"
	}
}
