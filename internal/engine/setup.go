package engine

import (
	"github.com/fyrsmithlabs/patternd/internal/classify"
	"github.com/fyrsmithlabs/patternd/internal/config"
	"github.com/fyrsmithlabs/patternd/internal/insights"
	"github.com/fyrsmithlabs/patternd/internal/logging"
	"github.com/fyrsmithlabs/patternd/internal/patterns"
	"github.com/fyrsmithlabs/patternd/internal/scoring"
	"github.com/fyrsmithlabs/patternd/internal/secrets"
)

// Build wires an Engine from configuration. It builds the secret detector
// from cfg.Secrets; see BuildWithDetector.
func Build(cfg *config.Config, logger *logging.Logger, opts ...Option) (*Engine, error) {
	det, err := secrets.FromSettings(cfg.Secrets)
	if err != nil {
		return nil, err
	}
	return BuildWithDetector(cfg, logger, det, opts...)
}

// BuildWithDetector wires an Engine around an existing secret detector,
// which may be nil. It builds the classifier and scorer and opens the
// store. A corrupted store fails with patterns.ErrStoreCorrupted.
func BuildWithDetector(cfg *config.Config, logger *logging.Logger, det *secrets.Detector, opts ...Option) (*Engine, error) {
	if logger == nil {
		logger = logging.NewNop()
	}

	copts := []classify.Option{
		classify.WithErrorRules(classify.RulesFromConfig(cfg.Classifier.ErrorRules)),
		classify.WithSecurityRules(classify.RulesFromConfig(cfg.Classifier.SecurityRules)),
	}
	if det != nil {
		copts = append(copts, classify.WithSecretFinder(det))
		opts = append([]Option{WithRedactor(det)}, opts...)
	}
	classifier := classify.New(copts...)
	scorer := scoring.New(scoring.ThresholdsFromConfig(cfg.Learning))

	store, err := patterns.Open(cfg.Store.Path, scorer, patterns.WithLogger(logger.Underlying()))
	if err != nil {
		return nil, err
	}

	return New(Config{
		SolutionsPath: cfg.Sources.SolutionsPath,
		MetricsPath:   cfg.Sources.MetricsPath,
		ReportDir:     cfg.Report.Dir,
		TopDetail:     cfg.Report.TopDetail,
		Insights:      insights.OptionsFromConfig(cfg.Insights),
	}, store, classifier, scorer, append([]Option{WithLogger(logger)}, opts...)...)
}
