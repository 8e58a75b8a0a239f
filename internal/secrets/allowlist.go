package secrets

import (
	"errors"
	"fmt"
	"os"
	"regexp"

	"github.com/BurntSushi/toml"
	"github.com/fyrsmithlabs/patternd/internal/config"
	gitleaksConfig "github.com/zricethezav/gitleaks/v8/config"
	gitleaksRegexp "github.com/zricethezav/gitleaks/v8/regexp"
)

// Allowlist holds content patterns that must never be reported as
// secrets, e.g. documented placeholder tokens that appear in error text.
type Allowlist struct {
	Regexes   []string
	StopWords []string
}

// LoadAllowlist reads a TOML allowlist of the form
//
//	[allowlist]
//	regexes = ["EXAMPLE_TOKEN_[0-9]+"]
//	stopwords = ["dummy"]
//
// A missing file yields an empty allowlist. Invalid TOML or regexes fail.
func LoadAllowlist(path string) (*Allowlist, error) {
	if path == "" {
		return &Allowlist{}, nil
	}

	var file struct {
		Allowlist struct {
			Regexes   []string `toml:"regexes"`
			StopWords []string `toml:"stopwords"`
		} `toml:"allowlist"`
	}

	if _, err := toml.DecodeFile(path, &file); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Allowlist{}, nil
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidTOML, path, err)
	}

	for _, pattern := range file.Allowlist.Regexes {
		if _, err := regexp.Compile(pattern); err != nil {
			return nil, fmt.Errorf("%w: %q in %s: %v", ErrInvalidRegex, pattern, path, err)
		}
	}

	return &Allowlist{
		Regexes:   file.Allowlist.Regexes,
		StopWords: file.Allowlist.StopWords,
	}, nil
}

// applyAllowlist appends the allowlist as a global Gitleaks allowlist.
func applyAllowlist(cfg *gitleaksConfig.Config, allowlist *Allowlist) error {
	global := &gitleaksConfig.Allowlist{
		Description: "patternd allowlist",
		StopWords:   allowlist.StopWords,
	}
	for _, pattern := range allowlist.Regexes {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("%w: %q: %v", ErrInvalidRegex, pattern, err)
		}
		global.Regexes = append(global.Regexes, (*gitleaksRegexp.Regexp)(re))
	}
	cfg.Allowlists = append(cfg.Allowlists, global)
	return nil
}

// FromSettings builds the detector described by s, or returns nil when
// secret detection is disabled.
func FromSettings(s config.SecretsConfig) (*Detector, error) {
	if !s.Enabled {
		return nil, nil
	}
	allow, err := LoadAllowlist(s.AllowlistPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load secrets allowlist: %w", err)
	}
	det, err := NewDetector(allow)
	if err != nil {
		return nil, fmt.Errorf("failed to create secret detector: %w", err)
	}
	return det, nil
}
