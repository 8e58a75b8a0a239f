// Package secrets detects and redacts credentials in evidence text using
// the Gitleaks rule set.
//
// Error messages and recorded solutions are copied into the pattern store,
// so anything resembling a credential is replaced with a marker before it
// is persisted. Detection also feeds the SECRET_EXPOSURE security category.
package secrets

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/zricethezav/gitleaks/v8/detect"
)

var (
	// ErrInvalidRegex indicates an allowlist pattern failed to compile.
	ErrInvalidRegex = errors.New("invalid regex pattern")

	// ErrInvalidTOML indicates an allowlist file could not be parsed.
	ErrInvalidTOML = errors.New("invalid TOML format")
)

// Finding is one detected secret.
type Finding struct {
	RuleID   string
	RuleDesc string
	Match    string
}

// Detector wraps a Gitleaks detector. It is safe for concurrent use.
type Detector struct {
	mu       sync.Mutex
	detector *detect.Detector
}

// NewDetector builds a detector from the default Gitleaks rules plus the
// optional allowlist.
func NewDetector(allowlist *Allowlist) (*Detector, error) {
	d, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("loading gitleaks rules: %w", err)
	}
	if allowlist != nil {
		if err := applyAllowlist(&d.Config, allowlist); err != nil {
			return nil, err
		}
	}
	return &Detector{detector: d}, nil
}

// Detect scans content and returns every finding.
func (d *Detector) Detect(content string) []Finding {
	if content == "" {
		return nil
	}

	d.mu.Lock()
	found := d.detector.DetectString(content)
	d.mu.Unlock()

	out := make([]Finding, 0, len(found))
	for _, f := range found {
		out = append(out, Finding{
			RuleID:   f.RuleID,
			RuleDesc: f.Description,
			Match:    f.Secret,
		})
	}
	return out
}

// Find reports the rule ID of the first finding in text, if any.
func (d *Detector) Find(text string) (string, bool) {
	findings := d.Detect(text)
	if len(findings) == 0 {
		return "", false
	}
	return findings[0].RuleID, true
}

// Redact replaces every detected secret in text with [REDACTED:<rule-id>].
func (d *Detector) Redact(text string) string {
	findings := d.Detect(text)
	if len(findings) == 0 {
		return text
	}

	// Longest first so a secret containing another is replaced whole.
	slices.SortFunc(findings, func(a, b Finding) int { return len(b.Match) - len(a.Match) })
	for _, f := range findings {
		if f.Match == "" {
			continue
		}
		text = strings.ReplaceAll(text, f.Match, "[REDACTED:"+f.RuleID+"]")
	}
	return text
}
