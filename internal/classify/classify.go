// Package classify maps evidence to classification keys.
//
// Error text is matched against ordered (substring, category) tables where
// the first match wins. Security rules are consulted before error rules,
// then secret detection. Metric snapshots are keyed by task type and by
// assignment strategy.
package classify

import (
	"strings"
	"unicode/utf8"

	"github.com/fyrsmithlabs/patternd/internal/config"
	"github.com/fyrsmithlabs/patternd/internal/patterns"
)

// UnknownError is the category for error text no rule matches.
const UnknownError = "UNKNOWN_ERROR"

// SecretExposure is the security category for detected credentials.
const SecretExposure = "SECRET_EXPOSURE"

// Rule maps a case-sensitive substring to a category.
type Rule struct {
	Match    string
	Category string
}

// DefaultErrorRules returns the built-in error table in match order.
func DefaultErrorRules() []Rule {
	return []Rule{
		{Match: "Cannot read property", Category: "NULL_REFERENCE"},
		{Match: "is not a function", Category: "TYPE_ERROR"},
		{Match: "SyntaxError", Category: "SYNTAX_ERROR"},
		{Match: "Module not found", Category: "MISSING_DEPENDENCY"},
		{Match: "Permission denied", Category: "PERMISSION_ERROR"},
		{Match: "timeout", Category: "TIMEOUT_ERROR"},
	}
}

// DefaultSecurityRules returns the built-in security table in match order.
// Security rules run before error rules, so each substring names a finding
// rather than a topic; a bare "credential" would claim errors such as a
// failing credential helper.
func DefaultSecurityRules() []Rule {
	return []Rule{
		{Match: "CVE-", Category: "VULNERABLE_DEPENDENCY"},
		{Match: "SQL injection", Category: "INJECTION"},
		{Match: "XSS", Category: "CROSS_SITE_SCRIPTING"},
		{Match: "CSRF", Category: "CSRF"},
		{Match: "x509", Category: "TLS_CERTIFICATE"},
		{Match: "exposed credential", Category: "CREDENTIAL_EXPOSURE"},
	}
}

// RulesFromConfig converts configured rules. An empty list yields nil so
// callers fall back to the defaults.
func RulesFromConfig(in []config.RuleConfig) []Rule {
	if len(in) == 0 {
		return nil
	}
	out := make([]Rule, len(in))
	for i, r := range in {
		out[i] = Rule{Match: r.Match, Category: r.Category}
	}
	return out
}

// Match returns the first rule in table order whose substring occurs in
// text.
func Match(text string, rules []Rule) (Rule, bool) {
	for _, r := range rules {
		if r.Match != "" && strings.Contains(text, r.Match) {
			return r, true
		}
	}
	return Rule{}, false
}

// Classify returns the category of the first matching rule, or
// UnknownError.
func Classify(text string, rules []Rule) string {
	if r, ok := Match(text, rules); ok {
		return r.Category
	}
	return UnknownError
}

// SecretFinder reports whether text contains a credential.
type SecretFinder interface {
	Find(text string) (ruleID string, ok bool)
}

// Key identifies a bucket and the pattern it can become.
type Key struct {
	Type    patterns.Type
	Subtype string
	Trigger string
	// RuleID names the security rule that fired; empty otherwise.
	RuleID string
}

// Classifier holds the active tables.
type Classifier struct {
	errorRules    []Rule
	securityRules []Rule
	secrets       SecretFinder
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithErrorRules replaces the error table. Nil keeps the defaults.
func WithErrorRules(rules []Rule) Option {
	return func(c *Classifier) {
		if rules != nil {
			c.errorRules = rules
		}
	}
}

// WithSecurityRules replaces the security table. Nil keeps the defaults.
func WithSecurityRules(rules []Rule) Option {
	return func(c *Classifier) {
		if rules != nil {
			c.securityRules = rules
		}
	}
}

// WithSecretFinder enables SECRET_EXPOSURE classification.
func WithSecretFinder(f SecretFinder) Option {
	return func(c *Classifier) { c.secrets = f }
}

// New creates a Classifier with the default tables.
func New(opts ...Option) *Classifier {
	c := &Classifier{
		errorRules:    DefaultErrorRules(),
		securityRules: DefaultSecurityRules(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ErrorRules returns a copy of the active error table.
func (c *Classifier) ErrorRules() []Rule {
	return append([]Rule(nil), c.errorRules...)
}

// ClassifyError returns the error category of text.
func (c *Classifier) ClassifyError(text string) string {
	return Classify(text, c.errorRules)
}

// ClassifySecurity returns the security key for text, if any.
func (c *Classifier) ClassifySecurity(text string) (Key, bool) {
	if r, ok := Match(text, c.securityRules); ok {
		return Key{
			Type:    patterns.TypeSecurityFix,
			Subtype: r.Category,
			Trigger: r.Match,
			RuleID:  r.Category,
		}, true
	}
	if c.secrets != nil {
		if ruleID, ok := c.secrets.Find(text); ok {
			return Key{
				Type:    patterns.TypeSecurityFix,
				Subtype: SecretExposure,
				Trigger: "secret:" + ruleID,
				RuleID:  ruleID,
			}, true
		}
	}
	return Key{}, false
}

// ErrorKey classifies one error text. Security categories take precedence
// over error categories. The trigger is the rule substring that matched.
// Unmatched text is keyed by its normalised form, so unrelated unknown
// errors land in separate buckets; text holding a detected secret never
// gets here because it classifies as SECRET_EXPOSURE first.
func (c *Classifier) ErrorKey(text string) Key {
	if k, ok := c.ClassifySecurity(text); ok {
		return k
	}
	if r, ok := Match(text, c.errorRules); ok {
		return Key{Type: patterns.TypeErrorResolution, Subtype: r.Category, Trigger: r.Match}
	}
	trigger := NormalizeError(text)
	if trigger == "" {
		trigger = UnknownError
	}
	return Key{Type: patterns.TypeErrorResolution, Subtype: UnknownError, Trigger: trigger}
}

// maxTriggerLen bounds a trigger derived from free error text.
const maxTriggerLen = 120

// NormalizeError lower-cases text, collapses whitespace, trims trailing
// punctuation and cuts the result to maxTriggerLen bytes on a rune
// boundary.
func NormalizeError(text string) string {
	s := strings.ToLower(strings.Join(strings.Fields(text), " "))
	if len(s) > maxTriggerLen {
		cut := maxTriggerLen
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = strings.TrimSpace(s[:cut])
	}
	return strings.TrimRight(s, ".,;:!?")
}
