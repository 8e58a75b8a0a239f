// internal/logging/redact.go
package logging

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/fyrsmithlabs/patternd/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

const (
	maskedKey     = "[REDACTED]"
	maskedPattern = "[REDACTED:pattern]"
	maxPatternLen = 200
)

// ValueRedactor rewrites credentials found inside a string value. The
// Gitleaks detector in internal/secrets satisfies it, so error text that
// quotes a token is scrubbed before it reaches stderr.
type ValueRedactor interface {
	Redact(text string) string
}

// Secret logs a config.Secret as its length only.
func Secret(key string, val config.Secret) zap.Field {
	n := len(val.Value())
	return zap.Object(key, zapcore.ObjectMarshalerFunc(func(enc zapcore.ObjectEncoder) error {
		enc.AddString(key, masked(n))
		return nil
	}))
}

// RedactedString logs val as its length only.
func RedactedString(key, val string) zap.Field {
	return zap.String(key, masked(len(val)))
}

func masked(n int) string {
	return "[REDACTED:" + strconv.Itoa(n) + "]"
}

// redactionRules is shared by an encoder and all of its clones.
type redactionRules struct {
	keys     map[string]struct{}
	patterns []*regexp.Regexp
	values   ValueRedactor
}

func compileRules(cfg RedactionConfig) (*redactionRules, error) {
	r := &redactionRules{keys: make(map[string]struct{}, len(cfg.Fields)), values: cfg.Values}
	for _, f := range cfg.Fields {
		r.keys[strings.ToLower(f)] = struct{}{}
	}
	for _, p := range cfg.Patterns {
		if len(p) > maxPatternLen {
			return nil, fmt.Errorf("redaction pattern too long (max %d chars): %q", maxPatternLen, p)
		}
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid redaction pattern %q: %w", p, err)
		}
		r.patterns = append(r.patterns, re)
	}
	return r, nil
}

// sensitive reports whether everything logged under key is hidden.
func (r *redactionRules) sensitive(key string) bool {
	if r == nil {
		return false
	}
	_, ok := r.keys[strings.ToLower(key)]
	return ok
}

// scrub returns val with credentials removed. A configured pattern masks
// the whole value; the value redactor masks only the matched span.
func (r *redactionRules) scrub(val string) string {
	if r == nil || val == "" {
		return val
	}
	for _, re := range r.patterns {
		if re.MatchString(val) {
			return maskedPattern
		}
	}
	if r.values != nil {
		return r.values.Redact(val)
	}
	return val
}

// RedactingEncoder wraps a zapcore.Encoder and hides sensitive keys and
// values. A disabled config yields a pass-through encoder.
type RedactingEncoder struct {
	zapcore.Encoder
	rules *redactionRules
}

// NewRedactingEncoder wraps base with the rules in cfg. It fails when a
// pattern does not compile.
func NewRedactingEncoder(base zapcore.Encoder, cfg RedactionConfig) (*RedactingEncoder, error) {
	if !cfg.Enabled {
		return &RedactingEncoder{Encoder: base}, nil
	}
	rules, err := compileRules(cfg)
	if err != nil {
		return nil, err
	}
	return &RedactingEncoder{Encoder: base, rules: rules}, nil
}

func (e *RedactingEncoder) AddString(key, val string) {
	if e.rules.sensitive(key) {
		val = maskedKey
	} else {
		val = e.rules.scrub(val)
	}
	e.Encoder.AddString(key, val)
}

func (e *RedactingEncoder) AddByteString(key string, val []byte) {
	if e.rules.sensitive(key) {
		e.Encoder.AddString(key, maskedKey)
		return
	}
	e.Encoder.AddByteString(key, val)
}

func (e *RedactingEncoder) AddBinary(key string, val []byte) {
	if e.rules.sensitive(key) {
		e.Encoder.AddString(key, maskedKey)
		return
	}
	e.Encoder.AddBinary(key, val)
}

func (e *RedactingEncoder) AddReflected(key string, val any) error {
	if e.rules.sensitive(key) {
		e.Encoder.AddString(key, maskedKey)
		return nil
	}
	return e.Encoder.AddReflected(key, val)
}

func (e *RedactingEncoder) AddArray(key string, arr zapcore.ArrayMarshaler) error {
	if e.rules.sensitive(key) {
		e.Encoder.AddString(key, maskedKey)
		return nil
	}
	return e.Encoder.AddArray(key, arr)
}

func (e *RedactingEncoder) AddObject(key string, obj zapcore.ObjectMarshaler) error {
	if e.rules.sensitive(key) {
		e.Encoder.AddString(key, maskedKey)
		return nil
	}
	return e.Encoder.AddObject(key, obj)
}

func (e *RedactingEncoder) Clone() zapcore.Encoder {
	return &RedactingEncoder{Encoder: e.Encoder.Clone(), rules: e.rules}
}

// EncodeEntry feeds per-entry fields through the redacting Add methods and
// scrubs the message itself. Handing fields to the wrapped encoder would
// skip both.
func (e *RedactingEncoder) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	enc := e.Clone().(*RedactingEncoder)
	for _, f := range fields {
		f.AddTo(enc)
	}
	ent.Message = e.rules.scrub(ent.Message)
	return enc.Encoder.EncodeEntry(ent, nil)
}
