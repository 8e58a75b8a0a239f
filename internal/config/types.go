package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration is a time.Duration that reads from YAML and environment
// variables. Besides Go duration strings it accepts a whole-day prefix,
// so "7d" and "1d12h" work for trend windows.
type Duration time.Duration

const day = 24 * time.Hour

// ParseDuration parses a Go duration string with an optional leading
// "<n>d" component. Negative values are rejected.
func ParseDuration(in string) (time.Duration, error) {
	s := strings.TrimSpace(in)
	var days time.Duration
	if i := strings.IndexByte(s, 'd'); i > 0 {
		n, err := strconv.Atoi(s[:i])
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", in)
		}
		days = time.Duration(n) * day
		s = s[i+1:]
	}

	var rest time.Duration
	if s != "" {
		var err error
		if rest, err = time.ParseDuration(s); err != nil {
			return 0, err
		}
	}

	total := days + rest
	if days < 0 || rest < 0 || total < 0 {
		return 0, fmt.Errorf("duration cannot be negative: %q", in)
	}
	return total, nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// MarshalJSON encodes the duration as a string so config dumps round-trip.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// Secret holds a credential such as the NATS token. It formats as
// [REDACTED] under every fmt verb and in JSON; Value returns the real
// string.
type Secret string

const redacted = "[REDACTED]"

// Value returns the actual secret value.
func (s Secret) Value() string { return string(s) }

// IsSet reports whether a value was configured.
func (s Secret) IsSet() bool { return s != "" }

// String implements fmt.Stringer.
func (s Secret) String() string {
	if !s.IsSet() {
		return ""
	}
	return redacted
}

// Format implements fmt.Formatter so %v, %+v, %#v and %q all redact.
func (s Secret) Format(f fmt.State, verb rune) {
	out := s.String()
	if verb == 'q' {
		out = strconv.Quote(out)
	}
	_, _ = f.Write([]byte(out))
}

// MarshalJSON implements json.Marshaler.
func (s Secret) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Secret) UnmarshalText(text []byte) error {
	*s = Secret(text)
	return nil
}
