package report

import (
	"fmt"
	"time"
)

// FormatPercentage formats a ratio (0-1) as a percentage.
func FormatPercentage(ratio float64) string {
	return fmt.Sprintf("%.1f%%", ratio*100)
}

// FormatConfidence formats a confidence value with two decimals.
func FormatConfidence(c float64) string {
	return fmt.Sprintf("%.2f", c)
}

// FormatRate formats a per-week rate as "X.X/week".
func FormatRate(perWeek float64) string {
	return fmt.Sprintf("%.1f/week", perWeek)
}

// FormatDelta formats a signed change such as confidence growth.
func FormatDelta(d float64) string {
	return fmt.Sprintf("%+.3f", d)
}

// FormatDuration formats a duration as "Xd Yh", "Xh Ym" or "Xm".
func FormatDuration(d time.Duration) string {
	seconds := int64(d.Seconds())
	days := seconds / 86400
	hours := (seconds % 86400) / 3600
	minutes := (seconds % 3600) / 60

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh", days, hours)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}

// FormatAge formats how long ago t was relative to now.
func FormatAge(t, now time.Time) string {
	if t.IsZero() {
		return "never"
	}
	if t.After(now) {
		return "just now"
	}
	return FormatDuration(now.Sub(t)) + " ago"
}
