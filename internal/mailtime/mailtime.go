// Package mailtime normalizes the timestamp strings found on stored mail.
// Messages written over the life of the system carry several formats: the
// legacy "2006-01-02 15:04:05.999999" produced by the first writer, the same
// without fractional seconds, and ISO-style "2006-01-02T15:04:05" with an
// optional trailing Z. Parsing never fails hard; a string no layout accepts
// normalizes to the zero time so it sorts oldest and displays as "Unknown".
package mailtime

import (
	"fmt"
	"strings"
	"time"
)

const (
	legacyLayout   = "2006-01-02 15:04:05"
	extendedLayout = "2006-01-02T15:04:05"
	absoluteLayout = "Jan 2, 2006"
)

// Parse normalizes a stored timestamp string into a comparable instant.
// The second return reports whether any layout matched; on false the zero
// time is returned.
func Parse(raw string) (time.Time, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return time.Time{}, false
	}
	if dot := strings.IndexByte(trimmed, '.'); dot > 0 {
		trimmed = trimmed[:dot]
	}
	if strings.ContainsRune(trimmed, 'T') {
		trimmed = strings.TrimSuffix(trimmed, "Z")
		if parsed, err := time.Parse(extendedLayout, trimmed); err == nil {
			return parsed, true
		}
		return time.Time{}, false
	}
	if parsed, err := time.Parse(legacyLayout, trimmed); err == nil {
		return parsed, true
	}
	return time.Time{}, false
}

// Format renders an instant in the legacy stored format, fractional seconds
// included, so new writes stay compatible with existing records.
func Format(t time.Time) string {
	return t.Format("2006-01-02 15:04:05.000000")
}

// Display renders a parsed instant as a short relative string for the feed.
// The zero time (an unparseable stored value) displays as "Unknown".
func Display(t, now time.Time) string {
	if t.IsZero() {
		return "Unknown"
	}
	elapsed := now.Sub(t)
	switch {
	case elapsed < time.Minute:
		return "Just now"
	case elapsed < time.Hour:
		return fmt.Sprintf("%dm ago", int(elapsed.Minutes()))
	case sameDay(t, now):
		return fmt.Sprintf("%dh ago", int(elapsed.Hours()))
	case sameDay(t, now.AddDate(0, 0, -1)):
		return "Yesterday"
	case elapsed < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(elapsed.Hours()/24))
	default:
		return t.Format(absoluteLayout)
	}
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
