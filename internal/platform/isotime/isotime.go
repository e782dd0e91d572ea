// Package isotime implements the boundary date format: ISO-8601 with
// millisecond precision and a literal Z suffix, e.g. 2022-02-03T15:00:00.000Z.
package isotime

import (
	"fmt"
	"strings"
	"time"
)

const Layout = "2006-01-02T15:04:05.000Z"

// Format renders t in UTC with exactly three fractional digits.
func Format(t time.Time) string {
	return t.UTC().Format(Layout)
}

// Parse accepts the canonical layout plus variants with a different number of
// fractional digits, as long as the timestamp is UTC-suffixed with Z.
func Parse(s string) (time.Time, error) {
	if !strings.HasSuffix(s, "Z") {
		return time.Time{}, fmt.Errorf("invalid date %q: missing Z suffix", s)
	}
	if t, err := time.Parse(Layout, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02T15:04:05Z07:00", s)
	if err != nil {
		t, err = time.Parse(time.RFC3339Nano, s)
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", s)
	}
	return t.UTC(), nil
}
