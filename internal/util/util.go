// Package util formats byte counts and durations as human-readable text —
// the ambient formatting concern outside the spec's hard core. No other
// package of this module imports it; /stats and the log lines print raw
// values.
package util

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

// FormatBytes renders n as a human-readable size, e.g. "1.2 GB".
func FormatBytes(n int64) string {
	return humanize.Bytes(uint64(n))
}

// FormatDuration renders d at second resolution, e.g. "2h3m4s".
func FormatDuration(d time.Duration) string {
	return d.Round(time.Second).String()
}

// FormatETA renders the estimated remaining time given elapsed duration
// and a 0-100 progress percentage; returns "unknown" when progress is
// non-positive.
func FormatETA(elapsed time.Duration, progressPercent float64) string {
	if progressPercent <= 0 {
		return "unknown"
	}
	total := time.Duration(float64(elapsed) / progressPercent * 100)
	remaining := total - elapsed
	if remaining < 0 {
		remaining = 0
	}
	return FormatDuration(remaining)
}

// FormatRelativeTime renders t relative to now, e.g. "3 minutes ago".
func FormatRelativeTime(t time.Time) string {
	return humanize.Time(t)
}

// FormatCount pluralizes word according to n, e.g. FormatCount(3, "track") -> "3 tracks".
func FormatCount(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}
