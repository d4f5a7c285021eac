package format

import (
	"fmt"
	"strings"
	"time"
)

// Score formats a verdict score as "4/5".
func Score(s int) string { return fmt.Sprintf("%d/5", s) }

// Overall formats the run's overall score with two decimals.
func Overall(v float64) string { return fmt.Sprintf("%.2f/5", v) }

// Duration formats d as "Xm Ys", "Ys" or "Nms" for sub-second runs.
func Duration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	s := int(d.Seconds())
	if s >= 60 {
		return fmt.Sprintf("%dm %ds", s/60, s%60)
	}
	return fmt.Sprintf("%ds", s)
}

// Truncate shortens s to n characters, ending in "..." when cut.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}

// OneLine collapses all whitespace runs, newlines included, to one space.
func OneLine(s string) string { return strings.Join(strings.Fields(s), " ") }

// BoolMark returns "✓" for true and "✗" for false.
func BoolMark(v bool) string {
	if v {
		return "✓"
	}
	return "✗"
}
