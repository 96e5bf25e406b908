package utils

import (
	"fmt"
	"strconv"
	"strings"
)

// FormatBytes renders a byte count with a binary-ish suffix for chat
// replies ("412.3 KB", "1.2 MB").
func FormatBytes(n int64) string {
	switch {
	case n >= 1024*1024*1024:
		return formatScaled(float64(n)/(1024*1024*1024), " GB")
	case n >= 1024*1024:
		return formatScaled(float64(n)/(1024*1024), " MB")
	case n >= 1024:
		return formatScaled(float64(n)/1024, " KB")
	}
	return strconv.FormatInt(n, 10) + " B"
}

func formatScaled(value float64, suffix string) string {
	s := fmt.Sprintf("%.1f", value)
	s = strings.TrimSuffix(s, ".0")
	return s + suffix
}

// Truncate shortens s to max runes, appending an ellipsis when cut.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}
