// Package subtitle converts captured subtitle payloads into WebVTT, the one
// caption format the catalog stores and the player consumes.
package subtitle

import (
	"regexp"
	"strings"
)

const vttHeader = "WEBVTT"

var (
	// SRT timestamps use a comma before the millisecond part.
	commaTimestamp = regexp.MustCompile(`(\d{2}:\d{2}:\d{2}),(\d{3})`)
	bareIndexLine  = regexp.MustCompile(`^\d+$`)
	timestampLine  = regexp.MustCompile(`^\d{2}:\d{2}:\d{2}[.,]\d{3}\s+-->\s+\d{2}:\d{2}:\d{2}[.,]\d{3}`)
)

// ToVTT normalizes a subtitle payload into WebVTT. Payloads that already
// carry the WebVTT header pass through unchanged, which makes the conversion
// idempotent. Anything else is treated as SubRip: line endings are
// normalized, comma-decimal timestamps become period-decimal, numeric cue
// index lines are dropped and the WebVTT header is prepended.
func ToVTT(payload string) string {
	if IsVTT(payload) {
		return payload
	}

	normalized := strings.ReplaceAll(payload, "\r\n", "\n")
	normalized = strings.ReplaceAll(normalized, "\r", "\n")

	lines := strings.Split(normalized, "\n")
	out := make([]string, 0, len(lines)+2)
	out = append(out, vttHeader, "")

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if bareIndexLine.MatchString(trimmed) && nextIsTimestamp(lines, i+1) {
			continue
		}
		if timestampLine.MatchString(trimmed) {
			line = commaTimestamp.ReplaceAllString(line, "$1.$2")
		}
		out = append(out, line)
	}

	return strings.Join(out, "\n")
}

// IsVTT reports whether the payload is already in canonical form.
func IsVTT(payload string) bool {
	head := strings.TrimLeft(payload, "\uFEFF \t\n")
	return strings.HasPrefix(head, vttHeader)
}

func nextIsTimestamp(lines []string, from int) bool {
	for _, line := range lines[from:] {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		return timestampLine.MatchString(trimmed)
	}
	return false
}
