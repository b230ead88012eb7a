package utils

import "github.com/rapidassist/docpipe/constants"

// Truncate enforces a length ceiling: input longer than max comes back
// cut to exactly max bytes, ending with the truncation marker. Content
// is never dropped silently.
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	keep := max - len(constants.TruncationMarker)
	if keep < 0 {
		keep = 0
	}
	return s[:keep] + constants.TruncationMarker
}

// Ellipsize caps a string for log output.
func Ellipsize(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
