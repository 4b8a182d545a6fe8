package utils

import "fmt"

// DefaultPreviewLength is the preview length used when TruncateString gets a
// non-positive limit.
const DefaultPreviewLength = 500

// TruncateString shortens s to at most maxLen runes for log previews and
// error messages. A truncated result records the original length in bytes.
func TruncateString(s string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = DefaultPreviewLength
	}
	if len(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return fmt.Sprintf("%s... (truncated, total: %d chars)", string(runes[:maxLen]), len(s))
}
