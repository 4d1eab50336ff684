package utils

// Truncate shortens s to at most max runes, appending "..." when anything
// was cut. Used for log previews of message content.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
