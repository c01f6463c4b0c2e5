package tgui

// TruncRunes caps s at n runes, appending an ellipsis when anything was cut.
// Counting is by rune so multi-byte text (Chinese in particular) never gets
// split mid-character.
func TruncRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	seen := 0
	for i := range s {
		if seen == n {
			return s[:i] + "…"
		}
		seen++
	}
	return s
}
