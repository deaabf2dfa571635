package tui

import (
	"strings"
)

// truncateEnd shortens s to at most limit runes, ending with an ellipsis
// when cut. Tabs count as four spaces.
func truncateEnd(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	r := []rune(strings.ReplaceAll(s, "\t", "    "))
	if len(r) <= limit {
		return string(r)
	}
	if limit == 1 {
		return "…"
	}
	return string(r[:limit-1]) + "…"
}

// shortenPath fits a slash-separated location into limit runes by dropping
// leading directories. The last element is kept whole whenever it fits.
func shortenPath(p string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if len([]rune(p)) <= limit {
		return p
	}
	parts := strings.Split(p, "/")
	for i := 1; i < len(parts); i++ {
		candidate := "…/" + strings.Join(parts[i:], "/")
		if len([]rune(candidate)) <= limit {
			return candidate
		}
	}
	// Even the last element is too long: keep its end, which holds line:col.
	r := []rune(parts[len(parts)-1])
	if limit == 1 {
		return "…"
	}
	return "…" + string(r[len(r)-(limit-1):])
}
