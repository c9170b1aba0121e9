package discord

import "strings"

func truncate(s string, limit int) string {
	rs := []rune(s)
	if len(rs) <= limit {
		return s
	}
	if limit <= 1 {
		return string(rs[:limit])
	}
	return string(rs[:limit-1]) + "…"
}

// splitText cuts s into chunks of at most limit runes, preferring newline
// boundaries that do not leave a tiny chunk behind.
func splitText(s string, limit int) []string {
	if limit <= 0 {
		limit = messageLimit
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}

	out := make([]string, 0, (len(rs)+limit-1)/limit)
	start := 0
	for start < len(rs) {
		end := min(start+limit, len(rs))
		if end < len(rs) {
			for i := end - 1; i > start; i-- {
				if rs[i] == '\n' && i-start >= limit/3 {
					end = i + 1
					break
				}
			}
		}
		out = append(out, strings.TrimRight(string(rs[start:end]), "\n"))
		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}
