package util

import "strings"

// Slugify turns a display name into a URL-safe slug: lowercase,
// apostrophes dropped, runs of other non-alphanumerics collapsed to a
// single hyphen. Uniqueness is the caller's problem.
func Slugify(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, "'", "")

	var b strings.Builder
	lastHyphen := false
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen && b.Len() > 0 {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}

	return strings.TrimRight(b.String(), "-")
}
