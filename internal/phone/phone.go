package phone

import "strings"

// Normalize reduces an arbitrary phone string to canonical digit-only form.
// Every non-digit character is stripped; a leading zero is dropped when the
// remaining number is longer than 10 digits (country-code cleanup). Total:
// garbage input yields an empty or short string, never an error.
func Normalize(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}

	n := b.String()
	if len(n) > 10 && n[0] == '0' {
		n = n[1:]
	}
	return n
}
