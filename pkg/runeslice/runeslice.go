package runeslice

import "unicode/utf8"

// Cut splits s after the first n runes.
func Cut(s string, n int) (head, tail string) {
	i := 0
	for ; n > 0 && i < len(s); n-- {
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
	}
	return s[:i], s[i:]
}
