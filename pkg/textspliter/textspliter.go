package textspliter

import (
	"strings"
	"unicode/utf8"

	"github.com/pechorka/pace-reader/pkg/runeslice"
)

// SplitWords splits text on runs of unicode whitespace. Empty tokens are dropped,
// so the same text always yields the same word indices.
func SplitWords(text string) []string {
	return strings.Fields(text)
}

// JoinWords is the inverse used to render a chunk.
func JoinWords(words []string) string {
	return strings.Join(words, " ")
}

// SplitMessage cuts text into pieces of at most limit runes, breaking on spaces
// where possible.
func SplitMessage(text string, limit int) []string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}
	var (
		parts   []string
		builder strings.Builder
		runes   int
	)
	flush := func() {
		if builder.Len() > 0 {
			parts = append(parts, builder.String())
			builder.Reset()
			runes = 0
		}
	}
	for _, word := range SplitWords(text) {
		for utf8.RuneCountInString(word) > limit { // a single word longer than the limit
			flush()
			var head string
			head, word = runeslice.Cut(word, limit)
			parts = append(parts, head)
		}
		wordLen := utf8.RuneCountInString(word)
		if wordLen == 0 {
			continue
		}
		sep := 0
		if runes > 0 {
			sep = 1
		}
		if runes+sep+wordLen > limit {
			flush()
			sep = 0
		}
		if sep == 1 {
			builder.WriteByte(' ')
		}
		builder.WriteString(word)
		runes += sep + wordLen
	}
	flush()
	return parts
}
