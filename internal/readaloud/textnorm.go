package readaloud

import (
	"regexp"
	"strings"
)

var (
	// Markup that must never reach the synthesis endpoint: HTML-ish
	// tags and bracketed annotations, in both ASCII and fullwidth
	// bracket styles.
	markupPattern = regexp.MustCompile(`<[^>]*>|\[[^\]]*\]|【[^】]*】|〔[^〕]*〕`)

	// Invisible format and unassigned characters that some sources
	// embed in chapter text.
	junkPattern = regexp.MustCompile(`[\p{Cf}\p{Co}\p{Cs}]`)

	spacePattern = regexp.MustCompile(`\s+`)

	// Characters that carry no speech: punctuation, separators,
	// symbols. A segment reduced to these is treated as silent.
	unspokenPattern = regexp.MustCompile(`[\p{P}\p{Z}\p{S}\s]`)
)

// NormalizeText strips markup and invisible characters from a segment
// and collapses whitespace. The result is what gets hashed into the
// cache key and sent to the synthesis endpoint.
func NormalizeText(s string) string {
	s = markupPattern.ReplaceAllString(s, " ")
	s = junkPattern.ReplaceAllString(s, "")
	s = spacePattern.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Speakable reports whether normalized text contains anything worth
// synthesizing. Headings reduced to decoration and punctuation-only
// paragraphs are not speakable and get a silent cache entry instead of
// a network call.
func Speakable(normalized string) bool {
	return unspokenPattern.ReplaceAllString(normalized, "") != ""
}
