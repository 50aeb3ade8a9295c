package crawler

import (
	"regexp"
	"strings"
)

// TagSeparator joins sanitized tag tokens in Record.Tags.
const TagSeparator = "#"

// disallowedTagChars matches everything except Latin and Cyrillic letters
// (ё and Ё included), digits, hyphens and spaces.
var disallowedTagChars = regexp.MustCompile(`[^a-zA-Zа-яА-ЯёЁ0-9\- ]`)

// SanitizeTag strips every character a tag token may not contain.
// Surrounding spaces are kept.
func SanitizeTag(raw string) string {
	return disallowedTagChars.ReplaceAllString(raw, "")
}

// JoinTags sanitizes each raw tag and joins every token with TagSeparator,
// including tokens that sanitize to nothing.
func JoinTags(raw []string) string {
	tokens := make([]string, 0, len(raw))
	for _, tag := range raw {
		tokens = append(tokens, SanitizeTag(tag))
	}
	return strings.Join(tokens, TagSeparator)
}
