package messaging

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

const DefaultMaxLength = 2000

const maxCleanRounds = 4

// Sanitizer strips every tag and caps the result at maxLength runes. Output is
// plain text: entities are decoded before the policy runs, so encoded markup
// is stripped like literal markup.
type Sanitizer struct {
	policy    *bluemonday.Policy
	maxLength int
}

func NewSanitizer(maxLength int) *Sanitizer {
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}
	return &Sanitizer{policy: bluemonday.StrictPolicy(), maxLength: maxLength}
}

func (s *Sanitizer) Clean(content string) string {
	cleaned := s.strip(content)
	cleaned = strings.TrimSpace(cleaned)
	if utf8.RuneCountInString(cleaned) > s.maxLength {
		cleaned = strings.TrimSpace(string([]rune(cleaned)[:s.maxLength]))
	}
	return cleaned
}

// strip runs decode, sanitize, decode until the text is a fixed point, i.e.
// the policy finds nothing left to remove. Input that keeps producing tags
// after that loses its angle brackets.
func (s *Sanitizer) strip(content string) string {
	text := unescapeAll(content)
	for range maxCleanRounds {
		next := html.UnescapeString(s.policy.Sanitize(text))
		if next == text {
			return text
		}
		text = unescapeAll(next)
	}
	return strings.NewReplacer("<", "", ">", "").Replace(text)
}

// unescapeAll decodes nested encodings such as &amp;lt;.
func unescapeAll(text string) string {
	for range maxCleanRounds {
		next := html.UnescapeString(text)
		if next == text {
			break
		}
		text = next
	}
	return text
}
