package voice

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	speechURLPattern          = regexp.MustCompile(`https?://\S+`)
	speechFencedCodePattern   = regexp.MustCompile("(?s)```.*?```")
	speechInlineCodePattern   = regexp.MustCompile("`[^`]*`")
	speechMarkdownLinkPattern = regexp.MustCompile(`\[(.*?)\]\((.*?)\)`)
	speechListMarkerPattern   = regexp.MustCompile(`(?m)^\s*(?:[-*+•]|\d+[.)])\s+`)
)

var speechMarkupReplacer = strings.NewReplacer(
	"*", " ",
	"_", " ",
	"\\", " ",
	"|", " ",
	"#", " ",
	"~", " ",
	"<", " ",
	">", " ",
)

// speechText prepares an assistant reply for synthesis: markdown, links and
// symbols are dropped, list items become sentences, whitespace collapses.
func speechText(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	raw = speechFencedCodePattern.ReplaceAllString(raw, " ")
	raw = speechInlineCodePattern.ReplaceAllString(raw, " ")
	raw = speechMarkdownLinkPattern.ReplaceAllString(raw, "$1")
	raw = speechURLPattern.ReplaceAllString(raw, " ")
	raw = speechListMarkerPattern.ReplaceAllString(raw, "")
	raw = speechMarkupReplacer.Replace(raw)

	runes := []rune(raw)
	var b strings.Builder
	b.Grow(len(raw))
	prevSpace := true

	for i, r := range runes {
		switch {
		case r == '\u200d' || r == '\ufe0f' || r == '\u20e3':
			continue
		case unicode.IsSpace(r):
			if !prevSpace {
				b.WriteByte(' ')
				prevSpace = true
			}
		case unicode.IsControl(r):
			continue
		case unicode.In(r, unicode.So, unicode.Sm, unicode.Sk):
			continue
		case r == '/' && digitAt(runes, i-1) && digitAt(runes, i+1):
			// "24/7" reads naturally; other slashes do not.
			b.WriteRune(r)
			prevSpace = false
		case isSpeechSafePunctuation(r):
			b.WriteRune(r)
			prevSpace = false
		case unicode.IsPunct(r):
			if !prevSpace {
				b.WriteByte(' ')
				prevSpace = true
			}
		default:
			b.WriteRune(r)
			prevSpace = false
		}
	}

	return strings.TrimSpace(b.String())
}

func digitAt(runes []rune, i int) bool {
	return i >= 0 && i < len(runes) && unicode.IsDigit(runes[i])
}

func isSpeechSafePunctuation(r rune) bool {
	switch r {
	case '.', ',', '!', '?', ':', ';', '\'', '"', '-', '(', ')':
		return true
	default:
		return false
	}
}
