package view

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// MaxNameRunes caps display names.
const MaxNameRunes = 24

var (
	// names carry no markup at all
	namePolicy = bluemonday.StrictPolicy()

	// message text keeps simple inline formatting and safe links
	textPolicy = bluemonday.UGCPolicy().
			AllowElements("b", "i", "em", "strong", "u", "s", "del", "code", "pre", "br").
			AllowURLSchemes("http", "https", "mailto").
			RequireNoFollowOnLinks(true)
)

// SanitizeName strips markup from a display name and caps its length.
func SanitizeName(name string) string {
	clean := strings.TrimSpace(namePolicy.Sanitize(html.UnescapeString(name)))
	if utf8.RuneCountInString(clean) > MaxNameRunes {
		clean = string([]rune(clean)[:MaxNameRunes])
	}
	if clean == "" {
		return "anon"
	}
	return clean
}

// SanitizeText keeps the safe subset of markup in message text.
func SanitizeText(text string) string {
	if text == "" {
		return ""
	}
	return strings.TrimSpace(textPolicy.Sanitize(html.UnescapeString(text)))
}

// PlainText is message text with every tag removed, for terminals.
func PlainText(text string) string {
	return html.UnescapeString(strings.TrimSpace(namePolicy.Sanitize(text)))
}
