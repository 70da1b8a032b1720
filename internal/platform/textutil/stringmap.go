// Package textutil normalises customer supplied text before it is stored or published.
package textutil

import (
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/unicode/norm"
)

var strictPolicy = bluemonday.StrictPolicy()

// NormalizeStringMap trims keys and values, removing entries with empty keys.
func NormalizeStringMap(values map[string]string) map[string]string {
	if len(values) == 0 {
		return nil
	}
	result := make(map[string]string, len(values))
	for key, value := range values {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		result[key] = strings.TrimSpace(value)
	}
	if len(result) == 0 {
		return nil
	}
	return result
}

// PlainText strips markup, applies NFC, collapses whitespace and truncates to limit runes.
// A non-positive limit disables truncation.
func PlainText(raw string, limit int) string {
	stripped := strictPolicy.Sanitize(raw)
	stripped = strings.NewReplacer("&amp;", "&", "&#39;", "'", "&#34;", "\"", "&lt;", "<", "&gt;", ">").Replace(stripped)
	normalised := norm.NFC.String(stripped)

	var b strings.Builder
	count := 0
	space := false
	for _, r := range normalised {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			space = b.Len() > 0
			continue
		}
		if limit > 0 && count >= limit {
			break
		}
		if space {
			if limit > 0 && count+1 >= limit {
				break
			}
			b.WriteRune(' ')
			count++
			space = false
		}
		b.WriteRune(r)
		count++
	}
	return b.String()
}
