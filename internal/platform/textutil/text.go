package textutil

import (
	"html"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// MaxInstructionsLength bounds free-form customer notes, in runes.
const MaxInstructionsLength = 1000

var strictPolicy = bluemonday.StrictPolicy()

// SanitizePlainText strips markup and control characters, normalises to NFC and truncates to
// maxRunes. Line breaks are preserved; other whitespace runs collapse to a single space.
func SanitizePlainText(value string, maxRunes int) string {
	if strings.TrimSpace(value) == "" {
		return ""
	}
	stripped := html.UnescapeString(strictPolicy.Sanitize(value))
	stripped = norm.NFC.String(stripped)

	lines := strings.Split(strings.ReplaceAll(stripped, "\r\n", "\n"), "\n")
	cleaned := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.Map(func(r rune) rune {
			if unicode.IsControl(r) && r != '\t' {
				return -1
			}
			return r
		}, line)
		cleaned = append(cleaned, strings.Join(strings.Fields(line), " "))
	}
	result := strings.TrimSpace(strings.Join(cleaned, "\n"))
	if maxRunes > 0 {
		runes := []rune(result)
		if len(runes) > maxRunes {
			result = strings.TrimSpace(string(runes[:maxRunes]))
		}
	}
	return result
}

// NormalizeName trims a person's name, collapses inner whitespace and normalises to NFC.
// Casing is preserved.
func NormalizeName(value string) string {
	return norm.NFC.String(strings.Join(strings.Fields(value), " "))
}

// NormalizeEmail trims and lowercases an email address for storage and comparison.
func NormalizeEmail(value string) string {
	return cases.Lower(language.Und).String(strings.TrimSpace(value))
}

// RuneLength counts characters rather than bytes.
func RuneLength(value string) int {
	return len([]rune(value))
}
