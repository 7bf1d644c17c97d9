package domain

import (
	"regexp"
	"strings"
	"unicode"
)

var postalCodePattern = regexp.MustCompile(`^[A-Z]\d[A-Z] \d[A-Z]\d$`)

// PostalCodeLength is the number of significant characters in a Canadian postal code.
const PostalCodeLength = 6

// NormalizePostalCode uppercases the input, drops anything that is not a letter or digit,
// keeps at most six characters and inserts a single space after the third character.
// The result is not guaranteed to be valid; use ValidPostalCode to check it.
func NormalizePostalCode(raw string) string {
	var b strings.Builder
	b.Grow(PostalCodeLength + 1)
	count := 0
	for _, r := range strings.ToUpper(raw) {
		if count == PostalCodeLength {
			break
		}
		if r > unicode.MaxASCII || !(unicode.IsLetter(r) || unicode.IsDigit(r)) {
			continue
		}
		if count == 3 {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
		count++
	}
	return b.String()
}

// ValidPostalCode reports whether code is in canonical "A1A 1A1" form.
func ValidPostalCode(code string) bool {
	return postalCodePattern.MatchString(code)
}

// FSA returns the forward sortation area (first three characters) of a canonical postal code.
func FSA(code string) string {
	if len(code) < 3 {
		return ""
	}
	return code[:3]
}
