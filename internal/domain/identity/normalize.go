package identity

import (
	"strings"
	"unicode"
)

// phoneKeyLen is the number of trailing digits compared. A leading country
// code on either side does not prevent a match.
const phoneKeyLen = 10

// NormalizeEmail lower-cases and trims an email. An empty result means absent.
func NormalizeEmail(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// PhoneDigits strips every non-digit character.
func PhoneDigits(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// PhoneKey returns the last ten digits of raw. ok is false when fewer than
// ten digits remain after stripping.
func PhoneKey(raw string) (key string, ok bool) {
	digits := PhoneDigits(raw)
	if len(digits) < phoneKeyLen {
		return "", false
	}
	return digits[len(digits)-phoneKeyLen:], true
}

// NameKey builds the case-insensitive comparison key for a first/last pair.
// Both parts are required; otherwise the key is empty.
func NameKey(first, last string) string {
	first = collapseSpaces(first)
	last = collapseSpaces(last)
	if first == "" || last == "" {
		return ""
	}
	return strings.ToLower(first + " " + last)
}

// FullNameKey normalizes a combined name field.
func FullNameKey(name string) string {
	return strings.ToLower(collapseSpaces(name))
}

func collapseSpaces(s string) string {
	return strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
}
