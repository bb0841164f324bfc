package identity

import (
	"errors"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NormalizeName prepares a display name for use in a bucket name: control characters
// are dropped, the result is NFC-composed and trimmed. Names that would escape the
// storage root are rejected.
func NormalizeName(name string) (string, error) {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Cc)), norm.NFC)
	result, _, err := transform.String(t, name)
	if err != nil {
		return "", err
	}
	result = strings.TrimSpace(result)
	if result == "" {
		return "", errors.New("name is empty")
	}
	if strings.ContainsAny(result, `/\`) || result == "." || result == ".." {
		return "", errors.New("name must not contain path separators")
	}
	return result, nil
}

// RemoveDiacritics removes diacritical marks from a string (e.g., "João" -> "Joao").
func RemoveDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// MatchKey folds a name for comparison (lowercase, no diacritics, spaces for dashes
// and underscores).
func MatchKey(name string) string {
	name = RemoveDiacritics(name)
	name = strings.ToLower(name)
	name = strings.NewReplacer("-", " ", "_", " ").Replace(name)
	return strings.Join(strings.Fields(name), " ")
}
