package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	minSearchTermLength = 2
	// MaxIndexedTerms bounds the terms stored per document.
	MaxIndexedTerms = 200
	// MaxQueryTerms matches the value limit of a Firestore array-contains-any filter.
	MaxQueryTerms = 10
)

// fold lowercases s and strips combining marks so "Crème" and "creme" compare equal.
// Casers and transformers are stateful, so each call builds its own.
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}
	return cases.Fold().String(stripped)
}

func words(s string) []string {
	return strings.FieldsFunc(fold(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// SearchTerms tokenises the given fields into unique folded words, keeping at most limit
// terms in first-seen order. A non-positive limit keeps every term.
func SearchTerms(limit int, fields ...string) []string {
	seen := make(map[string]struct{})
	var terms []string
	for _, field := range fields {
		for _, word := range words(field) {
			if len([]rune(word)) < minSearchTermLength {
				continue
			}
			if _, ok := seen[word]; ok {
				continue
			}
			seen[word] = struct{}{}
			terms = append(terms, word)
			if limit > 0 && len(terms) == limit {
				return terms
			}
		}
	}
	return terms
}

// Slugify derives a URL slug such as "linen-shirt" from a display name.
func Slugify(name string) string {
	return strings.Join(words(name), "-")
}
