// Package tokenize canonicalises raw bibliographic field strings and
// encodes them into sparse, IDF-weighted token vectors (spec.md §4.2).
package tokenize

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// diacriticFold strips Unicode combining marks (category Mn) after NFKD
// decomposition, e.g. "Strindberg" stays itself but "Ångström" folds to
// "angstrom" once lowercased downstream.
var diacriticFold = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Canon canonicalises a raw string per spec.md §4.2: NFKD normalisation,
// diacritic folding, lowercasing, punctuation/whitespace runs collapsed to
// a single space, then trimmed. Canon is idempotent: Canon(Canon(s)) ==
// Canon(s) (spec.md §8 property 5).
func Canon(s string) string {
	folded, _, err := transform.String(diacriticFold, s)
	if err != nil {
		folded = s
	}
	folded = strings.ToLower(folded)

	var b strings.Builder
	b.Grow(len(folded))
	prevSpace := false
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			prevSpace = false
			continue
		}
		if !prevSpace && b.Len() > 0 {
			b.WriteByte(' ')
			prevSpace = true
		}
	}
	return strings.TrimSpace(b.String())
}

// Tokens splits a canonicalised string on whitespace. Callers that already
// hold a canonicalised string should call Tokens directly instead of
// re-running Canon.
func Tokens(canon string) []string {
	if canon == "" {
		return nil
	}
	return strings.Fields(canon)
}

// CanonTokens is a convenience wrapper: Canon followed by Tokens.
func CanonTokens(s string) []string {
	return Tokens(Canon(s))
}
