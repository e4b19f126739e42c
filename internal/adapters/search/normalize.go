package search

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// folder strips combining marks after NFD decomposition, the same effect as
// an asciifolding filter.
var folder = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// fold lowercases and accent-folds a name for matching.
func fold(s string) string {
	out, _, err := transform.String(folder, strings.ToLower(s))
	if err != nil {
		return strings.ToLower(s)
	}
	return out
}

// tokenize splits a folded string on anything that is not a letter or digit.
func tokenize(s string) []string {
	return strings.FieldsFunc(fold(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

const (
	minGram = 2
	maxGram = 15
)

// edgePrefixes returns the edge n-grams of a folded name used for prefix
// completion, grams of length 2..15 over the whole phrase.
func edgePrefixes(name string) []string {
	r := []rune(fold(name))
	if len(r) < minGram {
		return nil
	}
	hi := len(r)
	if hi > maxGram {
		hi = maxGram
	}
	out := make([]string, 0, hi-minGram+1)
	for i := minGram; i <= hi; i++ {
		out = append(out, string(r[:i]))
	}
	return out
}
