package textclean

import (
	"fmt"
	"strings"
)

// Stemmer reduces a word to its stem.
type Stemmer interface {
	Stem(word string) string
}

// StemmerFunc adapts a function to Stemmer.
type StemmerFunc func(string) string

// Stem calls f(word).
func (f StemmerFunc) Stem(word string) string { return f(word) }

// NoStem leaves words unchanged.
var NoStem Stemmer = StemmerFunc(func(w string) string { return w })

// AffixRule strips Affix and substitutes Replacement when the remaining stem
// keeps at least MinLen bytes.
type AffixRule struct {
	Affix       string
	Replacement string
	MinLen      int
}

// AffixStemmer applies the first matching prefix rule and then the first
// matching suffix rule.
type AffixStemmer struct {
	Prefixes []AffixRule
	Suffixes []AffixRule
}

// Stem implements Stemmer.
func (s *AffixStemmer) Stem(word string) string {
	for _, rule := range s.Prefixes {
		if strings.HasPrefix(word, rule.Affix) {
			stem := rule.Replacement + word[len(rule.Affix):]
			if len(stem) >= rule.MinLen {
				word = stem
				break
			}
		}
	}
	for _, rule := range s.Suffixes {
		if strings.HasSuffix(word, rule.Affix) {
			stem := word[:len(word)-len(rule.Affix)] + rule.Replacement
			if len(stem) >= rule.MinLen {
				return stem
			}
		}
	}
	return word
}

// Indonesian strips inflectional particles, possessives and the common
// derivational affixes found in marketplace titles.
func Indonesian() *AffixStemmer {
	return &AffixStemmer{
		Prefixes: []AffixRule{
			{"meng", "", 3},
			{"peng", "", 3},
			{"mem", "", 3},
			{"pem", "", 3},
			{"men", "", 3},
			{"pen", "", 3},
			{"ber", "", 3},
			{"ter", "", 3},
			{"di", "", 3},
			{"ke", "", 3},
			{"se", "", 3},
		},
		Suffixes: []AffixRule{
			{"lah", "", 3},
			{"kah", "", 3},
			{"pun", "", 3},
			{"nya", "", 3},
			{"kan", "", 3},
			{"an", "", 3},
			{"ku", "", 3},
			{"mu", "", 3},
		},
	}
}

// English is a small suffix-stripping stemmer.
func English() *AffixStemmer {
	return &AffixStemmer{
		Suffixes: []AffixRule{
			{"ational", "ate", 2},
			{"tional", "tion", 2},
			{"encies", "ence", 2},
			{"ances", "ance", 2},
			{"ments", "ment", 2},
			{"izing", "ize", 2},
			{"ating", "ate", 2},
			{"iness", "y", 2},
			{"ously", "ous", 2},
			{"ively", "ive", 2},
			{"ies", "y", 2},
			{"ing", "", 3},
			{"ers", "er", 2},
			{"ed", "", 3},
			{"ly", "", 3},
			{"es", "", 3},
			{"ss", "ss", 2},
			{"s", "", 3},
		},
	}
}

// StemmerByName resolves "none", "indonesian" or "english".
func StemmerByName(name string) (Stemmer, error) {
	switch strings.ToLower(name) {
	case "", "none":
		return NoStem, nil
	case "indonesian", "id":
		return Indonesian(), nil
	case "english", "en":
		return English(), nil
	default:
		return nil, fmt.Errorf("unknown stemmer %q", name)
	}
}
