// Package wordpiece implements BERT-style uncased WordPiece tokenization
// producing fixed-length id sequences.
package wordpiece

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

const maxWordRunes = 200

// Tokenizer performs BERT-style WordPiece tokenization. It is read-only after
// construction and safe for concurrent use.
type Tokenizer struct {
	vocab *Vocab
}

// New creates a tokenizer over v.
func New(v *Vocab) *Tokenizer {
	return &Tokenizer{vocab: v}
}

// Load creates a tokenizer from a vocab.txt file.
func Load(vocabPath string) (*Tokenizer, error) {
	v, err := LoadVocab(vocabPath)
	if err != nil {
		return nil, err
	}
	return New(v), nil
}

// Vocab returns the tokenizer's vocabulary.
func (t *Tokenizer) Vocab() *Vocab {
	return t.vocab
}

// Encode converts text into exactly maxLength ids: [CLS] tokens... [SEP]
// followed by [PAD]. Tokens are truncated so the specials always fit.
func (t *Tokenizer) Encode(text string, maxLength int) []int64 {
	if maxLength <= 0 {
		return []int64{}
	}
	tokens := t.Tokens(text)
	if room := maxLength - 2; len(tokens) > room {
		if room < 0 {
			room = 0
		}
		tokens = tokens[:room]
	}

	ids := make([]int64, 0, maxLength)
	ids = append(ids, t.vocab.ClsID)
	for _, tok := range tokens {
		ids = append(ids, t.vocab.Lookup(tok))
	}
	ids = append(ids, t.vocab.SepID)
	for len(ids) < maxLength {
		ids = append(ids, t.vocab.PadID)
	}
	return ids[:maxLength]
}

// Tokens returns the WordPiece tokens of text without special tokens.
func (t *Tokenizer) Tokens(text string) []string {
	var result []string
	for _, token := range basicTokenize(text) {
		result = append(result, t.wordpieceToken(token)...)
	}
	return result
}

// wordpieceToken decomposes a single basic token into WordPiece subwords
// by greedy longest match.
func (t *Tokenizer) wordpieceToken(token string) []string {
	runes := []rune(token)
	if len(runes) > maxWordRunes {
		return []string{"[UNK]"}
	}

	var subTokens []string
	start := 0
	for start < len(runes) {
		end := len(runes)
		found := false
		for end > start {
			sub := string(runes[start:end])
			if start > 0 {
				sub = "##" + sub
			}
			if t.vocab.Contains(sub) {
				subTokens = append(subTokens, sub)
				found = true
				break
			}
			end--
		}
		if !found {
			return []string{"[UNK]"}
		}
		start = end
	}
	return subTokens
}

// basicTokenize cleans, lowercases, strips accents and splits on whitespace
// and punctuation.
func basicTokenize(text string) []string {
	text = cleanText(text)
	text = strings.ToLower(text)
	text = stripAccents(text)

	var tokens []string
	for _, word := range strings.Fields(text) {
		tokens = append(tokens, splitOnPunctuation(word)...)
	}
	return tokens
}

// cleanText removes control characters and replaces whitespace with spaces.
func cleanText(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if r == 0 || r == 0xFFFD || isControl(r) {
			continue
		}
		if isWhitespace(r) {
			b.WriteRune(' ')
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// stripAccents removes combining marks after NFD normalization.
func stripAccents(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range norm.NFD.String(text) {
		if unicode.In(r, unicode.Mn) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func splitOnPunctuation(word string) []string {
	var tokens []string
	var current strings.Builder
	for _, r := range word {
		if isPunctuation(r) {
			if current.Len() > 0 {
				tokens = append(tokens, current.String())
				current.Reset()
			}
			tokens = append(tokens, string(r))
		} else {
			current.WriteRune(r)
		}
	}
	if current.Len() > 0 {
		tokens = append(tokens, current.String())
	}
	return tokens
}

func isWhitespace(r rune) bool {
	if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
		return true
	}
	return unicode.Is(unicode.Zs, r)
}

func isControl(r rune) bool {
	if r == '\t' || r == '\n' || r == '\r' {
		return false
	}
	return unicode.IsControl(r)
}

// isPunctuation treats ASCII symbol ranges as punctuation, like BERT does.
func isPunctuation(r rune) bool {
	if (r >= 33 && r <= 47) || (r >= 58 && r <= 64) ||
		(r >= 91 && r <= 96) || (r >= 123 && r <= 126) {
		return true
	}
	return unicode.IsPunct(r)
}
