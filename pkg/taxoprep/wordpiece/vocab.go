package wordpiece

import (
	"bufio"
	"fmt"
	"os"
)

// Vocab holds a WordPiece vocabulary. Token IDs are line numbers (0-indexed)
// of the vocab.txt it was loaded from.
type Vocab struct {
	tokenToID map[string]int64
	idToToken []string

	PadID int64
	UnkID int64
	ClsID int64
	SepID int64
}

// NewVocab builds a vocabulary from tokens in ID order. The special tokens
// [PAD], [UNK], [CLS] and [SEP] must be present.
func NewVocab(tokens []string) (*Vocab, error) {
	if len(tokens) == 0 {
		return nil, fmt.Errorf("vocab: no tokens")
	}
	v := &Vocab{
		tokenToID: make(map[string]int64, len(tokens)),
		idToToken: tokens,
	}
	for i, tok := range tokens {
		v.tokenToID[tok] = int64(i)
	}

	specials := []struct {
		name string
		dest *int64
	}{
		{"[PAD]", &v.PadID},
		{"[UNK]", &v.UnkID},
		{"[CLS]", &v.ClsID},
		{"[SEP]", &v.SepID},
	}
	for _, s := range specials {
		id, ok := v.tokenToID[s.name]
		if !ok {
			return nil, fmt.Errorf("vocab: missing special token %s", s.name)
		}
		*s.dest = id
	}
	return v, nil
}

// LoadVocab reads a vocab.txt file, one token per line.
func LoadVocab(path string) (*Vocab, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("vocab: %w", err)
	}
	defer f.Close()

	var tokens []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		tokens = append(tokens, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("vocab: read error: %w", err)
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("vocab: file is empty: %s", path)
	}
	return NewVocab(tokens)
}

// Lookup returns the token ID, or UnkID if the token is unknown.
func (v *Vocab) Lookup(token string) int64 {
	if id, ok := v.tokenToID[token]; ok {
		return id
	}
	return v.UnkID
}

// Contains reports whether the token is in the vocabulary.
func (v *Vocab) Contains(token string) bool {
	_, ok := v.tokenToID[token]
	return ok
}

// Size returns the number of tokens in the vocabulary.
func (v *Vocab) Size() int {
	return len(v.idToToken)
}
