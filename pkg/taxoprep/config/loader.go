package config

import (
	"fmt"

	"github.com/cognicore/taxoprep/pkg/taxoprep/stoplist"
	"github.com/cognicore/taxoprep/pkg/taxoprep/textclean"
	"github.com/cognicore/taxoprep/pkg/taxoprep/wordpiece"
)

// Loader loads the text pipeline files and constructs components
type Loader struct {
	StoplistPath   string
	ExtraStopwords []string
	KeepWords      []string
	Stemmer        string
	VocabPath      string
}

// Components holds the loaded text pipeline
type Components struct {
	Stoplist  *stoplist.Set
	Cleaner   *textclean.Cleaner
	Tokenizer *wordpiece.Tokenizer
}

// NewLoader returns a Loader for the cleaner and tokenizer settings of c.
func (c *Config) NewLoader() *Loader {
	return &Loader{
		StoplistPath:   c.Cleaner.StoplistPath,
		ExtraStopwords: c.Cleaner.ExtraStopwords,
		KeepWords:      c.Cleaner.KeepWords,
		Stemmer:        c.Cleaner.Stemmer,
		VocabPath:      c.Tokenizer.VocabPath,
	}
}

// Load reads all configured files and returns initialized components.
// Without a stoplist file the built-in Indonesian list is used. Extra stop
// words are added to it, then keep words are removed.
func (l *Loader) Load() (*Components, error) {
	comp := &Components{}

	if l.StoplistPath != "" {
		sl, err := LoadStoplist(l.StoplistPath)
		if err != nil {
			return nil, fmt.Errorf("load stoplist: %w", err)
		}
		comp.Stoplist = stoplist.New(sl.Terms)
	} else {
		comp.Stoplist = stoplist.Default()
	}
	for _, w := range l.ExtraStopwords {
		comp.Stoplist.Add(w)
	}
	for _, w := range l.KeepWords {
		comp.Stoplist.Remove(w)
	}

	stemmer, err := textclean.StemmerByName(l.Stemmer)
	if err != nil {
		return nil, fmt.Errorf("load stemmer: %w", err)
	}
	comp.Cleaner = textclean.NewCleaner(comp.Stoplist, stemmer)

	if l.VocabPath == "" {
		return nil, fmt.Errorf("load tokenizer: no vocab path")
	}
	tok, err := wordpiece.Load(l.VocabPath)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}
	comp.Tokenizer = tok

	return comp, nil
}
