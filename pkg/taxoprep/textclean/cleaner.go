// Package textclean normalizes raw record text before subword tokenization:
// markup and URL removal, ASCII letter filtering, stop-word removal and stemming.
package textclean

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"github.com/cognicore/taxoprep/pkg/taxoprep/stoplist"
)

var (
	urlPattern     = regexp.MustCompile(`(https?://|www\.)\S+`)
	mentionPattern = regexp.MustCompile(`@\w+`)
)

// Cleaner handles text normalization. It only reads its configuration, so
// one Cleaner can serve many goroutines.
type Cleaner struct {
	stops   *stoplist.Set
	stemmer Stemmer
}

// NewCleaner creates a cleaner. A nil stop set removes nothing and a nil
// stemmer leaves words unchanged.
func NewCleaner(stops *stoplist.Set, stemmer Stemmer) *Cleaner {
	if stops == nil {
		stops = stoplist.New(nil)
	}
	if stemmer == nil {
		stemmer = NoStem
	}
	return &Cleaner{stops: stops, stemmer: stemmer}
}

// Clean returns the normalized form of text: lowercased ASCII words with
// URLs, mentions, digits, punctuation, stop words and single letters removed,
// each word stemmed, joined by single spaces.
func (c *Cleaner) Clean(text string) string {
	text = stripMarkup(text)
	text = strings.ToLower(text)
	text = urlPattern.ReplaceAllString(text, " ")
	text = mentionPattern.ReplaceAllString(text, " ")

	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			// digits vanish without splitting the word
		case strings.ContainsRune("(),!?'-`", r):
			// so does in-word punctuation: "t-shirt" -> "tshirt"
		default:
			b.WriteByte(' ')
		}
	}

	words := strings.Fields(b.String())
	kept := words[:0]
	for _, w := range words {
		if len(w) <= 1 || c.stops.IsStop(w) {
			continue
		}
		if w = c.stemmer.Stem(w); w != "" {
			kept = append(kept, w)
		}
	}
	return strings.Join(kept, " ")
}

// stripMarkup keeps only the text content of any HTML in s, with entities
// decoded. Script and style bodies are dropped.
func stripMarkup(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return s
	}

	z := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return b.String()
		case html.StartTagToken:
			if name, _ := z.TagName(); isRawTag(name) {
				skip++
			}
			b.WriteByte(' ')
		case html.EndTagToken:
			if name, _ := z.TagName(); isRawTag(name) && skip > 0 {
				skip--
			}
			b.WriteByte(' ')
		case html.SelfClosingTagToken:
			b.WriteByte(' ')
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		}
	}
}

func isRawTag(name []byte) bool {
	n := string(name)
	return n == "script" || n == "style"
}
