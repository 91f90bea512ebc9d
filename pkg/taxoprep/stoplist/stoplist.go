package stoplist

import "strings"

// Set holds the stop words removed during text cleaning.
type Set struct {
	stops map[string]struct{}
}

// New creates a stop-word set. Terms are lowercased.
func New(terms []string) *Set {
	stops := make(map[string]struct{}, len(terms))
	for _, s := range terms {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			stops[s] = struct{}{}
		}
	}
	return &Set{stops: stops}
}

// Default returns the built-in Indonesian stop words used for marketplace titles.
func Default() *Set {
	return New(indonesian)
}

// IsStop checks if a token is a stopword
func (m *Set) IsStop(token string) bool {
	_, ok := m.stops[token]
	return ok
}

// Add adds a token to the stoplist
func (m *Set) Add(token string) {
	if token = strings.ToLower(strings.TrimSpace(token)); token != "" {
		m.stops[token] = struct{}{}
	}
}

// Remove removes a token from the stoplist
func (m *Set) Remove(token string) {
	delete(m.stops, strings.ToLower(strings.TrimSpace(token)))
}

// Len returns the number of stop words.
func (m *Set) Len() int {
	return len(m.stops)
}

var indonesian = []string{
	"ada", "adalah", "agar", "akan", "aku", "anda", "antara", "apa", "atau", "bagi",
	"bahwa", "banyak", "beberapa", "belum", "bisa", "boleh", "dalam", "dan", "dapat",
	"dari", "dengan", "di", "dia", "hanya", "harus", "ini", "itu", "jadi", "jika",
	"juga", "kami", "kamu", "karena", "ke", "kepada", "ketika", "kita", "lagi", "lain",
	"maka", "masih", "mereka", "namun", "oleh", "pada", "para", "saat", "saja", "sama",
	"sangat", "sebagai", "sedang", "sehingga", "sejak", "seperti", "setelah", "sudah",
	"tanpa", "telah", "tentang", "tersebut", "tetapi", "tidak", "untuk", "yang",
}
