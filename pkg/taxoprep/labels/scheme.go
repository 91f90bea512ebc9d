package labels

import (
	"fmt"
	"strings"

	"github.com/cognicore/taxoprep/pkg/taxoprep/internalerr"
)

// Scheme selects how a category path becomes a supervision target.
type Scheme int

const (
	// Flat classifies over the deepest level of the taxonomy.
	Flat Scheme = iota
	// Level classifies over the names at one chosen depth.
	Level
	// Section emits one local decision per node on the path.
	Section
)

// AllLevels is the level argument for schemes that are not tied to one depth.
const AllLevels = -1

func (s Scheme) String() string {
	switch s {
	case Flat:
		return "flat"
	case Level:
		return "level"
	case Section:
		return "section"
	default:
		return fmt.Sprintf("scheme(%d)", int(s))
	}
}

// Valid reports whether s is one of the defined schemes.
func (s Scheme) Valid() bool {
	return s == Flat || s == Level || s == Section
}

// ParseScheme converts "flat", "level" or "section" to a Scheme.
func ParseScheme(name string) (Scheme, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "flat":
		return Flat, nil
	case "level":
		return Level, nil
	case "section", "hierarchical", "hierarchy":
		return Section, nil
	default:
		return 0, fmt.Errorf("%q: %w", name, internalerr.ErrInvalidScheme)
	}
}
