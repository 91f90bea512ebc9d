package taxonomy

import (
	"strings"

	"github.com/cognicore/taxoprep/pkg/taxoprep/internalerr"
)

// DefaultDelimiter separates the segments of a raw category label.
const DefaultDelimiter = " > "

// keySeparator joins segments in node keys. Segments may not contain it, so
// keys never collide whatever delimiter the labels use.
const keySeparator = "\x1f"

// Path is a normalized root-to-leaf category path.
type Path []string

// ParsePath splits a raw label on delimiter and lowercases every segment.
// An empty label, an empty segment or a segment holding a control
// separator is malformed.
func ParsePath(label, delimiter string) (Path, error) {
	if delimiter == "" {
		delimiter = DefaultDelimiter
	}
	if strings.TrimSpace(label) == "" {
		return nil, internalerr.ErrMalformedPath
	}

	parts := strings.Split(label, delimiter)
	path := make(Path, 0, len(parts))
	for _, part := range parts {
		seg := strings.ToLower(strings.TrimSpace(part))
		if seg == "" || strings.Contains(seg, keySeparator) {
			return nil, internalerr.ErrMalformedPath
		}
		path = append(path, seg)
	}
	return path, nil
}

// Leaf returns the deepest segment.
func (p Path) Leaf() string {
	if len(p) == 0 {
		return ""
	}
	return p[len(p)-1]
}

// Prefix returns the path of the node at depth. Depth -1 is the virtual
// root and yields an empty path.
func (p Path) Prefix(depth int) Path {
	if depth < 0 || len(p) == 0 {
		return nil
	}
	if depth >= len(p) {
		depth = len(p) - 1
	}
	return p[:depth+1]
}

// Key identifies the node at depth by its full prefix. Keys are opaque map
// keys; two nodes share a key only when their paths are equal.
func (p Path) Key(depth int) string {
	return strings.Join(p.Prefix(depth), keySeparator)
}

func (p Path) String() string {
	return strings.Join(p, DefaultDelimiter)
}
