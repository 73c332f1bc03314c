package acml

import (
	"fmt"
	"strings"

	"github.com/arrowhead-f/confsys/pkg/apes"
)

// Document is a named configuration body, optionally bound to a template.
type Document struct {
	Name     string
	Template string
	Body     apes.Value
}

// Template names a field tree that documents can be validated against.
type Template struct {
	Name string
	Body Field
}

// Field is one node of a template's typed tree. Kind selects the
// constraint; the composite kinds carry their child fields. A List may
// constrain elements uniformly (Item), positionally (Items), or both; a
// Map likewise via Entry and Entries. A missing positional or keyed child
// is treated as absent, never as an error.
type Field struct {
	Name       string
	Kind       apes.Kind
	Conditions []Condition

	Item  *Field
	Items []*Field

	Entry   *Field
	Entries map[string]*Field
}

// ValidName reports whether a document or template name is acceptable:
// non-empty dot-joined identifier segments with no trailing dot.
func ValidName(name string) bool {
	if name == "" || strings.HasSuffix(name, ".") {
		return false
	}
	for _, segment := range strings.Split(name, ".") {
		if !validSegment(segment) {
			return false
		}
	}
	return true
}

func validSegment(segment string) bool {
	if len(segment) == 0 {
		return false
	}
	for i := 0; i < len(segment); i++ {
		c := segment[i]
		switch {
		case c >= 'A' && c <= 'Z':
		case c >= 'a' && c <= 'z':
		case c == '_':
		case c >= '0' && c <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// Report is the outcome of validating one document. A document is sound
// iff its report carries no violations.
type Report struct {
	DocumentName string
	TemplateName string
	Violations   []Violation
}

// Sound reports whether the document passed validation.
func (r Report) Sound() bool {
	return len(r.Violations) == 0
}

// Violation records one failed constraint: the condition text, the path
// into the body it failed at, and the captured error if the condition
// itself faulted.
type Violation struct {
	Condition string
	Path      string
	Error     string
}

func (v Violation) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s at %q", v.Condition, v.Path)
	if v.Error != "" {
		fmt.Fprintf(&sb, " (%s)", v.Error)
	}
	return sb.String()
}
