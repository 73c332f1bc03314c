package acml

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/arrowhead-f/confsys/pkg/apes"
)

// ErrNameMismatch is returned when a patch is applied to a document with a
// different name.
var ErrNameMismatch = errors.New("acml: patch and document names differ")

// ErrBadPatchPath is returned for a path that does not match the patch
// path grammar.
var ErrBadPatchPath = errors.New("acml: malformed patch path")

// patchPathPattern: slash-separated segments, each an identifier or pure
// digits. The empty path addresses the whole body.
var patchPathPattern = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*|[0-9]+)(/([A-Za-z_][A-Za-z0-9_]*|[0-9]+))*$`)

// Patch replaces the value at a path inside one document's body. An
// all-digits segment indexes a list; any other segment keys a map. The
// containers along the path are coerced into existence.
type Patch struct {
	Name string
	Path string
	Data apes.Value
}

// Apply patches the document body, returning the mutated document.
func (p Patch) Apply(doc Document) (Document, error) {
	if doc.Name != p.Name {
		return doc, fmt.Errorf("%w: patch %q, document %q", ErrNameMismatch, p.Name, doc.Name)
	}
	if p.Path == "" {
		doc.Body = p.Data
		return doc, nil
	}
	if !patchPathPattern.MatchString(p.Path) {
		return doc, fmt.Errorf("%w: %q", ErrBadPatchPath, p.Path)
	}

	doc.Body = patchValue(doc.Body, strings.Split(p.Path, "/"), p.Data)
	return doc, nil
}

// patchValue descends segment by segment, coercing the current node to the
// container kind the segment implies, and replaces the terminal value.
func patchValue(node apes.Value, segments []string, data apes.Value) apes.Value {
	if len(segments) == 0 {
		return data
	}
	segment := segments[0]

	if index, ok := parseIndex(segment); ok {
		items, isList := node.Items()
		if !isList {
			items = nil
		}
		// Grow with nulls up to the index.
		grown := make([]apes.Value, len(items))
		copy(grown, items)
		for len(grown) <= index {
			grown = append(grown, apes.Null())
		}
		grown[index] = patchValue(grown[index], segments[1:], data)
		return apes.List(grown...)
	}

	entries, isMap := node.Entries()
	if !isMap {
		entries = nil
	}
	m := apes.Map(entries...)
	current, _ := m.Get(segment)
	return m.Set(segment, patchValue(current, segments[1:], data))
}

func parseIndex(segment string) (int, bool) {
	for i := 0; i < len(segment); i++ {
		if segment[i] < '0' || segment[i] > '9' {
			return 0, false
		}
	}
	index, err := strconv.Atoi(segment)
	if err != nil {
		return 0, false
	}
	return index, true
}
