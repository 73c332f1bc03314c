package acml

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arrowhead-f/confsys/pkg/apes"
)

// TestPatchIndexIntoEmptyBody tests coercion of an empty map into a
// null-padded list
func TestPatchIndexIntoEmptyBody(t *testing.T) {
	doc := Document{Name: "d", Body: apes.Map()}
	patch := Patch{Name: "d", Path: "3/name", Data: apes.Text("svc")}

	got, err := patch.Apply(doc)
	require.NoError(t, err)

	want, err := apes.DecodeJSON([]byte(`[null,null,null,{"name":"svc"}]`))
	require.NoError(t, err)
	require.True(t, got.Body.Equal(want), "body = %v", got.Body)
}

// TestPatchNameMismatch tests the mismatched-name failure
func TestPatchNameMismatch(t *testing.T) {
	doc := Document{Name: "d", Body: apes.Map()}
	_, err := Patch{Name: "other", Path: "", Data: apes.Null()}.Apply(doc)
	require.ErrorIs(t, err, ErrNameMismatch)
}

// TestPatchEmptyPathReplacesBody tests whole-body replacement
func TestPatchEmptyPathReplacesBody(t *testing.T) {
	doc := Document{Name: "d", Body: apes.Map(apes.Entry{Key: "old", Value: apes.Number(1)})}

	got, err := Patch{Name: "d", Path: "", Data: apes.Text("fresh")}.Apply(doc)
	require.NoError(t, err)
	require.True(t, got.Body.Equal(apes.Text("fresh")))
}

// TestPatchLocalization tests that only the addressed subtree changes
func TestPatchLocalization(t *testing.T) {
	body, err := apes.DecodeJSON([]byte(`{"keep":{"x":1},"target":{"inner":[10,20,30]},"tail":true}`))
	require.NoError(t, err)
	doc := Document{Name: "d", Body: body}

	got, err := Patch{Name: "d", Path: "target/inner/1", Data: apes.Number(99)}.Apply(doc)
	require.NoError(t, err)

	want, err := apes.DecodeJSON([]byte(`{"keep":{"x":1},"target":{"inner":[10,99,30]},"tail":true}`))
	require.NoError(t, err)
	require.True(t, got.Body.Equal(want), "body = %v", got.Body)

	// The input document body is untouched.
	require.True(t, doc.Body.Equal(body))
}

// TestPatchCoercesMapOverList tests map coercion when a segment keys into
// a list
func TestPatchCoercesMapOverList(t *testing.T) {
	doc := Document{Name: "d", Body: apes.List(apes.Number(1), apes.Number(2))}

	got, err := Patch{Name: "d", Path: "key", Data: apes.Number(3)}.Apply(doc)
	require.NoError(t, err)

	want, err := apes.DecodeJSON([]byte(`{"key":3}`))
	require.NoError(t, err)
	require.True(t, got.Body.Equal(want))
}

// TestPatchDeepCreation tests container creation along a long path
func TestPatchDeepCreation(t *testing.T) {
	doc := Document{Name: "d", Body: apes.Null()}

	got, err := Patch{Name: "d", Path: "a/0/b", Data: apes.Boolean(true)}.Apply(doc)
	require.NoError(t, err)

	want, err := apes.DecodeJSON([]byte(`{"a":[{"b":true}]}`))
	require.NoError(t, err)
	require.True(t, got.Body.Equal(want), "body = %v", got.Body)
}

// TestPatchBadPath tests path grammar enforcement
func TestPatchBadPath(t *testing.T) {
	doc := Document{Name: "d", Body: apes.Map()}

	for _, path := range []string{"/", "a//b", "a/", "-x", "a/b-c", "a b"} {
		_, err := Patch{Name: "d", Path: path, Data: apes.Null()}.Apply(doc)
		require.ErrorIs(t, err, ErrBadPatchPath, "path %q", path)
	}
}

// TestPatchMissingDataIsNull tests the value-form default
func TestPatchMissingDataIsNull(t *testing.T) {
	v, err := apes.DecodeJSON([]byte(`{"name":"d","path":"x"}`))
	require.NoError(t, err)

	patch, err := PatchFromValue(v)
	require.NoError(t, err)
	require.True(t, patch.Data.IsNull())

	doc := Document{Name: "d", Body: apes.Map(apes.Entry{Key: "x", Value: apes.Number(1)})}
	got, err := patch.Apply(doc)
	require.NoError(t, err)
	value, ok := got.Body.Get("x")
	require.True(t, ok)
	require.True(t, value.IsNull())
}
