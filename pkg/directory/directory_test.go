package directory

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestDirectory(t *testing.T) *BoltDirectory {
	t.Helper()
	d, err := Open(t.TempDir(), &Options{MapSize: 1 << 20})
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

func add(t *testing.T, d Directory, entries ...Entry) {
	t.Helper()
	require.NoError(t, d.Write(func(w Writer) error {
		return w.Add(entries)
	}))
}

func list(t *testing.T, d Directory, paths ...string) []Entry {
	t.Helper()
	var entries []Entry
	require.NoError(t, d.Read(func(r Reader) error {
		var err error
		entries, err = r.List(paths)
		return err
	}))
	return entries
}

func paths(entries []Entry) []string {
	var out []string
	for _, entry := range entries {
		out = append(out, entry.Path)
	}
	return out
}

// TestListExactAndPrefix tests the two matching modes together
func TestListExactAndPrefix(t *testing.T) {
	d := openTestDirectory(t)
	add(t, d,
		Entry{Path: ".t.a", Value: []byte("a")},
		Entry{Path: ".t.b", Value: []byte("b")},
		Entry{Path: ".t.a.x", Value: []byte("x")},
	)

	// Fully qualified path matches exactly.
	got := list(t, d, ".t.a")
	require.Equal(t, []string{".t.a"}, paths(got))
	require.Equal(t, []byte("a"), got[0].Value)

	// Partial path matches every key with the prefix, in lexical order.
	got = list(t, d, ".t.")
	require.Equal(t, []string{".t.a", ".t.a.x", ".t.b"}, paths(got))
}

// TestListAll tests the match-everything forms
func TestListAll(t *testing.T) {
	d := openTestDirectory(t)
	add(t, d,
		Entry{Path: ".d.one", Value: []byte("1")},
		Entry{Path: ".t.two", Value: []byte("2")},
	)

	for _, input := range [][]string{nil, {}, {""}, {"."}} {
		got := list(t, d, input...)
		require.Equal(t, []string{".d.one", ".t.two"}, paths(got), "input %v", input)
	}
}

// TestListOverlappingNoDuplicates tests coalescing of overlapping paths
func TestListOverlappingNoDuplicates(t *testing.T) {
	d := openTestDirectory(t)
	add(t, d,
		Entry{Path: ".t.a", Value: []byte("a")},
		Entry{Path: ".t.a.x", Value: []byte("x")},
	)

	got := list(t, d, ".t.", ".t.a.", ".t.a")
	require.Equal(t, []string{".t.a", ".t.a.x"}, paths(got))
}

// TestAddRejectsFolders tests the folder-exclusion invariant
func TestAddRejectsFolders(t *testing.T) {
	d := openTestDirectory(t)

	err := d.Write(func(w Writer) error {
		return w.Add([]Entry{{Path: ".t.a.", Value: []byte("v")}})
	})
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrPathNotFullyQualified))

	// The failed transaction must not have written anything.
	require.Empty(t, list(t, d))
}

// TestAddRejectsBadSegments tests the segment grammar
func TestAddRejectsBadSegments(t *testing.T) {
	d := openTestDirectory(t)

	for _, path := range []string{".t.1abc", ".t.a-b", ".t..a", ".t.a b", ""} {
		err := d.Write(func(w Writer) error {
			return w.Add([]Entry{{Path: path, Value: []byte("v")}})
		})
		require.Error(t, err, "path %q", path)
	}

	// Leading dot is implied; digits after the first character are fine.
	add(t, d, Entry{Path: "t.a2_b", Value: []byte("v")})
	require.Equal(t, []string{".t.a2_b"}, paths(list(t, d)))
}

// TestRemove tests removal with both matching modes
func TestRemove(t *testing.T) {
	d := openTestDirectory(t)
	add(t, d,
		Entry{Path: ".t.a", Value: []byte("a")},
		Entry{Path: ".t.a.x", Value: []byte("x")},
		Entry{Path: ".t.b", Value: []byte("b")},
		Entry{Path: ".d.c", Value: []byte("c")},
	)

	require.NoError(t, d.Write(func(w Writer) error {
		return w.Remove([]string{".t.a."})
	}))
	require.Equal(t, []string{".d.c", ".t.a", ".t.b"}, paths(list(t, d)))

	require.NoError(t, d.Write(func(w Writer) error {
		return w.Remove([]string{".t.a"})
	}))
	require.Equal(t, []string{".d.c", ".t.b"}, paths(list(t, d)))
}

// TestWriteAbortsOnError tests that a failing transaction function rolls
// everything back
func TestWriteAbortsOnError(t *testing.T) {
	d := openTestDirectory(t)
	boom := errors.New("boom")

	err := d.Write(func(w Writer) error {
		if err := w.Add([]Entry{{Path: ".t.a", Value: []byte("a")}}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.Empty(t, list(t, d))
}

// TestWriteObservesOwnMutations tests program-order visibility inside one
// write transaction
func TestWriteObservesOwnMutations(t *testing.T) {
	d := openTestDirectory(t)

	require.NoError(t, d.Write(func(w Writer) error {
		if err := w.Add([]Entry{{Path: ".t.a", Value: []byte("1")}}); err != nil {
			return err
		}
		entries, err := w.List([]string{".t.a"})
		if err != nil {
			return err
		}
		require.Len(t, entries, 1)
		if err := w.Remove([]string{".t.a"}); err != nil {
			return err
		}
		entries, err = w.List(nil)
		if err != nil {
			return err
		}
		require.Empty(t, entries)
		return nil
	}))
}

// TestEnterView tests prefix views
func TestEnterView(t *testing.T) {
	d := openTestDirectory(t)

	sub := d.Enter(".t")
	add(t, sub, Entry{Path: ".a", Value: []byte("a")})
	add(t, sub, Entry{Path: "b", Value: []byte("b")})

	// The view reads its entries with relative paths.
	require.Equal(t, []string{".a", ".b"}, paths(list(t, sub)))

	// The root sees the qualified keys.
	require.Equal(t, []string{".t.a", ".t.b"}, paths(list(t, d)))

	// Nested views concatenate prefixes.
	nested := sub.Enter(".deep")
	add(t, nested, Entry{Path: ".c", Value: []byte("c")})
	require.Equal(t, []string{".t.deep.c"}, paths(list(t, d, ".t.deep.")))

	// Closing a view closes nothing.
	require.NoError(t, sub.Close())
	add(t, sub, Entry{Path: ".after_close", Value: []byte("ok")})
}

// TestMapViewRoundTrip tests the transform-view identity r(w(x)) = x
func TestMapViewRoundTrip(t *testing.T) {
	d := openTestDirectory(t)

	flip := func(value []byte) ([]byte, error) {
		out := make([]byte, len(value))
		for i, b := range value {
			out[i] = b ^ 0xff
		}
		return out, nil
	}
	v := d.Map(flip, flip)

	payload := []byte("configuration body")
	add(t, v, Entry{Path: ".d.doc", Value: payload})

	// Through the view: identity.
	got := list(t, v, ".d.doc")
	require.Len(t, got, 1)
	require.True(t, bytes.Equal(got[0].Value, payload))

	// Directly: transformed.
	raw := list(t, d, ".d.doc")
	require.False(t, bytes.Equal(raw[0].Value, payload))

	// Remove passes through untouched.
	require.NoError(t, v.Write(func(w Writer) error {
		return w.Remove([]string{".d.doc"})
	}))
	require.Empty(t, list(t, d))
}

// TestReadSeesCommittedSnapshot tests read isolation from later writes
func TestReadSeesCommittedSnapshot(t *testing.T) {
	d := openTestDirectory(t)
	add(t, d, Entry{Path: ".t.a", Value: []byte("1")})

	require.NoError(t, d.Read(func(r Reader) error {
		entries, err := r.List(nil)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		return nil
	}))

	add(t, d, Entry{Path: ".t.b", Value: []byte("2")})
	require.Len(t, list(t, d), 2)
}

// TestPersistence tests that committed entries survive reopen
func TestPersistence(t *testing.T) {
	dir := t.TempDir()

	d, err := Open(dir, &Options{MapSize: 1 << 20})
	require.NoError(t, err)
	add(t, d, Entry{Path: ".t.keep", Value: []byte("kept")})
	require.NoError(t, d.Close())

	d, err = Open(dir, &Options{MapSize: 1 << 20})
	require.NoError(t, err)
	defer d.Close()
	got := list(t, d, ".t.keep")
	require.Len(t, got, 1)
	require.Equal(t, []byte("kept"), got[0].Value)
}
