package directory

import "strings"

// view is a lightweight handle over a parent directory: an optional path
// prefix and optional read/write transforms. Views compose by delegation,
// so a view of a view concatenates prefixes and chains transforms. Views
// never own the engine.
type view struct {
	parent Directory
	prefix string // leading dot, no trailing dot; "" for transform-only views
	readT  Transform
	writeT Transform
}

func enter(parent Directory, path string) Directory {
	prefix := strings.TrimSuffix(Normalize(path), ".")
	return &view{parent: parent, prefix: prefix}
}

func mapped(parent Directory, read, write Transform) Directory {
	return &view{parent: parent, readT: read, writeT: write}
}

func (v *view) Enter(path string) Directory {
	return enter(v, path)
}

func (v *view) Map(read, write Transform) Directory {
	return mapped(v, read, write)
}

func (v *view) Read(fn func(Reader) error) error {
	return v.parent.Read(func(r Reader) error {
		return fn(&viewTx{view: v, reader: r})
	})
}

func (v *view) Write(fn func(Writer) error) error {
	return v.parent.Write(func(w Writer) error {
		return fn(&viewTx{view: v, reader: w, writer: w})
	})
}

// Close on a view closes nothing; only closing the root releases the
// engine.
func (v *view) Close() error {
	return nil
}

// qualify prepends the view prefix to a path.
func (v *view) qualify(path string) string {
	if v.prefix == "" {
		return path
	}
	return Join(v.prefix, path)
}

func (v *view) qualifyAll(paths []string) []string {
	if v.prefix == "" {
		return paths
	}
	if len(paths) == 0 {
		// Everything under this view, not everything in the store.
		return []string{v.prefix + "."}
	}
	out := make([]string, 0, len(paths))
	for _, path := range paths {
		out = append(out, v.qualify(path))
	}
	return out
}

// viewTx wraps a transaction handle, rewriting paths and values at the
// view boundary.
type viewTx struct {
	view   *view
	reader Reader
	writer Writer
}

func (t *viewTx) List(paths []string) ([]Entry, error) {
	entries, err := t.reader.List(t.view.qualifyAll(paths))
	if err != nil {
		return nil, err
	}

	out := make([]Entry, 0, len(entries))
	for _, entry := range entries {
		path := entry.Path
		if t.view.prefix != "" {
			path = strings.TrimPrefix(path, t.view.prefix)
		}
		value := entry.Value
		if t.view.readT != nil {
			if value, err = t.view.readT(value); err != nil {
				return nil, err
			}
		}
		out = append(out, Entry{Path: path, Value: value})
	}
	return out, nil
}

func (t *viewTx) Add(entries []Entry) error {
	qualified := make([]Entry, 0, len(entries))
	for _, entry := range entries {
		value := entry.Value
		if t.view.writeT != nil {
			var err error
			if value, err = t.view.writeT(value); err != nil {
				return err
			}
		}
		qualified = append(qualified, Entry{Path: t.view.qualify(entry.Path), Value: value})
	}
	return t.writer.Add(qualified)
}

func (t *viewTx) Remove(paths []string) error {
	return t.writer.Remove(t.view.qualifyAll(paths))
}
