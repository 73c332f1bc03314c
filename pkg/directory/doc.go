/*
Package directory provides the hierarchical path-indexed key/value store.

Keys are dot-delimited paths with a leading dot. A path ending in a dot is
a folder: it groups keys by prefix and never stores a value. All access
happens inside explicit transactions: Read runs against a consistent
snapshot and is always aborted, Write commits iff its function succeeds.

# Architecture

	┌────────────────────────────────────────────┐
	│              BoltDirectory                 │
	│  - File: <dataDir>/directory.db            │
	│  - One bucket: entries                     │
	│  - Keys: normalized paths, lexical order   │
	│  - Single-writer MVCC transactions         │
	└──────┬──────────────────┬──────────────────┘
	       │ Enter(".d")      │ Map(read, write)
	       ▼                  ▼
	┌──────────────┐   ┌───────────────────┐
	│ prefix view  │   │  transform view   │
	│ .d + path    │   │  r(List) w(Add)   │
	└──────────────┘   └───────────────────┘

Views narrow a directory to a sub-tree (Enter) or filter values through
read/write transforms (Map). Views delegate to their parent and own
nothing; closing the root invalidates every view.
*/
package directory
