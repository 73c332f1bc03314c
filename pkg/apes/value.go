package apes

// Kind tags the variants of a configuration value.
type Kind int

const (
	KindNull Kind = iota
	KindBoolean
	KindNumber
	KindText
	KindList
	KindMap
)

var kindNames = map[Kind]string{
	KindNull:    "Null",
	KindBoolean: "Boolean",
	KindNumber:  "Number",
	KindText:    "Text",
	KindList:    "List",
	KindMap:     "Map",
}

func (k Kind) String() string {
	return kindNames[k]
}

// Entry is one key/value pair of a Map value. Maps preserve insertion
// order, which both serializations rely on.
type Entry struct {
	Key   string
	Value Value
}

// Value is the fixed variant a configuration body is made of: null,
// boolean, finite number, text, list of values, or ordered map of values.
// The zero value is Null.
type Value struct {
	kind    Kind
	boolean bool
	number  float64
	text    string
	list    []Value
	entries []Entry
}

// Null returns the null value.
func Null() Value {
	return Value{}
}

// Boolean wraps a bool.
func Boolean(b bool) Value {
	return Value{kind: KindBoolean, boolean: b}
}

// Number wraps a float64. Callers must pass finite numbers; the JSON
// encoder rejects anything else.
func Number(f float64) Value {
	return Value{kind: KindNumber, number: f}
}

// Text wraps a string.
func Text(s string) Value {
	return Value{kind: KindText, text: s}
}

// List wraps an ordered sequence.
func List(items ...Value) Value {
	return Value{kind: KindList, list: items}
}

// Map wraps an ordered sequence of key/value entries.
func Map(entries ...Entry) Value {
	return Value{kind: KindMap, entries: entries}
}

// Kind returns the variant tag.
func (v Value) Kind() Kind {
	return v.kind
}

// IsNull reports whether the value is null.
func (v Value) IsNull() bool {
	return v.kind == KindNull
}

// Bool returns the boolean payload.
func (v Value) Bool() (bool, bool) {
	return v.boolean, v.kind == KindBoolean
}

// Float returns the number payload.
func (v Value) Float() (float64, bool) {
	return v.number, v.kind == KindNumber
}

// Str returns the text payload.
func (v Value) Str() (string, bool) {
	return v.text, v.kind == KindText
}

// Items returns the list payload.
func (v Value) Items() ([]Value, bool) {
	return v.list, v.kind == KindList
}

// Entries returns the map payload in insertion order.
func (v Value) Entries() ([]Entry, bool) {
	return v.entries, v.kind == KindMap
}

// Get looks a key up in a map value.
func (v Value) Get(key string) (Value, bool) {
	if v.kind != KindMap {
		return Value{}, false
	}
	for _, entry := range v.entries {
		if entry.Key == key {
			return entry.Value, true
		}
	}
	return Value{}, false
}

// Len returns the element count of a list or map and zero otherwise.
func (v Value) Len() int {
	switch v.kind {
	case KindList:
		return len(v.list)
	case KindMap:
		return len(v.entries)
	default:
		return 0
	}
}

// Set returns a copy of a map value with key set, preserving the position
// of an existing key and appending otherwise.
func (v Value) Set(key string, value Value) Value {
	entries := make([]Entry, len(v.entries))
	copy(entries, v.entries)
	for i, entry := range entries {
		if entry.Key == key {
			entries[i].Value = value
			return Value{kind: KindMap, entries: entries}
		}
	}
	return Value{kind: KindMap, entries: append(entries, Entry{Key: key, Value: value})}
}

// Equal reports deep equality.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBoolean:
		return v.boolean == other.boolean
	case KindNumber:
		return v.number == other.number
	case KindText:
		return v.text == other.text
	case KindList:
		if len(v.list) != len(other.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(other.list[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(v.entries) != len(other.entries) {
			return false
		}
		for i := range v.entries {
			if v.entries[i].Key != other.entries[i].Key ||
				!v.entries[i].Value.Equal(other.entries[i].Value) {
				return false
			}
		}
		return true
	}
	return false
}
