// Package payload models decoded wire payloads of unknown shape as an explicit
// tagged variant. Mappings keep their key order so that scans which accept
// "the first" matching field are deterministic.
package payload

import "strconv"

// Kind tags the variant held by a Value.
type Kind int

const (
	Null Kind = iota
	Bool
	Number
	String
	Sequence
	Mapping
)

func (k Kind) String() string {
	switch k {
	case Null:
		return "null"
	case Bool:
		return "bool"
	case Number:
		return "number"
	case String:
		return "string"
	case Sequence:
		return "sequence"
	case Mapping:
		return "mapping"
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Field is one key/value entry of a Mapping.
type Field struct {
	Key   string
	Value Value
}

// Value is a decoded payload node. The zero value is Null.
type Value struct {
	kind   Kind
	b      bool
	num    float64
	str    string
	items  []Value
	fields []Field
}

func NewBool(b bool) Value { return Value{kind: Bool, b: b} }
func NewNumber(f float64) Value { return Value{kind: Number, num: f} }
func NewString(s string) Value { return Value{kind: String, str: s} }
func NewSequence(items ...Value) Value {
	return Value{kind: Sequence, items: items}
}
func NewMapping(fields ...Field) Value {
	return Value{kind: Mapping, fields: fields}
}

func (v Value) Kind() Kind { return v.kind }
func (v Value) IsNull() bool { return v.kind == Null }
func (v Value) IsSequence() bool { return v.kind == Sequence }
func (v Value) IsMapping() bool { return v.kind == Mapping }

// Str returns the string held by v.
func (v Value) Str() (string, bool) {
	if v.kind != String {
		return "", false
	}
	return v.str, true
}

// Num returns the number held by v.
func (v Value) Num() (float64, bool) {
	if v.kind != Number {
		return 0, false
	}
	return v.num, true
}

// BoolValue returns the boolean held by v.
func (v Value) BoolValue() (bool, bool) {
	if v.kind != Bool {
		return false, false
	}
	return v.b, true
}

// Len is the number of items of a Sequence or fields of a Mapping.
func (v Value) Len() int {
	switch v.kind {
	case Sequence:
		return len(v.items)
	case Mapping:
		return len(v.fields)
	}
	return 0
}

// At returns the item at offset i of a Sequence, or Null when v is not a
// sequence or i is out of range. Positional probing never panics.
func (v Value) At(i int) Value {
	if v.kind != Sequence || i < 0 || i >= len(v.items) {
		return Value{}
	}
	return v.items[i]
}

// Path walks nested sequence offsets, e.g. Path(4, 0) is v[4][0].
func (v Value) Path(offsets ...int) Value {
	cur := v
	for _, i := range offsets {
		cur = cur.At(i)
	}
	return cur
}

// Items returns the items of a Sequence. The slice must not be modified.
func (v Value) Items() []Value {
	if v.kind != Sequence {
		return nil
	}
	return v.items
}

// Fields returns the fields of a Mapping in source order.
func (v Value) Fields() []Field {
	if v.kind != Mapping {
		return nil
	}
	return v.fields
}

// Get looks up key in a Mapping. Duplicate keys resolve to the last occurrence.
func (v Value) Get(key string) (Value, bool) {
	if v.kind != Mapping {
		return Value{}, false
	}
	for i := len(v.fields) - 1; i >= 0; i-- {
		if v.fields[i].Key == key {
			return v.fields[i].Value, true
		}
	}
	return Value{}, false
}

// Has reports whether a Mapping carries key with a non-null, non-empty value.
func (v Value) Has(key string) bool {
	f, ok := v.Get(key)
	if !ok {
		return false
	}
	return Truthy(f)
}

// GetStr returns the string field key of a Mapping.
func (v Value) GetStr(key string) (string, bool) {
	f, ok := v.Get(key)
	if !ok {
		return "", false
	}
	return f.Str()
}

// Truthy mirrors how loosely typed payload producers test presence: null,
// false, zero and the empty string are absent, everything else is present.
func Truthy(v Value) bool {
	switch v.kind {
	case Null:
		return false
	case Bool:
		return v.b
	case Number:
		return v.num != 0
	case String:
		return v.str != ""
	}
	return true
}
