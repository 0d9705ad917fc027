// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package value

import (
	"bytes"
	"fmt"
	"math"
	"strings"

	"github.com/bureau-foundation/bureau-mux/lib/codec"
)

// Kind identifies which variant a Value holds.
type Kind uint8

const (
	KindNil Kind = iota
	KindBool
	KindInt
	KindUint
	KindFloat
	KindString
	KindBinary
	KindArray
	KindMap
)

var kindNames = [...]string{
	KindNil:    "nil",
	KindBool:   "bool",
	KindInt:    "int",
	KindUint:   "uint",
	KindFloat:  "float",
	KindString: "string",
	KindBinary: "binary",
	KindArray:  "array",
	KindMap:    "map",
}

func (kind Kind) String() string {
	if int(kind) < len(kindNames) {
		return kindNames[kind]
	}
	return fmt.Sprintf("Kind(%d)", uint8(kind))
}

// Value is one node of the value tree. The zero Value is nil.
//
// Values are immutable after construction. Array and map variants own
// their element slices; constructors copy nothing, so callers must not
// modify a slice after passing it to [Array] or [Map].
type Value struct {
	kind     Kind
	boolean  bool
	signed   int64
	unsigned uint64
	float    float64
	text     string
	binary   []byte
	items    []Value
	pairs    []Pair
}

// Pair is one entry of a map Value.
type Pair struct {
	Key   Value
	Value Value
}

// Nil returns the nil Value.
func Nil() Value { return Value{} }

// Bool returns a boolean Value.
func Bool(b bool) Value { return Value{kind: KindBool, boolean: b} }

// Int returns a signed integer Value.
func Int(i int64) Value { return Value{kind: KindInt, signed: i} }

// Uint returns an unsigned integer Value.
func Uint(u uint64) Value { return Value{kind: KindUint, unsigned: u} }

// Float returns a floating-point Value.
func Float(f float64) Value { return Value{kind: KindFloat, float: f} }

// String returns a text string Value.
func String(s string) Value { return Value{kind: KindString, text: s} }

// Binary returns a byte string Value.
func Binary(b []byte) Value { return Value{kind: KindBinary, binary: b} }

// Array returns an array Value holding items in order.
func Array(items ...Value) Value { return Value{kind: KindArray, items: items} }

// Map returns a map Value holding pairs in order.
func Map(pairs ...Pair) Value { return Value{kind: KindMap, pairs: pairs} }

// Field returns a Pair with a text string key.
func Field(key string, v Value) Pair { return Pair{Key: String(key), Value: v} }

// Kind reports the variant held by v.
func (v Value) Kind() Kind { return v.kind }

// IsNil reports whether v is the nil Value.
func (v Value) IsNil() bool { return v.kind == KindNil }

// AsBool returns the boolean held by v.
func (v Value) AsBool() (bool, bool) {
	return v.boolean, v.kind == KindBool
}

// AsInt returns v as a signed integer. Unsigned values are accepted
// when they fit in an int64.
func (v Value) AsInt() (int64, bool) {
	switch v.kind {
	case KindInt:
		return v.signed, true
	case KindUint:
		if v.unsigned <= math.MaxInt64 {
			return int64(v.unsigned), true
		}
	}
	return 0, false
}

// AsUint returns v as an unsigned integer. Signed values are accepted
// when they are non-negative.
func (v Value) AsUint() (uint64, bool) {
	switch v.kind {
	case KindUint:
		return v.unsigned, true
	case KindInt:
		if v.signed >= 0 {
			return uint64(v.signed), true
		}
	}
	return 0, false
}

// AsUint32 returns v as an unsigned integer no larger than
// math.MaxUint32. Message ids, session ids, and highlight ids all live
// in this range.
func (v Value) AsUint32() (uint32, bool) {
	u, ok := v.AsUint()
	if !ok || u > math.MaxUint32 {
		return 0, false
	}
	return uint32(u), true
}

// AsFloat returns v as a float64. Integers are converted.
func (v Value) AsFloat() (float64, bool) {
	switch v.kind {
	case KindFloat:
		return v.float, true
	case KindInt:
		return float64(v.signed), true
	case KindUint:
		return float64(v.unsigned), true
	}
	return 0, false
}

// AsString returns the text held by v.
func (v Value) AsString() (string, bool) {
	return v.text, v.kind == KindString
}

// AsBinary returns the bytes held by v. A text string is also
// accepted, since peers are not consistent about which they send for
// terminal input.
func (v Value) AsBinary() ([]byte, bool) {
	switch v.kind {
	case KindBinary:
		return v.binary, true
	case KindString:
		return []byte(v.text), true
	}
	return nil, false
}

// Items returns the elements of an array Value, or nil for any other
// kind.
func (v Value) Items() []Value {
	if v.kind != KindArray {
		return nil
	}
	return v.items
}

// Pairs returns the entries of a map Value, or nil for any other kind.
func (v Value) Pairs() []Pair {
	if v.kind != KindMap {
		return nil
	}
	return v.pairs
}

// Len returns the element count of an array or map, the byte length of
// a string or binary, and zero otherwise.
func (v Value) Len() int {
	switch v.kind {
	case KindArray:
		return len(v.items)
	case KindMap:
		return len(v.pairs)
	case KindString:
		return len(v.text)
	case KindBinary:
		return len(v.binary)
	}
	return 0
}

// Index returns element i of an array Value. Out-of-range indexes and
// non-array values yield nil.
func (v Value) Index(i int) Value {
	if v.kind != KindArray || i < 0 || i >= len(v.items) {
		return Value{}
	}
	return v.items[i]
}

// Lookup returns the value of the first map entry whose key is the
// text string key.
func (v Value) Lookup(key string) (Value, bool) {
	if v.kind != KindMap {
		return Value{}, false
	}
	for _, pair := range v.pairs {
		if pair.Key.kind == KindString && pair.Key.text == key {
			return pair.Value, true
		}
	}
	return Value{}, false
}

// Equal reports whether a and b hold the same value. Integers compare
// by magnitude across the signed and unsigned classes, so a value that
// was encoded as Int(5) and decoded as Uint(5) is equal to the
// original. Maps compare pairwise in order.
func Equal(a, b Value) bool {
	if isInteger(a.kind) && isInteger(b.kind) {
		return integersEqual(a, b)
	}
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNil:
		return true
	case KindBool:
		return a.boolean == b.boolean
	case KindFloat:
		return a.float == b.float || (math.IsNaN(a.float) && math.IsNaN(b.float))
	case KindString:
		return a.text == b.text
	case KindBinary:
		return bytes.Equal(a.binary, b.binary)
	case KindArray:
		if len(a.items) != len(b.items) {
			return false
		}
		for i := range a.items {
			if !Equal(a.items[i], b.items[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(a.pairs) != len(b.pairs) {
			return false
		}
		for i := range a.pairs {
			if !Equal(a.pairs[i].Key, b.pairs[i].Key) || !Equal(a.pairs[i].Value, b.pairs[i].Value) {
				return false
			}
		}
		return true
	}
	return false
}

func isInteger(kind Kind) bool { return kind == KindInt || kind == KindUint }

func integersEqual(a, b Value) bool {
	if a.kind == b.kind {
		if a.kind == KindInt {
			return a.signed == b.signed
		}
		return a.unsigned == b.unsigned
	}
	signed, unsigned := a, b
	if a.kind == KindUint {
		signed, unsigned = b, a
	}
	return signed.signed >= 0 && uint64(signed.signed) == unsigned.unsigned
}

// String renders v in CBOR diagnostic notation, for logs and test
// failure messages.
func (v Value) String() string {
	data, err := Encode(v)
	if err != nil {
		return fmt.Sprintf("<%s: %v>", v.kind, err)
	}
	notation, err := codec.Diagnose(data)
	if err != nil {
		return fmt.Sprintf("<%s: %v>", v.kind, err)
	}
	return strings.TrimSpace(notation)
}
