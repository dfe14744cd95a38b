// Package key implements the primary-key and index-key model shared by every
// backend: a small union of number, date, string and tuple keys with one
// total order, plus ranges and their SQL projection.
package key

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rzpsarthak13/unistore/internal/core"
)

// Type names a key type as declared in a store or index schema.
type Type string

const (
	TypeNumber Type = "number"
	TypeString Type = "string"
	TypeDate   Type = "date"
	TypeTuple  Type = "tuple"

	// TypeAny accepts any of the supported key types; used when a schema
	// leaves the type undeclared.
	TypeAny Type = ""
)

// kind tags discriminate Key values. Their numeric order is the type order
// used by Cmp: numbers sort before dates, dates before strings, strings
// before tuples.
type kind uint8

const (
	kindNone kind = iota
	kindNumber
	kindDate
	kindString
	kindTuple
)

// Key is one primary or index key value. The zero Key is "undefined" and is
// not a valid stored key.
type Key struct {
	k     kind
	num   float64
	str   string
	date  time.Time
	tuple []Key
}

// Number builds a numeric key.
func Number(f float64) Key { return Key{k: kindNumber, num: f} }

// String builds a string key.
func String(s string) Key { return Key{k: kindString, str: s} }

// Date builds a date key.
func Date(t time.Time) Key { return Key{k: kindDate, date: t} }

// Tuple builds a composite key from the given components.
func Tuple(parts ...Key) Key {
	cp := make([]Key, len(parts))
	copy(cp, parts)
	return Key{k: kindTuple, tuple: cp}
}

// Defined reports whether k holds a value.
func (k Key) Defined() bool { return k.k != kindNone }

// IsNumber reports whether k is a numeric key.
func (k Key) IsNumber() bool { return k.k == kindNumber }

// IsString reports whether k is a string key.
func (k Key) IsString() bool { return k.k == kindString }

// IsDate reports whether k is a date key.
func (k Key) IsDate() bool { return k.k == kindDate }

// IsTuple reports whether k is a composite key.
func (k Key) IsTuple() bool { return k.k == kindTuple }

// Number returns the numeric payload; zero unless IsNumber.
func (k Key) Number() float64 { return k.num }

// String returns a printable form of the key.
func (k Key) String() string {
	switch k.k {
	case kindNone:
		return "<undefined>"
	case kindNumber:
		return fmt.Sprintf("%v", k.num)
	case kindDate:
		return k.date.Format(time.RFC3339Nano)
	case kindString:
		return k.str
	case kindTuple:
		parts := make([]string, len(k.tuple))
		for i, p := range k.tuple {
			parts[i] = p.String()
		}
		return "[" + strings.Join(parts, ",") + "]"
	}
	return "<invalid>"
}

// Str returns the string payload; empty unless IsString.
func (k Key) Str() string { return k.str }

// Time returns the date payload; zero unless IsDate.
func (k Key) Time() time.Time { return k.date }

// Components returns the tuple components; nil unless IsTuple.
func (k Key) Components() []Key { return k.tuple }

// Type returns the schema Type of k.
func (k Key) Type() Type {
	switch k.k {
	case kindNumber:
		return TypeNumber
	case kindDate:
		return TypeDate
	case kindString:
		return TypeString
	case kindTuple:
		return TypeTuple
	}
	return TypeAny
}

// Value returns the native Go value of the key: float64, string, time.Time,
// or []interface{} for tuples. Undefined keys yield nil.
func (k Key) Value() interface{} {
	switch k.k {
	case kindNumber:
		return k.num
	case kindDate:
		return k.date
	case kindString:
		return k.str
	case kindTuple:
		out := make([]interface{}, len(k.tuple))
		for i, p := range k.tuple {
			out[i] = p.Value()
		}
		return out
	}
	return nil
}

// FromValue converts a record field value into a Key. Integers and floats
// become number keys, strings string keys, time.Time date keys, and slices
// tuple keys.
func FromValue(v interface{}) (Key, error) {
	switch val := v.(type) {
	case nil:
		return Key{}, core.NewError(core.KindArgument, "nil is not a valid key")
	case float64:
		if math.IsNaN(val) {
			return Key{}, core.NewError(core.KindArgument, "NaN is not a valid key")
		}
		return Number(val), nil
	case float32:
		return Number(float64(val)), nil
	case int:
		return Number(float64(val)), nil
	case int32:
		return Number(float64(val)), nil
	case int64:
		return Number(float64(val)), nil
	case uint64:
		return Number(float64(val)), nil
	case string:
		return String(val), nil
	case time.Time:
		return Date(val), nil
	case Key:
		return val, nil
	case []interface{}:
		parts := make([]Key, len(val))
		for i, elem := range val {
			p, err := FromValue(elem)
			if err != nil {
				return Key{}, err
			}
			parts[i] = p
		}
		return Key{k: kindTuple, tuple: parts}, nil
	case []string:
		parts := make([]Key, len(val))
		for i, s := range val {
			parts[i] = String(s)
		}
		return Key{k: kindTuple, tuple: parts}, nil
	default:
		return Key{}, core.NewError(core.KindArgument, "unsupported key type %T", v)
	}
}

// Cmp compares two keys under the total order: numbers < dates < strings <
// tuples, tuples lexicographically with element-wise comparison. Undefined
// keys sort before everything.
func Cmp(a, b Key) int {
	if a.k != b.k {
		if a.k < b.k {
			return -1
		}
		return 1
	}
	switch a.k {
	case kindNone:
		return 0
	case kindNumber:
		switch {
		case a.num < b.num:
			return -1
		case a.num > b.num:
			return 1
		}
		return 0
	case kindDate:
		switch {
		case a.date.Before(b.date):
			return -1
		case a.date.After(b.date):
			return 1
		}
		return 0
	case kindString:
		return strings.Compare(a.str, b.str)
	case kindTuple:
		n := len(a.tuple)
		if len(b.tuple) < n {
			n = len(b.tuple)
		}
		for i := 0; i < n; i++ {
			if c := Cmp(a.tuple[i], b.tuple[i]); c != 0 {
				return c
			}
		}
		switch {
		case len(a.tuple) < len(b.tuple):
			return -1
		case len(a.tuple) > len(b.tuple):
			return 1
		}
		return 0
	}
	return 0
}

// Equal reports whether a and b compare equal.
func Equal(a, b Key) bool { return Cmp(a, b) == 0 }

// CheckType verifies that k conforms to the declared schema type.
func (k Key) CheckType(t Type) error {
	if t == TypeAny || !k.Defined() {
		return nil
	}
	if k.Type() != t {
		return core.NewError(core.KindArgument, "key %s has type %s, store declares %s", k, k.Type(), t)
	}
	return nil
}
