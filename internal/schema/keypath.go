package schema

import (
	"strings"

	"github.com/rzpsarthak13/unistore/internal/core"
	"github.com/rzpsarthak13/unistore/internal/key"
)

// KeyPath locates a key inside a record: either one dotted path or a tuple
// of dotted paths. A tuple key path implies a tuple key type.
type KeyPath struct {
	paths []string
	tuple bool
}

// NewKeyPath normalizes a key-path declaration: a single string ("a" or
// "a.b") or a slice of strings for a tuple path. nil or "" yields the empty
// (out-of-line) path.
func NewKeyPath(v interface{}) (KeyPath, error) {
	switch p := v.(type) {
	case nil:
		return KeyPath{}, nil
	case string:
		if p == "" {
			return KeyPath{}, nil
		}
		return KeyPath{paths: []string{p}}, nil
	case []string:
		if len(p) == 0 {
			return KeyPath{}, nil
		}
		cp := make([]string, len(p))
		copy(cp, p)
		return KeyPath{paths: cp, tuple: true}, nil
	case []interface{}:
		paths := make([]string, 0, len(p))
		for _, e := range p {
			s, ok := e.(string)
			if !ok {
				return KeyPath{}, core.NewError(core.KindArgument, "key path elements must be strings, got %T", e)
			}
			paths = append(paths, s)
		}
		return KeyPath{paths: paths, tuple: true}, nil
	case KeyPath:
		return p, nil
	default:
		return KeyPath{}, core.NewError(core.KindArgument, "invalid key path %T", v)
	}
}

// MustKeyPath is NewKeyPath for literals in tests and fixtures.
func MustKeyPath(v interface{}) KeyPath {
	kp, err := NewKeyPath(v)
	if err != nil {
		panic(err)
	}
	return kp
}

// Empty reports an out-of-line key path.
func (kp KeyPath) Empty() bool { return len(kp.paths) == 0 }

// IsTuple reports a composite key path.
func (kp KeyPath) IsTuple() bool { return kp.tuple }

// Single returns the sole path of a non-tuple key path, or "".
func (kp KeyPath) Single() string {
	if kp.tuple || len(kp.paths) != 1 {
		return ""
	}
	return kp.paths[0]
}

// Paths returns the component paths.
func (kp KeyPath) Paths() []string { return kp.paths }

// Equal reports structural equality.
func (kp KeyPath) Equal(other KeyPath) bool {
	if kp.tuple != other.tuple || len(kp.paths) != len(other.paths) {
		return false
	}
	for i := range kp.paths {
		if kp.paths[i] != other.paths[i] {
			return false
		}
	}
	return true
}

// Declaration returns the JSON/YAML form: nil, a string, or a string slice.
func (kp KeyPath) Declaration() interface{} {
	switch {
	case kp.Empty():
		return nil
	case kp.tuple:
		return kp.paths
	default:
		return kp.paths[0]
	}
}

// Resolve evaluates the key path against a record. For tuple paths the
// result is a slice of component values; the second result is false when any
// component is absent.
func (kp KeyPath) Resolve(rec core.Record) (interface{}, bool) {
	if kp.Empty() {
		return nil, false
	}
	if !kp.tuple {
		return resolvePath(rec, kp.paths[0])
	}
	parts := make([]interface{}, len(kp.paths))
	for i, p := range kp.paths {
		v, ok := resolvePath(rec, p)
		if !ok {
			return nil, false
		}
		parts[i] = v
	}
	return parts, true
}

// Assign writes a key value into the record at the key path, creating
// intermediate maps as needed. Tuple paths distribute tuple components.
func (kp KeyPath) Assign(rec core.Record, k key.Key) {
	if kp.Empty() {
		return
	}
	if !kp.tuple {
		assignPath(rec, kp.paths[0], k.Value())
		return
	}
	parts := k.Components()
	for i, p := range kp.paths {
		if i < len(parts) {
			assignPath(rec, p, parts[i].Value())
		}
	}
}

func resolvePath(rec core.Record, path string) (interface{}, bool) {
	segs := strings.Split(path, ".")
	var cur interface{} = map[string]interface{}(rec)
	for _, seg := range segs {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func assignPath(rec core.Record, path string, v interface{}) {
	segs := strings.Split(path, ".")
	m := map[string]interface{}(rec)
	for _, seg := range segs[:len(segs)-1] {
		next, ok := m[seg].(map[string]interface{})
		if !ok {
			next = map[string]interface{}{}
			m[seg] = next
		}
		m = next
	}
	m[segs[len(segs)-1]] = v
}
