// Package params provides Map, an insertion-ordered parameter mapping with
// JSON, YAML and query-string codecs that keep key order and literal values.
package params

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Map is an insertion-ordered mapping of string keys to values. Values are
// scalars (string, json.Number, Go numbers, bool, nil) or nested *Map when the
// mapping represents a gateway document.
//
// The zero value is ready to use. A nil *Map behaves as an empty mapping for
// read operations.
type Map struct {
	keys []string
	vals map[string]any
}

// New returns an empty Map with room for n keys.
func New(n int) *Map {
	if n < 0 {
		n = 0
	}
	return &Map{
		keys: make([]string, 0, n),
		vals: make(map[string]any, n),
	}
}

// Of builds a Map from alternating key/value arguments. It panics when the
// argument count is odd or a key is not a string; it is meant for literals.
func Of(kv ...any) *Map {
	if len(kv)%2 != 0 {
		panic("params.Of: odd argument count")
	}
	m := New(len(kv) / 2)
	for i := 0; i < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			panic(fmt.Sprintf("params.Of: key %v is not a string", kv[i]))
		}
		m.Set(k, kv[i+1])
	}
	return m
}

// Set stores v under key. An existing key keeps its position.
func (m *Map) Set(key string, v any) {
	if m.vals == nil {
		m.vals = make(map[string]any)
	}
	if _, ok := m.vals[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.vals[key] = v
}

func (m *Map) Get(key string) (any, bool) {
	if m == nil {
		return nil, false
	}
	v, ok := m.vals[key]
	return v, ok
}

func (m *Map) Has(key string) bool {
	_, ok := m.Get(key)
	return ok
}

func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Keys returns a copy of the keys in insertion order.
func (m *Map) Keys() []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.keys...)
}

// Range calls fn for each entry in order until fn returns false.
func (m *Map) Range(fn func(key string, v any) bool) {
	if m == nil {
		return
	}
	for _, k := range m.keys {
		if !fn(k, m.vals[k]) {
			return
		}
	}
}

// Merge sets every entry of src into m, in src order.
func (m *Map) Merge(src *Map) {
	src.Range(func(k string, v any) bool {
		m.Set(k, v)
		return true
	})
}

// Clone returns a deep copy; nested maps are cloned too.
func (m *Map) Clone() *Map {
	if m == nil {
		return nil
	}
	out := New(len(m.keys))
	for _, k := range m.keys {
		v := m.vals[k]
		if sub, ok := v.(*Map); ok {
			v = sub.Clone()
		}
		out.Set(k, v)
	}
	return out
}

// Equal reports whether both maps hold the same keys in the same order with
// equal values. Scalars are compared by their string form.
func (m *Map) Equal(o *Map) bool {
	if m.Len() != o.Len() {
		return false
	}
	if m.Len() == 0 {
		return true
	}
	for i, k := range m.keys {
		if o.keys[i] != k {
			return false
		}
		a, b := m.vals[k], o.vals[k]
		am, aIsMap := a.(*Map)
		bm, bIsMap := b.(*Map)
		if aIsMap || bIsMap {
			if !aIsMap || !bIsMap || !am.Equal(bm) {
				return false
			}
			continue
		}
		as, aok := Scalar(a)
		bs, bok := Scalar(b)
		if aok != bok || as != bs {
			return false
		}
	}
	return true
}

func (m *Map) String() string {
	b, err := m.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("params.Map(%d keys)", m.Len())
	}
	return string(b)
}

// Scalar returns the wire string form of a scalar value. It reports false for
// nested maps, slices and other composite values. nil renders as "".
func Scalar(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", true
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case bool:
		return strconv.FormatBool(t), true
	case int:
		return strconv.Itoa(t), true
	case int8:
		return strconv.FormatInt(int64(t), 10), true
	case int16:
		return strconv.FormatInt(int64(t), 10), true
	case int32:
		return strconv.FormatInt(int64(t), 10), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case uint:
		return strconv.FormatUint(uint64(t), 10), true
	case uint8:
		return strconv.FormatUint(uint64(t), 10), true
	case uint16:
		return strconv.FormatUint(uint64(t), 10), true
	case uint32:
		return strconv.FormatUint(uint64(t), 10), true
	case uint64:
		return strconv.FormatUint(t, 10), true
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	default:
		return "", false
	}
}
