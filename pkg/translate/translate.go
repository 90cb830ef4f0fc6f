// Package translate renames caller fields into gateway fields, merges them
// with protocol-level parameters and filters gateway responses back into the
// caller's vocabulary, all driven by a guide.
package translate

import (
	"errors"
	"fmt"

	"github.com/ruianderson/sts-proxy/pkg/guides"
	"github.com/ruianderson/sts-proxy/pkg/params"
)

// ErrKeyCollision is matched by errors returned from CombineParams when a key
// exists in both inputs.
var ErrKeyCollision = errors.New("key collision")

// CollisionError names the key present in both caller and protocol params.
type CollisionError struct {
	Key string
}

func (e *CollisionError) Error() string {
	return fmt.Sprintf("key collision: %q is both a caller field and a protocol parameter", e.Key)
}

func (e *CollisionError) Is(target error) bool { return target == ErrKeyCollision }

// Rename keeps the fields of in that the guide's input list declares and
// renames them, in the guide's declared order. Undeclared fields are dropped.
func Rename(g *guides.Guide, in *params.Map) *params.Map {
	out := params.New(len(g.Input))
	for _, p := range g.Input {
		if v, ok := in.Get(p.External); ok {
			out.Set(p.Internal, v)
		}
	}
	return out
}

// RenameParams resolves the guide for action and applies Rename.
func RenameParams(l guides.Lookup, in *params.Map, action string) (*params.Map, error) {
	g, err := l.Lookup(action)
	if err != nil {
		return nil, err
	}
	return Rename(g, in), nil
}

// CombineParams returns caller entries followed by protocol entries, each in
// their original order.
func CombineParams(caller, protocol *params.Map) (*params.Map, error) {
	out := params.New(caller.Len() + protocol.Len())
	out.Merge(caller)
	var collision string
	protocol.Range(func(k string, v any) bool {
		if out.Has(k) {
			collision = k
			return false
		}
		out.Set(k, v)
		return true
	})
	if collision != "" {
		return nil, &CollisionError{Key: collision}
	}
	return out, nil
}

// Filter extracts the fields named by the guide's output list from a
// possibly nested response and renames them. An empty output list yields an
// empty result; absent fields are omitted.
//
// Each external name is searched breadth-first, so the shallowest match wins
// and ties resolve in document order. When resp is itself a filter result
// (every top-level key is an output internal name) an internal name whose
// external name is absent keeps its value, so filtering twice is a no-op.
// Internal names must not equal the gateway's root element name, or a reply
// carrying only that root would be treated as already filtered.
func Filter(g *guides.Guide, resp *params.Map) *params.Map {
	out := params.New(len(g.Output))
	carry := isFiltered(g, resp)
	for _, p := range g.Output {
		if v, ok := find(resp, p.External); ok {
			out.Set(p.Internal, cloneValue(v))
			continue
		}
		if !carry {
			continue
		}
		if v, ok := resp.Get(p.Internal); ok {
			out.Set(p.Internal, cloneValue(v))
		}
	}
	return out
}

func isFiltered(g *guides.Guide, resp *params.Map) bool {
	if resp.Len() == 0 {
		return false
	}
	internal := make(map[string]struct{}, len(g.Output))
	for _, p := range g.Output {
		internal[p.Internal] = struct{}{}
	}
	ok := true
	resp.Range(func(k string, _ any) bool {
		_, ok = internal[k]
		return ok
	})
	return ok
}

// FilterData resolves the guide for action and applies Filter.
func FilterData(l guides.Lookup, resp *params.Map, action string) (*params.Map, error) {
	g, err := l.Lookup(action)
	if err != nil {
		return nil, err
	}
	return Filter(g, resp), nil
}

func find(root *params.Map, name string) (any, bool) {
	level := []*params.Map{root}
	for len(level) > 0 {
		var next []*params.Map
		for _, m := range level {
			if v, ok := m.Get(name); ok {
				return v, true
			}
			m.Range(func(_ string, v any) bool {
				if sub, ok := v.(*params.Map); ok && sub != nil {
					next = append(next, sub)
				}
				return true
			})
		}
		level = next
	}
	return nil, false
}

func cloneValue(v any) any {
	if m, ok := v.(*params.Map); ok {
		return m.Clone()
	}
	return v
}
