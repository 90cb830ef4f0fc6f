// Package guides holds the per-action field mappings (guides) that drive
// request renaming and response filtering, and the registry that serves them.
package guides

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ruianderson/sts-proxy/pkg/params"
)

var (
	// ErrUnknownAction is returned when no guide is registered for an action.
	ErrUnknownAction = errors.New("unknown action")
	// ErrInvalidGuide is returned when a guide breaks a registry invariant.
	ErrInvalidGuide = errors.New("invalid guide")
)

// Pair maps one field name to another. For input pairs External is the
// caller's field name and Internal the gateway's; for output pairs External
// is the gateway's field name and Internal the caller's.
type Pair struct {
	External string `yaml:"external" json:"external"`
	Internal string `yaml:"internal" json:"internal"`
}

// Guide is the declarative field mapping for one action.
type Guide struct {
	Action string `yaml:"-" json:"action"`
	Input  []Pair `yaml:"input" json:"input"`
	Output []Pair `yaml:"output" json:"output"`
	// Protocol holds protocol-level defaults owned by the action, for
	// example the gateway action code.
	Protocol *params.Map `yaml:"protocol,omitempty" json:"protocol,omitempty"`
}

// Lookup resolves the guide for an action.
type Lookup interface {
	Lookup(action string) (*Guide, error)
}

// Registry is an immutable action -> guide table. It is safe for concurrent
// reads without synchronization.
type Registry struct {
	guides map[string]*Guide
	names  []string
}

// New validates the guides and builds a registry.
func New(guides ...Guide) (*Registry, error) {
	r := &Registry{guides: make(map[string]*Guide, len(guides))}
	for i := range guides {
		g := guides[i].clone()
		g.Action = strings.TrimSpace(g.Action)
		if err := g.validate(); err != nil {
			return nil, err
		}
		if _, dup := r.guides[g.Action]; dup {
			return nil, &GuideIssue{Action: g.Action, Err: fmt.Errorf("%w: duplicate action", ErrInvalidGuide)}
		}
		r.guides[g.Action] = g
		r.names = append(r.names, g.Action)
	}
	sort.Strings(r.names)
	return r, nil
}

// Lookup returns a copy of the guide registered for action.
func (r *Registry) Lookup(action string) (*Guide, error) {
	if r != nil {
		if g, ok := r.guides[strings.TrimSpace(action)]; ok {
			return g.clone(), nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownAction, action)
}

// Actions returns the registered action names, sorted.
func (r *Registry) Actions() []string {
	if r == nil {
		return nil
	}
	return append([]string(nil), r.names...)
}

func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.names)
}

func (g *Guide) clone() *Guide {
	out := &Guide{
		Action:   g.Action,
		Input:    append([]Pair(nil), g.Input...),
		Output:   append([]Pair(nil), g.Output...),
		Protocol: g.Protocol.Clone(),
	}
	return out
}

func (g *Guide) validate() error {
	if g.Action == "" {
		return &GuideIssue{Err: fmt.Errorf("%w: empty action name", ErrInvalidGuide)}
	}
	if err := validatePairs(g.Input); err != nil {
		return &GuideIssue{Action: g.Action, List: "input", Err: err}
	}
	if err := validatePairs(g.Output); err != nil {
		return &GuideIssue{Action: g.Action, List: "output", Err: err}
	}
	if g.Protocol != nil {
		var bad string
		g.Protocol.Range(func(k string, v any) bool {
			if _, ok := params.Scalar(v); !ok {
				bad = k
				return false
			}
			return true
		})
		if bad != "" {
			return &GuideIssue{Action: g.Action, List: "protocol", Err: fmt.Errorf("%w: %q must be a scalar", ErrInvalidGuide, bad)}
		}
	}
	return nil
}

func validatePairs(pairs []Pair) error {
	ext := make(map[string]struct{}, len(pairs))
	in := make(map[string]struct{}, len(pairs))
	for i, p := range pairs {
		if strings.TrimSpace(p.External) == "" || strings.TrimSpace(p.Internal) == "" {
			return fmt.Errorf("%w: pair #%d has an empty name", ErrInvalidGuide, i+1)
		}
		if _, dup := ext[p.External]; dup {
			return fmt.Errorf("%w: external name %q repeated", ErrInvalidGuide, p.External)
		}
		if _, dup := in[p.Internal]; dup {
			return fmt.Errorf("%w: internal name %q repeated", ErrInvalidGuide, p.Internal)
		}
		ext[p.External] = struct{}{}
		in[p.Internal] = struct{}{}
	}
	return nil
}

// GuideIssue carries the action and mapping list a validation error was
// found in.
type GuideIssue struct {
	Action string
	List   string
	Err    error
}

func (e *GuideIssue) Error() string {
	if e == nil || e.Err == nil {
		return ""
	}
	switch {
	case e.Action != "" && e.List != "":
		return fmt.Sprintf("guide %q %s: %v", e.Action, e.List, e.Err)
	case e.Action != "":
		return fmt.Sprintf("guide %q: %v", e.Action, e.Err)
	default:
		return e.Err.Error()
	}
}

func (e *GuideIssue) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
