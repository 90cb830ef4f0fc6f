package guides

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type guidesFile struct {
	Guides yaml.Node `yaml:"guides"`
}

// UnmarshalYAML accepts both {external, internal} and the legacy
// {input, result} spelling of a pair.
func (p *Pair) UnmarshalYAML(value *yaml.Node) error {
	type rawPair struct {
		External string `yaml:"external"`
		Internal string `yaml:"internal"`
		Input    string `yaml:"input"`
		Result   string `yaml:"result"`
	}
	var raw rawPair
	if err := value.Decode(&raw); err != nil {
		return err
	}
	p.External = strings.TrimSpace(raw.External)
	p.Internal = strings.TrimSpace(raw.Internal)
	if p.External == "" {
		p.External = strings.TrimSpace(raw.Input)
	}
	if p.Internal == "" {
		p.Internal = strings.TrimSpace(raw.Result)
	}
	return nil
}

// Parse builds a registry from a guides YAML document. Guides keep the order
// they are declared in only for error reporting; lookups are by action.
func Parse(b []byte) (*Registry, error) {
	var f guidesFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, err
	}
	if f.Guides.Kind == 0 {
		return New()
	}
	if f.Guides.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: guides must be a mapping of action -> guide", f.Guides.Line)
	}
	list := make([]Guide, 0, len(f.Guides.Content)/2)
	for i := 0; i+1 < len(f.Guides.Content); i += 2 {
		action := strings.TrimSpace(f.Guides.Content[i].Value)
		var g Guide
		if err := f.Guides.Content[i+1].Decode(&g); err != nil {
			return nil, fmt.Errorf("guide %q: %w", action, err)
		}
		g.Action = action
		list = append(list, g)
	}
	return New(list...)
}

// Load reads a guides file.
func Load(path string) (*Registry, error) {
	// #nosec G304 -- guides path comes from trusted config/flag.
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(b)
}

// LoadOrBuiltin reads path when it is set and exists; otherwise it returns
// the built-in guides.
func LoadOrBuiltin(path string) (*Registry, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Builtin(), nil
	}
	reg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Builtin(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load guides file %q: %w", path, err)
	}
	return reg, nil
}
