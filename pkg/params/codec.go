package params

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"gopkg.in/yaml.v3"
)

// MarshalJSON writes the entries as a JSON object in insertion order.
func (m *Map) MarshalJSON() ([]byte, error) {
	if m == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range m.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(m.vals[k])
		if err != nil {
			return nil, fmt.Errorf("marshal %q: %w", k, err)
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object keeping key order. Numbers stay
// json.Number so their literal text survives; nested objects become *Map.
func (m *Map) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return errors.New("params: expected a JSON object")
	}
	out, err := decodeJSONObject(dec)
	if err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("params: unexpected data after JSON object")
	}
	*m = *out
	return nil
}

// ParseJSON decodes body into a Map. An empty body yields an empty Map.
func ParseJSON(body []byte) (*Map, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return New(0), nil
	}
	m := New(0)
	if err := m.UnmarshalJSON(body); err != nil {
		return nil, err
	}
	return m, nil
}

func decodeJSONObject(dec *json.Decoder) (*Map, error) {
	m := New(0)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("params: unexpected object key %v", tok)
		}
		v, err := decodeJSONValue(dec)
		if err != nil {
			return nil, err
		}
		m.Set(key, v)
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return m, nil
}

func decodeJSONValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	d, ok := tok.(json.Delim)
	if !ok {
		return tok, nil
	}
	switch d {
	case '{':
		return decodeJSONObject(dec)
	case '[':
		arr := make([]any, 0)
		for dec.More() {
			v, err := decodeJSONValue(dec)
			if err != nil {
				return nil, err
			}
			arr = append(arr, v)
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return arr, nil
	default:
		return nil, fmt.Errorf("params: unexpected delimiter %q", d)
	}
}

// UnmarshalYAML decodes a YAML mapping keeping key order. Scalars keep their
// literal text, so `05` stays "05" instead of becoming a number.
func (m *Map) UnmarshalYAML(value *yaml.Node) error {
	out, err := decodeYAMLMapping(value)
	if err != nil {
		return err
	}
	*m = *out
	return nil
}

func decodeYAMLMapping(value *yaml.Node) (*Map, error) {
	if value.Kind == yaml.AliasNode && value.Alias != nil {
		value = value.Alias
	}
	if value.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("params: line %d: expected a mapping", value.Line)
	}
	m := New(len(value.Content) / 2)
	for i := 0; i+1 < len(value.Content); i += 2 {
		key := strings.TrimSpace(value.Content[i].Value)
		if key == "" {
			return nil, fmt.Errorf("params: line %d: empty key", value.Content[i].Line)
		}
		node := value.Content[i+1]
		if node.Kind == yaml.AliasNode && node.Alias != nil {
			node = node.Alias
		}
		switch node.Kind {
		case yaml.ScalarNode:
			if node.Tag == "!!null" {
				m.Set(key, nil)
				continue
			}
			m.Set(key, node.Value)
		case yaml.MappingNode:
			sub, err := decodeYAMLMapping(node)
			if err != nil {
				return nil, err
			}
			m.Set(key, sub)
		default:
			return nil, fmt.Errorf("params: line %d: %q must be a scalar or mapping", node.Line, key)
		}
	}
	return m, nil
}

// MarshalYAML emits an ordered mapping node.
func (m *Map) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	var err error
	m.Range(func(k string, v any) bool {
		var vn *yaml.Node
		if sub, ok := v.(*Map); ok {
			var raw any
			raw, err = sub.MarshalYAML()
			if err != nil {
				return false
			}
			vn = raw.(*yaml.Node)
		} else {
			s, ok := Scalar(v)
			if !ok {
				err = fmt.Errorf("params: %q is not a scalar", k)
				return false
			}
			vn = &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s}
		}
		node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: k}, vn)
		return true
	})
	if err != nil {
		return nil, err
	}
	return node, nil
}

// ParseQuery decodes a raw URL query string keeping parameter order. Repeated
// names keep their first position and the last value.
func ParseQuery(raw string) (*Map, error) {
	m := New(0)
	for _, part := range strings.Split(raw, "&") {
		if part == "" {
			continue
		}
		k, v, _ := strings.Cut(part, "=")
		key, err := url.QueryUnescape(k)
		if err != nil {
			return nil, fmt.Errorf("params: query key %q: %w", k, err)
		}
		val, err := url.QueryUnescape(v)
		if err != nil {
			return nil, fmt.Errorf("params: query value for %q: %w", key, err)
		}
		if strings.TrimSpace(key) == "" {
			continue
		}
		m.Set(key, val)
	}
	return m, nil
}
