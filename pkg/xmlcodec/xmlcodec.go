// Package xmlcodec converts between ordered parameter mappings and the
// gateway's XML documents.
package xmlcodec

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/beevik/etree"
	"golang.org/x/net/html/charset"

	"github.com/ruianderson/sts-proxy/pkg/params"
)

// Kind names one side of a conversion.
type Kind string

const (
	KindMapping  Kind = "mapping"
	KindDocument Kind = "document"
)

// RootElement wraps every outbound document.
const RootElement = "Request"

var (
	ErrMalformedDocument = errors.New("malformed document")
	ErrUnsupportedKind   = errors.New("unsupported conversion")
	ErrUnsupportedValue  = errors.New("unsupported value")
	ErrInvalidName       = errors.New("invalid element name")
)

// ChangeFormat converts v from one kind to the other. A mapping is a
// *params.Map; a document is its XML encoding as []byte or string.
func ChangeFormat(v any, from, to Kind) (any, error) {
	switch {
	case from == KindMapping && to == KindDocument:
		m, ok := v.(*params.Map)
		if !ok {
			return nil, fmt.Errorf("%w: mapping source must be *params.Map, got %T", ErrUnsupportedKind, v)
		}
		return Encode(m)
	case from == KindDocument && to == KindMapping:
		switch t := v.(type) {
		case []byte:
			return Decode(t)
		case string:
			return Decode([]byte(t))
		default:
			return nil, fmt.Errorf("%w: document source must be []byte or string, got %T", ErrUnsupportedKind, v)
		}
	default:
		return nil, fmt.Errorf("%w: %s -> %s", ErrUnsupportedKind, from, to)
	}
}

// Encode renders m as a UTF-8 XML document rooted at <Request>, children in
// key order, indented by two spaces.
func Encode(m *params.Map) ([]byte, error) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	root := doc.CreateElement(RootElement)
	if err := writeChildren(root, m); err != nil {
		return nil, err
	}
	doc.Indent(2)
	return doc.WriteToBytes()
}

func writeChildren(parent *etree.Element, m *params.Map) error {
	var err error
	m.Range(func(k string, v any) bool {
		if !isXMLName(k) {
			err = fmt.Errorf("%w: %q", ErrInvalidName, k)
			return false
		}
		el := parent.CreateElement(k)
		if sub, ok := v.(*params.Map); ok {
			err = writeChildren(el, sub)
			return err == nil
		}
		s, ok := params.Scalar(v)
		if !ok {
			err = fmt.Errorf("%w: %q holds %T", ErrUnsupportedValue, k, v)
			return false
		}
		if s != "" {
			el.SetText(s)
		}
		return true
	})
	return err
}

// Decode parses an XML document into a mapping holding the root element as
// its only key. Elements with child elements become nested mappings, the rest
// become their text. Attributes are ignored. Repeated sibling elements are
// rejected.
func Decode(b []byte) (*params.Map, error) {
	if err := wellFormed(b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	doc := etree.NewDocument()
	doc.ReadSettings.CharsetReader = charset.NewReaderLabel
	if err := doc.ReadFromBytes(b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	roots := doc.ChildElements()
	switch len(roots) {
	case 0:
		return nil, fmt.Errorf("%w: no root element", ErrMalformedDocument)
	case 1:
	default:
		return nil, fmt.Errorf("%w: %d root elements", ErrMalformedDocument, len(roots))
	}
	root := roots[0]
	v, err := elementValue(root)
	if err != nil {
		return nil, err
	}
	return params.Of(root.Tag, v), nil
}

// wellFormed runs the strict token reader over b; etree's tree builder does
// not report mismatched or unclosed tags on its own.
func wellFormed(b []byte) error {
	dec := xml.NewDecoder(bytes.NewReader(b))
	dec.CharsetReader = charset.NewReaderLabel
	for {
		_, err := dec.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func elementValue(el *etree.Element) (any, error) {
	children := el.ChildElements()
	if len(children) == 0 {
		return el.Text(), nil
	}
	m := params.New(len(children))
	for _, c := range children {
		if m.Has(c.Tag) {
			return nil, fmt.Errorf("%w: repeated element <%s> under <%s>", ErrMalformedDocument, c.Tag, el.Tag)
		}
		v, err := elementValue(c)
		if err != nil {
			return nil, err
		}
		m.Set(c.Tag, v)
	}
	return m, nil
}

func isXMLName(s string) bool {
	if s == "" || strings.HasPrefix(strings.ToLower(s), "xml") {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || unicode.IsLetter(r):
		case i > 0 && (r == '-' || r == '.' || unicode.IsDigit(r)):
		default:
			return false
		}
	}
	return true
}
