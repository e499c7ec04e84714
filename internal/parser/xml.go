package parser

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// XMLOptions configures XML decoding.
type XMLOptions struct {
	// AttrKey holds element attributes; defaults to "$".
	AttrKey string `yaml:"attr_key"`
	// CharKey holds element text when attributes or children exist; defaults to "_".
	CharKey string `yaml:"char_key"`
}

// XML decodes a document into nested maps exposed under body.
//
// Each element maps to a string when it only has text, otherwise to an object
// with attributes under AttrKey, text under CharKey and every child element
// collected into an array under its tag name.
type XML struct {
	attrKey string
	charKey string
}

// NewXML returns an XML parser configured by opts.
func NewXML(opts XMLOptions) *XML {
	x := &XML{attrKey: opts.AttrKey, charKey: opts.CharKey}
	if x.attrKey == "" {
		x.attrKey = "$"
	}
	if x.charKey == "" {
		x.charKey = "_"
	}
	return x
}

type xmlFrame struct {
	name     string
	attrs    map[string]any
	text     strings.Builder
	children map[string]any
}

// Parse implements Parser.
func (x *XML) Parse(data []byte, _ Context) (any, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = true

	var (
		stack []*xmlFrame
		root  map[string]any
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			f := &xmlFrame{name: t.Name.Local, children: map[string]any{}}
			if len(t.Attr) > 0 {
				f.attrs = make(map[string]any, len(t.Attr))
				for _, a := range t.Attr {
					f.attrs[a.Name.Local] = a.Value
				}
			}
			stack = append(stack, f)
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].text.Write(t)
			}
		case xml.EndElement:
			f := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			v := x.value(f)
			if len(stack) == 0 {
				root = map[string]any{f.name: v}
				continue
			}
			parent := stack[len(stack)-1]
			list, _ := parent.children[f.name].([]any)
			parent.children[f.name] = append(list, v)
		}
	}
	if root == nil {
		return nil, errors.New("read xml: no root element")
	}
	return map[string]any{"body": root}, nil
}

func (x *XML) value(f *xmlFrame) any {
	text := strings.TrimSpace(f.text.String())
	if f.attrs == nil && len(f.children) == 0 {
		return text
	}
	out := make(map[string]any, len(f.children)+2)
	if f.attrs != nil {
		out[x.attrKey] = f.attrs
	}
	if text != "" {
		out[x.charKey] = text
	}
	for name, list := range f.children {
		out[name] = list
	}
	return out
}
