package parser

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// htmlTree parses an HTML fragment into a JSON-friendly node tree:
//
//	{"type": "root", "children": [...]}
//	{"type": "element", "tag": "p", "props": {...}, "children": [...]}
//	{"type": "text", "value": "..."}
//
// Comments and whitespace-only text between elements are dropped.
func htmlTree(fragment string) (map[string]any, error) {
	context := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), context)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return map[string]any{
		"type":     "root",
		"children": convertNodes(nodes),
	}, nil
}

func convertNodes(nodes []*html.Node) []any {
	children := make([]any, 0, len(nodes))
	for _, n := range nodes {
		if c := convertNode(n); c != nil {
			children = append(children, c)
		}
	}
	return children
}

func convertNode(n *html.Node) map[string]any {
	switch n.Type {
	case html.TextNode:
		if strings.TrimSpace(n.Data) == "" && strings.Contains(n.Data, "\n") {
			return nil
		}
		return map[string]any{"type": "text", "value": n.Data}
	case html.ElementNode:
		props := make(map[string]any, len(n.Attr))
		for _, a := range n.Attr {
			props[a.Key] = a.Val
		}
		var kids []*html.Node
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			kids = append(kids, c)
		}
		return map[string]any{
			"type":     "element",
			"tag":      n.Data,
			"props":    props,
			"children": convertNodes(kids),
		}
	default:
		return nil
	}
}

var blockTags = map[string]bool{
	"p": true, "div": true, "li": true, "ul": true, "ol": true, "blockquote": true,
	"pre": true, "h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"table": true, "tr": true, "td": true, "th": true, "br": true, "hr": true,
}

// plainText flattens a node tree into whitespace-collapsed text.
func plainText(tree map[string]any) string {
	var b strings.Builder
	var walk func(v any)
	walk = func(v any) {
		node, ok := v.(map[string]any)
		if !ok {
			return
		}
		if node["type"] == "text" {
			s, _ := node["value"].(string)
			b.WriteString(s)
			return
		}
		children, _ := node["children"].([]any)
		for _, c := range children {
			walk(c)
		}
		if tag, _ := node["tag"].(string); blockTags[tag] {
			b.WriteByte(' ')
		}
	}
	walk(tree)
	return strings.Join(strings.Fields(b.String()), " ")
}
