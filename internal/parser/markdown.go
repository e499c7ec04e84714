package parser

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer"
	gmhtml "github.com/yuin/goldmark/renderer/html"
	"gopkg.in/yaml.v3"
)

// ExcerptSeparator marks the end of a Markdown excerpt.
const ExcerptSeparator = "<!--more-->"

// MarkdownOptions configures Markdown rendering.
type MarkdownOptions struct {
	Typographer bool `yaml:"typographer"`
	Linkify     bool `yaml:"linkify"`
	HardWraps   bool `yaml:"hard_wraps"`
}

// DefaultMarkdownOptions mirrors the usual content-site defaults.
func DefaultMarkdownOptions() MarkdownOptions {
	return MarkdownOptions{Typographer: true, Linkify: true}
}

// Markdown parses YAML frontmatter and renders the body into a node tree.
//
// The result holds the frontmatter fields plus:
//   - body: the rendered document as a node tree
//   - excerpt: the rendered text before <!--more-->, if present
//   - description: the plain text of the excerpt, if present
//
// Frontmatter fields take precedence over the computed ones.
type Markdown struct {
	md goldmark.Markdown
}

// NewMarkdown returns a Markdown parser configured by opts.
func NewMarkdown(opts MarkdownOptions) *Markdown {
	exts := []goldmark.Extender{extension.Table, extension.Strikethrough, extension.TaskList}
	if opts.Linkify {
		exts = append(exts, extension.Linkify)
	}
	if opts.Typographer {
		exts = append(exts, extension.Typographer)
	}
	rendererOpts := []renderer.Option{gmhtml.WithUnsafe()}
	if opts.HardWraps {
		rendererOpts = append(rendererOpts, gmhtml.WithHardWraps())
	}
	return &Markdown{md: goldmark.New(
		goldmark.WithExtensions(exts...),
		goldmark.WithRendererOptions(rendererOpts...),
	)}
}

// Parse implements Parser.
func (m *Markdown) Parse(data []byte, _ Context) (any, error) {
	fm, content, err := splitFrontmatter(data)
	if err != nil {
		return nil, err
	}

	body, err := m.render(content)
	if err != nil {
		return nil, err
	}

	out := map[string]any{"body": body}

	if i := strings.Index(content, ExcerptSeparator); i >= 0 {
		excerpt, err := m.render(content[:i])
		if err != nil {
			return nil, err
		}
		out["excerpt"] = excerpt
		out["description"] = plainText(excerpt)
	}

	for k, v := range fm {
		out[k] = v
	}
	return out, nil
}

func (m *Markdown) render(content string) (map[string]any, error) {
	var buf bytes.Buffer
	if err := m.md.Convert([]byte(content), &buf); err != nil {
		return nil, fmt.Errorf("render markdown: %w", err)
	}
	return htmlTree(buf.String())
}

// splitFrontmatter separates YAML frontmatter (between leading --- delimiters)
// from the Markdown body. Without frontmatter the entire content is body.
// Malformed YAML inside the delimiters is an error.
func splitFrontmatter(data []byte) (map[string]any, string, error) {
	const delim = "---"
	trimmed := bytes.TrimLeft(data, "\ufeff\n\r")

	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, string(data), nil
	}

	rest := trimmed[len(delim):]
	// The opening delimiter must sit on its own line.
	if len(rest) > 0 && rest[0] != '\n' && rest[0] != '\r' {
		return nil, string(data), nil
	}
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return nil, string(data), nil
	}

	yamlBlock := rest[:idx]
	afterDelim := rest[idx+1+len(delim):]
	body := strings.TrimLeft(string(afterDelim), "\n\r")

	var fm map[string]any
	if err := yaml.Unmarshal(yamlBlock, &fm); err != nil {
		return nil, "", fmt.Errorf("frontmatter: %w", err)
	}
	return fm, body, nil
}
