// Package markdown extracts structural metadata from markdown sources.
package markdown

import (
	"fmt"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"go.abhg.dev/goldmark/toc"
)

// Outline is the heading structure of one document.
type Outline struct {
	Title    string   // Text of the first top-level heading, empty if none
	Sections []string // All heading titles in document order, depth-first
}

// Inspector parses markdown and reports its heading outline.
type Inspector struct {
	parser goldmark.Markdown
}

// NewInspector creates an Inspector with a goldmark parser configured
// for heading inspection.
func NewInspector() *Inspector {
	md := goldmark.New(
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
	)
	return &Inspector{parser: md}
}

// Outline parses source and collects its headings down to H3.
// A document without headings yields an empty outline, not an error.
func (i *Inspector) Outline(source []byte) (Outline, error) {
	reader := text.NewReader(source)
	doc := i.parser.Parser().Parse(reader)

	tree, err := toc.Inspect(doc, source,
		toc.MinDepth(1),
		toc.MaxDepth(3),
		toc.Compact(true),
	)
	if err != nil {
		return Outline{}, fmt.Errorf("inspect headings: %w", err)
	}

	var out Outline
	collectTitles(tree.Items, &out.Sections)
	if len(tree.Items) > 0 {
		out.Title = string(tree.Items[0].Title)
	}
	return out, nil
}

func collectTitles(items toc.Items, titles *[]string) {
	for _, item := range items {
		if len(item.Title) > 0 {
			*titles = append(*titles, string(item.Title))
		}
		if len(item.Items) > 0 {
			collectTitles(item.Items, titles)
		}
	}
}
