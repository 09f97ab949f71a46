package extract

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"go.abhg.dev/goldmark/toc"
)

// markdownSplitter cuts a markdown document into pages at H1 and H2 boundaries.
type markdownSplitter struct {
	md goldmark.Markdown
}

func newMarkdownSplitter() *markdownSplitter {
	return &markdownSplitter{
		md: goldmark.New(
			goldmark.WithParserOptions(
				parser.WithAutoHeadingID(),
			),
		),
	}
}

// Sections returns one entry per H1/H2 section in document order. Text before
// the first heading belongs to the first section. A document without
// headings is a single section.
func (m *markdownSplitter) Sections(source []byte) ([]string, error) {
	doc := m.md.Parser().Parse(text.NewReader(source))

	tree, err := toc.Inspect(doc, source,
		toc.MinDepth(1),
		toc.MaxDepth(2),
		toc.Compact(true),
	)
	if err != nil {
		return nil, fmt.Errorf("inspect TOC: %w", err)
	}

	var starts []int
	walkItems(tree.Items, func(item *toc.Item) {
		node := findHeaderByID(doc, string(item.ID))
		if node == nil || node.Lines().Len() == 0 {
			return
		}
		starts = append(starts, node.Lines().At(0).Start)
	})
	if len(starts) == 0 {
		return []string{string(source)}, nil
	}
	sort.Ints(starts)

	sections := make([]string, 0, len(starts))
	for i, start := range starts {
		end := len(source)
		if i+1 < len(starts) {
			end = lineStart(source, starts[i+1])
		}
		if i == 0 {
			// keep the preamble, drop the heading marker
			sections = append(sections, string(source[:lineStart(source, starts[0])])+string(source[starts[0]:end]))
			continue
		}
		sections = append(sections, string(source[start:end]))
	}
	return sections, nil
}

// walkItems visits TOC items depth first, which is document order.
func walkItems(items toc.Items, fn func(*toc.Item)) {
	for _, item := range items {
		fn(item)
		walkItems(item.Items, fn)
	}
}

// lineStart returns the offset of the first byte of the line containing pos.
func lineStart(source []byte, pos int) int {
	return bytes.LastIndexByte(source[:pos], '\n') + 1
}

// findHeaderByID locates a heading node by its auto-generated ID.
func findHeaderByID(node ast.Node, id string) ast.Node {
	var found ast.Node
	ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if entering && n.Kind() == ast.KindHeading {
			headingID, ok := n.AttributeString("id")
			if ok && string(headingID.([]byte)) == id {
				found = n
				return ast.WalkStop, nil
			}
		}
		return ast.WalkContinue, nil
	})
	return found
}
