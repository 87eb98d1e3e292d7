package document

import (
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"go.abhg.dev/goldmark/toc"
)

// normalizeMarkdown parses markdown with goldmark and extracts plain text
// block by block, plus the heading hierarchy in document order.
func normalizeMarkdown(source []byte) (string, []string, error) {
	md := goldmark.New(
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
	)

	reader := text.NewReader(source)
	doc := md.Parser().Parse(reader)

	tree, err := toc.Inspect(doc, source,
		toc.MinDepth(1),
		toc.MaxDepth(6),
		toc.Compact(true),
	)
	if err != nil {
		return "", nil, fmt.Errorf("inspect toc: %w", err)
	}

	var headings []string
	collectHeadings(tree.Items, &headings)

	var b strings.Builder
	err = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n.Kind() {
		case ast.KindHeading, ast.KindParagraph, ast.KindTextBlock,
			ast.KindCodeBlock, ast.KindFencedCodeBlock:
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				b.Write(seg.Value(source))
			}
			b.WriteString("\n")
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return "", nil, fmt.Errorf("walk ast: %w", err)
	}

	return b.String(), headings, nil
}

// collectHeadings flattens the TOC tree into heading titles in document order.
func collectHeadings(items toc.Items, out *[]string) {
	for _, item := range items {
		*out = append(*out, string(item.Title))
		if len(item.Items) > 0 {
			collectHeadings(item.Items, out)
		}
	}
}
