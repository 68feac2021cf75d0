package extract

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// ExtractHeadings parses markdown and returns every heading's text in document order.
// Inline markup inside a heading (emphasis, code, links) is flattened to its text.
func ExtractHeadings(markdown []byte) []string {
	doc := goldmark.DefaultParser().Parse(text.NewReader(markdown))

	var headings []string
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		heading, ok := n.(*ast.Heading)
		if !ok {
			return ast.WalkContinue, nil
		}
		var buf bytes.Buffer
		collectText(heading, markdown, &buf)
		if s := strings.TrimSpace(buf.String()); s != "" {
			headings = append(headings, s)
		}
		return ast.WalkSkipChildren, nil
	})
	return headings
}

func collectText(n ast.Node, source []byte, buf *bytes.Buffer) {
	for child := n.FirstChild(); child != nil; child = child.NextSibling() {
		switch c := child.(type) {
		case *ast.Text:
			buf.Write(c.Segment.Value(source))
			if c.SoftLineBreak() {
				buf.WriteByte(' ')
			}
		case *ast.String:
			buf.Write(c.Value)
		default:
			collectText(child, source, buf)
		}
	}
}
