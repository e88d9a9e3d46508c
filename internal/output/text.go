package output

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// plainText renders markdown as plain text. Headings and emphasis lose their
// markers, list items become bullets, and code blocks are indented.
func plainText(md string) string {
	src := []byte(md)
	root := goldmark.New().Parser().Parse(text.NewReader(src))
	var blocks []string
	for n := root.FirstChild(); n != nil; n = n.NextSibling() {
		if s := blockText(src, n, ""); s != "" {
			blocks = append(blocks, s)
		}
	}
	return strings.Join(blocks, "\n\n")
}

func blockText(src []byte, n ast.Node, indent string) string {
	switch n := n.(type) {
	case *ast.List:
		items := make([]string, 0, n.ChildCount())
		num := n.Start
		for item := n.FirstChild(); item != nil; item = item.NextSibling() {
			marker := "• "
			if n.IsOrdered() {
				marker = fmt.Sprintf("%d. ", num)
				num++
			}
			var parts []string
			for c := item.FirstChild(); c != nil; c = c.NextSibling() {
				if sub, ok := c.(*ast.List); ok {
					parts = append(parts, blockText(src, sub, indent+"  "))
					continue
				}
				if s := blockText(src, c, indent); s != "" {
					parts = append(parts, s)
				}
			}
			items = append(items, indent+marker+strings.Join(parts, "\n"))
		}
		return strings.Join(items, "\n")
	case *ast.FencedCodeBlock, *ast.CodeBlock:
		var b strings.Builder
		lines := n.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			if i > 0 {
				b.WriteByte('\n')
			}
			b.WriteString(indent + "    ")
			b.Write(bytes.TrimRight(seg.Value(src), "\r\n"))
		}
		return b.String()
	case *ast.Blockquote:
		var parts []string
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			if s := blockText(src, c, indent); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "\n\n")
	case *ast.HTMLBlock, *ast.ThematicBreak:
		return ""
	default:
		return strings.TrimSpace(inlineText(src, n))
	}
}

func inlineText(src []byte, n ast.Node) string {
	var b strings.Builder
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := c.(type) {
		case *ast.Text:
			b.Write(t.Segment.Value(src))
			if t.SoftLineBreak() || t.HardLineBreak() {
				b.WriteByte('\n')
			}
		case *ast.String:
			b.Write(t.Value)
		case *ast.AutoLink:
			b.Write(t.URL(src))
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return b.String()
}
