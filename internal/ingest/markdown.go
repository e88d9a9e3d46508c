// Package ingest turns a markdown design document into a domain.Document.
//
// Sections are delimited by headings. When the document opens with a single
// top-level title, the title names the document and the next heading level
// splits sections; deeper headings stay inside their section body.
package ingest

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/ahrav/go-dldprompt/internal/domain"
)

// ErrEmptyDocument indicates the markdown held no text.
var ErrEmptyDocument = errors.New("empty design document")

// PreambleTitle names text that appears before the first section heading.
const PreambleTitle = "Overview"

// MaxFileSize caps documents read by ParseFile.
const MaxFileSize = 4 << 20

type heading struct {
	level     int
	title     string
	lineStart int
	bodyStart int
}

// ParseMarkdown splits src into classified sections. name is used when the
// document has no title heading.
func ParseMarkdown(src []byte, name string) (domain.Document, error) {
	if len(bytes.TrimSpace(src)) == 0 {
		return domain.Document{}, ErrEmptyDocument
	}
	root := goldmark.New().Parser().Parse(text.NewReader(src))

	var hs []heading
	for n := root.FirstChild(); n != nil; n = n.NextSibling() {
		h, ok := n.(*ast.Heading)
		if !ok || h.Lines().Len() == 0 {
			continue
		}
		hs = append(hs, headingAt(src, h))
	}

	doc := domain.Document{Name: name}
	start := 0
	if len(hs) > 1 && isTitle(hs) {
		doc.Name = hs[0].title
		start = hs[0].bodyStart
		hs = hs[1:]
	}
	split := minLevel(hs)

	var sections []heading
	for _, h := range hs {
		if h.level == split {
			sections = append(sections, h)
		}
	}

	end := len(src)
	if len(sections) > 0 {
		end = sections[0].lineStart
	}
	if pre := strings.TrimSpace(string(src[start:end])); pre != "" {
		doc.Sections = append(doc.Sections, newSection(PreambleTitle, pre))
	}

	for i, h := range sections {
		stop := len(src)
		if i+1 < len(sections) {
			stop = sections[i+1].lineStart
		}
		body := strings.TrimSpace(string(src[h.bodyStart:stop]))
		doc.Sections = append(doc.Sections, newSection(h.title, body))
	}

	if len(doc.Sections) == 0 {
		return domain.Document{}, ErrEmptyDocument
	}
	if err := doc.Validate(); err != nil {
		return domain.Document{}, err
	}
	return doc, nil
}

// ParseFile reads and parses the markdown file at path. The file name
// without extension names untitled documents.
func ParseFile(path string) (domain.Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return domain.Document{}, fmt.Errorf("stat document: %w", err)
	}
	if info.Size() > MaxFileSize {
		return domain.Document{}, fmt.Errorf("document %s is %d bytes, limit is %d", path, info.Size(), MaxFileSize)
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return domain.Document{}, fmt.Errorf("read document: %w", err)
	}
	base := filepath.Base(path)
	doc, err := ParseMarkdown(src, strings.TrimSuffix(base, filepath.Ext(base)))
	if err != nil {
		return domain.Document{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return doc, nil
}

func newSection(title, body string) domain.Section {
	return domain.Section{Title: title, Body: body, Kind: Classify(title, body)}
}

// isTitle reports whether the first heading is the only one at the
// shallowest level.
func isTitle(hs []heading) bool {
	top := minLevel(hs)
	if hs[0].level != top {
		return false
	}
	for _, h := range hs[1:] {
		if h.level == top {
			return false
		}
	}
	return true
}

func minLevel(hs []heading) int {
	lvl := 0
	for _, h := range hs {
		if lvl == 0 || h.level < lvl {
			lvl = h.level
		}
	}
	return lvl
}

func headingAt(src []byte, h *ast.Heading) heading {
	first := h.Lines().At(0)
	last := h.Lines().At(h.Lines().Len() - 1)

	lineStart := bytes.LastIndexByte(src[:first.Start], '\n') + 1
	bodyStart := lineEnd(src, last.Stop)
	// Setext headings are underlined on the following line.
	if !bytes.HasPrefix(bytes.TrimLeft(src[lineStart:], " "), []byte("#")) {
		bodyStart = lineEnd(src, bodyStart)
	}
	return heading{
		level:     h.Level,
		title:     strings.TrimSpace(inlineText(src, h)),
		lineStart: lineStart,
		bodyStart: bodyStart,
	}
}

// lineEnd returns the offset just past the newline at or after i.
func lineEnd(src []byte, i int) int {
	if i >= len(src) {
		return len(src)
	}
	if j := bytes.IndexByte(src[i:], '\n'); j >= 0 {
		return i + j + 1
	}
	return len(src)
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
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(t.Value)
		}
		return ast.WalkContinue, nil
	})
	return b.String()
}
