package markdown

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

func parse(source []byte) ast.Node {
	return goldmark.New().Parser().Parse(text.NewReader(source))
}

// FencedBlocks returns the contents of every fenced code block whose info
// string names lang (case-insensitive). An empty lang matches every block.
func FencedBlocks(source, lang string) []string {
	src := []byte(source)
	doc := parse(src)
	var blocks []string
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		block, ok := n.(*ast.FencedCodeBlock)
		if !ok {
			return ast.WalkContinue, nil
		}
		if lang != "" && !strings.EqualFold(string(block.Language(src)), lang) {
			return ast.WalkSkipChildren, nil
		}
		var buf bytes.Buffer
		lines := block.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			buf.Write(seg.Value(src))
		}
		blocks = append(blocks, strings.TrimSpace(buf.String()))
		return ast.WalkSkipChildren, nil
	})
	return blocks
}

// Heading is one ATX or setext heading.
type Heading struct {
	Level int
	Text  string
}

// Headings lists the document's headings in order. Frontmatter is ignored.
func Headings(source string) []Heading {
	if _, body, ok := Split(source); ok {
		source = body
	}
	src := []byte(source)
	doc := parse(src)
	var out []Heading
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		h, ok := n.(*ast.Heading)
		if !ok {
			return ast.WalkContinue, nil
		}
		var buf bytes.Buffer
		lines := h.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			buf.Write(seg.Value(src))
		}
		out = append(out, Heading{Level: h.Level, Text: strings.TrimSpace(buf.String())})
		return ast.WalkSkipChildren, nil
	})
	return out
}

// HasHeading reports whether any heading's text contains substr.
func HasHeading(source, substr string) bool {
	for _, h := range Headings(source) {
		if strings.Contains(h.Text, substr) {
			return true
		}
	}
	return false
}
