package render

import (
	"bytes"
	"strconv"

	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
)

// pragmaLines tags every block that has no id of its own with
// id="pragma-line-N", N being the zero-based source line the block starts on.
type pragmaLines struct{}

func (pragmaLines) Transform(doc *ast.Document, reader text.Reader, _ parser.Context) {
	src := reader.Source()
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering || n.Type() != ast.TypeBlock || n.Kind() == ast.KindDocument {
			return ast.WalkContinue, nil
		}
		if _, ok := n.AttributeString("id"); ok {
			return ast.WalkContinue, nil
		}
		if line, ok := startLine(n, src); ok {
			n.SetAttributeString("id", []byte("pragma-line-"+strconv.Itoa(line)))
		}
		return ast.WalkContinue, nil
	})
}

// startLine finds the first source line covered by n or, for containers
// without lines of their own, by its first block descendant.
func startLine(n ast.Node, src []byte) (int, bool) {
	if lines := n.Lines(); lines != nil && lines.Len() > 0 {
		return bytes.Count(src[:lines.At(0).Start], []byte{'\n'}), true
	}
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if c.Type() != ast.TypeBlock {
			continue
		}
		if line, ok := startLine(c, src); ok {
			return line, true
		}
	}
	return 0, false
}
