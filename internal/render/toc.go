package render

import (
	"bytes"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
	"go.abhg.dev/goldmark/toc"
)

const tocMarker = "[toc]"

// KindTOC is the node kind of a generated table of contents.
var KindTOC = ast.NewNodeKind("TOC")

// tocNode replaces the [toc] marker paragraph and carries the heading tree
// of the document it was found in.
type tocNode struct {
	ast.BaseBlock
	items toc.Items
}

func (n *tocNode) Kind() ast.NodeKind { return KindTOC }

func (n *tocNode) Dump(source []byte, level int) {
	ast.DumpHelper(n, source, level, nil, nil)
}

// tocExtender swaps the first [toc] marker for the table of contents of the
// headings in the same document. The list is written on a single line.
type tocExtender struct{}

func (e *tocExtender) Extend(m goldmark.Markdown) {
	m.Parser().AddOptions(parser.WithASTTransformers(
		util.Prioritized(&tocTransformer{}, 100),
	))
	m.Renderer().AddOptions(renderer.WithNodeRenderers(
		util.Prioritized(&tocRenderer{}, 100),
	))
}

type tocTransformer struct{}

func (t *tocTransformer) Transform(doc *ast.Document, reader text.Reader, _ parser.Context) {
	src := reader.Source()
	marker := findMarker(doc, src)
	if marker == nil {
		return
	}
	tree, err := toc.Inspect(doc, src)
	if err != nil {
		return
	}
	node := &tocNode{items: tree.Items}
	marker.Parent().ReplaceChild(marker.Parent(), marker, node)
}

// findMarker returns the first top-level paragraph whose first line is the
// [toc] marker.
func findMarker(doc *ast.Document, src []byte) ast.Node {
	for c := doc.FirstChild(); c != nil; c = c.NextSibling() {
		p, ok := c.(*ast.Paragraph)
		if !ok || p.Lines().Len() == 0 {
			continue
		}
		seg := p.Lines().At(0)
		first := seg.Value(src)
		if bytes.EqualFold(bytes.TrimSpace(first), []byte(tocMarker)) {
			return p
		}
	}
	return nil
}

type tocRenderer struct{}

func (r *tocRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(KindTOC, r.render)
}

func (r *tocRenderer) render(w util.BufWriter, _ []byte, n ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	writeItems(w, n.(*tocNode).items)
	_ = w.WriteByte('\n')
	return ast.WalkSkipChildren, nil
}

// writeItems writes a nested <ul> for items. Entries without an id are
// placeholders for skipped heading levels and only hold their children.
func writeItems(w util.BufWriter, items toc.Items) {
	if len(items) == 0 {
		return
	}
	_, _ = w.WriteString("<ul>")
	for _, item := range items {
		_, _ = w.WriteString("<li>")
		if len(item.ID) > 0 {
			_, _ = w.WriteString("<a href='#")
			_, _ = w.Write(util.EscapeHTML(item.ID))
			_, _ = w.WriteString("'>")
			_, _ = w.Write(util.EscapeHTML(item.Title))
			_, _ = w.WriteString("</a>")
		}
		writeItems(w, item.Items)
		_, _ = w.WriteString("</li>")
	}
	_, _ = w.WriteString("</ul>")
}
