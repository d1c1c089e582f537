// Package render converts post Markdown into HTML and builds the in-page
// table of contents.
package render

import (
	"bytes"
	"fmt"
	"strings"

	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/util"

	front "github.com/starford/reblog/internal/parser"
)

// Option configures a Renderer.
type Option func(*options)

type options struct {
	highlightStyle string
}

// WithHighlightStyle enables chroma syntax highlighting of fenced code
// blocks using the named style. An empty name leaves code blocks plain.
func WithHighlightStyle(style string) Option {
	return func(o *options) {
		o.highlightStyle = style
	}
}

// Renderer holds the two goldmark pipelines used for a post: the full body
// pipeline and the table-of-contents pipeline. It is safe for concurrent use.
type Renderer struct {
	body goldmark.Markdown
	toc  goldmark.Markdown
}

// New builds a Renderer.
func New(opts ...Option) *Renderer {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	exts := []goldmark.Extender{
		extension.GFM,
		extension.Footnote,
		extension.DefinitionList,
		extension.Typographer,
	}
	if o.highlightStyle != "" {
		exts = append(exts, highlighting.NewHighlighting(
			highlighting.WithStyle(o.highlightStyle),
			highlighting.WithFormatOptions(chromahtml.WithClasses(false)),
		))
	}

	body := goldmark.New(
		goldmark.WithExtensions(exts...),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
			parser.WithASTTransformers(util.Prioritized(pragmaLines{}, 1000)),
		),
		goldmark.WithRendererOptions(
			html.WithUnsafe(),
		),
	)

	toc := goldmark.New(
		goldmark.WithExtensions(&tocExtender{}),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
	)

	return &Renderer{body: body, toc: toc}
}

// HTML renders the whole document. The front-matter block is not part of
// the output. A block the extractor does not recognise is rendered as body.
func (r *Renderer) HTML(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := r.body.Convert(stripFrontmatter([]byte(markdown)), &buf); err != nil {
		return "", fmt.Errorf("render: convert body: %w", err)
	}
	return buf.String(), nil
}

// stripFrontmatter blanks the front-matter block, keeping one empty line per
// block line so pragma line numbers still count from the top of the file.
func stripFrontmatter(src []byte) []byte {
	block, ok := front.Locate(src)
	if !ok {
		return src
	}
	end := block.Offset + block.Length
	lines := bytes.Count(src[block.Offset:end], []byte("\n"))
	out := make([]byte, 0, len(src)-block.Length+lines)
	out = append(out, src[:block.Offset]...)
	out = append(out, bytes.Repeat([]byte("\n"), lines)...)
	return append(out, src[end:]...)
}

// TableOfContents returns a single-line nested list of links, one per
// heading line of markdown, whose targets call scrollTo with the heading
// slug instead of jumping to a URL fragment.
//
// Headings are found by a line scan, so heading-like lines inside fenced
// code blocks are listed too.
func (r *Renderer) TableOfContents(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := r.toc.Convert([]byte(synthesize(markdown)), &buf); err != nil {
		return "", fmt.Errorf("render: convert toc: %w", err)
	}
	first, _, _ := strings.Cut(buf.String(), "\n")
	return scrollLinks(first), nil
}

// synthesize builds the document fed to the TOC pipeline: the marker line
// followed by every line that starts with '#' once leading whitespace is
// removed.
func synthesize(markdown string) string {
	var b strings.Builder
	b.WriteString(tocMarker)
	b.WriteByte('\n')
	for _, line := range strings.Split(markdown, "\n") {
		line = strings.TrimLeft(line, " \t\r\f\v")
		if strings.HasPrefix(line, "#") {
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// scrollLinks rewrites fragment links into scrollTo calls. The rewrite is
// textual: any other "'>" in s is rewritten too.
func scrollLinks(s string) string {
	s = strings.ReplaceAll(s, "<a href='#", `<a href='javascript:scrollTo("`)
	return strings.ReplaceAll(s, "'>", `")'>`)
}
