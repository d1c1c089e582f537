// Package parser extracts blog post metadata from the front-matter block of
// a Markdown document.
//
// Front matter is located by the Markdown engine but its content is not
// decoded as YAML: each line is matched against a fixed set of literal
// prefixes (id:, title:, abstract:, created:, tags:).
package parser

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"go.abhg.dev/goldmark/frontmatter"
)

// DateLayout is the only accepted layout for the created: field.
const DateLayout = "2006-01-02"

var md = goldmark.New(
	goldmark.WithExtensions(&frontmatter.Extender{
		Formats: []frontmatter.Format{frontmatter.YAML},
	}),
)

// Meta holds the fields recognised in a front-matter block.
type Meta struct {
	ID       string
	HasID    bool
	Title    string
	Abstract string
	Created  *time.Time
	Tags     []string
}

// Block is the position of the front-matter block in the source text,
// fence lines included.
type Block struct {
	Offset int
	Length int
}

// Extract locates the front-matter block in markdown and returns the fields
// found in it. A document without front matter yields a zero Meta (with an
// empty, non-nil Tags slice) and no error. A malformed created: date is an
// error.
func Extract(markdown string) (Meta, error) {
	meta := Meta{Tags: []string{}}

	block, ok := Locate([]byte(markdown))
	if !ok {
		return meta, nil
	}

	span := markdown[block.Offset : block.Offset+block.Length]
	for _, line := range strings.Split(span, "\n") {
		if err := applyLine(&meta, line); err != nil {
			return Meta{}, err
		}
	}
	return meta, nil
}

// Locate asks the Markdown engine whether src opens with a front-matter
// block and, if so, returns its span. A block without a closing line is not
// front matter. Rendering and extraction both rely on this rule.
func Locate(src []byte) (Block, bool) {
	ctx := parser.NewContext()
	_ = md.Parser().Parse(text.NewReader(src), parser.WithContext(ctx))
	if frontmatter.Get(ctx) == nil {
		return Block{}, false
	}
	return fenceSpan(src)
}

// fenceSpan finds the opening fence on the first line and the closing line,
// which repeats the opening fence or, for a "---" fence, may be "...". The
// returned length stops before the newline that ends the closing line.
func fenceSpan(src []byte) (Block, bool) {
	first, rest, found := bytes.Cut(src, []byte("\n"))
	if !found {
		return Block{}, false
	}
	fence := bytes.TrimRight(first, " \t\r")
	if len(fence) < 3 || len(bytes.Trim(fence, "-")) != 0 {
		return Block{}, false
	}

	offset := len(first) + 1
	for len(rest) > 0 {
		line, next, _ := bytes.Cut(rest, []byte("\n"))
		if closesFence(bytes.TrimRight(line, " \t\r"), fence) {
			return Block{Offset: 0, Length: offset + len(line)}, true
		}
		offset += len(line) + 1
		rest = next
	}
	return Block{}, false
}

func closesFence(line, fence []byte) bool {
	if bytes.Equal(line, fence) {
		return true
	}
	return len(fence) == 3 && bytes.Equal(line, []byte("..."))
}

// rule binds a literal line prefix to the field it populates.
type rule struct {
	prefix string
	apply  func(m *Meta, value string) error
}

// idRule is checked on every line independently of the others.
var idRule = rule{"id:", func(m *Meta, v string) error {
	m.ID = strings.ToLower(v)
	m.HasID = true
	return nil
}}

// chain is evaluated in order and stops at the first matching prefix, so a
// line can set at most one of these fields.
var chain = []rule{
	{"title:", func(m *Meta, v string) error {
		m.Title = v
		return nil
	}},
	{"abstract:", func(m *Meta, v string) error {
		m.Abstract = v
		return nil
	}},
	{"created:", func(m *Meta, v string) error {
		t, err := time.Parse(DateLayout, v)
		if err != nil {
			return fmt.Errorf("parser: created date %q: %w", v, err)
		}
		m.Created = &t
		return nil
	}},
	{"tags:", func(m *Meta, v string) error {
		parts := strings.Split(v, ",")
		tags := make([]string, len(parts))
		for i, p := range parts {
			tags[i] = strings.TrimSpace(p)
		}
		m.Tags = tags
		return nil
	}},
}

func applyLine(m *Meta, line string) error {
	if v, ok := valueAfter(line, idRule.prefix); ok {
		if err := idRule.apply(m, v); err != nil {
			return err
		}
	}
	for _, r := range chain {
		if v, ok := valueAfter(line, r.prefix); ok {
			return r.apply(m, v)
		}
	}
	return nil
}

// valueAfter returns the trimmed text following prefix when line starts
// with it. Matching is case-sensitive.
func valueAfter(line, prefix string) (string, bool) {
	if !strings.HasPrefix(line, prefix) {
		return "", false
	}
	return strings.TrimSpace(line[len(prefix):]), true
}
