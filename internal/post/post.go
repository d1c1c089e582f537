// Package post turns a (path, markdown) pair into a models.Post.
package post

import (
	"fmt"
	"strings"

	"github.com/starford/reblog/internal/models"
	"github.com/starford/reblog/internal/parser"
	"github.com/starford/reblog/internal/render"
)

// Builder constructs posts with a shared renderer.
type Builder struct {
	renderer *render.Renderer
}

// NewBuilder creates a Builder.
func NewBuilder(r *render.Renderer) *Builder {
	return &Builder{renderer: r}
}

// Build renders markdown, reads its front matter and synthesises the table
// of contents. Any failure aborts construction; no partial post is returned.
func (b *Builder) Build(path, markdown string) (*models.Post, error) {
	body, err := b.renderer.HTML(markdown)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", path, err)
	}

	meta, err := parser.Extract(markdown)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", path, err)
	}

	p := &models.Post{
		ID:       meta.ID,
		Title:    meta.Title,
		Path:     path,
		Abstract: meta.Abstract,
		Tags:     meta.Tags,
		Created:  meta.Created,
		Markdown: markdown,
		HTML:     body,
	}
	if !meta.HasID {
		p.ID = IDFromPath(path)
	}

	if err := b.RebuildTableOfContents(p); err != nil {
		return nil, err
	}
	return p, nil
}

// RebuildTableOfContents regenerates p.TableOfContents from p.Markdown.
func (b *Builder) RebuildTableOfContents(p *models.Post) error {
	toc, err := b.renderer.TableOfContents(p.Markdown)
	if err != nil {
		return fmt.Errorf("post %s: %w", p.Path, err)
	}
	p.TableOfContents = toc
	return nil
}

// IDFromPath is the fallback id: everything before the first '.' of path.
// Directory separators are kept, so "2024/intro.md" yields "2024/intro" and
// "v1.2/notes.md" yields "v1".
func IDFromPath(path string) string {
	id, _, _ := strings.Cut(path, ".")
	return id
}
