// Package sitemap renders the sitemaps.org urlset for the published posts.
package sitemap

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/starford/reblog/internal/models"
	"github.com/starford/reblog/internal/storage"
)

// Namespace is the sitemap protocol 0.9 namespace.
const Namespace = "http://www.sitemaps.org/schemas/sitemap/0.9"

// ErrNoDomain is returned when no site domain is configured.
var ErrNoDomain = errors.New("sitemap: site domain is not configured")

// Entry is one post listed in the sitemap.
type Entry struct {
	ID      string
	ModTime time.Time
}

// Source is the part of the catalog the sitemap needs.
type Source interface {
	All() []*models.Post
	Stat(id string) (models.PostMetadata, error)
}

// Entries lists every post of src with its source modification time.
// Posts shadowed by a duplicate id are listed once.
func Entries(src Source) []Entry {
	posts := src.All()
	out := make([]Entry, 0, len(posts))
	seen := make(map[string]struct{}, len(posts))
	for _, p := range posts {
		if _, dup := seen[p.ID]; dup {
			continue
		}
		seen[p.ID] = struct{}{}
		e := Entry{ID: p.ID}
		if meta, err := src.Stat(p.ID); err == nil {
			e.ModTime = meta.ModTime
		}
		out = append(out, e)
	}
	return out
}

type urlElem struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod,omitempty"`
}

type urlset struct {
	XMLName xml.Name  `xml:"urlset"`
	XMLNS   string    `xml:"xmlns,attr"`
	URLs    []urlElem `xml:"url"`
}

// Build returns the sitemap document for entries. Each post is published at
// {domain}/posts/{id}; lastmod is the source file's modification time.
func Build(domain string, entries []Entry) ([]byte, error) {
	domain = strings.TrimRight(strings.TrimSpace(domain), "/")
	if domain == "" {
		return nil, ErrNoDomain
	}
	if _, err := url.ParseRequestURI(domain); err != nil {
		return nil, fmt.Errorf("sitemap: invalid domain %q: %w", domain, err)
	}

	set := urlset{XMLNS: Namespace, URLs: make([]urlElem, 0, len(entries))}
	for _, e := range entries {
		u := urlElem{Loc: domain + "/posts/" + e.ID}
		if !e.ModTime.IsZero() {
			u.LastMod = e.ModTime.UTC().Format(time.RFC3339)
		}
		set.URLs = append(set.URLs, u)
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(set); err != nil {
		return nil, fmt.Errorf("sitemap: encode: %w", err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// Write builds the sitemap and stores it at path through w.
func Write(w storage.Writer, path, domain string, entries []Entry) error {
	data, err := Build(domain, entries)
	if err != nil {
		return err
	}
	if err := w.Write(path, data); err != nil {
		return fmt.Errorf("sitemap: write %s: %w", path, err)
	}
	return nil
}
