// Package models defines the domain types for reblog.
package models

import "time"

// Post is one Markdown file turned into a renderable blog entry.
// Everything except TableOfContents is fixed once the post is built.
type Post struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	Path            string     `json:"path"`
	Abstract        string     `json:"abstract"`
	Tags            []string   `json:"tags"`
	Created         *time.Time `json:"created,omitempty"`
	Modified        *time.Time `json:"modified,omitempty"`
	Markdown        string     `json:"markdown"`
	HTML            string     `json:"html"`
	TableOfContents string     `json:"table_of_contents"`
}

// Summary is the list projection of a post.
type Summary struct {
	ID       string     `json:"id"`
	Title    string     `json:"title"`
	Abstract string     `json:"abstract"`
	Tags     []string   `json:"tags"`
	Created  *time.Time `json:"created,omitempty"`
}

// Summary returns the list projection of p.
func (p *Post) Summary() Summary {
	return Summary{
		ID:       p.ID,
		Title:    p.Title,
		Abstract: p.Abstract,
		Tags:     p.Tags,
		Created:  p.Created,
	}
}

// HasTag reports whether tag is one of the post's tags (exact match).
func (p *Post) HasTag(tag string) bool {
	for _, t := range p.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// PostMetadata is a lightweight listing record for a source file.
type PostMetadata struct {
	Path     string    `json:"path"`
	Checksum string    `json:"checksum"`
	ModTime  time.Time `json:"mod_time"`
}
