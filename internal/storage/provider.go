// Package storage defines the posts directory abstraction.
package storage

import "github.com/starford/reblog/internal/models"

// Provider gives read access to post sources.
type Provider interface {
	// List returns metadata for every .md file under dir (relative to the root).
	List(dir string) ([]models.PostMetadata, error)
	// Read returns the raw bytes of the file at path (relative to the root).
	Read(path string) ([]byte, error)
}

// Writer stores generated files next to the posts.
type Writer interface {
	// Write atomically writes content to path (relative to the root).
	Write(path string, content []byte) error
}
