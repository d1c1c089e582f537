package storage

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/starford/reblog/internal/checksum"
	"github.com/starford/reblog/internal/models"
)

// PostExt is the file extension of post sources.
const PostExt = ".md"

// stamp remembers the checksum of a file for as long as its size and
// modification time stay the same.
type stamp struct {
	size int64
	mod  time.Time
	sum  string
}

// FS implements Provider and Writer on the local file system.
//
// List hashes a file only when its size or modification time changed since
// the previous listing, so periodic reloads of a large posts directory stay
// cheap.
type FS struct {
	root string

	mu     sync.Mutex
	stamps map[string]stamp
}

// NewFS creates a new FS provider rooted at the given directory.
// The directory must already exist.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	return &FS{root: abs, stamps: map[string]stamp{}}, nil
}

// Root returns the absolute directory the provider is rooted at.
func (f *FS) Root() string {
	return f.root
}

// resolve maps a slash-separated path relative to the root onto the file
// system and rejects anything that would leave the root.
func (f *FS) resolve(rel string) (string, error) {
	if rel == "" {
		return f.root, nil
	}
	cleaned := filepath.Clean(filepath.FromSlash(rel))
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("storage: absolute paths not allowed: %s", rel)
	}
	abs := filepath.Join(f.root, cleaned)
	if abs != f.root && !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("storage: path escapes root: %s", rel)
	}
	return abs, nil
}

// List walks dir (relative to root) and returns metadata for every post
// source in lexical path order. Hidden files and directories are skipped.
func (f *FS) List(dir string) ([]models.PostMetadata, error) {
	base, err := f.resolve(dir)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	var out []models.PostMetadata
	seen := make(map[string]struct{}, len(f.stamps))
	err = filepath.WalkDir(base, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if p != base && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || filepath.Ext(d.Name()) != PostExt {
			return nil
		}
		rel, err := filepath.Rel(f.root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		meta, err := f.stat(p, rel, d)
		if err != nil {
			return err
		}
		seen[rel] = struct{}{}
		out = append(out, meta)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: list: %w", err)
	}

	if dir == "" {
		for rel := range f.stamps {
			if _, ok := seen[rel]; !ok {
				delete(f.stamps, rel)
			}
		}
	}
	return out, nil
}

// stat returns the metadata of one source, hashing it only when the cached
// stamp is stale. Callers hold f.mu.
func (f *FS) stat(abs, rel string, d fs.DirEntry) (models.PostMetadata, error) {
	info, err := d.Info()
	if err != nil {
		return models.PostMetadata{}, err
	}
	st, ok := f.stamps[rel]
	if !ok || st.size != info.Size() || !st.mod.Equal(info.ModTime()) {
		data, err := os.ReadFile(abs)
		if err != nil {
			return models.PostMetadata{}, err
		}
		st = stamp{size: info.Size(), mod: info.ModTime(), sum: checksum.Sum(data)}
		f.stamps[rel] = st
	}
	return models.PostMetadata{Path: rel, Checksum: st.sum, ModTime: st.mod}, nil
}

// Read returns the raw bytes of a file under the root.
func (f *FS) Read(path string) ([]byte, error) {
	abs, err := f.resolve(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", path, err)
	}
	return data, nil
}

// Write replaces the file at path without ever exposing a partial file:
// content goes to a temp file in the same directory which is synced and
// renamed over the target. The result is world-readable so a web server
// can publish it.
func (f *FS) Write(path string, content []byte) (err error) {
	abs, err := f.resolve(path)
	if err != nil {
		return err
	}
	if abs == f.root {
		return fmt.Errorf("storage: write: empty path")
	}
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("storage: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".reblog-tmp-*")
	if err != nil {
		return fmt.Errorf("storage: create temp: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(content); err != nil {
		return fmt.Errorf("storage: write temp: %w", err)
	}
	if err = tmp.Chmod(0o644); err != nil {
		return fmt.Errorf("storage: chmod temp: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("storage: fsync: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("storage: close temp: %w", err)
	}
	if err = os.Rename(tmp.Name(), abs); err != nil {
		return fmt.Errorf("storage: rename: %w", err)
	}
	return nil
}
