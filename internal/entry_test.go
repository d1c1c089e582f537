package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/starford/reblog/internal/models"
)

func testConfig(t *testing.T) *Config {
	t.Helper()
	cfg := NewDefaultConfig()
	cfg.Content.Path = t.TempDir()
	cfg.Content.Watch = false
	return cfg
}

func writePost(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestRenderFile(t *testing.T) {
	dir := t.TempDir()
	writePost(t, dir, "hello.world.md", "---\ntitle: Hi\n---\n# Hi\n")

	var out bytes.Buffer
	err := RenderFile(filepath.Join(dir, "hello.world.md"), &out,
		WithConfig(testConfig(t)), WithLogOutput(io.Discard))
	if err != nil {
		t.Fatalf("RenderFile: %v", err)
	}

	var p models.Post
	if err := json.Unmarshal(out.Bytes(), &p); err != nil {
		t.Fatal(err)
	}
	if p.ID != "hello" || p.Title != "Hi" {
		t.Errorf("post = %+v", p)
	}
	if !strings.Contains(p.TableOfContents, `scrollTo("hi")`) {
		t.Errorf("toc = %q", p.TableOfContents)
	}
}

func TestRenderFile_BadDate(t *testing.T) {
	dir := t.TempDir()
	writePost(t, dir, "bad.md", "---\ncreated: 2024-13-45\n---\n")

	err := RenderFile(filepath.Join(dir, "bad.md"), io.Discard,
		WithConfig(testConfig(t)), WithLogOutput(io.Discard))
	if err == nil {
		t.Fatal("expected error for malformed date")
	}
}

func TestWriteSitemap(t *testing.T) {
	cfg := testConfig(t)
	writePost(t, cfg.Content.Path, "a.md", "# A")
	writePost(t, cfg.Content.Path, "b.md", "---\nid: Bee\n---\n# B")

	err := WriteSitemap(context.Background(), "https://blog.example.com", "sitemap.xml",
		WithConfig(cfg), WithLogOutput(io.Discard))
	if err != nil {
		t.Fatalf("WriteSitemap: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(cfg.Content.Path, "sitemap.xml"))
	if err != nil {
		t.Fatal(err)
	}
	for _, loc := range []string{"https://blog.example.com/posts/a", "https://blog.example.com/posts/bee"} {
		if !strings.Contains(string(data), "<loc>"+loc+"</loc>") {
			t.Errorf("sitemap missing %s:\n%s", loc, data)
		}
	}
}

func TestWriteSitemap_NoDomain(t *testing.T) {
	cfg := testConfig(t)
	err := WriteSitemap(context.Background(), "", "sitemap.xml", WithConfig(cfg), WithLogOutput(io.Discard))
	if err == nil {
		t.Fatal("expected error without a domain")
	}
}

func TestRun_MissingContentDir(t *testing.T) {
	cfg := testConfig(t)
	cfg.Content.Path = filepath.Join(cfg.Content.Path, "missing")
	err := Run(context.Background(), WithConfig(cfg), WithLogOutput(io.Discard))
	if err == nil {
		t.Fatal("expected error for missing content directory")
	}
}

func TestRun_RequiresConfig(t *testing.T) {
	if err := Run(context.Background()); err == nil {
		t.Fatal("expected error without config")
	}
}

func TestRun_FirstLoadFailureStopsServer(t *testing.T) {
	cfg := testConfig(t)
	cfg.App.HTTP.Port = 0
	writePost(t, cfg.Content.Path, "bad.md", "---\ncreated: 2024-13-45\n---\n")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := Run(ctx, WithConfig(cfg), WithLogOutput(io.Discard))
	if err == nil || !strings.Contains(err.Error(), "load posts") {
		t.Fatalf("err = %v, want load failure", err)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	cfg := testConfig(t)
	cfg.App.HTTP.Port = 0
	writePost(t, cfg.Content.Path, "ok.md", "# OK\n")

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if err := Run(ctx, WithConfig(cfg), WithLogOutput(io.Discard)); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestHealth_ReadyFollowsLoad(t *testing.T) {
	var loaded atomic.Bool
	r := chi.NewRouter()
	mountHealth(r, loaded.Load)

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	if rec := get("/health/live"); rec.Code != http.StatusOK {
		t.Errorf("live = %d, want 200", rec.Code)
	}
	rec := get("/health/ready")
	if rec.Code != http.StatusServiceUnavailable || !strings.Contains(rec.Body.String(), "loading") {
		t.Errorf("ready before load = %d %q", rec.Code, rec.Body.String())
	}

	loaded.Store(true)
	if rec := get("/health/ready"); rec.Code != http.StatusOK {
		t.Errorf("ready after load = %d, want 200", rec.Code)
	}
}
