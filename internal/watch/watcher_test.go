package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/starford/reblog/internal/catalog"
	"github.com/starford/reblog/internal/post"
	"github.com/starford/reblog/internal/render"
	"github.com/starford/reblog/internal/testutil"
)

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) record(kind, id string) {
	r.mu.Lock()
	r.events = append(r.events, kind+":"+id)
	r.mu.Unlock()
}

func (r *recorder) has(e string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, got := range r.events {
		if got == e {
			return true
		}
	}
	return false
}

func startWatch(t *testing.T) (string, *catalog.Catalog, *recorder) {
	t.Helper()
	dir, store := testutil.TestPostsDir(t)
	cat := catalog.New(store, post.NewBuilder(render.New()), catalog.WithLogger(testutil.Logger()))
	if _, err := cat.Load(context.Background()); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	rec := &recorder{}
	go Watch(ctx, dir, cat, 50*time.Millisecond, testutil.Logger(), rec.record)
	time.Sleep(100 * time.Millisecond)
	return dir, cat, rec
}

func TestWatch_NewPostLoaded(t *testing.T) {
	dir, cat, rec := startWatch(t)

	testutil.WriteFile(t, dir, "hello.md", "# Hello")

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		_, err := cat.Get("hello")
		return err == nil
	}, "new post not loaded by watcher")
	eventually(t, 2*time.Second, 50*time.Millisecond, func() bool {
		return rec.has("created:hello")
	}, "expected created:hello event")
}

func TestWatch_UpdateRebuilds(t *testing.T) {
	dir, cat, rec := startWatch(t)

	testutil.WriteFile(t, dir, "a.md", "---\ntitle: One\n---\n# A")
	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return rec.has("created:a")
	}, "expected created:a event")

	testutil.WriteFile(t, dir, "a.md", "---\ntitle: Second\n---\n# A")
	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		p, err := cat.Get("a")
		return err == nil && p.Title == "Second"
	}, "post not rebuilt after write")
	eventually(t, 2*time.Second, 50*time.Millisecond, func() bool {
		return rec.has("updated:a")
	}, "expected updated:a event")
}

func TestWatch_DeleteRemovesPost(t *testing.T) {
	dir, cat, rec := startWatch(t)

	testutil.WriteFile(t, dir, "gone.md", "# Gone")
	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return cat.Len() == 1
	}, "post not loaded")

	if err := os.Remove(filepath.Join(dir, "gone.md")); err != nil {
		t.Fatal(err)
	}
	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return cat.Len() == 0
	}, "post not removed after delete")
	eventually(t, 2*time.Second, 50*time.Millisecond, func() bool {
		return rec.has("deleted:gone")
	}, "expected deleted:gone event")
}

func TestWatch_NewDirWatched(t *testing.T) {
	dir, cat, _ := startWatch(t)

	if err := os.Mkdir(filepath.Join(dir, "2024"), 0o755); err != nil {
		t.Fatal(err)
	}
	time.Sleep(200 * time.Millisecond)
	testutil.WriteFile(t, dir, "2024/deep.md", "# Deep")

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		_, err := cat.Get("2024/deep")
		return err == nil
	}, "post in new subdirectory not loaded")
}

func TestWatch_BadDateKeepsPrevious(t *testing.T) {
	dir, cat, rec := startWatch(t)

	testutil.WriteFile(t, dir, "ok.md", "# Ok")
	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return cat.Len() == 1
	}, "post not loaded")

	testutil.WriteFile(t, dir, "bad.md", "---\ncreated: yesterday\n---\n# Bad")
	time.Sleep(500 * time.Millisecond)

	if cat.Len() != 1 {
		t.Fatalf("expected previous catalog to stay, got %d posts", cat.Len())
	}
	if rec.has("created:bad") {
		t.Fatal("no event expected for a failed reload")
	}
}

func TestWatch_IgnoresNonMarkdown(t *testing.T) {
	dir, cat, rec := startWatch(t)

	testutil.WriteFile(t, dir, "notes.txt", "hello")
	testutil.WriteFile(t, dir, ".hidden.md", "# Hidden")
	time.Sleep(400 * time.Millisecond)

	if cat.Len() != 0 {
		t.Fatalf("expected no posts, got %d", cat.Len())
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.events) != 0 {
		t.Fatalf("expected no events, got %v", rec.events)
	}
}

func TestHidden(t *testing.T) {
	root := filepath.Join("tmp", "posts")
	cases := map[string]bool{
		filepath.Join(root, "a.md"):          false,
		filepath.Join(root, ".a.md"):         true,
		filepath.Join(root, ".git", "HEAD"):  true,
		filepath.Join(root, "2024", "x.md"):  false,
		filepath.Join(root, "2024", ".x.md"): true,
	}
	for path, want := range cases {
		if got := hidden(root, path); got != want {
			t.Errorf("hidden(%q) = %v, want %v", path, got, want)
		}
	}
}
