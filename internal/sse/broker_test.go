package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// drain collects everything queued on ch within wait.
func drain(ch chan []byte, wait time.Duration) []string {
	time.Sleep(wait)
	var out []string
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, string(msg))
		default:
			return out
		}
	}
}

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker()
	defer b.Close()
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients")
	}
	ch := b.Subscribe(0)
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}
	b.Unsubscribe(ch)
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after unsub")
	}
	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed after unsubscribe")
	}
}

func TestPublishPostEvent(t *testing.T) {
	b := NewBroker(WithCatalogThrottle(100 * time.Millisecond))
	defer b.Close()
	ch := b.Subscribe(0)
	defer b.Unsubscribe(ch)

	b.PublishPostEvent(KindCreated, "hello")

	select {
	case msg := <-ch:
		s := string(msg)
		if !strings.HasPrefix(s, "id: 1\nevent: post.created\n") {
			t.Errorf("unexpected frame %q", s)
		}
		if !strings.Contains(s, `data: {"id":"hello"}`) {
			t.Errorf("missing data in %q", s)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestPublishPostEvent_CatalogThrottle(t *testing.T) {
	b := NewBroker(WithCatalogThrottle(500 * time.Millisecond))
	defer b.Close()
	ch := b.Subscribe(0)
	defer b.Unsubscribe(ch)

	// The first event triggers catalog.updated, the second is throttled and
	// the unknown kind is dropped entirely.
	b.PublishPostEvent(KindCreated, "a")
	b.PublishPostEvent(KindUpdated, "b")
	b.PublishPostEvent("renamed", "c")

	catalogCount, postCount := 0, 0
	for _, s := range drain(ch, 50*time.Millisecond) {
		if strings.Contains(s, "event: catalog.updated") {
			catalogCount++
		} else {
			postCount++
		}
	}
	if postCount != 2 {
		t.Errorf("post events = %d, want 2", postCount)
	}
	if catalogCount != 1 {
		t.Errorf("catalog events = %d, want 1 (throttled)", catalogCount)
	}
}

func TestReplayAfterLastEventID(t *testing.T) {
	b := NewBroker(WithCatalogThrottle(time.Hour), WithHistory(2))
	defer b.Close()

	for _, id := range []string{"a", "b", "c"} {
		b.PublishPostEvent(KindUpdated, id)
	}
	// Give the loop time to record all three.
	time.Sleep(20 * time.Millisecond)

	ch := b.Subscribe(2)
	defer b.Unsubscribe(ch)
	got := drain(ch, 20*time.Millisecond)
	if len(got) != 1 || !strings.HasPrefix(got[0], "id: 3\n") {
		t.Fatalf("replay after 2 = %q", got)
	}

	// Only the last two events are retained.
	old := b.Subscribe(1)
	defer b.Unsubscribe(old)
	got = drain(old, 20*time.Millisecond)
	if len(got) != 2 || !strings.HasPrefix(got[0], "id: 2\n") {
		t.Fatalf("replay after 1 = %q", got)
	}
}

func TestNoReplayWithoutLastEventID(t *testing.T) {
	b := NewBroker()
	defer b.Close()

	b.PublishPostEvent(KindCreated, "a")
	time.Sleep(20 * time.Millisecond)

	ch := b.Subscribe(0)
	defer b.Unsubscribe(ch)
	if got := drain(ch, 20*time.Millisecond); len(got) != 0 {
		t.Fatalf("expected no replay, got %q", got)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe(0)
	b.Close()
	b.Close()

	if _, ok := <-ch; ok {
		t.Fatal("client channel should be closed")
	}
	if b.ClientCount() != 0 {
		t.Error("closed broker should report 0 clients")
	}
	// Must not block or panic.
	b.PublishPostEvent(KindCreated, "x")
	if _, ok := <-b.Subscribe(0); ok {
		t.Error("subscribe on closed broker should return a closed channel")
	}
}

// syncRecorder guards the body so the test can read it while the handler
// is still writing.
type syncRecorder struct {
	*httptest.ResponseRecorder
	mu sync.Mutex
}

func (r *syncRecorder) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ResponseRecorder.Write(p)
}

func (r *syncRecorder) body() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Body.String()
}

func TestSSEHandler(t *testing.T) {
	b := NewBroker(WithCatalogThrottle(100*time.Millisecond), WithKeepAlive(20*time.Millisecond))
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	w := &syncRecorder{ResponseRecorder: httptest.NewRecorder()}

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	// Give handler time to subscribe.
	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client from handler")
	}

	b.PublishPostEvent(KindUpdated, "x")
	time.Sleep(50 * time.Millisecond)

	cancel()
	<-done

	body := w.body()
	if !strings.HasPrefix(body, "event: hello\n") {
		t.Errorf("stream should start with hello: %q", body)
	}
	if !strings.Contains(body, "event: post.updated") {
		t.Errorf("missing post.updated in body: %q", body)
	}
	if !strings.Contains(body, ": ping\n\n") {
		t.Errorf("missing keep-alive in body: %q", body)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}
}

func TestSSEHandler_LastEventID(t *testing.T) {
	b := NewBroker(WithCatalogThrottle(time.Hour))
	defer b.Close()

	b.PublishPostEvent(KindCreated, "a")
	b.PublishPostEvent(KindDeleted, "b")
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Last-Event-ID", "1")
	w := httptest.NewRecorder()
	b.ServeHTTP(w, req)

	body := w.Body.String()
	if strings.Contains(body, "post.created") {
		t.Errorf("event 1 should not be replayed: %q", body)
	}
	if !strings.Contains(body, "id: 2\nevent: post.deleted") {
		t.Errorf("event 2 should be replayed: %q", body)
	}
}
