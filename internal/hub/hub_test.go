package hub

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/facegate/realtime-gateway/internal/auth"
	"github.com/facegate/realtime-gateway/internal/events"
)

// fakeTransport records frames written by a connection's writer goroutine.
// With blockWrites set, writes stall until Release is called, which lets
// tests fill a connection's outbound queue.
type fakeTransport struct {
	mu          sync.Mutex
	frames      [][]byte
	closed      bool
	blockWrites bool
	release     chan struct{}
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{release: make(chan struct{})}
}

func (t *fakeTransport) WriteMessage(data []byte) error {
	t.mu.Lock()
	block := t.blockWrites
	t.mu.Unlock()
	if block {
		<-t.release
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.frames = append(t.frames, data)
	return nil
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

func (t *fakeTransport) frameCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.frames)
}

func (t *fakeTransport) frame(i int) []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.frames[i]
}

func (t *fakeTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testIdentity(userID, role string) auth.Identity {
	return auth.Identity{UserID: userID, Email: userID + "@example.com", Role: role}
}

var errRelayDown = errors.New("relay down")

// newTestConn builds an authenticated, registered connection.
func newTestConn(t *testing.T, r *Registry, id, userID, role string) (*Connection, *fakeTransport) {
	t.Helper()
	ft := newFakeTransport()
	c := NewConnection(id, ft, testLogger())
	if err := c.Authenticate(auth.Identity{UserID: userID, Email: userID + "@example.com", Role: role}); err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if err := r.Add(c); err != nil {
		t.Fatalf("register: %v", err)
	}
	return c, ft
}

// waitFrames blocks until the transport has seen at least n frames.
func waitFrames(t *testing.T, ft *fakeTransport, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if ft.frameCount() >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected at least %d frames, got %d", n, ft.frameCount())
}

// settle gives writer goroutines a moment to drain, then asserts the
// transport saw exactly n frames.
func assertFrameCount(t *testing.T, ft *fakeTransport, n int) {
	t.Helper()
	time.Sleep(50 * time.Millisecond)
	if got := ft.frameCount(); got != n {
		t.Fatalf("expected exactly %d frames, got %d", n, got)
	}
}

func mustTypes(t *testing.T, raw ...string) []events.EventType {
	t.Helper()
	types, err := events.ParseTypes(raw)
	if err != nil {
		t.Fatalf("parse types: %v", err)
	}
	return types
}
