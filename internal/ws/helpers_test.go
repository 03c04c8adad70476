package ws

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/manga-lockstep/backend/internal/catalog"
	"github.com/manga-lockstep/backend/internal/frontend"
	"github.com/manga-lockstep/backend/internal/images"
	"github.com/manga-lockstep/backend/internal/viewing"
)

var testPNG = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

// testCollection is item A with 3 pages followed by item B with 2 pages. All
// pages exist on disk except B's second page.
func testCollection(t *testing.T) *catalog.Collection {
	t.Helper()
	dir := t.TempDir()
	page := func(name string) string {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, testPNG, 0644); err != nil {
			t.Fatal(err)
		}
		return p
	}

	col, err := catalog.New([]catalog.Item{
		{Title: "A", Score: 8, Comment: "first", Pages: []string{page("a0.png"), page("a1.png"), page("a2.png")}},
		{Title: "B", Score: 3, Comment: "second", Pages: []string{page("b0.png"), filepath.Join(dir, "gone.png")}},
	})
	if err != nil {
		t.Fatal(err)
	}
	return col
}

type testEnv struct {
	state  *viewing.State
	server *Server
	srv    *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWith(t, DefaultSessionConfig())
}

func newTestEnvWith(t *testing.T, cfg SessionConfig) *testEnv {
	t.Helper()

	col := testCollection(t)
	state := viewing.NewState(col)
	fe, err := frontend.New("")
	if err != nil {
		t.Fatal(err)
	}

	server := NewServer(state, images.NewResolver(col), fe, cfg, nil)
	srv := httptest.NewServer(server.Handler())
	t.Cleanup(srv.Close)

	return &testEnv{state: state, server: server, srv: srv}
}

// dial connects a viewer and consumes its initial snapshot.
func (e *testEnv) dial(t *testing.T) (*websocket.Conn, viewing.Snapshot) {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	return conn, readSnapshot(t, conn)
}

func readSnapshot(t *testing.T, conn *websocket.Conn) viewing.Snapshot {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var snap viewing.Snapshot
	if err := conn.ReadJSON(&snap); err != nil {
		t.Fatalf("reading snapshot: %v", err)
	}
	return snap
}

func send(t *testing.T, conn *websocket.Conn, payload string) {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(payload)); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func vote(t *testing.T, conn *websocket.Conn, kind string) {
	t.Helper()
	send(t, conn, `{"type":"`+kind+`","uuid":"test-client"}`)
}

// eventually polls cond until it holds or the deadline passes.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// dialTestWS creates a test HTTP server that upgrades to WebSocket and returns
// the server-side connection. The client side is closed immediately.
func dialTestWS(t *testing.T) (*httptest.Server, *websocket.Conn) {
	t.Helper()

	connCh := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		connCh <- c
	}))

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	clientConn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		srv.Close()
		t.Fatalf("dial: %v", err)
	}
	_ = clientConn.Close()

	select {
	case serverConn := <-connCh:
		return srv, serverConn
	case <-time.After(2 * time.Second):
		srv.Close()
		t.Fatal("timed out waiting for server-side WebSocket connection")
		return nil, nil
	}
}
