package relay_test

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/webglow/voice-support/backend/internal/handler/relay"
	"github.com/webglow/voice-support/backend/internal/service/session"
)

func newTestServer(t *testing.T) (*httptest.Server, *session.Store) {
	t.Helper()

	store := session.NewStore()
	handler := relay.New(store, 50*time.Millisecond)

	r := chi.NewRouter()
	handler.RegisterRoutes(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, store
}

func dialRelay(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/call"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendMessage(t *testing.T, conn *websocket.Conn, payload map[string]any) {
	t.Helper()
	if err := conn.WriteJSON(payload); err != nil {
		t.Fatalf("write failed: %v", err)
	}
}

func readMessage(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg map[string]any
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	return msg
}

func startSession(t *testing.T, conn *websocket.Conn, sessionID string) string {
	t.Helper()

	payload := map[string]any{"type": "start_session"}
	if sessionID != "" {
		payload["sessionId"] = sessionID
	}
	sendMessage(t, conn, payload)

	reply := readMessage(t, conn)
	id, _ := reply["sessionId"].(string)
	if id == "" {
		t.Fatalf("expected a session id in reply, got %v", reply)
	}
	return id
}

func TestFullCallLifecycle(t *testing.T) {
	srv, _ := newTestServer(t)
	conn := dialRelay(t, srv)

	sendMessage(t, conn, map[string]any{"type": "start_session"})
	created := readMessage(t, conn)
	if created["type"] != "session_created" {
		t.Fatalf("expected session_created, got %v", created)
	}
	if created["sessionId"] == "" {
		t.Fatal("expected a fresh session id")
	}

	sendMessage(t, conn, map[string]any{"type": "call_start"})
	update := readMessage(t, conn)
	if update["type"] != "status_update" || update["status"] != "connecting" {
		t.Fatalf("expected connecting status_update, got %v", update)
	}

	sendMessage(t, conn, map[string]any{"type": "call_connected"})
	update = readMessage(t, conn)
	if update["status"] != "connected" {
		t.Fatalf("expected connected status_update, got %v", update)
	}

	sendMessage(t, conn, map[string]any{"type": "transcript", "role": "user", "content": "hi"})
	transcriptMsg := readMessage(t, conn)
	if transcriptMsg["type"] != "transcript_update" {
		t.Fatalf("expected transcript_update, got %v", transcriptMsg)
	}
	entries, ok := transcriptMsg["transcript"].([]any)
	if !ok || len(entries) != 1 {
		t.Fatalf("expected exactly one transcript entry, got %v", transcriptMsg["transcript"])
	}
	entry := entries[0].(map[string]any)
	if entry["role"] != "user" || entry["content"] != "hi" {
		t.Fatalf("unexpected transcript entry: %v", entry)
	}

	sendMessage(t, conn, map[string]any{"type": "call_end"})
	update = readMessage(t, conn)
	if update["status"] != "ended" {
		t.Fatalf("expected ended status_update, got %v", update)
	}
	duration, ok := update["duration"].(float64)
	if !ok || duration < 0 {
		t.Fatalf("expected non-negative duration, got %v", update["duration"])
	}
}

func TestReconnectRestoresSession(t *testing.T) {
	srv, _ := newTestServer(t)

	first := dialRelay(t, srv)
	id := startSession(t, first, "")

	sendMessage(t, first, map[string]any{"type": "call_start"})
	readMessage(t, first)
	sendMessage(t, first, map[string]any{"type": "call_connected"})
	readMessage(t, first)
	sendMessage(t, first, map[string]any{"type": "transcript", "role": "user", "content": "still there?"})
	readMessage(t, first)

	first.Close()

	second := dialRelay(t, srv)
	sendMessage(t, second, map[string]any{"type": "start_session", "sessionId": id})
	restored := readMessage(t, second)

	if restored["type"] != "session_restored" {
		t.Fatalf("expected session_restored, got %v", restored)
	}
	if restored["sessionId"] != id {
		t.Fatalf("expected same session id %s, got %v", id, restored["sessionId"])
	}
	if restored["status"] != "connected" {
		t.Fatalf("expected connected status after resume, got %v", restored["status"])
	}
	entries, ok := restored["transcript"].([]any)
	if !ok || len(entries) != 1 {
		t.Fatalf("expected transcript to survive reconnect, got %v", restored["transcript"])
	}
}

func TestSecondConnectionInheritsSession(t *testing.T) {
	srv, _ := newTestServer(t)

	first := dialRelay(t, srv)
	id := startSession(t, first, "")

	second := dialRelay(t, srv)
	sendMessage(t, second, map[string]any{"type": "start_session", "sessionId": id})
	restored := readMessage(t, second)
	if restored["type"] != "session_restored" {
		t.Fatalf("expected session_restored, got %v", restored)
	}

	// Broadcasts now flow to the new owner; the stale connection stays silent.
	sendMessage(t, second, map[string]any{"type": "transcript", "role": "user", "content": "hello"})
	update := readMessage(t, second)
	if update["type"] != "transcript_update" {
		t.Fatalf("expected transcript_update on new connection, got %v", update)
	}

	first.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	var stale map[string]any
	if err := first.ReadJSON(&stale); err == nil {
		t.Fatalf("stale connection should receive nothing, got %v", stale)
	}
}

func TestGetSessionNotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	conn := dialRelay(t, srv)

	sendMessage(t, conn, map[string]any{"type": "get_session", "sessionId": "missing"})
	reply := readMessage(t, conn)
	if reply["type"] != "session_not_found" {
		t.Fatalf("expected session_not_found, got %v", reply)
	}
	if reply["sessionId"] != "missing" {
		t.Fatalf("expected echoed session id, got %v", reply["sessionId"])
	}
}

func TestGetSessionReturnsSnapshot(t *testing.T) {
	srv, _ := newTestServer(t)
	conn := dialRelay(t, srv)
	id := startSession(t, conn, "")

	sendMessage(t, conn, map[string]any{"type": "get_session", "sessionId": id})
	reply := readMessage(t, conn)
	if reply["type"] != "session_data" {
		t.Fatalf("expected session_data, got %v", reply)
	}
	snapshot, ok := reply["session"].(map[string]any)
	if !ok || snapshot["id"] != id {
		t.Fatalf("unexpected session payload: %v", reply["session"])
	}
	if snapshot["status"] != "idle" {
		t.Fatalf("expected idle status, got %v", snapshot["status"])
	}
}

func TestMalformedMessageKeepsConnectionAlive(t *testing.T) {
	srv, _ := newTestServer(t)
	conn := dialRelay(t, srv)

	if err := conn.WriteMessage(websocket.TextMessage, []byte("not json at all")); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	sendMessage(t, conn, map[string]any{"type": "ping"})
	reply := readMessage(t, conn)
	if reply["type"] != "pong" {
		t.Fatalf("expected pong after malformed frame, got %v", reply)
	}
	if _, ok := reply["timestamp"].(float64); !ok {
		t.Fatalf("expected server timestamp in pong, got %v", reply)
	}
}

func TestLifecycleVerbsIgnoredWhenUnbound(t *testing.T) {
	srv, store := newTestServer(t)
	conn := dialRelay(t, srv)

	sendMessage(t, conn, map[string]any{"type": "call_start"})
	sendMessage(t, conn, map[string]any{"type": "transcript", "role": "user", "content": "lost"})
	sendMessage(t, conn, map[string]any{"type": "ping"})

	reply := readMessage(t, conn)
	if reply["type"] != "pong" {
		t.Fatalf("expected only a pong, got %v", reply)
	}
	if store.Len() != 0 {
		t.Fatalf("unbound lifecycle verbs must not create sessions, store has %d", store.Len())
	}
}

func TestAbandonedSessionEvictedAfterGrace(t *testing.T) {
	srv, store := newTestServer(t)
	conn := dialRelay(t, srv)
	id := startSession(t, conn, "")

	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := store.Get(id); !ok {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("expected idle session %s to be evicted after the grace period", id)
}

func TestConnectedSessionSurvivesDisconnect(t *testing.T) {
	srv, store := newTestServer(t)
	conn := dialRelay(t, srv)
	id := startSession(t, conn, "")

	sendMessage(t, conn, map[string]any{"type": "call_start"})
	readMessage(t, conn)
	sendMessage(t, conn, map[string]any{"type": "call_connected"})
	readMessage(t, conn)

	conn.Close()

	time.Sleep(200 * time.Millisecond)
	if _, ok := store.Get(id); !ok {
		t.Fatal("an active call must survive a dropped socket")
	}
}
