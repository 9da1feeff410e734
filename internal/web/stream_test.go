package web

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/evcraddock/front-desk/internal/docstore"
)

func dialStream(t *testing.T, env *testEnv, key string) *websocket.Conn {
	t.Helper()
	ts := httptest.NewServer(env.srv)
	t.Cleanup(ts.Close)

	header := http.Header{}
	if key != "" {
		header.Set("Authorization", "Bearer "+key)
	}
	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/api/visits/stream", header)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("dial stream (status %d): %v", status, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) docstore.Message {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		t.Fatalf("set deadline: %v", err)
	}
	var m docstore.Message
	if err := conn.ReadJSON(&m); err != nil {
		t.Fatalf("read message: %v", err)
	}
	return m
}

func TestStreamPushesSnapshots(t *testing.T) {
	env := newTestEnv(t)
	env.addVisit(t, "First", "2024-05-02")
	conn := dialStream(t, env, env.apiKey(t, testAdmin))

	m := readMessage(t, conn)
	if m.Type != docstore.MessageSnapshot || len(m.Documents) != 1 {
		t.Fatalf("initial = %+v, want snapshot of 1", m)
	}

	env.addVisit(t, "Second", "2024-05-02")
	m = readMessage(t, conn)
	if len(m.Documents) != 2 {
		t.Fatalf("got %d documents, want 2", len(m.Documents))
	}
	if m.Documents[0].Fields["visitorName"] != "Second" {
		t.Errorf("first document = %v, want newest first", m.Documents[0].Fields["visitorName"])
	}
}

func TestStreamSendsErrorAndCloses(t *testing.T) {
	env := newTestEnv(t)
	conn := dialStream(t, env, env.apiKey(t, testAdmin))
	readMessage(t, conn)

	// The server mirror subscribed first; the stream holds the second.
	subs := env.store.Active()
	if len(subs) != 2 {
		t.Fatalf("active subscriptions = %d, want 2", len(subs))
	}
	subs[1].Fail(errPermission)

	m := readMessage(t, conn)
	if m.Type != docstore.MessageError || m.Error != "permission denied" {
		t.Fatalf("message = %+v, want error frame", m)
	}
	if _, _, err := conn.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseInternalServerErr) {
		t.Errorf("read after error = %v, want close", err)
	}
}

func TestStreamRequiresAuth(t *testing.T) {
	env := newTestEnv(t)
	ts := httptest.NewServer(env.srv)
	defer ts.Close()

	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/api/visits/stream", nil)
	if err == nil {
		t.Fatal("expected dial to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("response = %v, want 401", resp)
	}
}
