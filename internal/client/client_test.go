package client

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/evcraddock/front-desk/internal/docstore"
	"github.com/evcraddock/front-desk/internal/live"
	"github.com/evcraddock/front-desk/internal/status"
	"github.com/evcraddock/front-desk/internal/visit"
)

func jsonHandler(t *testing.T, code int, v any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		if err := json.NewEncoder(w).Encode(v); err != nil {
			t.Errorf("encode: %v", err)
		}
	}
}

func TestListVisits(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/visits" {
			t.Errorf("path = %q, want /api/visits", r.URL.Path)
		}
		if r.URL.Query().Get("view") != "all" || r.URL.Query().Get("date") != "2024-05-02" {
			t.Errorf("query = %q", r.URL.RawQuery)
		}
		if r.Header.Get("Authorization") != "Bearer testkey" {
			t.Error("expected Bearer testkey")
		}
		jsonHandler(t, http.StatusOK, VisitList{
			View:   "all",
			Date:   "2024-05-02",
			Visits: []visit.Record{{ID: "r1", VisitorName: "Sam Rivera", Date: "2024-05-02"}},
		})(w, r)
	}))
	defer srv.Close()

	c := New(srv.URL, "testkey")
	list, err := c.ListVisits(ListOptions{View: "all", Date: "2024-05-02"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list.Visits) != 1 || list.Visits[0].VisitorName != "Sam Rivera" {
		t.Errorf("visits = %+v", list.Visits)
	}
}

func TestCreateVisit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			t.Errorf("method = %q, want POST", r.Method)
		}
		var in visit.Input
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if in.VisitorName != "Sam Rivera" {
			t.Errorf("visitorName = %q", in.VisitorName)
		}
		jsonHandler(t, http.StatusCreated, map[string]string{"id": "r7"})(w, r)
	}))
	defer srv.Close()

	id, err := New(srv.URL, "k").CreateVisit(visit.Input{VisitorName: "Sam Rivera"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if id != "r7" {
		t.Errorf("id = %q, want r7", id)
	}
}

func TestCreateVisitValidationError(t *testing.T) {
	srv := httptest.NewServer(jsonHandler(t, http.StatusUnprocessableEntity, map[string]any{
		"error":  "validation failed",
		"fields": map[string]string{"employeeEmail": "Invalid email"},
	}))
	defer srv.Close()

	_, err := New(srv.URL, "k").CreateVisit(visit.Input{})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusUnprocessableEntity || apiErr.Fields["employeeEmail"] != "Invalid email" {
		t.Errorf("apiErr = %+v", apiErr)
	}
}

func TestTransition(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/visits/r1/no_show" {
			t.Errorf("path = %q", r.URL.Path)
		}
		jsonHandler(t, http.StatusOK, TransitionResult{
			ID: "r1", Status: visit.NoShow, Notice: status.MarkNoShow.SuccessNotice(),
		})(w, r)
	}))
	defer srv.Close()

	res, err := New(srv.URL, "k").Transition("r1", status.MarkNoShow)
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if res.Status != visit.NoShow || res.Notice.Message != "Visitor marked as did not arrive" {
		t.Errorf("result = %+v", res)
	}
}

func TestTransitionFailure(t *testing.T) {
	srv := httptest.NewServer(jsonHandler(t, http.StatusNotFound, map[string]string{"error": "Failed to confirm visitor arrival"}))
	defer srv.Close()

	_, err := New(srv.URL, "k").Transition("missing", status.ConfirmArrival)
	if err == nil || err.Error() != "Failed to confirm visitor arrival" {
		t.Errorf("err = %v", err)
	}
}

func TestExport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="visits_2024-05-02.csv"`)
		_, _ = w.Write([]byte("\"Employee Number\"\n"))
	}))
	defer srv.Close()

	data, name, err := New(srv.URL, "k").Export(ListOptions{View: "all", Date: "2024-05-02"})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if name != "visits_2024-05-02.csv" {
		t.Errorf("name = %q", name)
	}
	if string(data) != "\"Employee Number\"\n" {
		t.Errorf("data = %q", data)
	}
}

func TestPlainTextError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Invalid API key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := New(srv.URL, "bad").Me()
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized || apiErr.Message != "Invalid API key" {
		t.Errorf("err = %#v", err)
	}
}

func TestDeleteUser(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "DELETE" || r.URL.Path != "/api/users/3" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		jsonHandler(t, http.StatusOK, map[string]any{"id": 3, "deleted": true})(w, r)
	}))
	defer srv.Close()

	if err := New(srv.URL, "k").DeleteUser(3); err != nil {
		t.Fatalf("delete: %v", err)
	}
}

// streamServer sends each frame in turn, then waits for the client to go.
func streamServer(t *testing.T, frames ...docstore.Message) *httptest.Server {
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer k" {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer func() { _ = conn.Close() }()
		for _, f := range frames {
			if err := conn.WriteJSON(f); err != nil {
				return
			}
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func doc(id, visitor, date string) docstore.Document {
	return docstore.Document{ID: id, Fields: map[string]any{"visitorName": visitor, "date": date}}
}

func TestSubscribeFeedsLiveCollection(t *testing.T) {
	srv := streamServer(t,
		docstore.SnapshotMessage(nil),
		docstore.SnapshotMessage([]docstore.Document{doc("r2", "Second", "2024-05-02"), doc("r1", "First", "2024-05-02")}),
	)
	defer srv.Close()

	records := live.New(New(srv.URL, "k"), visit.Decode)
	if err := records.Activate("visits"); err != nil {
		t.Fatalf("activate: %v", err)
	}
	defer records.Deactivate()

	deadline := time.Now().Add(5 * time.Second)
	for len(records.State().Records) != 2 {
		if time.Now().After(deadline) {
			t.Fatalf("state = %+v, want two records", records.State())
		}
		time.Sleep(10 * time.Millisecond)
	}
	if got := records.State().Records[0].VisitorName; got != "Second" {
		t.Errorf("first = %q, want Second", got)
	}
}

func TestSubscribeErrorFrame(t *testing.T) {
	srv := streamServer(t, docstore.ErrorMessage(errors.New("permission denied")))
	defer srv.Close()

	errs := make(chan error, 1)
	unsub, err := New(srv.URL, "k").Subscribe(docstore.NewestFirst("visits"),
		func([]docstore.Document) { t.Error("unexpected snapshot") },
		func(err error) { errs <- err },
	)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer unsub()

	select {
	case err := <-errs:
		if err.Error() != "permission denied" {
			t.Errorf("err = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for error")
	}
}

// stallConn stops writing once stalled. A stalled Write blocks until the
// write deadline passes, or until release is closed when there is none.
type stallConn struct {
	net.Conn
	stalled  atomic.Bool
	release  chan struct{}
	mu       sync.Mutex
	deadline time.Time
}

func (c *stallConn) SetWriteDeadline(t time.Time) error {
	c.mu.Lock()
	c.deadline = t
	c.mu.Unlock()
	return c.Conn.SetWriteDeadline(t)
}

func (c *stallConn) Write(p []byte) (int, error) {
	if !c.stalled.Load() {
		return c.Conn.Write(p)
	}
	c.mu.Lock()
	deadline := c.deadline
	c.mu.Unlock()
	if deadline.IsZero() {
		<-c.release
		return 0, net.ErrClosed
	}
	time.Sleep(time.Until(deadline))
	return 0, os.ErrDeadlineExceeded
}

func TestUnsubscribeBoundedByStalledPeer(t *testing.T) {
	srv := streamServer(t, docstore.SnapshotMessage(nil))
	defer srv.Close()

	var conn *stallConn
	c := New(srv.URL, "k")
	c.closeTimeout = 50 * time.Millisecond
	c.dialer = &websocket.Dialer{
		NetDialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			raw, err := (&net.Dialer{}).DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			conn = &stallConn{Conn: raw, release: make(chan struct{})}
			return conn, nil
		},
	}

	snapshots := make(chan struct{}, 1)
	unsub, err := c.Subscribe(docstore.NewestFirst("visits"),
		func([]docstore.Document) { snapshots <- struct{}{} },
		func(error) {},
	)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer close(conn.release)

	select {
	case <-snapshots:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the first snapshot")
	}

	conn.stalled.Store(true)
	done := make(chan struct{})
	go func() {
		unsub()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("unsubscribe blocked on a peer that stopped reading")
	}
}

func TestSubscribeRejected(t *testing.T) {
	srv := streamServer(t)
	defer srv.Close()

	_, err := New(srv.URL, "wrong").Subscribe(docstore.NewestFirst("visits"), func([]docstore.Document) {}, func(error) {})
	if err == nil {
		t.Fatal("expected dial error")
	}
}

func TestSubscribeUnsupportedQuery(t *testing.T) {
	q := docstore.Query{Collection: "visits", OrderBy: "date", Direction: docstore.Asc}
	_, err := New("http://localhost", "k").Subscribe(q, func([]docstore.Document) {}, func(error) {})
	if !errors.Is(err, ErrUnsupportedQuery) {
		t.Errorf("err = %v, want ErrUnsupportedQuery", err)
	}
}
