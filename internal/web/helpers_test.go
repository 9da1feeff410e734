package web

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/evcraddock/front-desk/internal/auth"
	"github.com/evcraddock/front-desk/internal/config"
	"github.com/evcraddock/front-desk/internal/db"
	"github.com/evcraddock/front-desk/internal/docstore/docstoretest"
)

const testAdmin = "admin@example.com"

var testNow = time.Date(2024, 5, 2, 9, 30, 0, 0, time.Local)

type testEnv struct {
	srv   *Server
	db    *sql.DB
	store *docstoretest.Store
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	d, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() {
		if err := d.Close(); err != nil {
			t.Errorf("close db: %v", err)
		}
	})

	store := docstoretest.New(testNow)
	cfg := config.Config{
		Port:       8080,
		BaseURL:    "http://localhost:8080",
		Collection: "visits",
		AdminEmail: testAdmin,
	}
	opts = append([]Option{WithClock(func() time.Time { return testNow })}, opts...)
	srv, err := NewServer(d, store, cfg, opts...)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	t.Cleanup(srv.Close)

	return &testEnv{srv: srv, db: d, store: store}
}

// session returns a session cookie for email.
func (e *testEnv) session(t *testing.T, email string) *http.Cookie {
	t.Helper()
	w := httptest.NewRecorder()
	if err := e.srv.Sessions().Create(w, email); err != nil {
		t.Fatalf("create session: %v", err)
	}
	cookies := w.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatal("expected session cookie")
	}
	return cookies[0]
}

// apiKey creates a raw API key acting for email.
func (e *testEnv) apiKey(t *testing.T, email string) string {
	t.Helper()
	raw, _, err := auth.NewAPIKeyStore(e.db).Create("test", email)
	if err != nil {
		t.Fatalf("create api key: %v", err)
	}
	return raw
}

// addVisit stores a pending visit directly, bypassing validation.
func (e *testEnv) addVisit(t *testing.T, visitor, date string) string {
	t.Helper()
	id, err := e.store.Create(context.Background(), "visits", map[string]any{
		"employeeNumber": "E-100",
		"employeeName":   "Dana Host",
		"department":     "Finance",
		"employeeEmail":  "dana@example.com",
		"employeePhone":  "555-123-4567",
		"visitorName":    visitor,
		"profession":     "Auditor",
		"visitorPhone":   "555-765-4321",
		"idNumber":       "X1",
		"date":           date,
		"time":           "10:00",
		"arrived":        false,
		"didNotArrive":   false,
	})
	if err != nil {
		t.Fatalf("create visit: %v", err)
	}
	return id
}

func (e *testEnv) do(r *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.srv.ServeHTTP(w, r)
	return w
}

func (e *testEnv) get(path string, cookie *http.Cookie) *httptest.ResponseRecorder {
	r := httptest.NewRequest("GET", path, nil)
	if cookie != nil {
		r.AddCookie(cookie)
	}
	return e.do(r)
}

func (e *testEnv) postForm(path string, form url.Values, cookie *http.Cookie) *httptest.ResponseRecorder {
	r := httptest.NewRequest("POST", path, strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if cookie != nil {
		r.AddCookie(cookie)
	}
	return e.do(r)
}

// apiRequest sends a JSON request authorized with a bearer key.
func (e *testEnv) apiRequest(method, path, key string, body any) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = strings.NewReader(string(b))
	}
	r := httptest.NewRequest(method, path, rd)
	if body != nil {
		r.Header.Set("Content-Type", "application/json")
	}
	if key != "" {
		r.Header.Set("Authorization", "Bearer "+key)
	}
	return e.do(r)
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("decode body %q: %v", w.Body.String(), err)
	}
}

func validForm() url.Values {
	return url.Values{
		"employeeNumber": {"E-200"},
		"employeeName":   {"Jordan Lee"},
		"department":     {"Engineering"},
		"employeeEmail":  {"jordan@example.com"},
		"employeePhone":  {"+1 555-010-2000"},
		"visitorName":    {"Sam Rivera"},
		"profession":     {"Consultant"},
		"visitorPhone":   {"555-010-3000"},
		"idNumber":       {"P123"},
		"date":           {"2024-05-02"},
		"time":           {"14:30"},
	}
}

func httptestRequest(method, path string) *http.Request {
	return httptest.NewRequest(method, path, nil)
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
