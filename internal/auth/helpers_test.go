package auth

import (
	"database/sql"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/evcraddock/front-desk/internal/db"
)

func testDB(t *testing.T) *sql.DB {
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
	return d
}

func testStaffStore(t *testing.T, adminEmail string) *StaffStore {
	t.Helper()
	s := NewStaffStore(testDB(t), adminEmail)
	s.cost = bcrypt.MinCost
	return s
}

func sessionCookie(t *testing.T, store *SessionStore, email string) *http.Cookie {
	t.Helper()
	w := httptest.NewRecorder()
	if err := store.Create(w, email); err != nil {
		t.Fatalf("create session: %v", err)
	}
	for _, c := range w.Result().Cookies() {
		if c.Name == cookieName {
			return c
		}
	}
	t.Fatalf("expected cookie named %q", cookieName)
	return nil
}
