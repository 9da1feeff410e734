package auth

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"time"
)

const (
	sessionExpiry = 30 * 24 * time.Hour
	cookieName    = "fd_session"
)

// ErrNoSession is returned when a request carries no valid session.
var ErrNoSession = errors.New("no valid session")

// SessionStore manages staff sessions in SQLite.
type SessionStore struct {
	db     *sql.DB
	secure bool
	now    func() time.Time
}

// NewSessionStore creates a session store. secure marks cookies HTTPS-only.
func NewSessionStore(db *sql.DB, secure bool) *SessionStore {
	return &SessionStore{db: db, secure: secure, now: time.Now}
}

// Create starts a session for email and sets the cookie.
func (s *SessionStore) Create(w http.ResponseWriter, email string) error {
	id, err := randomHex(32)
	if err != nil {
		return fmt.Errorf("generating session ID: %w", err)
	}

	expiresAt := s.now().Add(sessionExpiry)
	if _, err := s.db.Exec(
		"INSERT INTO sessions (id, email, expires_at) VALUES (?, ?, ?)",
		id, normalizeEmail(email), expiresAt,
	); err != nil {
		return fmt.Errorf("storing session: %w", err)
	}

	http.SetCookie(w, s.cookie(id, expiresAt, 0))
	return nil
}

// Validate returns the email of the request's session.
func (s *SessionStore) Validate(r *http.Request) (string, error) {
	c, err := r.Cookie(cookieName)
	if err != nil {
		return "", ErrNoSession
	}

	var email string
	var expiresAt time.Time
	err = s.db.QueryRow(
		"SELECT email, expires_at FROM sessions WHERE id = ?", c.Value,
	).Scan(&email, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNoSession
	}
	if err != nil {
		return "", fmt.Errorf("querying session: %w", err)
	}

	if s.now().After(expiresAt) {
		if _, err := s.db.Exec("DELETE FROM sessions WHERE id = ?", c.Value); err != nil {
			return "", fmt.Errorf("deleting expired session: %w", err)
		}
		return "", ErrNoSession
	}
	return email, nil
}

// Destroy ends the request's session and clears the cookie.
func (s *SessionStore) Destroy(w http.ResponseWriter, r *http.Request) error {
	c, err := r.Cookie(cookieName)
	if err != nil {
		return nil
	}
	if _, err := s.db.Exec("DELETE FROM sessions WHERE id = ?", c.Value); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	http.SetCookie(w, s.cookie("", time.Time{}, -1))
	return nil
}

// Cleanup removes expired sessions and returns how many were removed.
func (s *SessionStore) Cleanup() (int64, error) {
	result, err := s.db.Exec("DELETE FROM sessions WHERE expires_at < ?", s.now())
	if err != nil {
		return 0, fmt.Errorf("cleaning up sessions: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking affected rows: %w", err)
	}
	return n, nil
}

func (s *SessionStore) cookie(value string, expires time.Time, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     cookieName,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

type emailKey struct{}

// WithEmail returns a context carrying the signed-in staff email.
func WithEmail(ctx context.Context, email string) context.Context {
	return context.WithValue(ctx, emailKey{}, email)
}

// EmailFrom returns the signed-in staff email, if any.
func EmailFrom(ctx context.Context) string {
	email, _ := ctx.Value(emailKey{}).(string)
	return email
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
