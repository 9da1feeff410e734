package auth

import (
	"bytes"
	"crypto/sha256"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
)

// ErrCredentialNotFound is returned when deleting an unknown or foreign
// passkey.
var ErrCredentialNotFound = errors.New("credential not found")

// PasskeyUser adapts a staff member to webauthn.User.
type PasskeyUser struct {
	email       string
	name        string
	credentials []webauthn.Credential
}

// NewPasskeyUser creates a PasskeyUser. name falls back to the email.
func NewPasskeyUser(email, name string, credentials []webauthn.Credential) *PasskeyUser {
	email = normalizeEmail(email)
	if name == "" {
		name = email
	}
	return &PasskeyUser{email: email, name: name, credentials: credentials}
}

// Email returns the staff email.
func (u *PasskeyUser) Email() string { return u.email }

// WebAuthnID is a stable handle derived from the email.
func (u *PasskeyUser) WebAuthnID() []byte { return userHandle(u.email) }

// WebAuthnName returns the email.
func (u *PasskeyUser) WebAuthnName() string { return u.email }

// WebAuthnDisplayName returns the staff member's name.
func (u *PasskeyUser) WebAuthnDisplayName() string { return u.name }

// WebAuthnCredentials returns the stored credentials.
func (u *PasskeyUser) WebAuthnCredentials() []webauthn.Credential { return u.credentials }

func userHandle(email string) []byte {
	h := sha256.Sum256([]byte(normalizeEmail(email)))
	return h[:]
}

// EmailForHandle finds the email among emails whose user handle is handle.
func EmailForHandle(emails []string, handle []byte) (string, bool) {
	for _, e := range emails {
		if bytes.Equal(userHandle(e), handle) {
			return normalizeEmail(e), true
		}
	}
	return "", false
}

// StoredCredential is a passkey with its owner and label.
type StoredCredential struct {
	ID         string              `json:"id"`
	Email      string              `json:"email"`
	Name       string              `json:"name"`
	CreatedAt  time.Time           `json:"created_at"`
	Credential webauthn.Credential `json:"-"`
}

// PasskeyStore manages passkey credentials in SQLite.
type PasskeyStore struct {
	db *sql.DB
}

// NewPasskeyStore creates a passkey store.
func NewPasskeyStore(db *sql.DB) *PasskeyStore {
	return &PasskeyStore{db: db}
}

// Save stores a credential registered by email.
func (s *PasskeyStore) Save(email, name string, cred *webauthn.Credential) error {
	data, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("marshaling credential: %w", err)
	}
	if name == "" {
		name = "Passkey"
	}
	if _, err := s.db.Exec(
		"INSERT INTO passkey_credentials (id, email, name, credential_json) VALUES (?, ?, ?, ?)",
		fmt.Sprintf("%x", cred.ID), normalizeEmail(email), name, string(data),
	); err != nil {
		return fmt.Errorf("storing credential: %w", err)
	}
	return nil
}

// Update replaces a stored credential after a sign-in bumped its counters.
func (s *PasskeyStore) Update(email string, cred *webauthn.Credential) error {
	data, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("marshaling credential: %w", err)
	}
	if _, err := s.db.Exec(
		"UPDATE passkey_credentials SET credential_json = ? WHERE id = ? AND email = ?",
		string(data), fmt.Sprintf("%x", cred.ID), normalizeEmail(email),
	); err != nil {
		return fmt.Errorf("updating credential: %w", err)
	}
	return nil
}

// ListByEmail returns the credentials owned by email.
func (s *PasskeyStore) ListByEmail(email string) ([]StoredCredential, error) {
	rows, err := s.db.Query(
		"SELECT id, email, name, created_at, credential_json FROM passkey_credentials WHERE email = ? ORDER BY created_at",
		normalizeEmail(email),
	)
	if err != nil {
		return nil, fmt.Errorf("querying credentials: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			slog.Warn("closing rows", "err", cerr)
		}
	}()

	var result []StoredCredential
	for rows.Next() {
		var sc StoredCredential
		var data string
		if err := rows.Scan(&sc.ID, &sc.Email, &sc.Name, &sc.CreatedAt, &data); err != nil {
			return nil, fmt.Errorf("scanning credential: %w", err)
		}
		if err := json.Unmarshal([]byte(data), &sc.Credential); err != nil {
			return nil, fmt.Errorf("unmarshaling credential %s: %w", sc.ID, err)
		}
		result = append(result, sc)
	}
	return result, rows.Err()
}

// User loads email's credentials as a webauthn.User.
func (s *PasskeyStore) User(email, name string) (*PasskeyUser, error) {
	stored, err := s.ListByEmail(email)
	if err != nil {
		return nil, err
	}
	creds := make([]webauthn.Credential, len(stored))
	for i, sc := range stored {
		creds[i] = sc.Credential
	}
	return NewPasskeyUser(email, name, creds), nil
}

// Delete removes a credential owned by email.
func (s *PasskeyStore) Delete(id, email string) error {
	result, err := s.db.Exec(
		"DELETE FROM passkey_credentials WHERE id = ? AND email = ?", id, normalizeEmail(email),
	)
	if err != nil {
		return fmt.Errorf("deleting credential: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking affected rows: %w", err)
	}
	if rows == 0 {
		return ErrCredentialNotFound
	}
	return nil
}
