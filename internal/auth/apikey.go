package auth

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const (
	apiKeyBytes  = 32
	apiKeyPrefix = "fd_"
)

// ErrKeyNotFound is returned when deleting an unknown or foreign key.
var ErrKeyNotFound = errors.New("key not found")

// APIKey is the stored form of an API key. The raw key is never stored.
type APIKey struct {
	ID         int64      `json:"id"`
	Name       string     `json:"name"`
	Email      string     `json:"email"`
	KeyPrefix  string     `json:"key_prefix"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}

// APIKeyStore manages CLI API keys in SQLite. Each key acts on behalf of
// the staff member who created it.
type APIKeyStore struct {
	db *sql.DB
}

// NewAPIKeyStore creates an API key store.
func NewAPIKeyStore(db *sql.DB) *APIKeyStore {
	return &APIKeyStore{db: db}
}

// Create issues a key for email. The raw key is returned once.
func (s *APIKeyStore) Create(name, email string) (string, *APIKey, error) {
	secret, err := randomHex(apiKeyBytes)
	if err != nil {
		return "", nil, fmt.Errorf("generating key: %w", err)
	}
	raw := apiKeyPrefix + secret
	prefix := raw[:len(apiKeyPrefix)+8]
	email = normalizeEmail(email)

	result, err := s.db.Exec(
		"INSERT INTO api_keys (name, key_prefix, key_hash, email) VALUES (?, ?, ?, ?)",
		name, prefix, hashAPIKey(raw), email,
	)
	if err != nil {
		return "", nil, fmt.Errorf("storing key: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return "", nil, fmt.Errorf("getting key id: %w", err)
	}

	return raw, &APIKey{ID: id, Name: name, Email: email, KeyPrefix: prefix, CreatedAt: time.Now()}, nil
}

// List returns the keys owned by email, newest first.
func (s *APIKeyStore) List(email string) ([]APIKey, error) {
	rows, err := s.db.Query(
		"SELECT id, name, email, key_prefix, created_at, last_used_at FROM api_keys WHERE email = ? ORDER BY created_at DESC, id DESC",
		normalizeEmail(email),
	)
	if err != nil {
		return nil, fmt.Errorf("querying keys: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			slog.Warn("closing rows", "err", cerr)
		}
	}()

	var keys []APIKey
	for rows.Next() {
		var k APIKey
		if err := rows.Scan(&k.ID, &k.Name, &k.Email, &k.KeyPrefix, &k.CreatedAt, &k.LastUsedAt); err != nil {
			return nil, fmt.Errorf("scanning key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Delete removes a key owned by email.
func (s *APIKeyStore) Delete(id int64, email string) error {
	result, err := s.db.Exec("DELETE FROM api_keys WHERE id = ? AND email = ?", id, normalizeEmail(email))
	if err != nil {
		return fmt.Errorf("deleting key: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking affected rows: %w", err)
	}
	if rows == 0 {
		return ErrKeyNotFound
	}
	return nil
}

// Validate returns the owner of rawKey, or "" if the key is unknown. A
// successful lookup records the time of use.
func (s *APIKeyStore) Validate(rawKey string) (string, error) {
	hash := hashAPIKey(rawKey)

	var email string
	err := s.db.QueryRow("SELECT email FROM api_keys WHERE key_hash = ?", hash).Scan(&email)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("validating key: %w", err)
	}

	if _, err := s.db.Exec("UPDATE api_keys SET last_used_at = ? WHERE key_hash = ?", time.Now(), hash); err != nil {
		slog.Warn("recording key use", "err", err)
	}
	return email, nil
}

func hashAPIKey(key string) string {
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:])
}
