// Package auth provides staff sign-in, sessions, passkeys and API keys.
package auth

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength is the shortest accepted staff password.
const MinPasswordLength = 8

var (
	// ErrInvalidCredentials is returned when an email/password pair does not
	// match a staff account.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrUserNotFound is returned for an unknown staff id or email.
	ErrUserNotFound = errors.New("user not found")
	// ErrUserExists is returned when adding an email that is already staff.
	ErrUserExists = errors.New("user already exists")
)

// dummyHash is compared against when the email is unknown so a failed
// sign-in takes the same time either way.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("front-desk-placeholder"), bcrypt.DefaultCost)

// User is a front-office staff member who may review visits.
type User struct {
	ID         int64     `json:"id"`
	Email      string    `json:"email"`
	Name       string    `json:"name"`
	Department string    `json:"department"`
	CreatedAt  time.Time `json:"created_at"`
}

// StaffStore manages staff accounts in SQLite.
type StaffStore struct {
	db         *sql.DB
	adminEmail string
	cost       int
}

// NewStaffStore creates a staff store. adminEmail is always treated as an
// administrator.
func NewStaffStore(db *sql.DB, adminEmail string) *StaffStore {
	return &StaffStore{
		db:         db,
		adminEmail: normalizeEmail(adminEmail),
		cost:       bcrypt.DefaultCost,
	}
}

// AdminEmail returns the configured administrator email.
func (s *StaffStore) AdminEmail() string {
	return s.adminEmail
}

// IsAdmin reports whether email is the administrator.
func (s *StaffStore) IsAdmin(email string) bool {
	return s.adminEmail != "" && normalizeEmail(email) == s.adminEmail
}

// IsAuthorized reports whether email belongs to a staff account or the
// administrator.
func (s *StaffStore) IsAuthorized(email string) bool {
	if s.IsAdmin(email) {
		return true
	}
	var count int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM staff_users WHERE email = ?", normalizeEmail(email),
	).Scan(&count)
	if err != nil {
		slog.Error("checking staff authorization", "err", err)
		return false
	}
	return count > 0
}

// Add creates a staff account with the given password.
func (s *StaffStore) Add(email, name, department, password string) (*User, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, fmt.Errorf("email is required")
	}
	hash, err := s.hash(password)
	if err != nil {
		return nil, err
	}

	result, err := s.db.Exec(
		"INSERT INTO staff_users (email, name, department, password_hash) VALUES (?, ?, ?, ?)",
		email, strings.TrimSpace(name), strings.TrimSpace(department), hash,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return nil, fmt.Errorf("%w: %s", ErrUserExists, email)
		}
		return nil, fmt.Errorf("adding user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting user ID: %w", err)
	}
	return s.GetByID(id)
}

// SetPassword replaces the password of an existing account.
func (s *StaffStore) SetPassword(email, password string) error {
	hash, err := s.hash(password)
	if err != nil {
		return err
	}
	result, err := s.db.Exec(
		"UPDATE staff_users SET password_hash = ? WHERE email = ?", hash, normalizeEmail(email),
	)
	if err != nil {
		return fmt.Errorf("updating password: %w", err)
	}
	return requireOneRow(result)
}

// Authenticate checks an email/password pair.
func (s *StaffStore) Authenticate(email, password string) (*User, error) {
	var u User
	var hash string
	err := s.db.QueryRow(
		"SELECT id, email, name, department, created_at, password_hash FROM staff_users WHERE email = ?",
		normalizeEmail(email),
	).Scan(&u.ID, &u.Email, &u.Name, &u.Department, &u.CreatedAt, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}
	if hash == "" {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return &u, nil
}

// EnsureAdmin creates the administrator account if it does not exist yet.
// Without a password the account cannot sign in with a password until one
// is set, but passkeys registered later still work.
func (s *StaffStore) EnsureAdmin(password string) error {
	if s.adminEmail == "" {
		return nil
	}
	if _, err := s.GetByEmail(s.adminEmail); err == nil {
		return nil
	} else if !errors.Is(err, ErrUserNotFound) {
		return err
	}

	if password == "" {
		if _, err := s.db.Exec(
			"INSERT INTO staff_users (email, name) VALUES (?, ?)", s.adminEmail, "Administrator",
		); err != nil {
			return fmt.Errorf("creating admin: %w", err)
		}
		slog.Warn("admin account created without a password", "email", s.adminEmail)
		return nil
	}

	if _, err := s.Add(s.adminEmail, "Administrator", "", password); err != nil {
		return fmt.Errorf("creating admin: %w", err)
	}
	slog.Info("admin account created", "email", s.adminEmail)
	return nil
}

// List returns every staff account ordered by email.
func (s *StaffStore) List() ([]*User, error) {
	rows, err := s.db.Query(
		"SELECT id, email, name, department, created_at FROM staff_users ORDER BY email",
	)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			slog.Warn("closing rows", "err", cerr)
		}
	}()

	var users []*User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Email, &u.Name, &u.Department, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, &u)
	}
	return users, rows.Err()
}

// GetByID returns a staff account by id.
func (s *StaffStore) GetByID(id int64) (*User, error) {
	return s.getOne("SELECT id, email, name, department, created_at FROM staff_users WHERE id = ?", id)
}

// GetByEmail returns a staff account by email.
func (s *StaffStore) GetByEmail(email string) (*User, error) {
	return s.getOne("SELECT id, email, name, department, created_at FROM staff_users WHERE email = ?", normalizeEmail(email))
}

func (s *StaffStore) getOne(query string, arg any) (*User, error) {
	var u User
	err := s.db.QueryRow(query, arg).Scan(&u.ID, &u.Email, &u.Name, &u.Department, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}
	return &u, nil
}

// Delete removes a staff account by id. The administrator cannot be removed.
func (s *StaffStore) Delete(id int64) error {
	u, err := s.GetByID(id)
	if err != nil {
		return err
	}
	if s.IsAdmin(u.Email) {
		return fmt.Errorf("cannot remove the admin account")
	}
	result, err := s.db.Exec("DELETE FROM staff_users WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	return requireOneRow(result)
}

// AllEmails returns every email that may sign in, administrator first.
func (s *StaffStore) AllEmails() ([]string, error) {
	users, err := s.List()
	if err != nil {
		return nil, err
	}
	var emails []string
	if s.adminEmail != "" {
		emails = append(emails, s.adminEmail)
	}
	for _, u := range users {
		if u.Email != s.adminEmail {
			emails = append(emails, u.Email)
		}
	}
	return emails, nil
}

func (s *StaffStore) hash(password string) (string, error) {
	if len(password) < MinPasswordLength {
		return "", fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(h), nil
}

func requireOneRow(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking affected rows: %w", err)
	}
	if rows == 0 {
		return ErrUserNotFound
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
