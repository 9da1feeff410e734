package web

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/evcraddock/front-desk/internal/auth"
	"github.com/evcraddock/front-desk/internal/config"
)

// passkeyHandlers runs the WebAuthn ceremonies.
type passkeyHandlers struct {
	wan      *webauthn.WebAuthn
	passkeys *auth.PasskeyStore
	sessions *auth.SessionStore
	staff    *auth.StaffStore

	// In-flight ceremonies. Registration is keyed by email; only one
	// discoverable login runs at a time.
	mu           sync.Mutex
	regSessions  map[string]*webauthn.SessionData
	loginSession *webauthn.SessionData
}

func newPasskeyHandlers(cfg config.Config, passkeys *auth.PasskeyStore, sessions *auth.SessionStore, staff *auth.StaffStore) (*passkeyHandlers, error) {
	wan, err := webauthn.New(&webauthn.Config{
		RPDisplayName: "Front Desk",
		RPID:          cfg.RPID(),
		RPOrigins:     []string{cfg.BaseURL},
	})
	if err != nil {
		return nil, err
	}

	return &passkeyHandlers{
		wan:         wan,
		passkeys:    passkeys,
		sessions:    sessions,
		staff:       staff,
		regSessions: make(map[string]*webauthn.SessionData),
	}, nil
}

func (h *passkeyHandlers) user(email string) (*auth.PasskeyUser, error) {
	name := email
	if u, err := h.staff.GetByEmail(email); err == nil && u.Name != "" {
		name = u.Name
	}
	return h.passkeys.User(email, name)
}

// handleBeginRegistration starts passkey registration from settings.
func (h *passkeyHandlers) handleBeginRegistration(w http.ResponseWriter, r *http.Request) {
	email, err := h.sessions.Validate(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	user, err := h.user(email)
	if err != nil {
		slog.Error("loading credentials", "err", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	creds := user.WebAuthnCredentials()
	exclude := make([]protocol.CredentialDescriptor, len(creds))
	for i, c := range creds {
		exclude[i] = c.Descriptor()
	}

	creation, session, err := h.wan.BeginRegistration(user, webauthn.WithExclusions(exclude))
	if err != nil {
		slog.Error("beginning registration", "err", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	h.mu.Lock()
	h.regSessions[email] = session
	h.mu.Unlock()

	apiJSON(w, creation, http.StatusOK)
}

// handleFinishRegistration verifies the authenticator response and stores
// the credential under the name given in the query string.
func (h *passkeyHandlers) handleFinishRegistration(w http.ResponseWriter, r *http.Request) {
	email, err := h.sessions.Validate(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	h.mu.Lock()
	session, ok := h.regSessions[email]
	delete(h.regSessions, email)
	h.mu.Unlock()
	if !ok {
		http.Error(w, "No registration in progress", http.StatusBadRequest)
		return
	}

	user, err := h.user(email)
	if err != nil {
		slog.Error("loading credentials", "err", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	credential, err := h.wan.FinishRegistration(user, *session, r)
	if err != nil {
		slog.Warn("finishing registration", "err", err)
		http.Error(w, "Registration failed", http.StatusBadRequest)
		return
	}

	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if err := h.passkeys.Save(email, name, credential); err != nil {
		slog.Error("saving credential", "err", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	slog.Info("passkey registered", "email", email)
	apiJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
}

// handleBeginLogin starts a discoverable passkey login.
func (h *passkeyHandlers) handleBeginLogin(w http.ResponseWriter, r *http.Request) {
	assertion, session, err := h.wan.BeginDiscoverableLogin()
	if err != nil {
		slog.Error("beginning passkey login", "err", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	h.mu.Lock()
	h.loginSession = session
	h.mu.Unlock()

	apiJSON(w, assertion, http.StatusOK)
}

// handleFinishLogin completes a passkey login and creates a session.
func (h *passkeyHandlers) handleFinishLogin(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	session := h.loginSession
	h.loginSession = nil
	h.mu.Unlock()

	if session == nil {
		http.Error(w, "No login in progress", http.StatusBadRequest)
		return
	}

	var email string
	lookup := func(rawID, handle []byte) (webauthn.User, error) {
		emails, err := h.staff.AllEmails()
		if err != nil {
			return nil, err
		}
		found, ok := auth.EmailForHandle(emails, handle)
		if !ok {
			return nil, protocol.ErrBadRequest.WithDetails("unknown user")
		}
		email = found
		return h.user(found)
	}

	_, credential, err := h.wan.FinishPasskeyLogin(lookup, *session, r)
	if err != nil {
		slog.Warn("finishing passkey login", "err", err)
		http.Error(w, "Login failed", http.StatusUnauthorized)
		return
	}

	if err := h.passkeys.Update(email, credential); err != nil {
		slog.Warn("updating credential counters", "err", err)
	}

	if err := h.sessions.Create(w, email); err != nil {
		slog.Error("creating session", "err", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	slog.Info("login success", "email", email, "method", "passkey")
	apiJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
}

// handleDelete removes one of the signed-in user's passkeys.
func (h *passkeyHandlers) handleDelete(w http.ResponseWriter, r *http.Request) {
	email, err := h.sessions.Validate(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	err = h.passkeys.Delete(chi.URLParam(r, "id"), email)
	switch {
	case errors.Is(err, auth.ErrCredentialNotFound):
		http.Error(w, "Passkey not found", http.StatusNotFound)
		return
	case err != nil:
		slog.Error("deleting passkey", "err", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, "/settings", http.StatusSeeOther)
}
