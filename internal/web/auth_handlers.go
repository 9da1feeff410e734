package web

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/evcraddock/front-desk/internal/auth"
)

type loginData struct {
	chrome
	FormEmail string
	Error     string
}

// handleLoginPage renders the staff sign-in form.
func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	if _, err := s.sessions.Validate(r); err == nil {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	s.render(w, "login.html", loginData{chrome: s.chrome(r)})
}

// handleLoginSubmit checks an email and password and starts a session.
func (s *Server) handleLoginSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	email := strings.TrimSpace(strings.ToLower(r.FormValue("email")))
	if email == "" {
		s.render(w, "login.html", loginData{Error: "Email is required"})
		return
	}

	if _, ok := s.signIn(w, r, email, r.FormValue("password")); !ok {
		s.renderStatus(w, http.StatusUnauthorized, "login.html", loginData{FormEmail: email, Error: "Invalid email or password"})
		return
	}
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

// signIn authenticates email and creates a session cookie. Repeated
// failures from one address are rate limited.
func (s *Server) signIn(w http.ResponseWriter, r *http.Request, email, password string) (*auth.User, bool) {
	addr := r.RemoteAddr
	if s.limiter.Limited(addr) {
		slog.Warn("login rate limited", "addr", addr)
		return nil, false
	}

	user, err := s.staff.Authenticate(email, password)
	if err != nil {
		if !errors.Is(err, auth.ErrInvalidCredentials) {
			slog.Error("authenticating", "err", err)
		}
		s.limiter.Fail(addr)
		slog.Info("login failed", "email", email)
		return nil, false
	}

	if err := s.sessions.Create(w, user.Email); err != nil {
		slog.Error("creating session", "err", err)
		return nil, false
	}
	slog.Info("login success", "email", user.Email, "method", "password")
	return user, true
}

// handleLogout destroys the session and redirects to login.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Destroy(w, r); err != nil {
		slog.Warn("destroying session", "err", err)
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}
