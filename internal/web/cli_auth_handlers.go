package web

import (
	"log/slog"
	"net/http"
	"strings"
)

type cliAuthData struct {
	chrome
	APIKey    string
	FormEmail string
	Error     string
}

// handleCLIAuthPage serves the sign-in page the CLI opens in a browser.
// Users who already have a session go straight to key creation.
func (s *Server) handleCLIAuthPage(w http.ResponseWriter, r *http.Request) {
	if _, err := s.sessions.Validate(r); err == nil {
		http.Redirect(w, r, "/cli/auth/complete", http.StatusSeeOther)
		return
	}
	s.render(w, "cli_auth.html", cliAuthData{})
}

// handleCLIAuthSubmit signs the user in and continues to key creation.
func (s *Server) handleCLIAuthSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	email := strings.TrimSpace(strings.ToLower(r.FormValue("email")))
	if email == "" {
		s.render(w, "cli_auth.html", cliAuthData{Error: "Email is required"})
		return
	}
	if _, ok := s.signIn(w, r, email, r.FormValue("password")); !ok {
		s.renderStatus(w, http.StatusUnauthorized, "cli_auth.html", cliAuthData{FormEmail: email, Error: "Invalid email or password"})
		return
	}
	http.Redirect(w, r, "/cli/auth/complete", http.StatusSeeOther)
}

// handleCLIAuthComplete generates an API key and displays it.
// Requires a valid session.
func (s *Server) handleCLIAuthComplete(w http.ResponseWriter, r *http.Request) {
	email, err := s.sessions.Validate(r)
	if err != nil {
		http.Redirect(w, r, "/cli/auth", http.StatusSeeOther)
		return
	}

	rawKey, _, err := s.apiKeys.Create("CLI", email)
	if err != nil {
		slog.Error("creating api key", "err", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	s.render(w, "cli_auth.html", cliAuthData{APIKey: rawKey})
}
