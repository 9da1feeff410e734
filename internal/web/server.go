// Package web provides the HTTP server, JSON API and live stream for the
// front desk.
package web

import (
	"bytes"
	"database/sql"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/evcraddock/front-desk/internal/auth"
	"github.com/evcraddock/front-desk/internal/config"
	"github.com/evcraddock/front-desk/internal/docstore"
	"github.com/evcraddock/front-desk/internal/live"
	"github.com/evcraddock/front-desk/internal/logging"
	"github.com/evcraddock/front-desk/internal/metrics"
	"github.com/evcraddock/front-desk/internal/status"
	"github.com/evcraddock/front-desk/internal/visit"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

// Server is the front desk HTTP server. It holds one live mirror of the
// visits collection that every page and API read is served from.
type Server struct {
	cfg       config.Config
	store     docstore.Store
	records   *live.Collection[visit.Record]
	submitter *visit.Submitter
	engine    *status.Engine

	sessions *auth.SessionStore
	staff    *auth.StaffStore
	apiKeys  *auth.APIKeyStore
	passkeys *auth.PasskeyStore
	limiter  *auth.RateLimiter
	webauthn *passkeyHandlers

	notifier visit.Notifier
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	now      func() time.Time

	templates *template.Template
	upgrader  websocket.Upgrader
	router    chi.Router
}

// Option configures a Server.
type Option func(*Server)

// WithNotifier tells host employees about new visits.
func WithNotifier(n visit.Notifier) Option {
	return func(s *Server) { s.notifier = n }
}

// WithMetrics records metrics in m and serves g at /metrics.
func WithMetrics(m *metrics.Metrics, g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.metrics = m
		s.gatherer = g
	}
}

// WithClock replaces time.Now for the Today view.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// NewServer creates a server over d (staff, sessions and keys) and store
// (visit records), and activates the live mirror.
func NewServer(d *sql.DB, store docstore.Store, cfg config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:      cfg,
		store:    store,
		sessions: auth.NewSessionStore(d, cfg.SecureCookies()),
		staff:    auth.NewStaffStore(d, cfg.AdminEmail),
		apiKeys:  auth.NewAPIKeyStore(d),
		passkeys: auth.NewPasskeyStore(d),
		limiter:  auth.NewRateLimiter(10, time.Minute),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	tmpl, err := template.New("").Funcs(template.FuncMap{
		"statusClass": tmplStatusClass,
		"field":       tmplField,
	}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parsing templates: %w", err)
	}
	s.templates = tmpl

	if err := s.staff.EnsureAdmin(cfg.AdminPassword); err != nil {
		return nil, fmt.Errorf("bootstrapping admin: %w", err)
	}

	s.webauthn, err = newPasskeyHandlers(cfg, s.passkeys, s.sessions, s.staff)
	if err != nil {
		return nil, fmt.Errorf("configuring passkeys: %w", err)
	}

	submitOpts := []visit.SubmitterOption{visit.WithMetrics(s.metrics)}
	if s.notifier != nil {
		submitOpts = append(submitOpts, visit.WithNotifier(s.notifier))
	}
	s.submitter = visit.NewSubmitter(store, cfg.Collection, submitOpts...)
	s.engine = status.NewEngine(store, cfg.Collection, s.metrics)
	s.records = live.New(store, visit.Decode, live.WithMetrics[visit.Record](s.metrics))
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}

	if err := s.records.Activate(cfg.Collection); err != nil {
		// The mirror keeps the error; the dashboard offers a reconnect.
		slog.Error("activating visits mirror", "err", err)
	}

	s.router, err = s.routes()
	if err != nil {
		s.records.Deactivate()
		return nil, err
	}
	return s, nil
}

func (s *Server) routes() (chi.Router, error) {
	staticContent, err := fs.Sub(staticFS, "static")
	if err != nil {
		return nil, fmt.Errorf("creating static sub-fs: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(func(next http.Handler) http.Handler {
		return auth.RequireSession(s.sessions, s.staff, next)
	})
	r.Use(func(next http.Handler) http.Handler {
		return auth.RequireAPI(s.apiKeys, s.sessions, s.staff, s.limiter, next)
	})

	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(staticContent))))
	r.Get("/health", s.handleHealth)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	// Public registration form.
	r.Get("/", s.handleRegisterPage)
	r.Post("/register/employee", s.handleRegisterEmployee)
	r.Post("/register", s.handleRegisterSubmit)

	// Sign-in.
	r.Get("/login", s.handleLoginPage)
	r.Post("/login", s.handleLoginSubmit)
	r.Post("/logout", s.handleLogout)
	r.Get("/cli/auth", s.handleCLIAuthPage)
	r.Post("/cli/auth", s.handleCLIAuthSubmit)
	r.Get("/cli/auth/complete", s.handleCLIAuthComplete)
	r.Post("/passkey/login/begin", s.webauthn.handleBeginLogin)
	r.Post("/passkey/login/finish", s.webauthn.handleFinishLogin)

	// Staff pages.
	r.Get("/dashboard", s.handleDashboard)
	r.Get("/dashboard/export", s.handleDashboardExport)
	r.Post("/dashboard/refresh", s.handleDashboardRefresh)
	r.Post("/visits/{id}/{action}", s.handleTransition)
	r.Get("/settings", s.handleSettings)
	r.Post("/settings/password", s.handleChangePassword)
	r.Post("/settings/keys", s.handleSettingsCreateKey)
	r.Post("/settings/keys/{id}/delete", s.handleSettingsDeleteKey)
	r.Post("/passkey/register/begin", s.webauthn.handleBeginRegistration)
	r.Post("/passkey/register/finish", s.webauthn.handleFinishRegistration)
	r.Post("/passkey/{id}/delete", s.webauthn.handleDelete)

	r.Route("/api", func(r chi.Router) {
		r.Get("/me", s.apiMe)
		r.Route("/visits", func(r chi.Router) {
			r.Get("/", s.apiListVisits)
			r.Post("/", s.apiCreateVisit)
			r.Get("/export", s.apiExportVisits)
			r.Get("/stream", s.handleStream)
			r.Post("/{id}/{action}", s.apiTransition)
		})
		r.Route("/keys", func(r chi.Router) {
			r.Get("/", s.apiListKeys)
			r.Post("/", s.apiCreateKey)
			r.Delete("/{id}", s.apiDeleteKey)
		})
		r.Route("/users", func(r chi.Router) {
			r.Use(func(next http.Handler) http.Handler {
				return auth.RequireAdmin(s.staff, next)
			})
			r.Get("/", s.apiListUsers)
			r.Post("/", s.apiAddUser)
			r.Delete("/{id}", s.apiDeleteUser)
		})
	})

	return r, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close releases the live mirror.
func (s *Server) Close() {
	s.records.Deactivate()
}

// Sessions exposes the session store for periodic cleanup.
func (s *Server) Sessions() *auth.SessionStore {
	return s.sessions
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if _, err := w.Write([]byte("ok")); err != nil {
		slog.Warn("writing health response", "err", err)
	}
}

// render executes a template into a buffer so a failure can still produce
// a clean 500.
func (s *Server) render(w http.ResponseWriter, name string, data any) {
	s.renderStatus(w, http.StatusOK, name, data)
}

func (s *Server) renderStatus(w http.ResponseWriter, code int, name string, data any) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		slog.Error("rendering template", "template", name, "err", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(code)
	if _, err := buf.WriteTo(w); err != nil {
		slog.Warn("writing response", "template", name, "err", err)
	}
}

// checkOrigin accepts websocket upgrades from the configured base URL and
// from clients that send no Origin header (the CLI).
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	return origin == "" || origin == s.cfg.BaseURL || origin == "http://"+r.Host || origin == "https://"+r.Host
}

func tmplStatusClass(st visit.Status) string {
	switch st {
	case visit.Arrived:
		return "status-arrived"
	case visit.NoShow:
		return "status-noshow"
	default:
		return "status-pending"
	}
}

// formField is the data of the "field" template.
type formField struct {
	Label, Name, Type, Value, Error string
	Required                        bool
}

func tmplField(label, name, typ, value, errMsg string, required bool) formField {
	return formField{Label: label, Name: name, Type: typ, Value: value, Error: errMsg, Required: required}
}
