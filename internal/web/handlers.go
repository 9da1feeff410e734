package web

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/evcraddock/front-desk/internal/auth"
	"github.com/evcraddock/front-desk/internal/export"
	"github.com/evcraddock/front-desk/internal/status"
	"github.com/evcraddock/front-desk/internal/view"
	"github.com/evcraddock/front-desk/internal/visit"
)

// chrome is the signed-in state every page header needs.
type chrome struct {
	Email   string
	IsAdmin bool
}

func (s *Server) chrome(r *http.Request) chrome {
	email := auth.EmailFrom(r.Context())
	if email == "" {
		if e, err := s.sessions.Validate(r); err == nil {
			email = e
		}
	}
	return chrome{Email: email, IsAdmin: s.staff.IsAdmin(email)}
}

type registerData struct {
	chrome
	Input   visit.Input
	Phase   string // "employee" or "visitor"
	Errors  map[string]string
	Success string
	Error   string
}

// handleRegisterPage renders an empty registration form.
func (s *Server) handleRegisterPage(w http.ResponseWriter, r *http.Request) {
	s.render(w, "register.html", registerData{
		chrome: s.chrome(r),
		Input:  visit.NewInput(s.now()),
		Phase:  "employee",
	})
}

func formInput(r *http.Request) visit.Input {
	return visit.Input{
		EmployeeNumber: r.FormValue("employeeNumber"),
		EmployeeName:   r.FormValue("employeeName"),
		Department:     r.FormValue("department"),
		EmployeeEmail:  r.FormValue("employeeEmail"),
		EmployeePhone:  r.FormValue("employeePhone"),
		VisitorName:    r.FormValue("visitorName"),
		Profession:     r.FormValue("profession"),
		VisitorPhone:   r.FormValue("visitorPhone"),
		IDNumber:       r.FormValue("idNumber"),
		Date:           r.FormValue("date"),
		Time:           r.FormValue("time"),
	}.Normalized()
}

// handleRegisterEmployee checks the employee section and reveals the
// visitor section.
func (s *Server) handleRegisterEmployee(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	in := formInput(r)
	if in.Date == "" && in.Time == "" {
		defaults := visit.NewInput(s.now())
		in.Date, in.Time = defaults.Date, defaults.Time
	}

	data := registerData{chrome: s.chrome(r), Input: in, Phase: "visitor"}
	var ve *visit.ValidationError
	if err := in.ValidateEmployee(); errors.As(err, &ve) {
		data.Phase = "employee"
		data.Errors = ve.Fields
		s.renderStatus(w, http.StatusUnprocessableEntity, "register.html", data)
		return
	}
	s.render(w, "register.html", data)
}

// handleRegisterSubmit stores a complete registration.
func (s *Server) handleRegisterSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	in := formInput(r)

	_, err := s.submitter.Submit(r.Context(), in)
	var ve *visit.ValidationError
	switch {
	case errors.As(err, &ve):
		phase := "visitor"
		if in.ValidateEmployee() != nil {
			phase = "employee"
		}
		s.renderStatus(w, http.StatusUnprocessableEntity, "register.html", registerData{chrome: s.chrome(r), Input: in, Phase: phase, Errors: ve.Fields})
	case err != nil:
		s.renderStatus(w, http.StatusInternalServerError, "register.html", registerData{
			chrome: s.chrome(r), Input: in, Phase: "visitor",
			Error: "The visit could not be registered. Please try again.",
		})
	default:
		s.render(w, "register.html", registerData{
			chrome:  s.chrome(r),
			Input:   visit.NewInput(s.now()),
			Phase:   "employee",
			Success: fmt.Sprintf("Visit registered for %s on %s at %s.", in.VisitorName, in.Date, in.Time),
		})
	}
}

type dashboardData struct {
	chrome
	Visits  []visit.Record
	Mode    view.Mode
	Date    string
	Today   string
	Loading bool
	Stale   string
	Notice  *status.Notice
	Counts  statusCounts
}

type statusCounts struct {
	Pending, Arrived, NoShow int
}

func countStatuses(visits []visit.Record) statusCounts {
	var c statusCounts
	for _, v := range visits {
		switch v.Status() {
		case visit.Arrived:
			c.Arrived++
		case visit.NoShow:
			c.NoShow++
		default:
			c.Pending++
		}
	}
	return c
}

// parseFilter reads view and date query parameters.
func parseFilter(q url.Values) (view.Filter, error) {
	mode, err := view.ParseMode(q.Get("view"))
	if err != nil {
		return view.Filter{}, err
	}
	f := view.Filter{Mode: mode}
	if raw := q.Get("date"); raw != "" {
		d, err := visit.ParseDay(raw)
		if err != nil {
			return view.Filter{}, err
		}
		f.Date = &d
	}
	return f, nil
}

// handleDashboard renders the staff view of the live mirror.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter, err := parseFilter(q)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	state := s.records.State()
	now := s.now()
	visits := view.Derive(state.Records, filter, now)

	data := dashboardData{
		chrome:  s.chrome(r),
		Visits:  visits,
		Mode:    filter.Mode,
		Today:   visit.DayOf(now).String(),
		Loading: state.Loading,
		Counts:  countStatuses(visits),
	}
	if filter.Date != nil && filter.Mode == view.All {
		data.Date = filter.Date.String()
	}
	if state.Err != nil {
		data.Stale = "Live updates stopped. Showing the last known visits."
	}
	if kind, err := status.ParseKind(q.Get("notice")); err == nil {
		n := kind.SuccessNotice()
		if q.Get("failed") != "" {
			n = kind.FailureNotice()
		}
		data.Notice = &n
	}

	s.render(w, "dashboard.html", data)
}

// handleDashboardRefresh re-activates the mirror after an error.
func (s *Server) handleDashboardRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.records.Refresh(); err != nil {
		slog.Error("refreshing visits mirror", "err", err)
	}
	http.Redirect(w, r, "/dashboard?"+r.URL.RawQuery, http.StatusSeeOther)
}

// handleTransition applies a status action from a dashboard button.
func (s *Server) handleTransition(w http.ResponseWriter, r *http.Request) {
	kind, err := status.ParseKind(chi.URLParam(r, "action"))
	if err != nil {
		http.Error(w, "Unknown action", http.StatusBadRequest)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	back := url.Values{}
	back.Set("view", r.FormValue("view"))
	if d := r.FormValue("date"); d != "" {
		back.Set("date", d)
	}
	back.Set("notice", string(kind))

	if _, err := s.engine.Apply(r.Context(), kind, chi.URLParam(r, "id")); err != nil {
		back.Set("failed", "1")
	}
	http.Redirect(w, r, "/dashboard?"+back.Encode(), http.StatusSeeOther)
}

// handleDashboardExport downloads the current view as CSV.
func (s *Server) handleDashboardExport(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r.URL.Query())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.writeExport(w, filter, func(msg string, code int) { http.Error(w, msg, code) })
}

// writeExport derives the view for filter and streams it as a CSV download.
func (s *Server) writeExport(w http.ResponseWriter, filter view.Filter, fail func(string, int)) {
	visits := view.Derive(s.records.State().Records, filter, s.now())
	if len(visits) == 0 {
		fail(export.ErrNoData.Error(), http.StatusNotFound)
		return
	}

	var day *visit.Day
	if filter.Mode == view.All {
		day = filter.Date
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName(day)))
	if err := export.Write(w, visits); err != nil {
		slog.Error("writing export", "err", err)
	}
}

type settingsData struct {
	chrome
	Passkeys []auth.StoredCredential
	Keys     []auth.APIKey
	Users    []*auth.User
	NewKey   string
	Message  string
	Error    string
}

// handleSettings renders passkeys, API keys and, for the admin, staff.
func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	s.renderSettings(w, r, "", "", "")
}

func (s *Server) renderSettings(w http.ResponseWriter, r *http.Request, newKey, message, errMsg string) {
	c := s.chrome(r)
	data := settingsData{chrome: c, NewKey: newKey, Message: message, Error: errMsg}

	var err error
	if data.Passkeys, err = s.passkeys.ListByEmail(c.Email); err != nil {
		slog.Error("listing passkeys", "err", err)
	}
	if data.Keys, err = s.apiKeys.List(c.Email); err != nil {
		slog.Error("listing api keys", "err", err)
	}
	if c.IsAdmin {
		if data.Users, err = s.staff.List(); err != nil {
			slog.Error("listing users", "err", err)
		}
	}
	s.render(w, "settings.html", data)
}

// handleChangePassword sets a new password for the signed-in user.
func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	email := auth.EmailFrom(r.Context())
	if r.FormValue("password") != r.FormValue("confirm") {
		s.renderSettings(w, r, "", "", "Passwords do not match")
		return
	}
	if err := s.staff.SetPassword(email, r.FormValue("password")); err != nil {
		s.renderSettings(w, r, "", "", err.Error())
		return
	}
	slog.Info("password changed", "email", email)
	s.renderSettings(w, r, "", "Password updated", "")
}

// handleSettingsCreateKey issues an API key and shows it once.
func (s *Server) handleSettingsCreateKey(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	name := r.FormValue("name")
	if name == "" {
		name = "API Key"
	}
	raw, _, err := s.apiKeys.Create(name, auth.EmailFrom(r.Context()))
	if err != nil {
		slog.Error("creating api key", "err", err)
		s.renderSettings(w, r, "", "", "Could not create key")
		return
	}
	s.renderSettings(w, r, raw, "Copy this key now. It will not be shown again.", "")
}

// handleSettingsDeleteKey revokes one of the signed-in user's keys.
func (s *Server) handleSettingsDeleteKey(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid key ID", http.StatusBadRequest)
		return
	}
	if err := s.apiKeys.Delete(id, auth.EmailFrom(r.Context())); err != nil {
		s.renderSettings(w, r, "", "", "Key not found")
		return
	}
	http.Redirect(w, r, "/settings", http.StatusSeeOther)
}
