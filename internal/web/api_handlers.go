package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/evcraddock/front-desk/internal/auth"
	"github.com/evcraddock/front-desk/internal/docstore"
	"github.com/evcraddock/front-desk/internal/status"
	"github.com/evcraddock/front-desk/internal/view"
	"github.com/evcraddock/front-desk/internal/visit"
)

// apiError writes a JSON error response.
func apiError(w http.ResponseWriter, msg string, code int) {
	apiJSON(w, map[string]string{"error": msg}, code)
}

// apiJSON writes a JSON response with the given status code.
func apiJSON(w http.ResponseWriter, data any, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, `{"error":"encode failed"}`, http.StatusInternalServerError)
	}
}

// VisitList is the body of GET /api/visits.
type VisitList struct {
	View    view.Mode      `json:"view"`
	Date    string         `json:"date,omitempty"`
	Visits  []visit.Record `json:"visits"`
	Loading bool           `json:"loading"`
	Error   string         `json:"error,omitempty"`
}

// TransitionResult is the body of POST /api/visits/{id}/{action}.
type TransitionResult struct {
	ID     string        `json:"id"`
	Status visit.Status  `json:"status"`
	Notice status.Notice `json:"notice"`
}

type meResponse struct {
	Email   string `json:"email"`
	IsAdmin bool   `json:"is_admin"`
}

func (s *Server) apiMe(w http.ResponseWriter, r *http.Request) {
	email := auth.EmailFrom(r.Context())
	apiJSON(w, meResponse{Email: email, IsAdmin: s.staff.IsAdmin(email)}, http.StatusOK)
}

// apiListVisits serves the derived view of the live mirror. When the
// subscription has failed the last known records are still returned
// together with the error.
func (s *Server) apiListVisits(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r.URL.Query())
	if err != nil {
		apiError(w, err.Error(), http.StatusBadRequest)
		return
	}

	state := s.records.State()
	resp := VisitList{
		View:    filter.Mode,
		Visits:  view.Derive(state.Records, filter, s.now()),
		Loading: state.Loading,
	}
	if d, ok := filter.Day(s.now()); ok {
		resp.Date = d.String()
	}
	if state.Err != nil {
		resp.Error = state.Err.Error()
	}
	apiJSON(w, resp, http.StatusOK)
}

type validationResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields"`
}

func (s *Server) apiCreateVisit(w http.ResponseWriter, r *http.Request) {
	var in visit.Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		apiError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	id, err := s.submitter.Submit(r.Context(), in)
	var ve *visit.ValidationError
	switch {
	case errors.As(err, &ve):
		apiJSON(w, validationResponse{Error: "validation failed", Fields: ve.Fields}, http.StatusUnprocessableEntity)
		return
	case err != nil:
		apiError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	apiJSON(w, map[string]string{"id": id}, http.StatusCreated)
}

func (s *Server) apiExportVisits(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r.URL.Query())
	if err != nil {
		apiError(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.writeExport(w, filter, func(msg string, code int) { apiError(w, msg, code) })
}

// apiTransition applies arrived, no-show or reset to one record. The new
// status reaches readers through the next snapshot, not this response.
func (s *Server) apiTransition(w http.ResponseWriter, r *http.Request) {
	kind, err := status.ParseKind(chi.URLParam(r, "action"))
	if err != nil {
		apiError(w, err.Error(), http.StatusNotFound)
		return
	}
	id := chi.URLParam(r, "id")

	notice, err := s.engine.Apply(r.Context(), kind, id)
	switch {
	case errors.Is(err, docstore.ErrNotFound):
		apiError(w, notice.Message, http.StatusNotFound)
		return
	case errors.Is(err, status.ErrMissingID):
		apiError(w, notice.Message, http.StatusBadRequest)
		return
	case err != nil:
		apiError(w, notice.Message, http.StatusInternalServerError)
		return
	}
	apiJSON(w, TransitionResult{ID: id, Status: kind.Target(), Notice: notice}, http.StatusOK)
}
