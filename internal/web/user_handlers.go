package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/evcraddock/front-desk/internal/auth"
)

// Staff management. These routes sit behind auth.RequireAdmin.

func (s *Server) apiListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.staff.List()
	if err != nil {
		apiError(w, "listing users: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if users == nil {
		users = []*auth.User{}
	}
	apiJSON(w, users, http.StatusOK)
}

func (s *Server) apiAddUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email      string `json:"email"`
		Name       string `json:"name"`
		Department string `json:"department"`
		Password   string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Email) == "" {
		apiError(w, "email is required", http.StatusBadRequest)
		return
	}
	if len(req.Password) < auth.MinPasswordLength {
		apiError(w, "password must be at least "+strconv.Itoa(auth.MinPasswordLength)+" characters", http.StatusBadRequest)
		return
	}

	user, err := s.staff.Add(req.Email, req.Name, req.Department, req.Password)
	switch {
	case errors.Is(err, auth.ErrUserExists):
		apiError(w, err.Error(), http.StatusConflict)
		return
	case err != nil:
		apiError(w, "adding user: "+err.Error(), http.StatusInternalServerError)
		return
	}
	apiJSON(w, user, http.StatusCreated)
}

func (s *Server) apiDeleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		apiError(w, "invalid user ID", http.StatusBadRequest)
		return
	}

	user, err := s.staff.GetByID(id)
	switch {
	case errors.Is(err, auth.ErrUserNotFound):
		apiError(w, "user not found", http.StatusNotFound)
		return
	case err != nil:
		apiError(w, "loading user: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if s.staff.IsAdmin(user.Email) {
		apiError(w, "cannot remove the admin account", http.StatusBadRequest)
		return
	}

	if err := s.staff.Delete(id); err != nil {
		apiError(w, "deleting user: "+err.Error(), http.StatusInternalServerError)
		return
	}
	apiJSON(w, map[string]any{"id": id, "deleted": true}, http.StatusOK)
}
