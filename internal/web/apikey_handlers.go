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

type createKeyResponse struct {
	Key  string       `json:"key"`
	Info *auth.APIKey `json:"info"`
}

// apiCreateKey issues a key for the signed-in user. The raw key appears
// only in this response.
func (s *Server) apiCreateKey(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apiError(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = "API Key"
	}

	raw, key, err := s.apiKeys.Create(name, auth.EmailFrom(r.Context()))
	if err != nil {
		apiError(w, "creating key: "+err.Error(), http.StatusInternalServerError)
		return
	}
	apiJSON(w, createKeyResponse{Key: raw, Info: key}, http.StatusCreated)
}

func (s *Server) apiListKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := s.apiKeys.List(auth.EmailFrom(r.Context()))
	if err != nil {
		apiError(w, "listing keys: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if keys == nil {
		keys = []auth.APIKey{}
	}
	apiJSON(w, keys, http.StatusOK)
}

func (s *Server) apiDeleteKey(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		apiError(w, "invalid key ID", http.StatusBadRequest)
		return
	}

	err = s.apiKeys.Delete(id, auth.EmailFrom(r.Context()))
	switch {
	case errors.Is(err, auth.ErrKeyNotFound):
		apiError(w, "key not found", http.StatusNotFound)
		return
	case err != nil:
		apiError(w, "deleting key: "+err.Error(), http.StatusInternalServerError)
		return
	}
	apiJSON(w, map[string]any{"id": id, "deleted": true}, http.StatusOK)
}
