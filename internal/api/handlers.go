package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"iot-engine/internal/hierarchy"
	"iot-engine/internal/models"
	"iot-engine/internal/thresholds"
)

// ErrorResponse is the body of every non-2xx reply
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	siteID := mux.Vars(r)["siteID"]
	snap, err := s.deps.Snapshots.GetSnapshot(r.Context(), siteID)
	if err != nil {
		s.respondWithError(w, r, http.StatusBadGateway, err)
		return
	}
	respondWithJSON(w, http.StatusOK, snap)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	siteID := mux.Vars(r)["siteID"]
	site, err := s.deps.Sites.GetSite(r.Context(), siteID)
	if err != nil {
		s.respondWithError(w, r, statusFor(err), err)
		return
	}
	view, err := s.deps.Evaluator.Evaluate(r.Context(), site)
	if err != nil {
		s.respondWithError(w, r, http.StatusBadGateway, err)
		return
	}
	respondWithJSON(w, http.StatusOK, view)
}

func (s *Server) handleGetThresholds(w http.ResponseWriter, r *http.Request) {
	siteID := mux.Vars(r)["siteID"]
	set, err := s.deps.Thresholds.GetThresholds(r.Context(), siteID)
	if err != nil {
		s.respondWithError(w, r, http.StatusBadGateway, err)
		return
	}
	respondWithJSON(w, http.StatusOK, set)
}

func (s *Server) handlePutThresholds(w http.ResponseWriter, r *http.Request) {
	siteID := mux.Vars(r)["siteID"]
	defer r.Body.Close()

	var set models.ThresholdSet
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&set); err != nil {
		s.respondWithError(w, r, http.StatusBadRequest, errors.New("invalid request payload"))
		return
	}
	if err := thresholds.Validate(set); err != nil {
		s.respondWithError(w, r, http.StatusBadRequest, err)
		return
	}
	if err := s.deps.Thresholds.PutThresholds(r.Context(), siteID, set); err != nil {
		s.respondWithError(w, r, statusFor(err), err)
		return
	}
	s.logger.Info("thresholds updated", "site_id", siteID, "request_id", r.Header.Get(RequestIDHeader))
	respondWithJSON(w, http.StatusOK, set)
}

func (s *Server) handleRollup(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	kind, err := models.ParseScopeKind(q.Get("scope"))
	if err != nil {
		s.respondWithError(w, r, http.StatusBadRequest, err)
		return
	}
	scope := models.Scope{Kind: kind, ID: q.Get("id"), Region: q.Get("region")}
	if err := hierarchy.ValidateScope(scope); err != nil {
		s.respondWithError(w, r, http.StatusBadRequest, err)
		return
	}

	result, err := s.deps.Rollups.Rollup(r.Context(), scope)
	if err != nil {
		s.respondWithError(w, r, statusFor(err), err)
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}

// statusFor maps domain errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, hierarchy.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, hierarchy.ErrInvalidScope), errors.Is(err, thresholds.ErrInvalidThresholds):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (s *Server) respondWithError(w http.ResponseWriter, r *http.Request, code int, err error) {
	id := r.Header.Get(RequestIDHeader)
	if code >= http.StatusInternalServerError {
		s.logger.Error("request failed", "path", r.URL.Path, "request_id", id, "error", err)
	}
	respondWithJSON(w, code, ErrorResponse{Error: err.Error(), RequestID: id})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
