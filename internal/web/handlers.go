package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/inovacc/labelr/internal/application"
	"github.com/inovacc/labelr/internal/model"
	"github.com/inovacc/labelr/internal/reconcile"
	"github.com/inovacc/labelr/internal/runner"
)

// APIResponse is a generic API response
type APIResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`

	// Next is where an unauthorized caller should go to log in
	Next string `json:"next,omitempty"`
}

const defaultRunsLimit = 50

// handleIndex describes the service
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	data := map[string]any{
		"name":    application.AppName,
		"version": application.Version,
	}

	if sess, err := s.sessions.Load(r); err == nil && sess.Authenticated() {
		data["user"] = sess.Login
	}

	s.jsonResponse(w, http.StatusOK, APIResponse{Success: true, Data: data})
}

// handleHealth returns health check status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.logger.Error("health check failed", "error", err)
		s.jsonResponse(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})

		return
	}

	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleTrain trains a model from the repo query parameter
func (s *Server) handleTrain(w http.ResponseWriter, r *http.Request, id identity) {
	repo := r.URL.Query().Get("repo")
	if repo == "" {
		s.jsonError(w, "missing repo parameter", http.StatusBadRequest)
		return
	}

	res, err := s.reconciler.DecideTraining(r.Context(), repo, id.Login, id.Token)
	if err != nil {
		s.writeError(w, err)
		return
	}

	status := http.StatusOK
	if res.Decision == reconcile.InProgress {
		status = http.StatusCreated
	}

	s.jsonResponse(w, status, APIResponse{Success: true, Message: res.Decision.Message(), Data: res})
}

// handleClassify classifies repo with the model trained on model
func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request, id identity) {
	repo := r.URL.Query().Get("repo")
	modelRepo := r.URL.Query().Get("model")

	if repo == "" || modelRepo == "" {
		s.jsonError(w, "missing repo or model parameter", http.StatusBadRequest)
		return
	}

	res, err := s.reconciler.DecideClassification(r.Context(), repo, modelRepo, id.Login, id.Token)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.jsonResponse(w, http.StatusOK, APIResponse{Success: true, Message: res.Decision.Message(), Data: res})
}

// handleMyModels lists the models the caller trained
func (s *Server) handleMyModels(w http.ResponseWriter, r *http.Request, id identity) {
	models, err := s.store.ListTrainings(r.Context(), id.Login)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.jsonResponse(w, http.StatusOK, APIResponse{Success: true, Data: models})
}

// handleCheckInstalled reports whether the app is installed on repo
func (s *Server) handleCheckInstalled(w http.ResponseWriter, r *http.Request, id identity) {
	repo, ok := s.visibleRepo(w, r, id)
	if !ok {
		return
	}

	installed, err := s.tracker.IsInstalled(r.Context(), repo)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.jsonResponse(w, http.StatusOK, APIResponse{Success: true, Data: installed})
}

// handleIsOwner reports whether the caller can write to repo
func (s *Server) handleIsOwner(w http.ResponseWriter, r *http.Request, id identity) {
	repo, ok := s.visibleRepo(w, r, id)
	if !ok {
		return
	}

	perm, err := s.tracker.Permission(r.Context(), repo, id.Login, id.Token)
	if err != nil {
		s.logger.Debug("permission lookup failed", "repo", repo.String(), "error", err)
	}

	owner := err == nil && (perm == "admin" || perm == "write")

	s.jsonResponse(w, http.StatusOK, APIResponse{Success: true, Data: owner})
}

// handleRuns lists recent runs
func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request, _ identity) {
	limit := defaultRunsLimit

	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.jsonError(w, "invalid limit parameter", http.StatusBadRequest)
			return
		}

		limit = n
	}

	runs, err := s.store.ListRuns(r.Context(), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.jsonResponse(w, http.StatusOK, APIResponse{Success: true, Data: runs})
}

// visibleRepo parses the repo parameter and checks the caller can see it.
// It writes the error response and returns false otherwise.
func (s *Server) visibleRepo(w http.ResponseWriter, r *http.Request, id identity) (model.Repo, bool) {
	repo, err := model.ParseRepo(r.URL.Query().Get("repo"))
	if err != nil {
		s.writeError(w, err)
		return model.Repo{}, false
	}

	exists, err := s.tracker.Exists(r.Context(), repo, id.Token)
	if err != nil {
		s.writeError(w, err)
		return model.Repo{}, false
	}

	if !exists {
		s.jsonError(w, "Repository not exists", http.StatusNotFound)
		return model.Repo{}, false
	}

	return repo, true
}

// statusFor maps an error to its HTTP status code
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrInvalidIdentifier),
		errors.Is(err, model.ErrNotInstalled),
		errors.Is(err, model.ErrModelNotTrained):
		return http.StatusForbidden
	case errors.Is(err, model.ErrNotFound), errors.Is(err, model.ErrNotReady):
		return http.StatusNotFound
	case errors.Is(err, runner.ErrQueueFull), errors.Is(err, runner.ErrPoolStopped):
		return http.StatusServiceUnavailable
	case model.IsRemote(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes err with its mapped status
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)

	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "status", status, "error", err)
	}

	s.jsonError(w, err.Error(), status)
}

// jsonResponse writes a JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("json encode error", "error", err)
	}
}

// jsonError writes a JSON error response
func (s *Server) jsonError(w http.ResponseWriter, message string, status int) {
	s.jsonResponse(w, status, APIResponse{
		Success: false,
		Error:   message,
	})
}
