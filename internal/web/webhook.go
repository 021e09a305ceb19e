package web

import (
	"errors"
	"net/http"

	"github.com/google/go-github/v82/github"
	"github.com/inovacc/labelr/internal/model"
	"github.com/inovacc/labelr/internal/tracker"
)

// handleWebhook receives GitHub events. Opened and edited issues of a
// classified repository are queued for incremental classification;
// everything else is acknowledged with 204. Without a configured secret no
// delivery can be authenticated, so every request is refused.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if s.config.WebhookSecret == "" {
		s.logger.Warn("webhook rejected: no webhook secret configured")
		s.jsonError(w, "webhook secret not configured", http.StatusServiceUnavailable)

		return
	}

	payload, err := github.ValidatePayload(r, []byte(s.config.WebhookSecret))
	if err != nil {
		s.logger.Warn("webhook signature rejected", "error", err)
		s.jsonError(w, "invalid signature", http.StatusUnauthorized)

		return
	}

	event, err := github.ParseWebHook(github.WebHookType(r), payload)
	if err != nil {
		s.logger.Debug("ignoring webhook", "event", github.WebHookType(r), "error", err)
		w.WriteHeader(http.StatusNoContent)

		return
	}

	e, ok := event.(*github.IssuesEvent)
	if !ok || e.Issue == nil || (e.GetAction() != "opened" && e.GetAction() != "edited") {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	res, err := s.reconciler.DecideIncremental(r.Context(), e.GetRepo().GetFullName(), tracker.ConvertIssue(e.Issue))
	if err != nil {
		if errors.Is(err, model.ErrNotReady) {
			s.jsonError(w, model.ErrNotReady.Error(), http.StatusNotFound)
			return
		}

		s.writeError(w, err)

		return
	}

	s.jsonResponse(w, http.StatusOK, APIResponse{Success: true, Message: res.Decision.Message(), Data: res})
}
