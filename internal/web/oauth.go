package web

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/inovacc/labelr/internal/session"
)

// identity is the caller resolved by the authorized middleware
type identity struct {
	Token string
	Login string
}

type authorizedHandler func(w http.ResponseWriter, r *http.Request, id identity)

// authorized resolves the session token to a GitHub user before calling
// next; callers without a live token get 401 and a login URL
func (s *Server) authorized(next authorizedHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.sessions.Load(r)
		if err != nil {
			s.writeError(w, err)
			return
		}

		if !sess.Authenticated() {
			s.unauthorized(w, r, sess)
			return
		}

		login, err := s.tracker.User(r.Context(), sess.AccessToken)
		if err != nil {
			s.logger.Debug("session token rejected", "user", sess.Login, "error", err)
			s.unauthorized(w, r, sess)

			return
		}

		next(w, r, identity{Token: sess.AccessToken, Login: login})
	})
}

// unauthorized answers 401 with the GitHub authorize URL as next. The
// OAuth state is stored in sess so the callback returns to the request path.
func (s *Server) unauthorized(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	sess.State = uuid.NewString()
	sess.Next = safeNext(r.URL.Path)

	if err := s.sessions.Write(w, sess); err != nil {
		s.writeError(w, err)
		return
	}

	s.jsonResponse(w, http.StatusUnauthorized, APIResponse{
		Success: false,
		Message: "Unauthorized request",
		Next:    s.tracker.AuthorizeURL(sess.State, s.callbackURL()),
	})
}

func (s *Server) callbackURL() string {
	return s.config.BaseURL + "/auth"
}

// handleLogin starts the OAuth flow
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Load(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	sess.State = uuid.NewString()
	sess.Next = safeNext(r.URL.Query().Get("next"))

	if err := s.sessions.Write(w, sess); err != nil {
		s.writeError(w, err)
		return
	}

	http.Redirect(w, r, s.tracker.AuthorizeURL(sess.State, s.callbackURL()), http.StatusFound)
}

// handleAuth is the OAuth callback
func (s *Server) handleAuth(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Load(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	q := r.URL.Query()

	if sess.State == "" || q.Get("state") != sess.State {
		s.jsonError(w, "invalid oauth state", http.StatusForbidden)
		return
	}

	code := q.Get("code")
	if code == "" {
		s.jsonError(w, "missing oauth code", http.StatusBadRequest)
		return
	}

	token, err := s.tracker.Exchange(r.Context(), code, s.callbackURL())
	if err != nil {
		s.writeError(w, err)
		return
	}

	login, err := s.tracker.User(r.Context(), token)
	if err != nil {
		s.writeError(w, err)
		return
	}

	next := sess.Next
	if p := r.PathValue("next"); p != "" {
		next = safeNext("/" + p)
	}

	if next == "" {
		next = "/"
	}

	sess.State = ""
	sess.Next = ""
	sess.AccessToken = token
	sess.Login = login

	if err := s.sessions.Write(w, sess); err != nil {
		s.writeError(w, err)
		return
	}

	s.logger.Info("user logged in", "user", login)

	http.Redirect(w, r, next, http.StatusFound)
}

// handleLogout clears the session
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Clear(w, r); err != nil {
		s.writeError(w, err)
		return
	}

	s.jsonResponse(w, http.StatusOK, APIResponse{Success: true, Message: "Logged out"})
}

// handleManage redirects to the page where users manage the OAuth grant
func (s *Server) handleManage(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, s.tracker.ManageURL(), http.StatusFound)
}

// handleInstall redirects to the app installation page
func (s *Server) handleInstall(w http.ResponseWriter, r *http.Request) {
	page, err := s.tracker.AppPageURL(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}

	http.Redirect(w, r, page, http.StatusFound)
}

// safeNext keeps only local absolute paths
func safeNext(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.Contains(next, "\\") {
		return ""
	}

	return next
}
