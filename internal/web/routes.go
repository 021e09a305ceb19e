package web

import "net/http"

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes(mux *http.ServeMux) {
	// Public
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /webhook", s.handleWebhook)

	// OAuth and app management
	mux.HandleFunc("GET /login", s.handleLogin)
	mux.HandleFunc("GET /auth", s.handleAuth)
	mux.HandleFunc("GET /auth/{next...}", s.handleAuth)
	mux.HandleFunc("GET /logout", s.handleLogout)
	mux.HandleFunc("GET /manage", s.handleManage)
	mux.HandleFunc("GET /install", s.handleInstall)

	// API
	mux.Handle("GET /train", s.authorized(s.handleTrain))
	mux.Handle("GET /classify", s.authorized(s.handleClassify))
	mux.Handle("GET /my-models", s.authorized(s.handleMyModels))
	mux.Handle("GET /check-installed", s.authorized(s.handleCheckInstalled))
	mux.Handle("GET /is-owner", s.authorized(s.handleIsOwner))
	mux.Handle("GET /runs", s.authorized(s.handleRuns))
}
