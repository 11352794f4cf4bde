package main

import "net/http"

// routes builds the HTTP surface: project generation and editing over
// the Orchestrator, and preview lifecycle plus a push-reload websocket
// over the Preview manager. Uses the standard library's method+wildcard
// ServeMux patterns rather than a third-party router: a plain REST
// surface like this one has no router dependency worth reaching for,
// and hand-regenerating protobuf/Connect-RPC stubs for it would mean
// fabricating generated code this module has no business producing.
func (a *app) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/projects", a.handleCreateProject)
	mux.HandleFunc("GET /api/projects/{id}", a.handleGetProject)
	mux.HandleFunc("POST /api/projects/{id}/edit", a.handleEditProject)

	mux.HandleFunc("POST /api/projects/{id}/preview", a.handleCreatePreview)
	mux.HandleFunc("GET /api/projects/{id}/preview", a.handleGetPreview)
	mux.HandleFunc("DELETE /api/projects/{id}/preview", a.handleStopPreview)
	mux.HandleFunc("GET /api/projects/{id}/preview/ws", a.handlePreviewWebSocket)

	return withCORS(mux, a.cfg.Debug)
}

// withCORS relaxes cross-origin access only when debug is set, the
// same environment-driven flag that also turns on verbose LLM request
// logging (newApp). Outside debug it sends no CORS headers
// at all, so a browser denies cross-origin requests by default.
func withCORS(next http.Handler, debug bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !debug {
			next.ServeHTTP(w, r)
			return
		}
		origin := r.Header.Get("Origin")
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
		} else {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			return
		}
		next.ServeHTTP(w, r)
	})
}
