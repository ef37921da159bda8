package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(apiHandler *APIHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)       // Basic request logging
	r.Use(middleware.Recoverer)    // Recover from panics
	r.Use(middleware.StripSlashes) // Ensure consistent path handling

	r.Route("/api", func(r chi.Router) {
		// Public routes
		r.Post("/signup", apiHandler.SignupHandler)
		r.Post("/login", apiHandler.LoginHandler)
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		})

		// User-authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(apiHandler.JWTAuthMiddleware)

			// Ingestion routes
			r.Post("/upload", apiHandler.UploadHandler)
			r.Post("/ingest/link", apiHandler.IngestLinkHandler)
			r.Delete("/knowledge", apiHandler.WipeKnowledgeHandler)

			// Question answering
			r.Post("/chat", apiHandler.ChatHandler)

			// Session routes
			r.Get("/sessions", apiHandler.ListSessionsHandler)
			r.Get("/sessions/{sessionID}", apiHandler.GetSessionHandler)
			r.Patch("/sessions/{sessionID}", apiHandler.RenameSessionHandler)
			r.Delete("/sessions/{sessionID}", apiHandler.DeleteSessionHandler)
		})
	})

	return r
}
