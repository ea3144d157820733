// Package httpapi exposes the server's functionality over an explicit HTTP
// route table with JSON bodies. All /files routes require a JWT bearer
// token; /auth and /ping are public.
package httpapi

import (
	"net/http"

	"github.com/dmitrijs2005/scenekeeper/internal/logging"
	"github.com/dmitrijs2005/scenekeeper/internal/server/services"
)

type Server struct {
	files   *services.FileService
	users   *services.UserService
	assets  *services.AssetService
	limiter *RateLimiter
	logger  logging.Logger
}

func NewServer(files *services.FileService, users *services.UserService, assets *services.AssetService,
	limiter *RateLimiter, logger logging.Logger) *Server {
	return &Server{
		files:   files,
		users:   users,
		assets:  assets,
		limiter: limiter,
		logger:  logger.With("module", "httpapi"),
	}
}

// Handler builds the route table and wraps it with the middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /ping", s.handlePing)
	mux.HandleFunc("POST /auth/register", s.handleRegister)
	mux.HandleFunc("POST /auth/login", s.handleLogin)

	authed := http.NewServeMux()
	authed.HandleFunc("POST /files", s.handleCreateFile)
	authed.HandleFunc("GET /files", s.handleListFiles)
	authed.HandleFunc("GET /files/{id}", s.handleGetFile)
	authed.HandleFunc("PUT /files/{id}", s.handleSaveFile)
	authed.HandleFunc("DELETE /files/{id}", s.handleTrashFile)
	authed.HandleFunc("POST /files/{id}/restore", s.handleRestoreFile)
	authed.HandleFunc("DELETE /files/{id}/permanent", s.handleDeleteFilePermanent)
	authed.HandleFunc("PATCH /files/{id}/favorite", s.handleSetFavorite)
	authed.HandleFunc("POST /files/{id}/assets", s.handleCreateAsset)
	authed.HandleFunc("POST /files/{id}/assets/{assetId}/complete", s.handleCompleteAsset)
	authed.HandleFunc("GET /files/{id}/assets/{assetId}", s.handleGetAsset)

	mux.Handle("/files", Auth(s.users)(authed))
	mux.Handle("/files/", Auth(s.users)(authed))

	return Chain(mux,
		RequestLogging(s.logger),
		RateLimit(s.limiter, s.logger),
	)
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
