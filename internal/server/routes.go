package server

import (
	"log/slog"
	"net/http"
)

// Config contains server configuration options.
type Config struct {
	// AllowedOrigins is the list of allowed CORS origins.
	AllowedOrigins []string
	// AuthToken is the bearer secret; empty disables authentication.
	AuthToken string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		AllowedOrigins: []string{"*"},
	}
}

// NewRouter creates a new HTTP router with all routes configured.
// It uses Go 1.22+ ServeMux with method-based routing.
func NewRouter(h *Handlers, logger *slog.Logger, cfg Config) http.Handler {
	mux := http.NewServeMux()

	// Register routes with method-based patterns (Go 1.22+)
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /info", h.Info)
	mux.HandleFunc("POST /generate", h.Generate)
	mux.HandleFunc("GET /tasks/{id}/status", h.TaskStatus)
	mux.HandleFunc("GET /tasks/{id}/video", h.TaskVideo)
	mux.HandleFunc("DELETE /tasks/{id}", h.DeleteTask)

	// Apply middleware chain
	chain := ChainMiddleware(
		RecoveryMiddleware(logger),
		LoggingMiddleware(logger),
		CORSMiddleware(cfg.AllowedOrigins),
		AuthMiddleware(cfg.AuthToken, logger),
	)

	return chain(mux)
}
