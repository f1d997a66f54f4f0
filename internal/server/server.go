package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/linkauth/internal/auth"
	"github.com/dukerupert/linkauth/internal/handler"
	"github.com/dukerupert/linkauth/internal/middleware"
	"github.com/dukerupert/linkauth/internal/store"
)

// Config carries the runtime settings the server needs beyond its database.
type Config struct {
	// MagicLinkURL is the front-end page that receives one-time tokens,
	// used as the redirect target of every issued magic link.
	MagicLinkURL string
}

type Server struct {
	db          *sql.DB
	userH       *handler.UserHandler
	rateLimiter *middleware.RateLimiter
	logger      *slog.Logger
}

func New(db *sql.DB, provider auth.MagicLinkProvider, cfg Config, logger *slog.Logger) *Server {
	userStore := store.NewUserStore(db)
	sessionStore := store.NewSessionStore(db)

	svc := auth.NewService(userStore, sessionStore, provider, cfg.MagicLinkURL, logger.With("component", "auth"))

	return &Server{
		db:          db,
		userH:       handler.NewUserHandler(svc, logger.With("component", "users")),
		rateLimiter: middleware.NewRateLimiter(),
		logger:      logger,
	}
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /users/sign-up", s.rateLimitedHandler(s.userH.SignUp))
	mux.HandleFunc("POST /users/sign-in", s.rateLimitedHandler(s.userH.SignIn))
	mux.HandleFunc("POST /users/verify-magic-link", s.rateLimitedHandler(s.userH.VerifyMagicLink))
	mux.HandleFunc("GET /users/me", s.userH.Me)
	mux.HandleFunc("GET /health", s.healthHandler)

	return middleware.RequestLogger(s.logger.With("component", "http"))(mux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc) http.HandlerFunc {
	keyFunc := func(r *http.Request) string {
		return middleware.RealIP(r)
	}
	rl := middleware.RateLimit(s.rateLimiter, keyFunc, 10, time.Minute)
	return func(w http.ResponseWriter, r *http.Request) {
		rl(http.HandlerFunc(h)).ServeHTTP(w, r)
	}
}
