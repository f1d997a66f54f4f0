package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukerupert/linkauth/internal/database"
	"github.com/dukerupert/linkauth/internal/logging"
	"github.com/dukerupert/linkauth/internal/server"
	"github.com/dukerupert/linkauth/internal/stytch"
)

func main() {
	logger := logging.Setup(os.Getenv("LINKAUTH_LOG_LEVEL"), os.Getenv("LINKAUTH_LOG_FORMAT"))

	port := os.Getenv("LINKAUTH_PORT")
	if port == "" {
		port = "3001"
	}

	dbPath := os.Getenv("LINKAUTH_DB_PATH")
	if dbPath == "" {
		dbPath = "linkauth.db"
	}

	frontendURL := os.Getenv("FRONTEND_URL")
	if frontendURL == "" {
		frontendURL = "http://localhost:3000"
	}

	db, err := database.Open(dbPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	var opts []stytch.Option
	if base := os.Getenv("STYTCH_BASE_URL"); base != "" {
		opts = append(opts, stytch.WithBaseURL(base))
	}
	provider := stytch.NewClient(os.Getenv("STYTCH_PROJECT_ID"), os.Getenv("STYTCH_SECRET"), opts...)
	if !provider.Configured() {
		logger.Warn("stytch credentials not set; magic link issuance will fail")
	}

	srv := server.New(db, provider, server.Config{
		MagicLinkURL: frontendURL + "/verify-magic-link",
	}, logger)

	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Periodically drop stale rate-limit entries.
	cleanupDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				srv.RateLimiter().Cleanup()
			case <-cleanupDone:
				return
			}
		}
	}()

	go func() {
		logger.Info("linkauth listening", "port", port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	close(cleanupDone)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Fatalf("shutdown error: %v", err)
	}
}
