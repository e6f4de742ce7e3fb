// chunkd — token-budgeted result chunking daemon.
// Exposes tabular query results to size-constrained clients, splitting
// oversized result sets into budget-fitting chunks served across round trips.
// Entry point: wires all packages and starts the HTTP server.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Manjussha/chunkd/internal/api"
	"github.com/Manjussha/chunkd/internal/auth"
	"github.com/Manjussha/chunkd/internal/chunker"
	"github.com/Manjussha/chunkd/internal/config"
	"github.com/Manjussha/chunkd/internal/db"
	"github.com/Manjussha/chunkd/internal/responder"
	"github.com/Manjussha/chunkd/internal/tokenizer"
	"github.com/Manjussha/chunkd/internal/ws"
)

// Version is set via -ldflags at build time.
var Version = "dev"

func main() {
	log.Printf("chunkd %s starting…", Version)

	// ── 1. Load configuration ────────────────────────────────────────────────
	cfg := config.Load()
	log.Printf("Config: port=%s db=%s model=%s ttl=%s", cfg.Port, cfg.DBPath, cfg.Model, cfg.SessionTTL)
	if cfg.APIKey == "" {
		log.Println("⚠  No API_KEY set — the API is unauthenticated")
	}

	// ── 2. Open database + migrate ───────────────────────────────────────────
	database, err := db.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("db.New: %v", err)
	}
	defer database.Close()

	if err := database.Migrate(); err != nil {
		log.Fatalf("db.Migrate: %v", err)
	}
	log.Printf("Database ready: %s", cfg.DBPath)

	// Root context — cancelled on shutdown signal.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── 3. WebSocket hub ─────────────────────────────────────────────────────
	hub := ws.NewHub()
	go hub.Run(ctx)

	// ── 4. Token estimator ───────────────────────────────────────────────────
	est, err := tokenizer.New(cfg.Model)
	if err != nil {
		log.Fatalf("tokenizer.New: %v", err)
	}

	// ── 5. Chunk/session engine ──────────────────────────────────────────────
	engine := chunker.New(est, cfg.SessionTTL)
	engine.SetEventSink(hub)

	// ── 6. Response router ───────────────────────────────────────────────────
	resp := responder.New(est, engine)

	// ── 7. API key guard ─────────────────────────────────────────────────────
	guard, err := auth.NewKeyguard(cfg.APIKey)
	if err != nil {
		log.Fatalf("auth.NewKeyguard: %v", err)
	}

	// ── 8. HTTP router ───────────────────────────────────────────────────────
	mux := http.NewServeMux()
	api.SetupRoutes(mux, &api.Deps{
		DB:        database,
		Config:    cfg,
		Engine:    engine,
		Responder: resp,
		Hub:       hub,
		Guard:     guard,
	})

	// Recovery + logging middleware.
	handler := loggingMiddleware(recoveryMiddleware(mux))

	// ── 9. Start HTTP server ─────────────────────────────────────────────────
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown on SIGINT/SIGTERM.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("Received %s — shutting down…", sig)
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP shutdown: %v", err)
		}
	}()

	log.Printf("chunkd listening on http://0.0.0.0:%s", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("ListenAndServe: %v", err)
	}
	log.Printf("chunkd stopped.")
}

// loggingMiddleware logs each request.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(start))
	})
}

// recoveryMiddleware recovers from panics and returns 500.
func recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rv := recover(); rv != nil {
				log.Printf("panic: %v", rv)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(`{"error":"internal_error","message":"internal server error"}`))
			}
		}()
		next.ServeHTTP(w, r)
	})
}
