// Package api sets up the HTTP routes and middleware for chunkd's tool API.
package api

import (
	"net/http"

	"github.com/Manjussha/chunkd/internal/api/handlers"
	"github.com/Manjussha/chunkd/internal/auth"
	"github.com/Manjussha/chunkd/internal/chunker"
	"github.com/Manjussha/chunkd/internal/config"
	"github.com/Manjussha/chunkd/internal/db"
	"github.com/Manjussha/chunkd/internal/responder"
	"github.com/Manjussha/chunkd/internal/ws"
)

// Deps holds all dependencies injected into the API handlers.
type Deps struct {
	DB        *db.DB
	Config    *config.Config
	Engine    *chunker.Engine
	Responder *responder.Responder
	Hub       *ws.Hub
	Guard     *auth.Keyguard
}

// SetupRoutes registers all HTTP routes on the given ServeMux.
// Uses Go 1.22 method+pattern routing syntax.
func SetupRoutes(mux *http.ServeMux, deps *Deps) {
	h := handlers.New(deps.DB, deps.Config, deps.Engine, deps.Responder)

	protect := func(fn http.HandlerFunc) http.Handler {
		return deps.Guard.Require(fn)
	}

	// ── Query execution ──────────────────────────────────────────────────────
	mux.Handle("POST /api/query", protect(h.ExecuteQuery))

	// ── Chunk sessions ───────────────────────────────────────────────────────
	mux.Handle("GET /api/sessions/{id}", protect(h.GetSessionInfo))
	mux.Handle("GET /api/sessions/{id}/chunks/{n}", protect(h.GetChunk))

	// ── Catalog ──────────────────────────────────────────────────────────────
	mux.Handle("GET /api/tables", protect(h.ListTables))
	mux.Handle("GET /api/tables/{name}", protect(h.DescribeTable))
	mux.Handle("GET /api/query-log", protect(h.ListQueryLog))

	// ── Event stream ─────────────────────────────────────────────────────────
	mux.HandleFunc("GET /ws", deps.Hub.ServeWS)

	// ── Health (no auth) ─────────────────────────────────────────────────────
	mux.HandleFunc("GET /health", h.Health)
}
