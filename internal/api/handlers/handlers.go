// Package handlers provides HTTP handler implementations for the chunkd API.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/Manjussha/chunkd/internal/chunker"
	"github.com/Manjussha/chunkd/internal/config"
	"github.com/Manjussha/chunkd/internal/db"
	"github.com/Manjussha/chunkd/internal/responder"
)

// Handler holds all shared dependencies for API handler methods.
type Handler struct {
	db        *db.DB
	config    *config.Config
	engine    *chunker.Engine
	responder *responder.Responder
}

// New creates a Handler with all dependencies.
func New(database *db.DB, cfg *config.Config, engine *chunker.Engine, resp *responder.Responder) *Handler {
	return &Handler{
		db:        database,
		config:    cfg,
		engine:    engine,
		responder: resp,
	}
}

// ── Response helpers ──────────────────────────────────────────────────────────

// writeJSON writes a pre-rendered JSON body.
func writeJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// writeValue pretty-prints a value as the response body.
func writeValue(w http.ResponseWriter, status int, v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		failTaxonomy(w, err)
		return
	}
	writeJSON(w, status, b)
}

// fail writes the flat error envelope: {"error": kind, "message": ..., ...context}.
func fail(w http.ResponseWriter, status int, kind, message string, context map[string]any) {
	writeJSON(w, status, responder.FormatError(kind, message, context))
}

// failTaxonomy renders a taxonomy error (session not found, invalid chunk
// number, serialization) with its matching status code.
func failTaxonomy(w http.ResponseWriter, err error) {
	writeJSON(w, responder.StatusFor(err), responder.RenderError(err))
}

func decode(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}
