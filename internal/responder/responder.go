// Package responder routes payloads either directly to the caller or through
// the chunking engine when they exceed the response token budget.
package responder

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/Manjussha/chunkd/internal/chunker"
	"github.com/Manjussha/chunkd/internal/tokenizer"
)

// Responder is the single entry point collaborators use to render responses.
type Responder struct {
	est    *tokenizer.Estimator
	engine *chunker.Engine
}

// New creates a Responder over the given estimator and chunking engine.
func New(est *tokenizer.Estimator, engine *chunker.Engine) *Responder {
	return &Responder{est: est, engine: engine}
}

// Format renders payload for the caller. The payload is measured in its
// compact form; if it fits the budget, chunking is disabled, or the payload
// is not record-shaped, it is returned pretty-printed as-is. Only a
// *chunker.Payload is ever auto-chunked — a bare slice or scalar goes out
// whole even when oversized. Oversized record sets are handed to the engine
// and the resulting session descriptor is returned instead, with no row data.
func (r *Responder) Format(payload any, budget int, autoChunk bool) ([]byte, error) {
	compact, err := json.Marshal(payload)
	if err != nil {
		return nil, &tokenizer.SerializationError{Err: err}
	}
	tokens := r.est.CountTokens(string(compact))

	recordSet, recordShaped := payload.(*chunker.Payload)
	if tokens <= budget || !autoChunk || !recordShaped {
		return json.MarshalIndent(payload, "", "  ")
	}

	desc, err := r.engine.CreateSession(recordSet, budget)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(desc, "", "  ")
}

// FormatError renders the stable flat error envelope used by every failure
// path: {"error": kind, "message": message, ...context}.
func FormatError(kind, message string, context map[string]any) []byte {
	m := make(map[string]any, len(context)+2)
	for k, v := range context {
		m[k] = v
	}
	m["error"] = kind
	m["message"] = message
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		// Context contained something unserializable; the envelope itself
		// must still go out.
		return []byte(fmt.Sprintf("{\n  \"error\": %q,\n  \"message\": %q\n}", kind, message))
	}
	return b
}

// RenderError maps the recoverable error taxonomy onto the flat envelope.
// Anything outside the taxonomy renders as internal_error.
func RenderError(err error) []byte {
	var nf *chunker.SessionNotFoundError
	var ic *chunker.InvalidChunkNumberError
	var se *tokenizer.SerializationError
	switch {
	case errors.As(err, &nf):
		return FormatError("session_not_found", "session not found or expired",
			map[string]any{"session_id": nf.SessionID})
	case errors.As(err, &ic):
		return FormatError("invalid_chunk_number", err.Error(),
			map[string]any{"chunk_number": ic.ChunkNumber, "total_chunks": ic.TotalChunks})
	case errors.As(err, &se):
		return FormatError("serialization_error", err.Error(), nil)
	default:
		return FormatError("internal_error", err.Error(), nil)
	}
}

// StatusFor returns the HTTP status code matching a taxonomy error.
func StatusFor(err error) int {
	var nf *chunker.SessionNotFoundError
	var ic *chunker.InvalidChunkNumberError
	var se *tokenizer.SerializationError
	switch {
	case errors.As(err, &nf):
		return http.StatusNotFound
	case errors.As(err, &ic):
		return http.StatusBadRequest
	case errors.As(err, &se):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
