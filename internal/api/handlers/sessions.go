package handlers

import (
	"net/http"
	"strconv"
)

// GetSessionInfo returns delivery status for a chunk session.
func (h *Handler) GetSessionInfo(w http.ResponseWriter, r *http.Request) {
	info, err := h.engine.GetSessionInfo(r.PathValue("id"))
	if err != nil {
		failTaxonomy(w, err)
		return
	}
	writeValue(w, http.StatusOK, info)
}

// GetChunk returns one chunk of a session by 1-based number.
func (h *Handler) GetChunk(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.Atoi(r.PathValue("n"))
	if err != nil {
		fail(w, http.StatusBadRequest, "bad_request", "chunk number must be an integer",
			map[string]any{"chunk_number": r.PathValue("n")})
		return
	}
	chunk, err := h.engine.GetChunk(r.PathValue("id"), n)
	if err != nil {
		failTaxonomy(w, err)
		return
	}
	writeValue(w, http.StatusOK, chunk)
}
