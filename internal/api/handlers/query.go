package handlers

import (
	"net/http"

	"github.com/Manjussha/chunkd/internal/access"
)

// queryRequest is the body of POST /api/query.
type queryRequest struct {
	Query     string `json:"query"`
	Role      string `json:"role"`
	Workspace string `json:"workspace"`
	AutoChunk *bool  `json:"auto_chunk"`
}

// ExecuteQuery runs a SQL statement and returns either the full result set
// or, when it exceeds the caller's token budget, a chunk-session descriptor.
func (h *Handler) ExecuteQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := decode(r, &req); err != nil {
		fail(w, http.StatusBadRequest, "bad_request", "invalid JSON body", nil)
		return
	}
	if req.Query == "" {
		fail(w, http.StatusBadRequest, "bad_request", "query is required", nil)
		return
	}

	role, err := access.ParseRole(req.Role)
	if err != nil {
		fail(w, http.StatusBadRequest, "unknown_role", err.Error(), map[string]any{"role": req.Role})
		return
	}
	if !role.CanAccess(req.Workspace) {
		fail(w, http.StatusForbidden, "access_denied",
			"role may not query this workspace",
			map[string]any{"role": string(role), "workspace": req.Workspace})
		return
	}

	payload, err := h.db.ExecuteQuery(r.Context(), req.Query)
	if err != nil {
		fail(w, http.StatusBadRequest, "query_error", err.Error(), nil)
		return
	}

	autoChunk := true
	if req.AutoChunk != nil {
		autoChunk = *req.AutoChunk
	}

	body, err := h.responder.Format(payload, h.config.BudgetFor(string(role)), autoChunk)
	if err != nil {
		failTaxonomy(w, err)
		return
	}
	writeJSON(w, http.StatusOK, body)
}
