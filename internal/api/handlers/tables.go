package handlers

import (
	"net/http"
	"strconv"

	"github.com/Manjussha/chunkd/internal/access"
)

// ListTables returns the table names visible to the caller's role.
func (h *Handler) ListTables(w http.ResponseWriter, r *http.Request) {
	role, err := access.ParseRole(r.URL.Query().Get("role"))
	if err != nil {
		fail(w, http.StatusBadRequest, "unknown_role", err.Error(), nil)
		return
	}

	tables, err := h.db.ListTables(r.Context())
	if err != nil {
		fail(w, http.StatusInternalServerError, "catalog_error", err.Error(), nil)
		return
	}
	visible := role.FilterTables(tables)
	writeValue(w, http.StatusOK, map[string]any{
		"tables": visible,
		"count":  len(visible),
	})
}

// DescribeTable returns the column schema of one table, if the caller's
// role can see it.
func (h *Handler) DescribeTable(w http.ResponseWriter, r *http.Request) {
	role, err := access.ParseRole(r.URL.Query().Get("role"))
	if err != nil {
		fail(w, http.StatusBadRequest, "unknown_role", err.Error(), nil)
		return
	}
	name := r.PathValue("name")

	tables, err := h.db.ListTables(r.Context())
	if err != nil {
		fail(w, http.StatusInternalServerError, "catalog_error", err.Error(), nil)
		return
	}
	visible := false
	for _, t := range role.FilterTables(tables) {
		if t == name {
			visible = true
			break
		}
	}
	if !visible {
		fail(w, http.StatusNotFound, "table_not_found", "no such table",
			map[string]any{"table": name})
		return
	}

	cols, err := h.db.DescribeTable(r.Context(), name)
	if err != nil {
		fail(w, http.StatusInternalServerError, "catalog_error", err.Error(), nil)
		return
	}
	writeValue(w, http.StatusOK, map[string]any{
		"table":   name,
		"columns": cols,
	})
}

// ListQueryLog returns recent audit entries.
func (h *Handler) ListQueryLog(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.db.ListQueryLog(r.Context(), limit)
	if err != nil {
		fail(w, http.StatusInternalServerError, "catalog_error", err.Error(), nil)
		return
	}
	writeValue(w, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}

// Health reports daemon liveness and live session count.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeValue(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"active_sessions": h.engine.SessionCount(),
	})
}
