package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Manjussha/chunkd/internal/api"
	"github.com/Manjussha/chunkd/internal/chunker"
	"github.com/Manjussha/chunkd/internal/config"
	"github.com/Manjussha/chunkd/internal/db"
	"github.com/Manjussha/chunkd/internal/responder"
	"github.com/Manjussha/chunkd/internal/tokenizer"
	"github.com/Manjussha/chunkd/internal/ws"
)

// newTestServer wires the full stack against a seeded temp database. The
// budget is small enough that the full events table always chunks.
func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	database, err := db.New(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, database.Migrate())

	_, err = database.Exec(`CREATE TABLE events (id INTEGER PRIMARY KEY, name TEXT, detail TEXT)`)
	require.NoError(t, err)
	for i := 1; i <= 120; i++ {
		_, err = database.Exec(`INSERT INTO events (name, detail) VALUES (?, ?)`,
			fmt.Sprintf("event-%03d", i), strings.Repeat("x", 60))
		require.NoError(t, err)
	}

	cfg := &config.Config{
		Model:                "gpt-4",
		AnalystTokenBudget:   700,
		DeveloperTokenBudget: 700,
		SessionTTL:           time.Minute,
	}
	est, err := tokenizer.New(cfg.Model)
	require.NoError(t, err)

	engine := chunker.New(est, cfg.SessionTTL)
	hub := ws.NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	engine.SetEventSink(hub)

	mux := http.NewServeMux()
	api.SetupRoutes(mux, &api.Deps{
		DB:        database,
		Config:    cfg,
		Engine:    engine,
		Responder: responder.New(est, engine),
		Hub:       hub,
		Guard:     nil,
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, body any) (int, map[string]any) {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(b))
	require.NoError(t, err)
	defer resp.Body.Close()
	var m map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&m))
	return resp.StatusCode, m
}

func getJSON(t *testing.T, url string) (int, map[string]any) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	var m map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&m))
	return resp.StatusCode, m
}

func TestQueryEndpoint_ChunkedFlow(t *testing.T) {
	srv := newTestServer(t)

	status, body := postJSON(t, srv.URL+"/api/query", map[string]any{
		"query": "SELECT * FROM events ORDER BY id",
		"role":  "developer",
	})
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, true, body["chunked_response"])

	sessionID, _ := body["session_id"].(string)
	require.NotEmpty(t, sessionID)
	totalChunks := int(body["total_chunks"].(float64))
	require.GreaterOrEqual(t, totalChunks, 2)

	// The descriptor itself must not leak row data.
	_, hasData := body["data"]
	assert.False(t, hasData)

	status, info := getJSON(t, srv.URL+"/api/sessions/"+sessionID)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(totalChunks), info["total_chunks"])
	assert.Equal(t, float64(0), info["chunks_delivered"])
	assert.Equal(t, float64(1), info["next_chunk_to_request"])

	// Fetching every chunk in order reconstructs all 120 rows.
	rows := 0
	for n := 1; n <= totalChunks; n++ {
		status, chunk := getJSON(t, fmt.Sprintf("%s/api/sessions/%s/chunks/%d", srv.URL, sessionID, n))
		require.Equal(t, http.StatusOK, status)
		ci := chunk["chunking_info"].(map[string]any)
		assert.Equal(t, float64(n), ci["chunk_number"])
		assert.Equal(t, float64(120), ci["total_rows"])
		rows += len(chunk["data"].([]any))
	}
	assert.Equal(t, 120, rows)

	status, info = getJSON(t, srv.URL+"/api/sessions/"+sessionID)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, info["all_chunks_delivered"])
	assert.Nil(t, info["next_chunk_to_request"])
}

func TestQueryEndpoint_SmallResultPassesThrough(t *testing.T) {
	srv := newTestServer(t)

	status, body := postJSON(t, srv.URL+"/api/query", map[string]any{
		"query": "SELECT id, name FROM events ORDER BY id LIMIT 2",
		"role":  "developer",
	})
	require.Equal(t, http.StatusOK, status)
	_, hasSession := body["session_id"]
	assert.False(t, hasSession)
	assert.Len(t, body["data"].([]any), 2)

	// A second query on the same daemon must not block on the first one's
	// database connection.
	status, body = postJSON(t, srv.URL+"/api/query", map[string]any{
		"query": "SELECT id FROM events ORDER BY id LIMIT 1",
		"role":  "developer",
	})
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["data"].([]any), 1)
}

func TestQueryEndpoint_UnknownRole(t *testing.T) {
	srv := newTestServer(t)

	status, body := postJSON(t, srv.URL+"/api/query", map[string]any{
		"query": "SELECT 1",
		"role":  "wizard",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "unknown_role", body["error"])
}

func TestQueryEndpoint_AccessDenied(t *testing.T) {
	srv := newTestServer(t)

	status, body := postJSON(t, srv.URL+"/api/query", map[string]any{
		"query":     "SELECT 1",
		"role":      "analyst",
		"workspace": "ops",
	})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "access_denied", body["error"])
}

func TestQueryEndpoint_BadSQL(t *testing.T) {
	srv := newTestServer(t)

	status, body := postJSON(t, srv.URL+"/api/query", map[string]any{
		"query": "SELEKT broken",
		"role":  "developer",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "query_error", body["error"])
}

func TestSessionEndpoint_NotFound(t *testing.T) {
	srv := newTestServer(t)

	status, body := getJSON(t, srv.URL+"/api/sessions/nope")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "session_not_found", body["error"])
}

func TestChunkEndpoint_NonIntegerNumber(t *testing.T) {
	srv := newTestServer(t)

	status, body := getJSON(t, srv.URL+"/api/sessions/nope/chunks/abc")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "bad_request", body["error"])
}

func TestTablesEndpoint_AnalystVisibility(t *testing.T) {
	srv := newTestServer(t)

	status, body := getJSON(t, srv.URL+"/api/tables?role=analyst")
	require.Equal(t, http.StatusOK, status)
	var names []string
	for _, v := range body["tables"].([]any) {
		names = append(names, v.(string))
	}
	assert.Contains(t, names, "events")
	assert.NotContains(t, names, "settings")
	assert.NotContains(t, names, "query_log")
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t)

	status, body := getJSON(t, srv.URL+"/health")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
}
