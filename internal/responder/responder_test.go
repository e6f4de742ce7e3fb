package responder

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Manjussha/chunkd/internal/chunker"
	"github.com/Manjussha/chunkd/internal/tokenizer"
)

func newTestResponder(t *testing.T) *Responder {
	t.Helper()
	est, err := tokenizer.New("gpt-4")
	require.NoError(t, err)
	return New(est, chunker.New(est, time.Minute))
}

func smallPayload() *chunker.Payload {
	return &chunker.Payload{
		Data:   []chunker.Row{{"id": 1, "name": "alice"}, {"id": 2, "name": "bob"}},
		Schema: []map[string]string{{"name": "id", "type": "INTEGER"}},
		Extra:  map[string]any{"table": "users"},
	}
}

func largePayload(rows int) *chunker.Payload {
	data := make([]chunker.Row, rows)
	for i := range data {
		data[i] = chunker.Row{"id": i, "val": fmt.Sprintf("value-%06d", i)}
	}
	return &chunker.Payload{
		Data:  data,
		Extra: map[string]any{"table": "big"},
	}
}

func TestFormat_SmallPayloadPassesThrough(t *testing.T) {
	r := newTestResponder(t)

	out, err := r.Format(smallPayload(), 100000, true)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(out, &m))
	assert.NotContains(t, m, "session_id")
	assert.NotContains(t, m, "chunked_response")
	assert.Equal(t, "users", m["table"])
	assert.Len(t, m["data"], 2)
}

func TestFormat_OversizedRecordSetIsChunked(t *testing.T) {
	r := newTestResponder(t)

	out, err := r.Format(largePayload(2000), 500, true)
	require.NoError(t, err)

	var desc chunker.SessionDescriptor
	require.NoError(t, json.Unmarshal(out, &desc))
	assert.True(t, desc.ChunkedResponse)
	assert.NotEmpty(t, desc.SessionID)
	assert.Greater(t, desc.TotalChunks, 1)
	// The descriptor carries no row data.
	assert.NotContains(t, string(out), "value-000001")
}

func TestFormat_AutoChunkDisabled(t *testing.T) {
	r := newTestResponder(t)

	out, err := r.Format(largePayload(2000), 500, false)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(out, &m))
	assert.NotContains(t, m, "session_id")
	assert.Len(t, m["data"], 2000)
}

func TestFormat_NonRecordPayloadNeverChunked(t *testing.T) {
	r := newTestResponder(t)

	// A bare sequence is not record-shaped and goes out whole even when it
	// exceeds the budget.
	seq := make([]string, 2000)
	for i := range seq {
		seq[i] = fmt.Sprintf("item-%06d", i)
	}
	out, err := r.Format(seq, 100, true)
	require.NoError(t, err)

	var got []string
	require.NoError(t, json.Unmarshal(out, &got))
	assert.Len(t, got, 2000)
}

func TestFormat_UnserializablePayload(t *testing.T) {
	r := newTestResponder(t)

	_, err := r.Format(map[string]any{"ch": make(chan int)}, 1000, true)
	var serr *tokenizer.SerializationError
	assert.ErrorAs(t, err, &serr)
}

func TestFormatError_FlatEnvelope(t *testing.T) {
	out := FormatError("query_error", "syntax error near SELECT",
		map[string]any{"query": "SELEC 1"})

	var m map[string]any
	require.NoError(t, json.Unmarshal(out, &m))
	assert.Equal(t, "query_error", m["error"])
	assert.Equal(t, "syntax error near SELECT", m["message"])
	assert.Equal(t, "SELEC 1", m["query"])
}

func TestRenderError_Taxonomy(t *testing.T) {
	out := RenderError(&chunker.SessionNotFoundError{SessionID: "abc"})
	var m map[string]any
	require.NoError(t, json.Unmarshal(out, &m))
	assert.Equal(t, "session_not_found", m["error"])
	assert.Equal(t, "abc", m["session_id"])

	out = RenderError(&chunker.InvalidChunkNumberError{ChunkNumber: 5, TotalChunks: 3})
	require.NoError(t, json.Unmarshal(out, &m))
	assert.Equal(t, "invalid_chunk_number", m["error"])
	assert.Equal(t, float64(5), m["chunk_number"])
	assert.Equal(t, float64(3), m["total_chunks"])
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, 404, StatusFor(&chunker.SessionNotFoundError{SessionID: "x"}))
	assert.Equal(t, 400, StatusFor(&chunker.InvalidChunkNumberError{ChunkNumber: 9, TotalChunks: 2}))
	assert.Equal(t, 500, StatusFor(fmt.Errorf("boom")))
}
