// Package chunker partitions oversized record-set payloads into token-budgeted
// chunks and serves them from an in-memory, TTL-bound session store.
package chunker

import (
	"encoding/json"
	"time"
)

// Row is one record of a result set: column name → value.
type Row = map[string]any

// Payload is the only shape the engine knows how to chunk: ordered rows, an
// opaque schema, and an open bag of scalar metadata (table name, source
// query, ...). Row order is significant and preserved end-to-end.
type Payload struct {
	Data   []Row
	Schema any
	Extra  map[string]any
}

// base returns the payload's non-data fields as one map: the Extra bag plus
// the schema. Every chunk carries these fields verbatim at the top level.
func (p *Payload) base() map[string]any {
	m := make(map[string]any, len(p.Extra)+1)
	for k, v := range p.Extra {
		m[k] = v
	}
	if p.Schema != nil {
		m["schema"] = p.Schema
	}
	return m
}

// MarshalJSON flattens the payload into its wire form:
// {...extra fields..., "schema": ..., "data": [...]}.
func (p *Payload) MarshalJSON() ([]byte, error) {
	m := p.base()
	if p.Data == nil {
		m["data"] = []Row{}
	} else {
		m["data"] = p.Data
	}
	return json.Marshal(m)
}

// ChunkingInfo is the self-describing block attached to every chunk.
// ChunksDelivered and AllChunksDelivered are populated at delivery time,
// not at session creation.
type ChunkingInfo struct {
	SessionID                  string `json:"session_id"`
	ChunkNumber                int    `json:"chunk_number"`
	TotalChunks                int    `json:"total_chunks"`
	RowsInChunk                int    `json:"rows_in_chunk"`
	TotalRows                  int    `json:"total_rows"`
	IsChunked                  bool   `json:"is_chunked"`
	ReconstructionInstructions string `json:"reconstruction_instructions"`
	ChunksDelivered            int    `json:"chunks_delivered"`
	AllChunksDelivered         bool   `json:"all_chunks_delivered"`
}

// Chunk is one bounded slice of a payload, rendered fully at session
// creation. Concatenating Data across chunks 1..TotalChunks in order
// reproduces the original payload's rows exactly.
type Chunk struct {
	Base map[string]any
	Data []Row
	Info ChunkingInfo
}

// MarshalJSON flattens the chunk into its wire form:
// {...base fields..., "data": [...], "chunking_info": {...}}.
func (c Chunk) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(c.Base)+2)
	for k, v := range c.Base {
		m[k] = v
	}
	if c.Data == nil {
		m["data"] = []Row{}
	} else {
		m["data"] = c.Data
	}
	m["chunking_info"] = c.Info
	return json.Marshal(m)
}

// Session holds all chunks produced from one chunking decision. Chunks are
// immutable after creation; ChunksDelivered is the only mutable field.
type Session struct {
	ID                string
	Chunks            []Chunk
	TotalChunks       int
	ChunksDelivered   int
	CreatedAt         time.Time
	ChunkTokenAmounts map[string]int
}

// SessionDescriptor is what the caller sees instead of an oversized payload.
// It carries no row data.
type SessionDescriptor struct {
	ChunkedResponse   bool           `json:"chunked_response"`
	SessionID         string         `json:"session_id"`
	TotalChunks       int            `json:"total_chunks"`
	ChunkTokenAmounts map[string]int `json:"chunk_token_amounts"`
	Message           string         `json:"message"`
	Instructions      string         `json:"instructions"`
}

// SessionInfo is the session-status view returned by GetSessionInfo.
type SessionInfo struct {
	SessionID                  string         `json:"session_id"`
	TotalChunks                int            `json:"total_chunks"`
	ChunksDelivered            int            `json:"chunks_delivered"`
	ChunksRemaining            int            `json:"chunks_remaining"`
	CreatedAt                  time.Time      `json:"created_at"`
	AllChunksDelivered         bool           `json:"all_chunks_delivered"`
	NextChunkToRequest         *int           `json:"next_chunk_to_request"`
	ChunkTokenAmounts          map[string]int `json:"chunk_token_amounts"`
	ReconstructionInstructions string         `json:"reconstruction_instructions"`
}
