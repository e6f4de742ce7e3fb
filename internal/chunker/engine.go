package chunker

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// reservedOverhead is held back from every budget for the chunking_info
	// block each chunk carries on the wire.
	reservedOverhead = 500

	// sampleRows is how many leading rows feed the tokens-per-row estimate.
	sampleRows = 3

	// DefaultTTL is the session lifetime when none is configured.
	DefaultTTL = 30 * time.Minute
)

// Session lifecycle event names broadcast through the EventSink.
const (
	EventSessionCreated = "session_created"
	EventChunkDelivered = "chunk_delivered"
	EventSessionExpired = "session_expired"
)

// Estimator measures the token cost of a value in its rendered wire form.
// Satisfied by *tokenizer.Estimator.
type Estimator interface {
	EstimateValue(v any) (int, error)
}

// EventSink receives session lifecycle events. Implementations are called
// with the engine lock held and must not block.
type EventSink interface {
	SessionEvent(event, sessionID string, chunkNumber int)
}

// Engine owns the session store exclusively. Create, fetch, info, and the
// expiry sweep all run under one mutex so a sweep cannot remove a session
// mid-read and a delivery-counter increment cannot race.
type Engine struct {
	mu       sync.Mutex
	sessions map[string]*Session

	est    Estimator
	ttl    time.Duration
	now    func() time.Time
	events EventSink
}

// New creates an Engine with the given estimator and session TTL.
func New(est Estimator, ttl time.Duration) *Engine {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Engine{
		sessions: make(map[string]*Session),
		est:      est,
		ttl:      ttl,
		now:      time.Now,
	}
}

// SetEventSink registers a lifecycle event receiver. Call before serving.
func (e *Engine) SetEventSink(sink EventSink) {
	e.events = sink
}

// CreateSession partitions payload into token-budgeted chunks, stores them
// under a fresh session id, and returns the descriptor the caller sees
// instead of the payload. Creation is atomic: if any chunk fails to render,
// nothing is stored.
//
// The split is decided once, from a sample of the first few rows. Each
// rendered chunk's actual token cost is measured and reported, but the
// partition is never re-balanced when non-uniform row sizes push a chunk
// past the nominal budget.
func (e *Engine) CreateSession(payload *Payload, budget int) (*SessionDescriptor, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	sessionID := uuid.New().String()
	base := payload.base()

	baseTokens, err := e.est.EstimateValue(base)
	if err != nil {
		return nil, err
	}

	available := budget - baseTokens - reservedOverhead
	if available < 1 {
		available = 1
	}

	totalRows := len(payload.Data)
	rowsPerChunk := 1
	if totalRows > 0 {
		tokensPerRow, err := e.tokensPerRow(payload.Data)
		if err != nil {
			return nil, err
		}
		rowsPerChunk = available / tokensPerRow
		if rowsPerChunk < 1 {
			rowsPerChunk = 1
		}
	}

	// Contiguous, order-preserving partition; the last slice may be shorter.
	// An empty result still produces a single chunk of zero rows.
	var slices [][]Row
	if totalRows == 0 {
		slices = [][]Row{nil}
	} else {
		for i := 0; i < totalRows; i += rowsPerChunk {
			end := i + rowsPerChunk
			if end > totalRows {
				end = totalRows
			}
			slices = append(slices, payload.Data[i:end])
		}
	}

	totalChunks := len(slices)
	instructions := reconstructionInstructions(sessionID, totalChunks)

	chunks := make([]Chunk, 0, totalChunks)
	amounts := make(map[string]int, totalChunks)
	for i, rows := range slices {
		chunk := Chunk{
			Base: base,
			Data: rows,
			Info: ChunkingInfo{
				SessionID:                  sessionID,
				ChunkNumber:                i + 1,
				TotalChunks:                totalChunks,
				RowsInChunk:                len(rows),
				TotalRows:                  totalRows,
				IsChunked:                  true,
				ReconstructionInstructions: instructions,
			},
		}
		tokens, err := e.est.EstimateValue(chunk)
		if err != nil {
			return nil, err
		}
		amounts[strconv.Itoa(i+1)] = tokens
		chunks = append(chunks, chunk)
	}

	e.sessions[sessionID] = &Session{
		ID:                sessionID,
		Chunks:            chunks,
		TotalChunks:       totalChunks,
		CreatedAt:         e.now(),
		ChunkTokenAmounts: amounts,
	}
	e.emit(EventSessionCreated, sessionID, 0)

	return &SessionDescriptor{
		ChunkedResponse:   true,
		SessionID:         sessionID,
		TotalChunks:       totalChunks,
		ChunkTokenAmounts: amounts,
		Message: fmt.Sprintf(
			"Result set of %d rows exceeds the response token budget and was split into %d chunks.",
			totalRows, totalChunks),
		Instructions: instructions,
	}, nil
}

// GetChunk returns a copy of chunk chunkNumber (1-based) for the session.
// The session's delivery counter increments on every call — it counts
// retrievals, not distinct chunks, so re-fetching chunk 1 twice reads as 2.
func (e *Engine) GetChunk(sessionID string, chunkNumber int) (*Chunk, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sweepExpired()

	s, ok := e.sessions[sessionID]
	if !ok {
		return nil, &SessionNotFoundError{SessionID: sessionID}
	}
	if chunkNumber < 1 || chunkNumber > s.TotalChunks {
		return nil, &InvalidChunkNumberError{ChunkNumber: chunkNumber, TotalChunks: s.TotalChunks}
	}

	s.ChunksDelivered++

	chunk := s.Chunks[chunkNumber-1]
	chunk.Info.ChunksDelivered = s.ChunksDelivered
	chunk.Info.AllChunksDelivered = s.ChunksDelivered >= s.TotalChunks

	e.emit(EventChunkDelivered, sessionID, chunkNumber)
	return &chunk, nil
}

// GetSessionInfo returns the session's delivery status.
func (e *Engine) GetSessionInfo(sessionID string) (*SessionInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sweepExpired()

	s, ok := e.sessions[sessionID]
	if !ok {
		return nil, &SessionNotFoundError{SessionID: sessionID}
	}

	info := &SessionInfo{
		SessionID:                  s.ID,
		TotalChunks:                s.TotalChunks,
		ChunksDelivered:            s.ChunksDelivered,
		ChunksRemaining:            max(s.TotalChunks-s.ChunksDelivered, 0),
		CreatedAt:                  s.CreatedAt,
		AllChunksDelivered:         s.ChunksDelivered >= s.TotalChunks,
		ChunkTokenAmounts:          s.ChunkTokenAmounts,
		ReconstructionInstructions: reconstructionInstructions(s.ID, s.TotalChunks),
	}
	if !info.AllChunksDelivered {
		next := min(s.ChunksDelivered+1, s.TotalChunks)
		info.NextChunkToRequest = &next
	}
	return info, nil
}

// SessionCount returns the number of live sessions. For health reporting.
func (e *Engine) SessionCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.sessions)
}

// sweepExpired removes every session past its TTL. Called with the lock held
// at the top of every GetChunk/GetSessionInfo — never on a timer. A session
// nobody queries again stays resident until the next unrelated call; that is
// the accepted cost of having no background task.
func (e *Engine) sweepExpired() {
	now := e.now()
	for id, s := range e.sessions {
		if now.After(s.CreatedAt.Add(e.ttl)) {
			delete(e.sessions, id)
			e.emit(EventSessionExpired, id, 0)
		}
	}
}

// tokensPerRow estimates the cost of one row by measuring a leading sample
// wrapped the same way rows appear on the wire.
func (e *Engine) tokensPerRow(data []Row) (int, error) {
	n := min(sampleRows, len(data))
	sampleTokens, err := e.est.EstimateValue(map[string]any{"data": data[:n]})
	if err != nil {
		return 0, err
	}
	perRow := sampleTokens / n
	if perRow < 1 {
		perRow = 1
	}
	return perRow, nil
}

func (e *Engine) emit(event, sessionID string, chunkNumber int) {
	if e.events != nil {
		e.events.SessionEvent(event, sessionID, chunkNumber)
	}
}

func reconstructionInstructions(sessionID string, totalChunks int) string {
	return fmt.Sprintf(
		"Fetch chunks 1 through %d for session %s in order and concatenate their 'data' arrays to reconstruct the full result set.",
		totalChunks, sessionID)
}
