package chunker

import "fmt"

// SessionNotFoundError reports an unknown or expired session id.
type SessionNotFoundError struct {
	SessionID string
}

func (e *SessionNotFoundError) Error() string {
	return "chunker: session not found: " + e.SessionID
}

// InvalidChunkNumberError reports a chunk number outside [1, TotalChunks].
type InvalidChunkNumberError struct {
	ChunkNumber int
	TotalChunks int
}

func (e *InvalidChunkNumberError) Error() string {
	return fmt.Sprintf("chunker: invalid chunk number %d: session has %d chunks",
		e.ChunkNumber, e.TotalChunks)
}
