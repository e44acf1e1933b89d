// Package transcript archives completed utterances beyond the lifetime of a
// session's in-memory transcript.
package transcript

import (
	"context"
	"time"
)

// Record is one completed utterance.
type Record struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Sender    string    `json:"sender"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists and retrieves archived utterances.
type Store interface {
	Save(ctx context.Context, record Record) error
	Recent(ctx context.Context, sessionID string, limit int) ([]Record, error)
	Close() error
}
