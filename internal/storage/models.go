// Package storage provides database models and repositories for the
// Grounding Engine: conversation transcripts and the chunk corpus.
package storage

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// TranscriptEntry is one stored message of a conversation.
type TranscriptEntry struct {
	ID         uuid.UUID       `json:"id" db:"id"`
	SessionID  string          `json:"session_id" db:"session_id"`
	TurnIndex  int             `json:"turn_index" db:"turn_index"`
	Role       string          `json:"role" db:"role"`
	Content    string          `json:"content" db:"content"`
	AnswerType string          `json:"answer_type,omitempty" db:"answer_type"`
	Confidence string          `json:"confidence,omitempty" db:"confidence"`
	Route      string          `json:"route,omitempty" db:"route"`
	Report     json.RawMessage `json:"report,omitempty" db:"report"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
}

// Chunk is a corpus passage available to retrieval.
type Chunk struct {
	ID        string            `json:"id" db:"id"`
	Source    string            `json:"source" db:"source"`
	Ordinal   int               `json:"ordinal" db:"ordinal"`
	Text      string            `json:"text" db:"text"`
	Metadata  map[string]string `json:"metadata,omitempty" db:"metadata"`
	CreatedAt time.Time         `json:"created_at" db:"created_at"`
}

// SessionSummary aggregates the transcript of one session.
type SessionSummary struct {
	SessionID string    `json:"session_id"`
	Messages  int       `json:"messages"`
	FirstAt   time.Time `json:"first_at"`
	LastAt    time.Time `json:"last_at"`
}
