package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// DB represents a database connection interface.
type DB interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// TranscriptRepository stores conversation messages.
type TranscriptRepository struct {
	db DB
}

// NewTranscriptRepository creates a new transcript repository.
func NewTranscriptRepository(db DB) *TranscriptRepository {
	return &TranscriptRepository{db: db}
}

// Append inserts entries, filling ids and timestamps that are unset.
func (r *TranscriptRepository) Append(ctx context.Context, entries ...*TranscriptEntry) error {
	query := `
		INSERT INTO transcripts (id, session_id, turn_index, role, content,
			answer_type, confidence, route, report, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	for _, e := range entries {
		if e.ID == uuid.Nil {
			e.ID = uuid.New()
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = time.Now().UTC()
		}
		var report interface{}
		if len(e.Report) > 0 {
			report = string(e.Report)
		}
		_, err := r.db.ExecContext(ctx, query,
			e.ID.String(), e.SessionID, e.TurnIndex, e.Role, e.Content,
			e.AnswerType, e.Confidence, e.Route, report, e.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert transcript: %w", err)
		}
	}
	return nil
}

// ListBySession returns a session's messages in turn order.
func (r *TranscriptRepository) ListBySession(ctx context.Context, sessionID string) ([]TranscriptEntry, error) {
	query := `
		SELECT id, session_id, turn_index, role, content, answer_type, confidence, route, report, created_at
		FROM transcripts
		WHERE session_id = $1
		ORDER BY turn_index
	`
	rows, err := r.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query transcripts: %w", err)
	}
	defer rows.Close()

	var out []TranscriptEntry
	for rows.Next() {
		var (
			e      TranscriptEntry
			id     string
			report sql.NullString
		)
		if err := rows.Scan(&id, &e.SessionID, &e.TurnIndex, &e.Role, &e.Content,
			&e.AnswerType, &e.Confidence, &e.Route, &report, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transcript: %w", err)
		}
		if e.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse transcript id: %w", err)
		}
		if report.Valid {
			e.Report = json.RawMessage(report.String)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// NextTurnIndex returns the turn index following the session's last message.
func (r *TranscriptRepository) NextTurnIndex(ctx context.Context, sessionID string) (int, error) {
	var n sql.NullInt64
	err := r.db.QueryRowContext(ctx,
		`SELECT MAX(turn_index) FROM transcripts WHERE session_id = $1`, sessionID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("query turn index: %w", err)
	}
	if !n.Valid {
		return 0, nil
	}
	return int(n.Int64) + 1, nil
}

// Sessions summarizes every stored session, most recent first.
func (r *TranscriptRepository) Sessions(ctx context.Context, limit int) ([]SessionSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT session_id, COUNT(*), MIN(created_at), MAX(created_at)
		FROM transcripts
		GROUP BY session_id
		ORDER BY MAX(created_at) DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionSummary
	for rows.Next() {
		var s SessionSummary
		var first, last timestampScanner
		if err := rows.Scan(&s.SessionID, &s.Messages, &first, &last); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		s.FirstAt, s.LastAt = first.t, last.t
		out = append(out, s)
	}
	return out, rows.Err()
}

// DeleteSession removes a session's transcript.
func (r *TranscriptRepository) DeleteSession(ctx context.Context, sessionID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM transcripts WHERE session_id = $1`, sessionID)
	if err != nil {
		return 0, fmt.Errorf("delete transcript: %w", err)
	}
	return res.RowsAffected()
}

// ChunkRepository stores the retrieval corpus.
type ChunkRepository struct {
	db DB
}

// NewChunkRepository creates a new chunk repository.
func NewChunkRepository(db DB) *ChunkRepository {
	return &ChunkRepository{db: db}
}

// Upsert inserts chunks or replaces those with the same id.
func (r *ChunkRepository) Upsert(ctx context.Context, chunks ...*Chunk) error {
	query := `
		INSERT INTO chunks (id, source, ordinal, text, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			source = excluded.source,
			ordinal = excluded.ordinal,
			text = excluded.text,
			metadata = excluded.metadata
	`
	for _, c := range chunks {
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		if c.CreatedAt.IsZero() {
			c.CreatedAt = time.Now().UTC()
		}
		meta, err := json.Marshal(c.Metadata)
		if err != nil {
			return fmt.Errorf("encode chunk metadata: %w", err)
		}
		if c.Metadata == nil {
			meta = []byte("{}")
		}
		if _, err := r.db.ExecContext(ctx, query,
			c.ID, c.Source, c.Ordinal, c.Text, string(meta), c.CreatedAt); err != nil {
			return fmt.Errorf("upsert chunk: %w", err)
		}
	}
	return nil
}

// GetByID retrieves a chunk.
func (r *ChunkRepository) GetByID(ctx context.Context, id string) (*Chunk, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, source, ordinal, text, metadata, created_at FROM chunks WHERE id = $1
	`, id)
	c, err := scanChunk(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return c, err
}

// List returns chunks ordered by source and ordinal. An empty source lists
// the whole corpus.
func (r *ChunkRepository) List(ctx context.Context, source string) ([]*Chunk, error) {
	query := `SELECT id, source, ordinal, text, metadata, created_at FROM chunks`
	var args []interface{}
	if source != "" {
		query += ` WHERE source = $1`
		args = append(args, source)
	}
	query += ` ORDER BY source, ordinal`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	var out []*Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Count returns the number of stored chunks.
func (r *ChunkRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return n, nil
}

// DeleteBySource removes every chunk of a source.
func (r *ChunkRepository) DeleteBySource(ctx context.Context, source string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM chunks WHERE source = $1`, source)
	if err != nil {
		return 0, fmt.Errorf("delete chunks: %w", err)
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanChunk(s scanner) (*Chunk, error) {
	var (
		c    Chunk
		meta string
	)
	if err := s.Scan(&c.ID, &c.Source, &c.Ordinal, &c.Text, &meta, &c.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan chunk: %w", err)
	}
	if meta != "" && meta != "{}" {
		if err := json.Unmarshal([]byte(meta), &c.Metadata); err != nil {
			return nil, fmt.Errorf("decode chunk metadata: %w", err)
		}
	}
	return &c, nil
}
