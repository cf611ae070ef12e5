package integration

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical-ai/spherical/libs/grounding-engine/internal/app"
	"github.com/spherical-ai/spherical/libs/grounding-engine/internal/cache"
	"github.com/spherical-ai/spherical/libs/grounding-engine/internal/config"
	"github.com/spherical-ai/spherical/libs/grounding-engine/internal/conversation"
	"github.com/spherical-ai/spherical/libs/grounding-engine/internal/ingest"
	"github.com/spherical-ai/spherical/libs/grounding-engine/internal/session"
	"github.com/spherical-ai/spherical/libs/grounding-engine/internal/storage"
)

const tiersDoc = `---
title: Preferred Rewards
---
# Preferred Rewards tiers

The Gold tier requires a combined balance of $20,000.

The Platinum tier requires a combined balance of $50,000 and waives ATM fees.
`

func postgresConfig(dsn string) config.DatabaseConfig {
	return config.DatabaseConfig{
		Driver:   "postgres",
		Postgres: config.PostgresConfig{DSN: dsn, MaxOpenConns: 5},
	}
}

func TestPostgresRepositories(t *testing.T) {
	requireDocker(t)
	backends := StartBackends(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	db, err := app.OpenDatabase(ctx, postgresConfig(backends.PostgresDSN))
	require.NoError(t, err)
	defer db.Close()

	// Migrations are idempotent.
	require.NoError(t, storage.Migrate(ctx, db))

	t.Run("transcripts", func(t *testing.T) {
		repo := storage.NewTranscriptRepository(db)
		sessionID := uuid.NewString()

		next, err := repo.NextTurnIndex(ctx, sessionID)
		require.NoError(t, err)
		assert.Equal(t, 0, next)

		report, _ := json.Marshal(map[string]any{"precision_token": 1.0})
		require.NoError(t, repo.Append(ctx,
			&storage.TranscriptEntry{SessionID: sessionID, TurnIndex: 0, Role: "user", Content: "Gold tier?"},
			&storage.TranscriptEntry{
				SessionID:  sessionID,
				TurnIndex:  1,
				Role:       "assistant",
				Content:    "A combined balance of $20,000.",
				AnswerType: "fact",
				Confidence: "High",
				Route:      "answer",
				Report:     report,
			},
		))

		entries, err := repo.ListBySession(ctx, sessionID)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, "user", entries[0].Role)
		assert.Equal(t, "answer", entries[1].Route)
		assert.JSONEq(t, `{"precision_token":1}`, string(entries[1].Report))
		assert.False(t, entries[1].CreatedAt.IsZero())

		next, err = repo.NextTurnIndex(ctx, sessionID)
		require.NoError(t, err)
		assert.Equal(t, 2, next)

		sessions, err := repo.Sessions(ctx, 10)
		require.NoError(t, err)
		require.NotEmpty(t, sessions)
		assert.Equal(t, sessionID, sessions[0].SessionID)
		assert.Equal(t, 2, sessions[0].Messages)

		n, err := repo.DeleteSession(ctx, sessionID)
		require.NoError(t, err)
		assert.EqualValues(t, 2, n)
	})

	t.Run("ingest replaces a source", func(t *testing.T) {
		chunks := storage.NewChunkRepository(db)
		pipeline := ingest.NewPipeline(nil, ingest.NewChunker(ingest.ChunkerConfig{ChunkSize: 80}), chunks)

		n, replaced, err := pipeline.IngestText(ctx, "tiers.md", tiersDoc)
		require.NoError(t, err)
		assert.Positive(t, n)
		assert.Zero(t, replaced)

		stored, err := chunks.List(ctx, "tiers.md")
		require.NoError(t, err)
		require.Len(t, stored, n)
		assert.Equal(t, "Preferred Rewards", stored[0].Metadata["title"])

		n2, replaced, err := pipeline.IngestText(ctx, "tiers.md", tiersDoc)
		require.NoError(t, err)
		assert.Equal(t, n, n2)
		assert.EqualValues(t, n, replaced)

		count, err := chunks.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, n, count)
	})
}

func TestRedisSessions(t *testing.T) {
	requireDocker(t)
	backends := StartBackends(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	store, err := session.NewStore(config.SessionConfig{
		Driver:    "redis",
		Timeout:   time.Minute,
		KeyPrefix: "it:session:",
		Redis:     config.RedisConfig{Addr: backends.RedisAddr, PoolSize: 5},
	})
	require.NoError(t, err)

	mgr := session.NewManager(store, session.ManagerConfig{
		Timeout:  time.Minute,
		LockTTL:  200 * time.Millisecond,
		Settings: conversation.Settings{TopK: 3, Threshold: 0.45, MaxClarify: 2},
	}, nil)
	defer mgr.Close()

	sess, err := mgr.Create(ctx)
	require.NoError(t, err)

	sess.State.FocusHint = "Preferred Rewards tiers"
	sess.State.ClarifyCount = 1
	require.NoError(t, mgr.Save(ctx, sess))

	got, err := mgr.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "Preferred Rewards tiers", got.State.FocusHint)
	assert.Equal(t, 1, got.State.ClarifyCount)

	unlock, err := mgr.Lock(ctx, sess.ID)
	require.NoError(t, err)
	_, err = mgr.Lock(ctx, sess.ID)
	assert.True(t, errors.Is(err, session.ErrLocked))
	require.NoError(t, unlock(ctx))

	unlock, err = mgr.Lock(ctx, sess.ID)
	require.NoError(t, err)
	require.NoError(t, unlock(ctx))

	active, err := mgr.Active(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, sess.ID, active[0].ID)

	require.NoError(t, mgr.End(ctx, sess.ID))
	_, err = mgr.Get(ctx, sess.ID)
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestRedisCache(t *testing.T) {
	requireDocker(t)
	backends := StartBackends(t)
	ctx := context.Background()

	client := goredis.NewClient(&goredis.Options{Addr: backends.RedisAddr})
	c := cache.NewRedisClientFrom(client, "it:cache:")
	defer c.Close()

	require.NoError(t, cache.SetJSON(ctx, c, "emb:1", []float32{0.5, 0.25}, time.Minute))
	var got []float32
	require.NoError(t, cache.GetJSON(ctx, c, "emb:1", &got))
	assert.Equal(t, []float32{0.5, 0.25}, got)

	require.NoError(t, c.DeleteByPrefix(ctx, "emb:"))
	_, err := c.Get(ctx, "emb:1")
	assert.ErrorIs(t, err, cache.ErrCacheMiss)
}
