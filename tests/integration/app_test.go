package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical-ai/spherical/libs/grounding-engine/internal/app"
	"github.com/spherical-ai/spherical/libs/grounding-engine/internal/config"
	"github.com/spherical-ai/spherical/libs/grounding-engine/internal/conversation"
	"github.com/spherical-ai/spherical/libs/grounding-engine/internal/ingest"
	"github.com/spherical-ai/spherical/libs/grounding-engine/internal/storage"
)

// TestChatOnPostgresAndRedis wires the whole engine on real backends:
// Postgres for the corpus and transcripts, Redis for sessions and the
// embedding cache. Without an LLM key every turn either clarifies or
// abstains, which still exercises the full routing path.
func TestChatOnPostgresAndRedis(t *testing.T) {
	requireDocker(t)
	backends := StartBackends(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	cfg := config.DefaultConfig()
	cfg.Database = postgresConfig(backends.PostgresDSN)
	cfg.Session.Driver = "redis"
	cfg.Session.Redis.Addr = backends.RedisAddr
	cfg.Cache.Driver = "redis"
	cfg.Cache.Redis.Addr = backends.RedisAddr
	cfg.Generation.APIKey = ""
	require.NoError(t, cfg.Validate())

	// Seed the corpus before the engine loads its index.
	db, err := app.OpenDatabase(ctx, cfg.Database)
	require.NoError(t, err)
	pipeline := ingest.NewPipeline(nil, nil, storage.NewChunkRepository(db))
	_, _, err = pipeline.IngestText(ctx, "tiers.md", tiersDoc)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	var batches []int
	a, err := app.New(ctx, cfg, nil, app.Options{OnIndexBatch: func(done int) { batches = append(batches, done) }})
	require.NoError(t, err)
	defer a.Close()
	require.NoError(t, a.Ready(ctx))
	assert.NotEmpty(t, batches)

	first, err := a.Chat.Chat(ctx, "", "What balance does the Gold tier require?")
	require.NoError(t, err)
	require.NotEmpty(t, first.SessionID)
	assert.Contains(t, []conversation.Route{conversation.RouteAnswer, conversation.RouteClarify}, first.Route)

	second, err := a.Chat.Chat(ctx, first.SessionID, "Preferred Rewards Gold tier")
	require.NoError(t, err)
	assert.Equal(t, first.SessionID, second.SessionID)

	info, err := a.Sessions.Info(ctx, first.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 4, info.Turns)

	entries, err := a.Transcripts.ListBySession(ctx, first.SessionID)
	require.NoError(t, err)
	require.Len(t, entries, 4)
	for i, e := range entries {
		assert.Equal(t, i, e.TurnIndex)
	}
	assert.Equal(t, "user", entries[2].Role)
	assert.Equal(t, "assistant", entries[3].Role)
}
