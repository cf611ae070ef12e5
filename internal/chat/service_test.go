package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical-ai/spherical/libs/grounding-engine/internal/config"
	"github.com/spherical-ai/spherical/libs/grounding-engine/internal/conversation"
	"github.com/spherical-ai/spherical/libs/grounding-engine/internal/session"
	"github.com/spherical-ai/spherical/libs/grounding-engine/internal/storage"
)

type staticRetriever struct {
	chunks []conversation.Chunk
}

func (r staticRetriever) Search(context.Context, string, string, int) ([]conversation.Chunk, error) {
	return r.chunks, nil
}

type scriptedGenerator struct {
	mu     sync.Mutex
	answer conversation.GeneratorResult
	calls  int
}

func (g *scriptedGenerator) Generate(context.Context, conversation.GenerateRequest) (conversation.GeneratorResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	return g.answer, nil
}

func (g *scriptedGenerator) GenerateClarification(context.Context, string, string) (conversation.Clarification, error) {
	return conversation.Clarification{Question: "Do you mean Preferred Rewards tiers?", FocusTopic: "Preferred Rewards tiers"}, nil
}

type failingTranscripts struct{}

func (failingTranscripts) Append(context.Context, ...*storage.TranscriptEntry) error {
	return errors.New("disk full")
}

var goldChunk = conversation.Chunk{ID: "gold", Text: "Gold tier requires a combined balance of $20,000.", Score: 0.9}

func newService(t *testing.T, chunks []conversation.Chunk, transcripts Transcripts) (*Service, *scriptedGenerator) {
	t.Helper()
	gen := &scriptedGenerator{answer: conversation.GeneratorResult{
		Answer:     "Gold tier requires $20,000.",
		Evidence:   []string{"gold"},
		Confidence: conversation.ConfidenceHigh,
		AnswerType: conversation.AnswerNumeric,
	}}
	router := conversation.NewRouter(nil, staticRetriever{chunks: chunks}, gen, nil, conversation.RouterConfig{})
	store := session.NewMemoryStore(time.Hour, time.Hour)
	mgr := session.NewManager(store, session.ManagerConfig{
		LockTTL:  200 * time.Millisecond,
		Settings: conversation.DefaultSettings(),
	}, nil)
	t.Cleanup(func() { _ = mgr.Close() })
	return NewService(router, mgr, transcripts, nil), gen
}

func TestChat_AnswerAndTranscript(t *testing.T) {
	db, err := storage.Open(config.DatabaseConfig{Driver: "sqlite", SQLite: config.SQLiteConfig{Path: ":memory:", MaxOpenConns: 1}})
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, storage.Migrate(context.Background(), db))
	repo := storage.NewTranscriptRepository(db)

	svc, _ := newService(t, []conversation.Chunk{goldChunk}, repo)
	ctx := context.Background()

	reply, err := svc.Chat(ctx, "", "What does the Gold tier require?")
	require.NoError(t, err)
	assert.NotEmpty(t, reply.SessionID)
	assert.Equal(t, conversation.RouteAnswer, reply.Route)
	assert.Equal(t, "Gold tier requires $20,000.", reply.Answer)
	require.NotNil(t, reply.Report)
	assert.Len(t, reply.Sources, 1)

	reply2, err := svc.Chat(ctx, reply.SessionID, "And platinum?")
	require.NoError(t, err)
	assert.Equal(t, reply.SessionID, reply2.SessionID)

	sess, err := svc.Sessions().Get(ctx, reply.SessionID)
	require.NoError(t, err)
	assert.Len(t, sess.State.Messages, 4)

	entries, err := repo.ListBySession(ctx, reply.SessionID)
	require.NoError(t, err)
	require.Len(t, entries, 4)
	assert.Equal(t, []int{0, 1, 2, 3}, []int{entries[0].TurnIndex, entries[1].TurnIndex, entries[2].TurnIndex, entries[3].TurnIndex})
	assert.Equal(t, "assistant", entries[1].Role)
	assert.Equal(t, "answer", entries[1].Route)
	assert.NotEmpty(t, entries[1].Report)
}

func TestChat_ClarifyPersistsFocusHint(t *testing.T) {
	low := conversation.Chunk{ID: "x", Text: "Tiers", Score: 0.1}
	svc, gen := newService(t, []conversation.Chunk{low}, nil)
	ctx := context.Background()

	reply, err := svc.Chat(ctx, "", "what is tier?")
	require.NoError(t, err)
	assert.Equal(t, conversation.RouteClarify, reply.Route)
	assert.Equal(t, "Preferred Rewards tiers", reply.FocusHint)
	assert.Equal(t, 1, reply.ClarifyCount)
	assert.Zero(t, gen.calls)

	sess, err := svc.Sessions().Get(ctx, reply.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "Preferred Rewards tiers", sess.State.FocusHint)
	assert.Equal(t, 1, sess.State.ClarifyCount)
}

func TestChat_Errors(t *testing.T) {
	svc, _ := newService(t, nil, failingTranscripts{})
	ctx := context.Background()

	_, err := svc.Chat(ctx, "", "   ")
	assert.ErrorIs(t, err, ErrEmptyMessage)

	_, err = svc.Chat(ctx, "no-such-session", "hi")
	assert.ErrorIs(t, err, session.ErrNotFound)

	// Transcript failures do not fail the turn.
	reply, err := svc.Chat(ctx, "", "hi")
	require.NoError(t, err)
	assert.Equal(t, conversation.AnswerClarification, reply.AnswerType)
}

func TestChat_SessionLocked(t *testing.T) {
	svc, _ := newService(t, []conversation.Chunk{goldChunk}, nil)
	ctx := context.Background()

	sess, err := svc.Sessions().Create(ctx)
	require.NoError(t, err)
	unlock, err := svc.Sessions().Lock(ctx, sess.ID)
	require.NoError(t, err)
	defer unlock(ctx)

	_, err = svc.Chat(ctx, sess.ID, "hi")
	assert.ErrorIs(t, err, session.ErrLocked)

	// Still refused once the holder has run past the lock TTL.
	time.Sleep(2 * svc.Sessions().LockTTL())
	_, err = svc.Chat(ctx, sess.ID, "hi")
	assert.ErrorIs(t, err, session.ErrLocked)
}

func TestChat_ConcurrentTurnsSerialize(t *testing.T) {
	svc, _ := newService(t, []conversation.Chunk{goldChunk}, nil)
	ctx := context.Background()

	first, err := svc.Chat(ctx, "", "Gold?")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.Chat(ctx, first.SessionID, "Gold again?")
		}()
	}
	wg.Wait()

	sess, err := svc.Sessions().Get(ctx, first.SessionID)
	require.NoError(t, err)
	// Every completed turn adds exactly two messages; none are lost.
	assert.Equal(t, 0, len(sess.State.Messages)%2)
	assert.GreaterOrEqual(t, len(sess.State.Messages), 4)
}
