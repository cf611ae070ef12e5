package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps sessions in process memory. Sessions are stored as JSON
// so callers never share state across requests.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]memoryEntry
	locks    map[string]memoryLock
	timeout  time.Duration
	now      func() time.Time
	done     chan struct{}
	once     sync.Once
}

type memoryEntry struct {
	data         []byte
	lastActivity time.Time
}

type memoryLock struct {
	token     string
	expiresAt time.Time
}

// NewMemoryStore creates a store whose sessions expire after timeout. A
// cleanup goroutine runs every cleanupInterval until Close.
func NewMemoryStore(timeout, cleanupInterval time.Duration) *MemoryStore {
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	if cleanupInterval <= 0 {
		cleanupInterval = 5 * time.Minute
	}
	s := &MemoryStore{
		sessions: make(map[string]memoryEntry),
		locks:    make(map[string]memoryLock),
		timeout:  timeout,
		now:      time.Now,
		done:     make(chan struct{}),
	}
	go s.cleanupLoop(cleanupInterval)
	return s
}

// Get returns a copy of the session.
func (s *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[id]
	if !ok || s.expired(e) {
		return nil, ErrNotFound
	}
	var out Session
	if err := json.Unmarshal(e.data, &out); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return &out, nil
}

// Save stores a copy of sess.
func (s *MemoryStore) Save(_ context.Context, sess *Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", sess.ID, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = memoryEntry{data: data, lastActivity: sess.LastActivity}
	return nil
}

// Delete removes a session and its lock.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return ErrNotFound
	}
	delete(s.sessions, id)
	delete(s.locks, id)
	return nil
}

// List returns the live sessions ordered by creation time.
func (s *MemoryStore) List(ctx context.Context) ([]*Session, error) {
	s.mu.Lock()
	ids := make([]string, 0, len(s.sessions))
	for id, e := range s.sessions {
		if !s.expired(e) {
			ids = append(ids, id)
		}
	}
	s.mu.Unlock()

	out := make([]*Session, 0, len(ids))
	for _, id := range ids {
		sess, err := s.Get(ctx, id)
		if err != nil {
			continue
		}
		out = append(out, sess)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// TryLock takes the per-session lock. An expired lock is taken over.
func (s *MemoryStore) TryLock(_ context.Context, id string, ttl time.Duration) (Lease, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if l, ok := s.locks[id]; ok && now.Before(l.expiresAt) {
		return nil, ErrLocked
	}
	token := uuid.NewString()
	s.locks[id] = memoryLock{token: token, expiresAt: now.Add(ttl)}
	return &memoryLease{store: s, id: id, token: token}, nil
}

type memoryLease struct {
	store *MemoryStore
	id    string
	token string
}

func (l *memoryLease) Refresh(_ context.Context, ttl time.Duration) error {
	s := l.store
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.locks[l.id]
	if !ok || cur.token != l.token {
		return ErrLocked
	}
	cur.expiresAt = s.now().Add(ttl)
	s.locks[l.id] = cur
	return nil
}

func (l *memoryLease) Release(context.Context) error {
	s := l.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.locks[l.id]; ok && cur.token == l.token {
		delete(s.locks, l.id)
	}
	return nil
}

// Close stops the cleanup goroutine.
func (s *MemoryStore) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

func (s *MemoryStore) expired(e memoryEntry) bool {
	return s.now().After(e.lastActivity.Add(s.timeout))
}

// sweep drops expired sessions and locks and returns how many sessions
// were removed.
func (s *MemoryStore) sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, e := range s.sessions {
		if s.expired(e) {
			delete(s.sessions, id)
			removed++
		}
	}
	now := s.now()
	for id, l := range s.locks {
		if !now.Before(l.expiresAt) {
			delete(s.locks, id)
		}
	}
	return removed
}

func (s *MemoryStore) cleanupLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

var _ Store = (*MemoryStore)(nil)
