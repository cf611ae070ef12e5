package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/spherical-ai/spherical/libs/grounding-engine/internal/config"
	"github.com/spherical-ai/spherical/libs/grounding-engine/internal/conversation"
	"github.com/spherical-ai/spherical/libs/grounding-engine/internal/observability"
)

// Info summarizes a session for listings.
type Info struct {
	ID               string    `json:"session_id"`
	CreatedAt        time.Time `json:"created_at"`
	LastActivity     time.Time `json:"last_activity"`
	RemainingSeconds int       `json:"remaining_time"`
	TimeoutMinutes   int       `json:"timeout_minutes"`
	Turns            int       `json:"turns"`
	FocusHint        string    `json:"focus_hint,omitempty"`
}

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	Timeout time.Duration
	// LockTTL is how long a lock outlives a crashed holder. Live holders
	// refresh it every LockTTL/3.
	LockTTL time.Duration
	// LockWait bounds how long Lock waits for a busy session. It is kept
	// below LockTTL; the default is LockTTL/2.
	LockWait time.Duration
	Settings conversation.Settings
}

// Manager creates, locks and expires sessions on top of a Store.
type Manager struct {
	store  Store
	cfg    ManagerConfig
	logger *observability.Logger
	now    func() time.Time
}

// NewManager creates a manager.
func NewManager(store Store, cfg ManagerConfig, logger *observability.Logger) *Manager {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Minute
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 2 * time.Minute
	}
	if cfg.LockWait <= 0 || cfg.LockWait >= cfg.LockTTL {
		cfg.LockWait = cfg.LockTTL / 2
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Manager{store: store, cfg: cfg, logger: logger, now: time.Now}
}

// NewStore builds the store selected by cfg.
func NewStore(cfg config.SessionConfig) (Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemoryStore(cfg.Timeout, cfg.CleanupInterval), nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("redis ping failed: %w", err)
		}
		return NewRedisStore(client, cfg.KeyPrefix, cfg.Timeout), nil
	default:
		return nil, fmt.Errorf("unknown session driver %q", cfg.Driver)
	}
}

// Create starts a session with a fresh conversation state.
func (m *Manager) Create(ctx context.Context) (*Session, error) {
	now := m.now()
	sess := &Session{
		ID:           uuid.NewString(),
		CreatedAt:    now,
		LastActivity: now,
		State:        conversation.NewState(m.cfg.Settings),
	}
	if err := m.store.Save(ctx, sess); err != nil {
		return nil, err
	}
	m.logger.Info().Str("session_id", sess.ID).Msg("session created")
	return sess, nil
}

// Get loads a live session.
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	sess, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.now().After(sess.LastActivity.Add(m.cfg.Timeout)) {
		return nil, ErrNotFound
	}
	if sess.State == nil {
		sess.State = conversation.NewState(m.cfg.Settings)
	}
	return sess, nil
}

// Save records activity on sess and stores it.
func (m *Manager) Save(ctx context.Context, sess *Session) error {
	sess.LastActivity = m.now()
	return m.store.Save(ctx, sess)
}

// Info describes a live session.
func (m *Manager) Info(ctx context.Context, id string) (Info, error) {
	sess, err := m.Get(ctx, id)
	if err != nil {
		return Info{}, err
	}
	return m.info(sess), nil
}

// Extend restarts the session's timeout.
func (m *Manager) Extend(ctx context.Context, id string) (Info, error) {
	sess, err := m.Get(ctx, id)
	if err != nil {
		return Info{}, err
	}
	if err := m.Save(ctx, sess); err != nil {
		return Info{}, err
	}
	return m.info(sess), nil
}

// End deletes the session.
func (m *Manager) End(ctx context.Context, id string) error {
	if err := m.store.Delete(ctx, id); err != nil {
		return err
	}
	m.logger.Info().Str("session_id", id).Msg("session ended")
	return nil
}

// Active lists the live sessions.
func (m *Manager) Active(ctx context.Context) ([]Info, error) {
	sessions, err := m.store.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Info, 0, len(sessions))
	now := m.now()
	for _, s := range sessions {
		if now.After(s.LastActivity.Add(m.cfg.Timeout)) {
			continue
		}
		out = append(out, m.info(s))
	}
	return out, nil
}

// Lock waits up to LockWait for the session lock, polling the store. The
// returned lock is refreshed in the background until Unlock is called, so a
// long turn never loses it to a waiter.
func (m *Manager) Lock(ctx context.Context, id string) (Unlock, error) {
	waitCtx, cancel := context.WithTimeout(ctx, m.cfg.LockWait)
	defer cancel()

	ticker := time.NewTicker(25 * time.Millisecond)
	defer ticker.Stop()
	for {
		lease, err := m.store.TryLock(ctx, id, m.cfg.LockTTL)
		if err == nil {
			return m.hold(id, lease), nil
		}
		if !errors.Is(err, ErrLocked) {
			return nil, err
		}
		select {
		case <-waitCtx.Done():
			return nil, ErrLocked
		case <-ticker.C:
		}
	}
}

func (m *Manager) hold(id string, lease Lease) Unlock {
	stop := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		ticker := time.NewTicker(m.cfg.LockTTL / 3)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), m.cfg.LockTTL/3)
				err := lease.Refresh(ctx, m.cfg.LockTTL)
				cancel()
				if errors.Is(err, ErrLocked) {
					m.logger.Warn().Str("session_id", id).Msg("session lock lost")
					return
				}
				if err != nil {
					m.logger.Warn().Err(err).Str("session_id", id).Msg("session lock refresh failed")
				}
			}
		}
	}()

	var once sync.Once
	return func(ctx context.Context) error {
		var err error
		once.Do(func() {
			close(stop)
			<-stopped
			err = lease.Release(ctx)
		})
		return err
	}
}

// LockTTL returns the session lock expiry. Turns are bounded by it.
func (m *Manager) LockTTL() time.Duration { return m.cfg.LockTTL }

// Timeout returns the session timeout.
func (m *Manager) Timeout() time.Duration { return m.cfg.Timeout }

// Close closes the underlying store.
func (m *Manager) Close() error { return m.store.Close() }

func (m *Manager) info(s *Session) Info {
	remaining := s.LastActivity.Add(m.cfg.Timeout).Sub(m.now())
	info := Info{
		ID:               s.ID,
		CreatedAt:        s.CreatedAt,
		LastActivity:     s.LastActivity,
		RemainingSeconds: max(0, int(remaining.Seconds())),
		TimeoutMinutes:   int(m.cfg.Timeout.Minutes()),
	}
	if s.State != nil {
		info.Turns = len(s.State.Messages)
		info.FocusHint = s.State.FocusHint
	}
	return info
}
