package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrNotFound  = errors.New("session not found")
	ErrStoreFull = errors.New("too many active sessions")
)

// Store tracks live sessions. Sessions leave the store on Delete, TTL expiry or eviction,
// and their directories are removed when they do.
type Store struct {
	root   string
	ttl    time.Duration
	limit  int64
	cache  *ristretto.Cache[string, *Session]
	logger *zap.Logger
	active atomic.Int64

	// OnChange, when set, receives the number of live sessions after every change.
	OnChange func(active int64)
}

// NewStore creates a private directory under workDir (os.TempDir when empty) holding all session directories.
func NewStore(workDir string, ttl time.Duration, maxSessions int64, logger *zap.Logger) (*Store, error) {
	if maxSessions <= 0 {
		return nil, fmt.Errorf("max sessions must be positive, got %d", maxSessions)
	}

	root, err := os.MkdirTemp(workDir, "frame-extractor-")
	if err != nil {
		return nil, fmt.Errorf("failed to create work directory: %w", err)
	}

	store := &Store{root: root, ttl: ttl, limit: maxSessions, logger: logger}

	// Create enforces the limit, so the cache never has to pick a live session to evict
	cache, err := ristretto.NewCache(&ristretto.Config[string, *Session]{
		NumCounters:        maxSessions * 10,
		MaxCost:            maxSessions * 2,
		BufferItems:        64,
		IgnoreInternalCost: true,
		OnExit:             store.onExit,
	})
	if err != nil {
		_ = os.RemoveAll(root)
		return nil, fmt.Errorf("failed to create session cache: %w", err)
	}
	store.cache = cache

	return store, nil
}

func (s *Store) onExit(sess *Session) {
	if sess == nil {
		return
	}

	if closed, _ := sess.shut(); closed {
		s.logger.Debug("session left the store", zap.String("session", sess.ID))
		s.changed(s.active.Add(-1))
	}
}

func (s *Store) changed(active int64) {
	if s.OnChange != nil {
		s.OnChange(active)
	}
}

// Create allocates a new session with its own directory.
func (s *Store) Create() (*Session, error) {
	active, ok := s.reserve()
	if !ok {
		return nil, ErrStoreFull
	}

	id := uuid.NewString()

	dir := filepath.Join(s.root, id)
	if err := os.Mkdir(dir, 0o755); err != nil {
		s.active.Add(-1)
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}

	sess := newSession(id, dir, s.logger)
	s.changed(active)

	s.cache.SetWithTTL(id, sess, 1, s.ttl)
	s.cache.Wait()

	// a rejected item may already have gone through OnExit
	if _, ok := s.cache.Get(id); !ok {
		if closed, _ := sess.shut(); closed {
			s.changed(s.active.Add(-1))
		}
		return nil, ErrStoreFull
	}

	s.logger.Debug("session created", zap.String("session", id), zap.String("dir", dir))

	return sess, nil
}

// reserve takes a slot for a new session, failing when limit sessions are live.
func (s *Store) reserve() (int64, bool) {
	for {
		n := s.active.Load()
		if n >= s.limit {
			return n, false
		}
		if s.active.CompareAndSwap(n, n+1) {
			return n + 1, true
		}
	}
}

func (s *Store) Get(id string) (*Session, error) {
	sess, ok := s.cache.Get(id)
	if !ok || sess.Closed() {
		return nil, ErrNotFound
	}
	return sess, nil
}

// Delete closes the session and drops it from the store.
func (s *Store) Delete(id string) error {
	sess, err := s.Get(id)
	if err != nil {
		return err
	}

	s.cache.Del(id)
	s.cache.Wait()

	// OnExit normally closes it already
	if closed, _ := sess.shut(); closed {
		s.changed(s.active.Add(-1))
	}

	return nil
}

// Active is the number of live sessions.
func (s *Store) Active() int64 {
	return s.active.Load()
}

// Close drops every session and removes the work directory.
func (s *Store) Close() error {
	s.cache.Clear()
	s.cache.Close()

	if err := os.RemoveAll(s.root); err != nil {
		return fmt.Errorf("failed to remove work directory: %w", err)
	}

	s.logger.Info("session store closed", zap.String("dir", s.root))
	return nil
}
