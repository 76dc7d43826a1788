package session

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"frame-extractor/archive"
)

type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Result is what a finished extraction left in the session.
type Result struct {
	// Frames are file names inside FramesDir, in frame order.
	Frames       []string
	SourceFrames int
	Width        int
	Height       int
	Elapsed      time.Duration

	// Archive is true once the ZIP exists at ArchivePath.
	Archive bool
	// ArchiveKey is the object key when the archive was offloaded to S3.
	ArchiveKey string
}

// Snapshot is a consistent copy of the session state.
type Snapshot struct {
	ID        string
	CreatedAt time.Time
	Status    Status
	Progress  float64
	Error     string
	Result    *Result
}

// Session owns one temporary directory holding the upload, its frames and the archive.
// The directory is removed by Close, or by the last release after Close.
type Session struct {
	ID        string
	Dir       string
	CreatedAt time.Time

	logger *zap.Logger

	mu       sync.Mutex
	status   Status
	progress float64
	errMsg   string
	result   *Result
	refs     int
	closed   bool
	removed  bool
}

func newSession(id, dir string, logger *zap.Logger) *Session {
	return &Session{
		ID:        id,
		Dir:       dir,
		CreatedAt: time.Now(),
		logger:    logger,
		status:    StatusProcessing,
	}
}

// VideoPath is where the upload is stored, keeping its extension so decoders can probe by name.
func (s *Session) VideoPath(ext string) string {
	return filepath.Join(s.Dir, "video"+ext)
}

func (s *Session) FramesDir() string {
	return filepath.Join(s.Dir, "frames")
}

func (s *Session) ArchivePath() string {
	return filepath.Join(s.Dir, archive.FileName)
}

// Hold keeps the directory alive until the returned release is called.
// It reports false when the session is already closed.
func (s *Session) Hold() (release func(), ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, false
	}
	s.refs++

	var once sync.Once
	return func() { once.Do(s.release) }, true
}

func (s *Session) release() {
	s.mu.Lock()
	s.refs--
	remove := s.closed && s.refs == 0
	s.mu.Unlock()

	if remove {
		s.removeDir()
	}
}

// Close marks the session dead and removes its directory once no holder is left. Safe to call repeatedly.
func (s *Session) Close() error {
	_, err := s.shut()
	return err
}

// shut reports whether this call was the one that closed the session.
func (s *Session) shut() (bool, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false, nil
	}
	s.closed = true
	remove := s.refs == 0
	s.mu.Unlock()

	if remove {
		return true, s.removeDir()
	}
	return true, nil
}

func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) removeDir() error {
	s.mu.Lock()
	if s.removed {
		s.mu.Unlock()
		return nil
	}
	s.removed = true
	s.mu.Unlock()

	if err := os.RemoveAll(s.Dir); err != nil {
		s.logger.Error("failed to remove session directory", zap.String("session", s.ID), zap.Error(err))
		return err
	}

	s.logger.Debug("session directory removed", zap.String("session", s.ID))
	return nil
}

// SetProgress records extraction progress. Values never go backwards.
func (s *Session) SetProgress(fraction float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if fraction > 1 {
		fraction = 1
	}
	if fraction > s.progress {
		s.progress = fraction
	}
}

func (s *Session) Complete(result *Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.status = StatusCompleted
	s.progress = 1
	s.result = result
}

func (s *Session) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.status = StatusFailed
	s.errMsg = err.Error()
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := Snapshot{
		ID:        s.ID,
		CreatedAt: s.CreatedAt,
		Status:    s.status,
		Progress:  s.progress,
		Error:     s.errMsg,
	}
	if s.result != nil {
		result := *s.result
		result.Frames = append([]string(nil), s.result.Frames...)
		snapshot.Result = &result
	}

	return snapshot
}

// HasFrame reports whether name is one of the extracted frames.
func (s *Session) HasFrame(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.result == nil {
		return false
	}
	for _, frame := range s.result.Frames {
		if frame == name {
			return true
		}
	}
	return false
}
