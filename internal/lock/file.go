package lock

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/a11y-tracker/internal/tracker"
)

// FileConfig controls the marker file.
type FileConfig struct {
	// Path is the marker location. Its parent is created on demand.
	Path string
	// StaleAfter treats markers older than this as abandoned. Zero disables
	// takeover so the marker's existence alone decides.
	StaleAfter time.Duration
}

// File holds the lock by exclusively creating an empty marker file.
type File struct {
	cfg    FileConfig
	now    func() time.Time
	logger *zap.Logger

	mu   sync.Mutex
	held bool
}

// NewFile validates cfg and returns a File lock.
func NewFile(cfg FileConfig, logger *zap.Logger) (*File, error) {
	if cfg.Path == "" {
		return nil, errors.New("lock path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &File{cfg: cfg, now: time.Now, logger: logger}, nil
}

// TryAcquire creates the marker or returns tracker.ErrLockContended.
func (l *File) TryAcquire(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held {
		return tracker.ErrLockContended
	}
	if err := os.MkdirAll(filepath.Dir(l.cfg.Path), 0o750); err != nil {
		return fmt.Errorf("create lock dir: %w", err)
	}
	err := l.create()
	if errors.Is(err, fs.ErrExist) && l.reclaimStale() {
		err = l.create()
	}
	if errors.Is(err, fs.ErrExist) {
		return tracker.ErrLockContended
	}
	if err != nil {
		return fmt.Errorf("create lock marker: %w", err)
	}
	l.held = true
	return nil
}

func (l *File) create() error {
	f, err := os.OpenFile(l.cfg.Path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return err //nolint:wrapcheck // classified by caller
	}
	return f.Close() //nolint:wrapcheck // classified by caller
}

func (l *File) reclaimStale() bool {
	if l.cfg.StaleAfter <= 0 {
		return false
	}
	info, err := os.Stat(l.cfg.Path)
	if err != nil {
		return errors.Is(err, fs.ErrNotExist)
	}
	age := l.now().Sub(info.ModTime())
	if age < l.cfg.StaleAfter {
		return false
	}
	if err := os.Remove(l.cfg.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		l.logger.Warn("remove stale lock failed", zap.String("path", l.cfg.Path), zap.Error(err))
		return false
	}
	l.logger.Warn("reclaimed stale lock", zap.String("path", l.cfg.Path), zap.Duration("age", age))
	return true
}

// Release removes the marker if this instance created it.
func (l *File) Release(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.held {
		return nil
	}
	l.held = false
	if err := os.Remove(l.cfg.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove lock marker: %w", err)
	}
	return nil
}
