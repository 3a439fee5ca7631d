// Package executor runs external geometry engines in scoped sessions. Each
// session owns a scratch directory that is removed when the session ends,
// whatever the outcome of the commands run inside it.
package executor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"go.uber.org/zap"
)

// Engine launches one external binary
type Engine struct {
	Binary      string
	ScratchRoot string        // Parent of session scratch dirs; os.TempDir() when empty
	Timeout     time.Duration // Per-command limit; zero means none
	logger      *zap.Logger
}

// NewEngine creates an engine for binary
func NewEngine(binary, scratchRoot string, timeout time.Duration, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		Binary:      binary,
		ScratchRoot: scratchRoot,
		Timeout:     timeout,
		logger:      logger.With(zap.String("engine", binary)),
	}
}

// Available checks that the binary can be found
func (e *Engine) Available() error {
	if _, err := exec.LookPath(e.Binary); err != nil {
		return fmt.Errorf("engine %s not available: %w", e.Binary, err)
	}
	return nil
}

// Open starts a session. The caller must Close it.
func (e *Engine) Open() (*Session, error) {
	root := e.ScratchRoot
	if root != "" {
		if err := os.MkdirAll(root, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create scratch root: %w", err)
		}
	}
	dir, err := os.MkdirTemp(root, "session-")
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch dir: %w", err)
	}
	e.logger.Debug("Session opened", zap.String("scratch", dir))
	return &Session{engine: e, dir: dir}, nil
}

// WithSession runs fn inside a fresh session and releases it on every exit
// path, including panics
func (e *Engine) WithSession(fn func(*Session) error) (err error) {
	s, err := e.Open()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(s)
}

func (e *Engine) commandContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.Timeout > 0 {
		return context.WithTimeout(ctx, e.Timeout)
	}
	return context.WithCancel(ctx)
}
