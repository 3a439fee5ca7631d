package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// waitDelay bounds how long output pipes are drained after the engine is
// killed
const waitDelay = 2 * time.Second

// CommandError is returned when the engine exits unsuccessfully
type CommandError struct {
	Binary   string
	Args     []string
	ExitCode int
	Output   string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s exited with code %d: %s", filepath.Base(e.Binary), e.ExitCode, lastLine(e.Output))
}

// Session is one scoped use of an engine
type Session struct {
	engine *Engine
	dir    string
	closed bool
}

// Dir returns the session's scratch directory
func (s *Session) Dir() string { return s.dir }

// Path returns name inside the scratch directory
func (s *Session) Path(name string) string { return filepath.Join(s.dir, name) }

// Execute runs the engine with args in the scratch directory and returns its
// combined output
func (s *Session) Execute(ctx context.Context, args ...string) (string, error) {
	var buf bytes.Buffer
	err := s.ExecuteStream(ctx, &buf, args...)
	return buf.String(), err
}

// ExecuteStream runs the engine with args, copying its combined output to w
func (s *Session) ExecuteStream(ctx context.Context, w io.Writer, args ...string) error {
	if s.closed {
		return fmt.Errorf("session %s already closed", s.dir)
	}
	ctx, cancel := s.engine.commandContext(ctx)
	defer cancel()

	var captured bytes.Buffer
	out := io.MultiWriter(w, &captured)

	cmd := exec.CommandContext(ctx, s.engine.Binary, args...)
	cmd.Dir = s.dir
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.WaitDelay = waitDelay

	s.engine.logger.Debug("Executing", zap.Strings("args", args), zap.String("scratch", s.dir))
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%s interrupted: %w", filepath.Base(s.engine.Binary), ctx.Err())
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &CommandError{
				Binary:   s.engine.Binary,
				Args:     args,
				ExitCode: exitErr.ExitCode(),
				Output:   captured.String(),
			}
		}
		return fmt.Errorf("failed to run %s: %w", s.engine.Binary, err)
	}
	return nil
}

// Commit moves a file produced in the scratch directory to dest. Nothing is
// written at dest unless the file exists and is non-empty.
func (s *Session) Commit(name, dest string) error {
	src := s.Path(name)
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("engine produced no %s: %w", name, err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("engine produced an empty %s", name)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	if err := os.Rename(src, dest); err == nil {
		return nil
	}
	// Scratch and destination may be on different filesystems
	return copyFile(src, dest)
}

// Close removes the scratch directory. It is safe to call more than once.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if err := os.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("failed to remove scratch dir %s: %w", s.dir, err)
	}
	s.engine.logger.Debug("Session closed", zap.String("scratch", s.dir))
	return nil
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	tmp := dest + ".partial"
	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", tmp, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to close %s: %w", tmp, err)
	}
	return os.Rename(tmp, dest)
}

func lastLine(output string) string {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return l
		}
	}
	return "no output"
}
