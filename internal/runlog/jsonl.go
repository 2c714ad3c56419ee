package runlog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mitchellh/go-homedir"

	"github.com/xkilldash9x/mailpilot/api/schemas"
)

// FileSink appends one JSON object per line to a local file.
type FileSink struct {
	path string

	mu   sync.Mutex
	file *os.File
}

var _ Sink = (*FileSink)(nil)

// NewFileSink opens path for appending, creating it and its parent
// directories if needed. A leading ~ is expanded.
func NewFileSink(path string) (*FileSink, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("expand run log path: %w", err)
	}
	if dir := filepath.Dir(expanded); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create run log directory: %w", err)
		}
	}
	f, err := os.OpenFile(expanded, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open run log: %w", err)
	}
	return &FileSink{path: expanded, file: f}, nil
}

// Path returns the expanded file path.
func (s *FileSink) Path() string { return s.path }

// Append writes outcome as a single line. A zero timestamp is stamped with
// the current UTC time.
func (s *FileSink) Append(_ context.Context, outcome schemas.RunOutcome) error {
	if outcome.Timestamp.IsZero() {
		outcome.Timestamp = time.Now().UTC()
	}
	line, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("encode run outcome: %w", err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return fmt.Errorf("run log %s is closed", s.path)
	}
	if _, err := s.file.Write(line); err != nil {
		return fmt.Errorf("write run log: %w", err)
	}
	return nil
}

func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
