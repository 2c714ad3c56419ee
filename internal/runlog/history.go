package runlog

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/hpcloud/tail"
	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"

	"github.com/xkilldash9x/mailpilot/api/schemas"
)

// maxLineSize bounds a single run log line.
const maxLineSize = 1 << 20

// Read returns the last limit outcomes recorded in the JSONL file at path,
// oldest first. limit <= 0 returns everything. A missing file is an empty
// history. Lines that do not decode are skipped and counted in skipped.
func Read(path string, limit int) (outcomes []schemas.RunOutcome, skipped int, err error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, 0, fmt.Errorf("expand run log path: %w", err)
	}
	f, err := os.Open(expanded)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("open run log: %w", err)
	}
	defer f.Close()
	return decodeLines(f, limit)
}

func decodeLines(r io.Reader, limit int) ([]schemas.RunOutcome, int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var (
		out     []schemas.RunOutcome
		skipped int
	)
	for scanner.Scan() {
		o, ok := decodeLine(scanner.Text())
		if !ok {
			if strings.TrimSpace(scanner.Text()) != "" {
				skipped++
			}
			continue
		}
		out = append(out, o)
		if limit > 0 && len(out) > limit {
			out = out[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		return out, skipped, fmt.Errorf("read run log: %w", err)
	}
	return out, skipped, nil
}

func decodeLine(line string) (schemas.RunOutcome, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return schemas.RunOutcome{}, false
	}
	var o schemas.RunOutcome
	if err := json.Unmarshal([]byte(line), &o); err != nil {
		return schemas.RunOutcome{}, false
	}
	return o, true
}

// Follow streams outcomes appended to path after the call, invoking fn for
// each, until ctx is done. The file need not exist yet.
func Follow(ctx context.Context, path string, logger *zap.Logger, fn func(schemas.RunOutcome)) error {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return fmt.Errorf("expand run log path: %w", err)
	}
	t, err := tail.TailFile(expanded, tail.Config{
		Follow:    true,
		ReOpen:    true,
		MustExist: false,
		Location:  &tail.SeekInfo{Offset: 0, Whence: io.SeekEnd},
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return fmt.Errorf("tail run log: %w", err)
	}
	defer t.Cleanup()
	defer func() {
		if err := t.Stop(); err != nil {
			logger.Debug("Tail stopped with error.", zap.Error(err))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-t.Lines:
			if !ok {
				return t.Err()
			}
			if line.Err != nil {
				logger.Warn("Error while tailing run log.", zap.Error(line.Err))
				continue
			}
			o, ok := decodeLine(line.Text)
			if !ok {
				logger.Debug("Skipping undecodable run log line.", zap.String("line", line.Text))
				continue
			}
			fn(o)
		}
	}
}
