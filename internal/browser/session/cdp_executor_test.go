// internal/browser/session/cdp_executor_test.go
package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestCDPExecutor(t *testing.T) {
	logger := zaptest.NewLogger(t)

	t.Run("Sleep", func(t *testing.T) {
		var captured []chromedp.Action
		executor := NewCDPExecutor(func(ctx context.Context, actions ...chromedp.Action) error {
			captured = actions
			return nil
		}, logger)

		require.NoError(t, executor.Sleep(context.Background(), 100*time.Millisecond))
		require.Len(t, captured, 1)
		assert.IsType(t, (chromedp.ActionFunc)(nil), captured[0])
	})

	t.Run("SendKeys_Success", func(t *testing.T) {
		var captured []chromedp.Action
		var deadlineSet bool
		executor := NewCDPExecutor(func(ctx context.Context, actions ...chromedp.Action) error {
			captured = actions
			_, deadlineSet = ctx.Deadline()
			return nil
		}, logger)

		require.NoError(t, executor.SendKeys(context.Background(), "a"))
		require.Len(t, captured, 1)
		assert.True(t, deadlineSet, "key dispatch should run under its own timeout")
	})

	t.Run("SendKeys_PropagatesError", func(t *testing.T) {
		boom := errors.New("target closed")
		executor := NewCDPExecutor(func(ctx context.Context, actions ...chromedp.Action) error {
			return boom
		}, logger)

		assert.ErrorIs(t, executor.SendKeys(context.Background(), "a"), boom)
	})

	t.Run("SendKeys_ParentCancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		executor := NewCDPExecutor(func(ctx context.Context, actions ...chromedp.Action) error {
			<-ctx.Done()
			return ctx.Err()
		}, logger)

		err := executor.SendKeys(ctx, "a")
		assert.ErrorIs(t, err, context.Canceled)
		assert.NotContains(t, err.Error(), "timed out")
	})
}
