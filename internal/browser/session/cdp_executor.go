// internal/browser/session/cdp_executor.go
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/mailpilot/internal/browser/humanoid"
)

// RunActionsFunc executes chromedp actions against a tab under an operation
// context.
type RunActionsFunc func(ctx context.Context, actions ...chromedp.Action) error

// keyEventTimeout bounds a single key dispatch.
const keyEventTimeout = 10 * time.Second

// CDPExecutor adapts chromedp to humanoid.Executor.
type CDPExecutor struct {
	logger         *zap.Logger
	runActionsFunc RunActionsFunc
}

var _ humanoid.Executor = (*CDPExecutor)(nil)

// NewCDPExecutor creates an executor that routes every action through run.
func NewCDPExecutor(run RunActionsFunc, logger *zap.Logger) *CDPExecutor {
	return &CDPExecutor{logger: logger, runActionsFunc: run}
}

// Sleep pauses execution for the specified duration, respecting the context.
func (e *CDPExecutor) Sleep(ctx context.Context, d time.Duration) error {
	return e.runActionsFunc(ctx, chromedp.Sleep(d))
}

// SendKeys dispatches keyboard events to the focused element.
func (e *CDPExecutor) SendKeys(ctx context.Context, keys string) error {
	opCtx, cancel := context.WithTimeout(ctx, keyEventTimeout)
	defer cancel()

	err := e.runActionsFunc(opCtx, chromedp.KeyEvent(keys))
	if err != nil && errors.Is(opCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		e.logger.Debug("SendKeys timed out.", zap.Duration("timeout", keyEventTimeout))
		return fmt.Errorf("send keys timed out after %v: %w", keyEventTimeout, opCtx.Err())
	}
	return err
}
