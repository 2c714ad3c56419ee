package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/mailpilot/api/schemas"
	"github.com/xkilldash9x/mailpilot/internal/browser/stealth"
	"github.com/xkilldash9x/mailpilot/internal/config"
)

// Session is one Chrome process running on a persistent provider profile.
type Session struct {
	id         string
	provider   schemas.ProviderTag
	profileDir string
	cfg        config.BrowserConfig
	persona    stealth.Persona
	logger     *zap.Logger

	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc

	mu     sync.Mutex
	pages  []*Page
	closed bool
}

var _ schemas.Session = (*Session)(nil)

func (s *Session) ID() string { return s.id }

// ProfileDir is the user data directory backing this session.
func (s *Session) ProfileDir() string { return s.profileDir }

// NewPage opens a tab with the stealth persona installed.
func (s *Session) NewPage(ctx context.Context) (schemas.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("%w: session %s is closed", schemas.ErrSession, s.id)
	}

	tabCtx, cancel := chromedp.NewContext(s.browserCtx)
	page := newPage(tabCtx, cancel, s.cfg.Humanoid, s.logger.With(zap.Int("tab", len(s.pages)+1)))

	if err := page.runActions(ctx, stealth.Apply(s.persona, s.logger)); err != nil {
		cancel()
		return nil, fmt.Errorf("%w: prepare tab: %v", schemas.ErrSession, err)
	}
	s.pages = append(s.pages, page)
	return page, nil
}

// Close shuts the browser down. The profile directory is kept so the next
// run reuses the login. Safe to call more than once.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.logger.Info("Closing browser session.")

	var errs []error
	done := make(chan error, 1)
	go func() { done <- chromedp.Cancel(s.browserCtx) }()
	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			errs = append(errs, fmt.Errorf("close browser: %w", err))
		}
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("close browser: %w", ctx.Err()))
	}
	// Cancelling the allocator kills the process if the graceful close failed
	// and removes nothing from disk since UserDataDir is set.
	s.browserCancel()
	s.allocCancel()
	return errors.Join(errs...)
}
