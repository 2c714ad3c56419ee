// internal/browser/manager.go
package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/mailpilot/api/schemas"
	"github.com/xkilldash9x/mailpilot/internal/browser/session"
	"github.com/xkilldash9x/mailpilot/internal/browser/stealth"
	"github.com/xkilldash9x/mailpilot/internal/config"
)

const launchTimeout = 60 * time.Second

// Manager launches Chrome sessions on per-provider persistent profiles.
type Manager struct {
	cfg    config.BrowserConfig
	logger *zap.Logger
}

var _ schemas.SessionOpener = (*Manager)(nil)

// NewManager creates a new browser manager. Nothing is launched until Open.
func NewManager(cfg config.BrowserConfig, logger *zap.Logger) *Manager {
	return &Manager{
		cfg:    cfg,
		logger: logger.Named("browser_manager"),
	}
}

// ProfileDir returns the user data directory for provider.
func (m *Manager) ProfileDir(provider schemas.ProviderTag) string {
	return filepath.Join(m.cfg.UserDataDir, string(provider))
}

// Open launches a browser on provider's profile and waits for it to accept
// commands.
func (m *Manager) Open(ctx context.Context, provider schemas.ProviderTag) (schemas.Session, error) {
	if !provider.Valid() {
		return nil, fmt.Errorf("%w: unknown provider %q", schemas.ErrSession, provider)
	}
	profileDir := m.ProfileDir(provider)
	if err := os.MkdirAll(profileDir, 0o700); err != nil {
		return nil, fmt.Errorf("%w: create profile directory: %v", schemas.ErrSession, err)
	}

	id := uuid.NewString()
	logger := m.logger.With(zap.String("session_id", id), zap.String("provider", string(provider)))

	// The browser must outlive the caller's deadlines; Close tears it down.
	allocCtx, allocCancel := chromedp.NewExecAllocator(session.Detach(ctx), DefaultAllocatorOptions(m.cfg, profileDir)...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(logger.Sugar().Debugf),
		chromedp.WithErrorf(logger.Sugar().Debugf),
	)

	logger.Info("Launching browser.", zap.String("profile", profileDir), zap.Bool("headless", m.cfg.Headless))

	// The first Run allocates the browser and binds it to the context it is
	// given, so it runs on browserCtx itself and the launch bound is applied
	// from outside.
	started := make(chan error, 1)
	go func() { started <- chromedp.Run(browserCtx) }()

	launchCtx, cancel := context.WithTimeout(ctx, launchTimeout)
	defer cancel()
	select {
	case err := <-started:
		if err != nil {
			browserCancel()
			allocCancel()
			return nil, fmt.Errorf("%w: launch browser: %v", schemas.ErrSession, err)
		}
	case <-launchCtx.Done():
		browserCancel()
		allocCancel()
		<-started
		return nil, fmt.Errorf("%w: launch browser: %v", schemas.ErrSession, launchCtx.Err())
	}

	return &Session{
		id:            id,
		provider:      provider,
		profileDir:    profileDir,
		cfg:           m.cfg,
		persona:       stealth.PersonaFromConfig(m.cfg),
		logger:        logger,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		allocCancel:   allocCancel,
	}, nil
}
