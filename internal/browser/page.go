package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"go.uber.org/zap"

	"github.com/xkilldash9x/mailpilot/api/schemas"
	"github.com/xkilldash9x/mailpilot/internal/browser/humanoid"
	"github.com/xkilldash9x/mailpilot/internal/browser/session"
	"github.com/xkilldash9x/mailpilot/internal/config"
)

// visibilityPollInterval is how often WaitVisible re-checks the DOM.
const visibilityPollInterval = 250 * time.Millisecond

// keyNames maps the key names accepted by Press to chromedp key codes.
var keyNames = map[string]string{
	"Enter":     kb.Enter,
	"Tab":       kb.Tab,
	"Escape":    kb.Escape,
	"Backspace": kb.Backspace,
	"ArrowDown": kb.ArrowDown,
	"ArrowUp":   kb.ArrowUp,
}

// Page is one Chrome tab driven over CDP.
type Page struct {
	ctx    context.Context
	cancel context.CancelFunc
	typist *humanoid.Typist
	logger *zap.Logger

	closeOnce sync.Once
	closeErr  error
}

var _ schemas.Page = (*Page)(nil)

func newPage(tabCtx context.Context, cancel context.CancelFunc, humanoidCfg config.HumanoidConfig, logger *zap.Logger) *Page {
	p := &Page{
		ctx:    tabCtx,
		cancel: cancel,
		logger: logger,
	}
	p.typist = humanoid.NewTypist(session.NewCDPExecutor(p.runActions, logger), humanoidCfg)
	return p
}

// runActions executes actions on the tab, bounded by opCtx.
func (p *Page) runActions(opCtx context.Context, actions ...chromedp.Action) error {
	ctx, cancel := session.CombineContext(p.ctx, opCtx)
	defer cancel()
	return chromedp.Run(ctx, actions...)
}

func (p *Page) SetViewport(ctx context.Context, width, height int) error {
	return p.runActions(ctx, chromedp.EmulateViewport(int64(width), int64(height)))
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := p.runActions(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	return nil
}

func (p *Page) Reload(ctx context.Context) error {
	return p.runActions(ctx, chromedp.Reload())
}

// IsVisible reports whether any element matching locator is rendered.
func (p *Page) IsVisible(ctx context.Context, raw string) (bool, error) {
	l, err := parseLocator(raw)
	if err != nil {
		return false, err
	}
	var visible bool
	if err := p.runActions(ctx, chromedp.Evaluate(l.visibleScript(), &visible)); err != nil {
		return false, err
	}
	return visible, nil
}

// WaitVisible polls until any match is visible. Evaluation errors while the
// page is mid-navigation count as "not yet".
func (p *Page) WaitVisible(ctx context.Context, raw string, timeout time.Duration) error {
	if _, err := parseLocator(raw); err != nil {
		return err
	}
	return pollUntil(ctx, timeout, visibilityPollInterval, func(ctx context.Context) bool {
		visible, err := p.IsVisible(ctx, raw)
		if err != nil {
			p.logger.Debug("Visibility check failed.", zap.String("locator", raw), zap.Error(err))
		}
		return visible
	})
}

func (p *Page) Click(ctx context.Context, raw string) error {
	l, err := parseLocator(raw)
	if err != nil {
		return err
	}
	return p.runActions(ctx, chromedp.Click(l.target(), append(l.queryOptions(), chromedp.NodeVisible)...))
}

func (p *Page) Fill(ctx context.Context, raw, value string) error {
	l, err := parseLocator(raw)
	if err != nil {
		return err
	}
	var ok bool
	if err := p.runActions(ctx, chromedp.Evaluate(l.fillScript(value), &ok)); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no fillable element matches %q", raw)
	}
	return nil
}

// Type clicks the element to focus it, then types text key by key.
func (p *Page) Type(ctx context.Context, raw, text string, delay time.Duration) error {
	if err := p.Click(ctx, raw); err != nil {
		return fmt.Errorf("focus %q: %w", raw, err)
	}
	return p.typist.Type(ctx, text, delay)
}

func (p *Page) Press(ctx context.Context, raw, key string) error {
	code, ok := keyNames[key]
	if !ok {
		return fmt.Errorf("unsupported key %q", key)
	}
	if raw != "" {
		l, err := parseLocator(raw)
		if err != nil {
			return err
		}
		if err := p.runActions(ctx, chromedp.Focus(l.target(), l.queryOptions()...)); err != nil {
			return fmt.Errorf("focus %q: %w", raw, err)
		}
	}
	return p.runActions(ctx, chromedp.KeyEvent(code))
}

// Close closes the tab. It is safe to call more than once.
func (p *Page) Close(ctx context.Context) error {
	p.closeOnce.Do(func() {
		done := make(chan error, 1)
		go func() { done <- chromedp.Cancel(p.ctx) }()
		select {
		case err := <-done:
			if err != nil && !errors.Is(err, context.Canceled) {
				p.closeErr = fmt.Errorf("close tab: %w", err)
			}
		case <-ctx.Done():
			p.closeErr = fmt.Errorf("close tab: %w", ctx.Err())
		}
		p.cancel()
	})
	return p.closeErr
}

// pollUntil calls check every interval until it returns true, timeout
// elapses, or ctx is done. The first check runs immediately.
func pollUntil(ctx context.Context, timeout, interval time.Duration, check func(context.Context) bool) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if check(waitCtx) {
			return nil
		}
		select {
		case <-waitCtx.Done():
			if err := ctx.Err(); err != nil {
				return err
			}
			return fmt.Errorf("not visible after %v: %w", timeout, waitCtx.Err())
		case <-ticker.C:
		}
	}
}
