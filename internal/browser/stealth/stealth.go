// Package stealth makes an automated Chrome tab look like a user-operated
// one: consistent user agent, navigator properties and request headers.
package stealth

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/mailpilot/internal/config"
)

//go:embed evasions.js
var evasionsTemplate string

// Persona defines the browser characteristics to emulate.
type Persona struct {
	UserAgent string
	Platform  string
	Languages []string
	Headers   map[string]string
}

// DefaultPersona is a desktop Chrome on Windows.
var DefaultPersona = Persona{
	UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	Platform:  "Win32",
	Languages: []string{"en-US", "en"},
	Headers: map[string]string{
		"Accept-Language": "en-US,en;q=0.9",
	},
}

// PersonaFromConfig overlays the configured user agent and headers on
// DefaultPersona.
func PersonaFromConfig(cfg config.BrowserConfig) Persona {
	p := DefaultPersona
	if cfg.UserAgent != "" {
		p.UserAgent = cfg.UserAgent
	}
	if len(cfg.Headers) > 0 {
		p.Headers = make(map[string]string, len(cfg.Headers))
		for k, v := range cfg.Headers {
			p.Headers[k] = v
		}
	}
	return p
}

// Script renders the evasions script for p.
func (p Persona) Script() string {
	platform, _ := jsoniter.MarshalToString(p.Platform)
	languages, _ := jsoniter.MarshalToString(p.Languages)
	return strings.NewReplacer(
		"__PLATFORM__", platform,
		"__LANGUAGES__", languages,
	).Replace(evasionsTemplate)
}

// Apply returns the CDP actions that install p on a tab. They must run
// before the first navigation.
func Apply(p Persona, logger *zap.Logger) chromedp.Tasks {
	logger.Debug("Applying browser stealth persona",
		zap.String("userAgent", p.UserAgent),
		zap.String("platform", p.Platform),
	)

	headers := make(network.Headers, len(p.Headers))
	for k, v := range p.Headers {
		headers[k] = v
	}

	tasks := chromedp.Tasks{
		emulation.SetUserAgentOverride(p.UserAgent).
			WithPlatform(p.Platform).
			WithAcceptLanguage(strings.Join(p.Languages, ",")),
		// AddScriptToEvaluateOnNewDocument returns an identifier as well as an
		// error, so it needs an ActionFunc wrapper.
		chromedp.ActionFunc(func(ctx context.Context) error {
			if _, err := page.AddScriptToEvaluateOnNewDocument(p.Script()).Do(ctx); err != nil {
				return fmt.Errorf("failed to inject evasions script: %w", err)
			}
			return nil
		}),
	}
	if len(headers) > 0 {
		tasks = append(tasks, network.Enable(), network.SetExtraHTTPHeaders(headers))
	}
	return tasks
}
