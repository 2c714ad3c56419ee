package schemas

import (
	"context"
	"time"
)

// -- Page Automation --

// Session is a scoped browser session backed by a persistent profile. It is
// acquired once per run and must be closed on every exit path.
type Session interface {
	ID() string
	// NewPage opens a new tab in the session's window.
	NewPage(ctx context.Context) (Page, error)
	// Close tears down the browser process.
	Close(ctx context.Context) error
}

// SessionOpener acquires a session for a provider. Each provider keeps its
// own persisted profile directory.
type SessionOpener interface {
	Open(ctx context.Context, provider ProviderTag) (Session, error)
}

// Page is a single tab. Every locator argument is resolved by the
// implementation; the first matching element is the target.
type Page interface {
	SetViewport(ctx context.Context, width, height int) error
	Navigate(ctx context.Context, url string) error
	Reload(ctx context.Context) error
	// WaitVisible blocks until the locator is visible or timeout elapses.
	WaitVisible(ctx context.Context, locator string, timeout time.Duration) error
	// IsVisible reports current visibility without waiting.
	IsVisible(ctx context.Context, locator string) (bool, error)
	Click(ctx context.Context, locator string) error
	// Fill sets the element's value directly, dispatching input/change events.
	Fill(ctx context.Context, locator, value string) error
	// Type focuses the element then sends text key by key with roughly delay
	// between strokes.
	Type(ctx context.Context, locator, text string, delay time.Duration) error
	// Press sends a named key (e.g. "Enter"). An empty locator targets the
	// focused element.
	Press(ctx context.Context, locator, key string) error
	Close(ctx context.Context) error
}

// -- LLM Client Schemas & Interface --

// GenerationOptions controls the text generation process of the LLM.
type GenerationOptions struct {
	Temperature     float64 `json:"temperature"`       // Controls randomness. Lower is more deterministic.
	ForceJSONFormat bool    `json:"force_json_format"` // If true, forces the model to output valid JSON.
}

// GenerationRequest encapsulates a complete request to the LLM.
type GenerationRequest struct {
	SystemPrompt string            `json:"system_prompt"`
	UserPrompt   string            `json:"user_prompt"`
	Options      GenerationOptions `json:"options"`
}

// LLMClient defines a standard interface for interacting with a Large Language
// Model, abstracting the specifics of the underlying provider.
type LLMClient interface {
	// Generate produces a text completion based on the provided request.
	Generate(ctx context.Context, req GenerationRequest) (string, error)
	// Close cleans up any resources held by the client.
	Close() error
}
