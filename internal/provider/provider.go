// Package provider turns a parsed intent into a mail-UI specific plan and
// executes that plan against a live page.
//
// Every provider emits the same five ordered steps (open compose, recipient,
// subject, body, send). Only locators, the mailbox URL, typing speed and two
// small hooks differ, so a single Engine serves all of them.
package provider

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/mailpilot/api/schemas"
	"github.com/xkilldash9x/mailpilot/internal/config"
)

// Step indices shared by every plan.
const (
	StepOpenCompose = iota
	StepRecipient
	StepSubject
	StepBody
	StepSend

	stepCount
)

// mailboxLandmark is rendered by both supported UIs once the mailbox is usable.
const mailboxLandmark = "div[role='navigation']"

// Provider builds and executes plans for one mail UI.
type Provider interface {
	Tag() schemas.ProviderTag
	// Plan is pure: the same intent always yields the same plan.
	Plan(intent schemas.ParsedIntent) schemas.Plan
	Execute(ctx context.Context, session schemas.Session, plan schemas.Plan, dryRun bool) (*Report, error)
}

// Profile describes a mail UI.
type Profile struct {
	Tag        schemas.ProviderTag
	MailboxURL string
	// Landmark marks a loaded mailbox; LoginForm marks a sign-in page.
	Landmark  string
	LoginForm string

	Compose   string
	Recipient string
	Subject   string
	Body      string
	Send      string

	TypeDelay time.Duration

	// Recover is tried once when the compose trigger is missing.
	Recover func(ctx context.Context, page schemas.Page) error
	// AfterStep runs after a step was dispatched successfully.
	AfterStep func(ctx context.Context, page schemas.Page, index int, action schemas.DomAction) error
}

// readySelector matches either a loaded mailbox or a login form.
func (p *Profile) readySelector() string {
	return p.Landmark + ", " + p.LoginForm
}

// Plan builds the five-step compose-and-send plan. A missing subject is
// filled with an empty string.
func (p *Profile) Plan(intent schemas.ParsedIntent) schemas.Plan {
	actions := make([]schemas.DomAction, stepCount)
	actions[StepOpenCompose] = schemas.DomAction{Description: "Open compose", Locator: p.Compose, Kind: schemas.ActionClick}
	actions[StepRecipient] = schemas.DomAction{Description: "Fill To", Locator: p.Recipient, Kind: schemas.ActionType, Value: schemas.StrPtr(intent.Recipient)}
	actions[StepSubject] = schemas.DomAction{Description: "Fill Subject", Locator: p.Subject, Kind: schemas.ActionFill, Value: schemas.StrPtr(intent.Subject)}
	actions[StepBody] = schemas.DomAction{Description: "Fill Body", Locator: p.Body, Kind: schemas.ActionType, Value: schemas.StrPtr(intent.Message)}
	actions[StepSend] = schemas.DomAction{Description: "Send", Locator: p.Send, Kind: schemas.ActionClick}
	return schemas.Plan{Provider: p.Tag, Actions: actions}
}

// mailProvider binds a Profile to an Engine.
type mailProvider struct {
	profile *Profile
	engine  *Engine
}

var _ Provider = (*mailProvider)(nil)

// New creates a Provider for profile.
func New(profile *Profile, engine *Engine) Provider {
	return &mailProvider{profile: profile, engine: engine}
}

func (m *mailProvider) Tag() schemas.ProviderTag { return m.profile.Tag }

func (m *mailProvider) Plan(intent schemas.ParsedIntent) schemas.Plan { return m.profile.Plan(intent) }

func (m *mailProvider) Execute(ctx context.Context, session schemas.Session, plan schemas.Plan, dryRun bool) (*Report, error) {
	return m.engine.Execute(ctx, m.profile, session, plan, dryRun)
}

// Registry maps provider tags to providers.
type Registry struct {
	providers map[schemas.ProviderTag]Provider
	fallback  schemas.ProviderTag
	logger    *zap.Logger
}

// NewRegistry creates a registry holding every supported provider.
func NewRegistry(cfg config.ProvidersConfig, viewport config.ViewportConfig, logger *zap.Logger) *Registry {
	engine := NewEngine(TimeoutsFromConfig(cfg), viewport, logger)
	fallback := schemas.ProviderTag(strings.ToLower(strings.TrimSpace(cfg.Default)))
	if !fallback.Valid() {
		fallback = schemas.DefaultProvider
	}
	return &Registry{
		providers: map[schemas.ProviderTag]Provider{
			schemas.ProviderGmail:   New(GmailProfile(cfg.Gmail), engine),
			schemas.ProviderOutlook: New(OutlookProfile(cfg.Outlook), engine),
		},
		fallback: fallback,
		logger:   logger.Named("provider"),
	}
}

// Resolve matches name case-insensitively. Unknown names, "auto" and the
// empty string resolve to the default provider; Resolve never fails.
func (r *Registry) Resolve(name string) Provider {
	tag := schemas.ProviderTag(strings.ToLower(strings.TrimSpace(name)))
	if p, ok := r.providers[tag]; ok {
		return p
	}
	if tag != "" && tag != "auto" {
		r.logger.Warn("Unsupported provider, using the default.", zap.String("requested", name), zap.String("provider", string(r.fallback)))
	}
	return r.providers[r.fallback]
}
