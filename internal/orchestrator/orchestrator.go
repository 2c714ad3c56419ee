// Package orchestrator runs a single send end to end: understand the
// instruction, plan it for the chosen mail UI, execute it inside a browser
// session, and record the outcome.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/mailpilot/api/schemas"
	"github.com/xkilldash9x/mailpilot/internal/browser/session"
	"github.com/xkilldash9x/mailpilot/internal/intent"
	"github.com/xkilldash9x/mailpilot/internal/provider"
	"github.com/xkilldash9x/mailpilot/internal/runlog"
)

const (
	// sessionCloseTimeout bounds browser teardown.
	sessionCloseTimeout = 15 * time.Second
	// recordTimeout bounds the run log append.
	recordTimeout = 10 * time.Second
)

// IntentService understands instructions. *intent.Extractor satisfies it.
type IntentService interface {
	Extract(ctx context.Context, text string) (schemas.ParsedIntent, error)
	Paraphrase(ctx context.Context, message string) string
}

// ProviderResolver picks a provider by name. *provider.Registry satisfies it.
type ProviderResolver interface {
	Resolve(name string) provider.Provider
}

// LingerFunc holds a session open after execution. It runs before the session
// is closed and must return once the grace period is over.
type LingerFunc func(ctx context.Context, s schemas.Session)

// Request is one user instruction plus its options.
type Request struct {
	Instruction     string
	Provider        string
	SubjectOverride string
	DryRun          bool
}

// Orchestrator coordinates a run. It is injected with its collaborators via
// interfaces.
type Orchestrator struct {
	intents    IntentService
	providers  ProviderResolver
	opener     schemas.SessionOpener
	sink       runlog.Sink
	senderName string
	linger     LingerFunc
	logger     *zap.Logger
	now        func() time.Time
}

// New creates an Orchestrator. sink may be nil to skip run logging.
func New(
	intents IntentService,
	providers ProviderResolver,
	opener schemas.SessionOpener,
	sink runlog.Sink,
	senderName string,
	logger *zap.Logger,
) (*Orchestrator, error) {
	if intents == nil || providers == nil || opener == nil || logger == nil {
		return nil, fmt.Errorf("cannot initialize orchestrator with nil dependencies")
	}
	return &Orchestrator{
		intents:    intents,
		providers:  providers,
		opener:     opener,
		sink:       sink,
		senderName: senderName,
		logger:     logger.Named("orchestrator"),
		now:        time.Now,
	}, nil
}

// WithLinger installs fn to run between execution and session close.
func (o *Orchestrator) WithLinger(fn LingerFunc) *Orchestrator {
	o.linger = fn
	return o
}

// Run executes req and returns its outcome. Run never fails: every error is
// folded into a StatusFailed outcome, which is also appended to the run log.
func (o *Orchestrator) Run(ctx context.Context, req Request) schemas.RunOutcome {
	prov := o.providers.Resolve(req.Provider)
	out := schemas.RunOutcome{
		RunID:          uuid.NewString(),
		Timestamp:      o.now().UTC(),
		Provider:       prov.Tag(),
		RawInstruction: req.Instruction,
		DryRun:         req.DryRun,
	}
	log := o.logger.With(zap.String("run_id", out.RunID), zap.String("provider", string(out.Provider)))
	log.Info("Run started.", zap.Bool("dry_run", req.DryRun))

	err := o.run(ctx, log, prov, req, &out)
	switch {
	case err != nil:
		out.Status = schemas.StatusFailed
		out.Error = schemas.StrPtr(err.Error())
		log.Error("Run failed.", zap.Error(err))
	case req.DryRun:
		out.Status = schemas.StatusPlanned
		log.Info("Dry run complete.")
	default:
		out.Status = schemas.StatusExecuted
		log.Info("Run executed.", zap.Int("failed_steps", len(out.FailedSteps)))
	}

	o.record(ctx, log, out)
	return out
}

func (o *Orchestrator) run(ctx context.Context, log *zap.Logger, prov provider.Provider, req Request, out *schemas.RunOutcome) error {
	parsed, err := o.intents.Extract(ctx, req.Instruction)
	if err != nil {
		return fmt.Errorf("could not understand instruction: %w", err)
	}
	if s := strings.TrimSpace(req.SubjectOverride); s != "" {
		parsed.Subject = s
	}
	if parsed.Subject == "" {
		parsed.Subject = schemas.DefaultSubject
	}
	if parsed.RecipientName == "" {
		parsed.RecipientName = schemas.RecipientNameFromAddress(parsed.Recipient)
	}
	out.Parsed = parsed
	out.Subject = parsed.Subject
	log.Debug("Instruction understood.", zap.String("recipient", parsed.Recipient), zap.String("subject", parsed.Subject))

	polished := o.intents.Paraphrase(ctx, parsed.Message)
	out.ParaphrasedMessage = polished

	toSend := parsed
	toSend.Message = intent.FillPlaceholders(polished, parsed.RecipientName, o.senderName)
	plan := prov.Plan(toSend)

	return o.WithSession(ctx, prov.Tag(), func(s schemas.Session) error {
		report, err := prov.Execute(ctx, s, plan, req.DryRun)
		if report != nil {
			for _, stepErr := range report.FailedSteps() {
				out.FailedSteps = append(out.FailedSteps, stepErr.Error())
			}
		}
		return err
	})
}

// WithSession opens a browser session for tag, runs fn with it, and always
// closes it afterwards, including when fn panics. Close errors are logged.
func (o *Orchestrator) WithSession(ctx context.Context, tag schemas.ProviderTag, fn func(schemas.Session) error) error {
	s, err := o.opener.Open(ctx, tag)
	if err != nil {
		if errors.Is(err, schemas.ErrSession) {
			return err
		}
		return fmt.Errorf("%w: %v", schemas.ErrSession, err)
	}

	defer func() {
		rec := recover()
		if rec == nil && o.linger != nil {
			o.linger(session.Detach(ctx), s)
		}
		closeCtx, cancel := session.WithTimeoutDetached(ctx, sessionCloseTimeout)
		defer cancel()
		if err := s.Close(closeCtx); err != nil {
			o.logger.Warn("Failed to close browser session.", zap.String("session_id", s.ID()), zap.Error(err))
		}
		if rec != nil {
			panic(rec)
		}
	}()

	return fn(s)
}

// record appends out to the run log. Failures are logged, never returned.
func (o *Orchestrator) record(ctx context.Context, log *zap.Logger, out schemas.RunOutcome) {
	if o.sink == nil {
		return
	}
	recCtx, cancel := session.WithTimeoutDetached(ctx, recordTimeout)
	defer cancel()
	if err := o.sink.Append(recCtx, out); err != nil {
		log.Warn("Failed to record run outcome.", zap.Error(err))
	}
}
