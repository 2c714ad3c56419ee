package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/mailpilot/api/schemas"
	"github.com/xkilldash9x/mailpilot/internal/config"
)

// State is a stage of a single plan execution.
type State string

const (
	StateNavigating            State = "navigating"
	StateAwaitingReadySignal   State = "awaiting_ready_signal"
	StateLoginRequired         State = "login_required"
	StateAwaitingLoginComplete State = "awaiting_login_complete"
	StateComposeReady          State = "compose_ready"
	StateRunningSteps          State = "running_steps"
	StateDone                  State = "done"
	// StateFaulted is absorbing; no transition leaves it.
	StateFaulted State = "faulted"
)

// enterKey commits chips and similar widgets after typing.
const enterKey = "Enter"

// StepResult records what happened to one plan action.
type StepResult struct {
	Index       int
	Description string
	Kind        schemas.ActionKind
	Located     bool
	Dispatched  bool
	// Err is a *schemas.StepError when the step failed.
	Err error
}

// Failed reports whether the step recorded an error.
func (r StepResult) Failed() bool { return r.Err != nil }

// Report is the trace of one Execute call.
type Report struct {
	Provider      schemas.ProviderTag
	DryRun        bool
	States        []State
	LoginRequired bool
	Recovered     bool
	Steps         []StepResult
}

// State returns the last state reached.
func (r *Report) State() State {
	if len(r.States) == 0 {
		return ""
	}
	return r.States[len(r.States)-1]
}

// Dispatched counts steps that sent input to the page.
func (r *Report) Dispatched() int {
	n := 0
	for _, s := range r.Steps {
		if s.Dispatched {
			n++
		}
	}
	return n
}

// FailedSteps returns the errors of every failed step, in plan order.
func (r *Report) FailedSteps() []error {
	var errs []error
	for _, s := range r.Steps {
		if s.Err != nil {
			errs = append(errs, s.Err)
		}
	}
	return errs
}

// Timeouts bounds every wait the engine performs.
type Timeouts struct {
	Ready time.Duration
	Login time.Duration
	Step  time.Duration
}

// TimeoutsFromConfig reads the provider wait bounds.
func TimeoutsFromConfig(cfg config.ProvidersConfig) Timeouts {
	return Timeouts{
		Ready: cfg.ReadyTimeout,
		Login: cfg.LoginTimeout,
		Step:  cfg.StepTimeout,
	}
}

// Engine drives a plan against a live page. It is generic; everything that
// differs between mail UIs lives in the Profile.
type Engine struct {
	timeouts Timeouts
	viewport config.ViewportConfig
	logger   *zap.Logger
}

// NewEngine creates an Engine.
func NewEngine(timeouts Timeouts, viewport config.ViewportConfig, logger *zap.Logger) *Engine {
	return &Engine{
		timeouts: timeouts,
		viewport: viewport,
		logger:   logger.Named("engine"),
	}
}

// run holds the mutable state of one execution.
type run struct {
	profile *Profile
	report  *Report
	logger  *zap.Logger
}

func (r *run) transition(s State) {
	r.logger.Debug("Execution state changed.", zap.String("from", string(r.report.State())), zap.String("to", string(s)))
	r.report.States = append(r.report.States, s)
}

func (r *run) fault(err error) error {
	r.transition(StateFaulted)
	r.logger.Error("Execution aborted.", zap.Error(err))
	return err
}

// Execute runs plan for profile inside session. The returned Report is never
// nil. A non-nil error means the run aborted before or during the readiness
// and login gates; step failures are only recorded in the Report.
func (e *Engine) Execute(ctx context.Context, profile *Profile, session schemas.Session, plan schemas.Plan, dryRun bool) (*Report, error) {
	r := &run{
		profile: profile,
		report:  &Report{Provider: profile.Tag, DryRun: dryRun},
		logger:  e.logger.With(zap.String("provider", string(profile.Tag)), zap.Bool("dry_run", dryRun)),
	}

	r.transition(StateNavigating)
	if err := checkPlan(profile, plan); err != nil {
		return r.report, r.fault(err)
	}

	page, err := e.openPage(ctx, session)
	if err != nil {
		return r.report, r.fault(fmt.Errorf("%w: open page: %v", schemas.ErrSession, err))
	}
	if err := e.bounded(ctx, func(ctx context.Context) error {
		return page.SetViewport(ctx, e.viewport.Width, e.viewport.Height)
	}); err != nil {
		r.logger.Warn("Could not set viewport.", zap.Error(err))
	}

	// Navigation and the ready signal share one deadline.
	readyCtx, cancelReady := context.WithTimeout(ctx, e.timeouts.Ready)
	defer cancelReady()
	r.logger.Info("Navigating to mailbox.", zap.String("url", profile.MailboxURL))
	if err := page.Navigate(readyCtx, profile.MailboxURL); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return r.report, r.fault(ctxErr)
		}
		return r.report, r.fault(fmt.Errorf("%w: %s: %v", schemas.ErrProviderUnresponsive, profile.Tag, err))
	}

	if err := e.awaitMailbox(ctx, readyCtx, r, page); err != nil {
		return r.report, err
	}
	cancelReady()

	r.transition(StateComposeReady)
	e.ensureCompose(ctx, r, page)

	r.transition(StateRunningSteps)
	for i, action := range plan.Actions {
		r.report.Steps = append(r.report.Steps, e.runStep(ctx, r, page, i, action, dryRun))
		if err := ctx.Err(); err != nil {
			return r.report, r.fault(err)
		}
	}

	r.transition(StateDone)
	if failed := r.report.FailedSteps(); len(failed) > 0 {
		r.logger.Warn("Plan finished with failed steps.", zap.Int("failed", len(failed)), zap.Int("total", len(plan.Actions)))
	} else {
		r.logger.Info("Plan finished.", zap.Int("steps", len(plan.Actions)))
	}

	if dryRun {
		if err := e.bounded(ctx, page.Close); err != nil {
			r.logger.Warn("Could not close dry-run page.", zap.Error(err))
		}
	}
	return r.report, nil
}

// checkPlan rejects plans that are malformed or were built for another UI.
func checkPlan(profile *Profile, plan schemas.Plan) error {
	if err := plan.Validate(); err != nil {
		return err
	}
	if plan.Provider != profile.Tag {
		return &schemas.ValidationError{
			Field:  "provider",
			Reason: fmt.Sprintf("plan for %q cannot run on %q", plan.Provider, profile.Tag),
		}
	}
	return nil
}

// openPage opens a tab, bounded by the step timeout.
func (e *Engine) openPage(ctx context.Context, session schemas.Session) (schemas.Page, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeouts.Step)
	defer cancel()
	return session.NewPage(ctx)
}

// bounded runs a single page call under the step timeout.
func (e *Engine) bounded(ctx context.Context, call func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, e.timeouts.Step)
	defer cancel()
	return call(ctx)
}

// isVisible checks locator once, bounded by the step timeout.
func (e *Engine) isVisible(ctx context.Context, page schemas.Page, locator string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeouts.Step)
	defer cancel()
	return page.IsVisible(ctx, locator)
}

// awaitMailbox resolves the readiness gate under readyCtx and, when shown,
// the login gate under its own timeout.
func (e *Engine) awaitMailbox(ctx, readyCtx context.Context, r *run, page schemas.Page) error {
	p := r.profile

	r.transition(StateAwaitingReadySignal)
	if err := page.WaitVisible(readyCtx, p.readySelector(), e.timeouts.Ready); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return r.fault(ctxErr)
		}
		return r.fault(fmt.Errorf("%w: %s showed neither a mailbox nor a login form within %v",
			schemas.ErrProviderUnresponsive, p.Tag, e.timeouts.Ready))
	}

	loginShown, err := e.isVisible(ctx, page, p.LoginForm)
	if err != nil {
		r.logger.Warn("Could not check for a login form, assuming signed in.", zap.Error(err))
	}
	if !loginShown {
		r.logger.Debug("Mailbox loaded without a login prompt.")
		return nil
	}

	r.report.LoginRequired = true
	r.transition(StateLoginRequired)
	r.logger.Info("Login required. Waiting for the mailbox to appear.", zap.Duration("timeout", e.timeouts.Login))
	r.transition(StateAwaitingLoginComplete)
	loginCtx, cancel := context.WithTimeout(ctx, e.timeouts.Login)
	defer cancel()
	if err := page.WaitVisible(loginCtx, p.Landmark, e.timeouts.Login); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return r.fault(ctxErr)
		}
		return r.fault(fmt.Errorf("%w: %s login did not complete within %v", schemas.ErrLoginTimeout, p.Tag, e.timeouts.Login))
	}
	r.logger.Info("Login completed.")
	return nil
}

// ensureCompose applies the profile's recovery once when the compose trigger
// is not visible. Recovery failures are not fatal; the open-compose step will
// record its own failure if the trigger never shows up.
func (e *Engine) ensureCompose(ctx context.Context, r *run, page schemas.Page) {
	p := r.profile
	visible, err := e.isVisible(ctx, page, p.Compose)
	if err != nil {
		r.logger.Debug("Compose visibility check failed.", zap.Error(err))
	}
	if visible || p.Recover == nil {
		return
	}

	r.logger.Warn("Compose trigger not found, attempting recovery.", zap.String("locator", p.Compose))
	r.report.Recovered = true
	recCtx, cancel := context.WithTimeout(ctx, e.timeouts.Ready)
	defer cancel()
	if err := p.Recover(recCtx, page); err != nil {
		r.logger.Warn("Compose recovery failed.", zap.Error(err))
	}
}

// runStep waits for one action's target and, outside dry runs, dispatches it.
// Every error is folded into the result.
func (e *Engine) runStep(ctx context.Context, r *run, page schemas.Page, index int, action schemas.DomAction, dryRun bool) StepResult {
	res := StepResult{Index: index, Description: action.Description, Kind: action.Kind}
	log := r.logger.With(zap.Int("step", index+1), zap.String("description", action.Description), zap.String("locator", action.Locator))
	log.Debug("Running step.")

	stepErr := func(err error) error {
		return &schemas.StepError{Index: index, Description: action.Description, Locator: action.Locator, Err: err}
	}

	if err := page.WaitVisible(ctx, action.Locator, e.timeouts.Step); err != nil {
		res.Err = stepErr(err)
		log.Error("Step target never became visible.", zap.Error(err))
		return res
	}
	res.Located = true
	if dryRun {
		return res
	}

	stepCtx, cancel := context.WithTimeout(ctx, e.timeouts.Step+e.typingBudget(r.profile, action))
	defer cancel()
	if err := e.dispatch(stepCtx, r.profile, page, action); err != nil {
		res.Err = stepErr(err)
		log.Error("Step failed.", zap.Error(err))
		return res
	}
	res.Dispatched = true

	if hook := r.profile.AfterStep; hook != nil {
		if err := hook(stepCtx, page, index, action); err != nil {
			log.Warn("Post-step hook failed.", zap.Error(err))
		}
	}
	log.Debug("Step done.")
	return res
}

// typingBudget extends the step bound by the expected typing time so long
// messages are not cut off mid-word.
func (e *Engine) typingBudget(p *Profile, action schemas.DomAction) time.Duration {
	if action.Kind != schemas.ActionType {
		return 0
	}
	return time.Duration(len([]rune(action.Text()))) * p.TypeDelay * 2
}

func (e *Engine) dispatch(ctx context.Context, p *Profile, page schemas.Page, action schemas.DomAction) error {
	switch action.Kind {
	case schemas.ActionClick:
		return page.Click(ctx, action.Locator)
	case schemas.ActionFill:
		return page.Fill(ctx, action.Locator, action.Text())
	case schemas.ActionType:
		return page.Type(ctx, action.Locator, action.Text(), p.TypeDelay)
	case schemas.ActionPress:
		return page.Press(ctx, action.Locator, enterKey)
	default:
		return errors.New("unknown action kind " + string(action.Kind))
	}
}
