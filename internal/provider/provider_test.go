package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/mailpilot/api/schemas"
	"github.com/xkilldash9x/mailpilot/internal/config"
	"github.com/xkilldash9x/mailpilot/internal/mocks"
)

const (
	gmailURL   = "https://mail.google.com/mail/u/0/#inbox"
	outlookURL = "https://outlook.live.com/mail/0/"

	readyTimeout = 30 * time.Second
	loginTimeout = 300 * time.Second
	stepTimeout  = 20 * time.Second
)

var errNotVisible = errors.New("not visible after 20s: context deadline exceeded")

func testProvidersConfig() config.ProvidersConfig {
	return config.ProvidersConfig{
		Default:      "gmail",
		ReadyTimeout: readyTimeout,
		LoginTimeout: loginTimeout,
		StepTimeout:  stepTimeout,
		Gmail:        config.ProviderConfig{MailboxURL: gmailURL, TypeDelay: 100 * time.Millisecond},
		Outlook:      config.ProviderConfig{MailboxURL: outlookURL, TypeDelay: 80 * time.Millisecond},
	}
}

func testRegistry(t *testing.T) *Registry {
	return NewRegistry(testProvidersConfig(), config.ViewportConfig{Width: 1360, Height: 900}, zaptest.NewLogger(t))
}

func testIntent() schemas.ParsedIntent {
	return schemas.ParsedIntent{
		Recipient:     "dana@example.com",
		Subject:       "Quick note",
		Message:       "Let's meet Friday",
		RecipientName: "Dana",
	}
}

// pageFixture wires a session returning a mock page that reaches the mailbox
// without a login prompt. Tests register their own expectations first so
// that they take precedence over these defaults.
type pageFixture struct {
	session *mocks.MockSession
	page    *mocks.MockPage
	profile *Profile
}

func newPageFixture(profile *Profile) *pageFixture {
	f := &pageFixture{session: new(mocks.MockSession), page: new(mocks.MockPage), profile: profile}
	f.session.On("NewPage", mock.Anything).Return(f.page, nil)
	return f
}

func (f *pageFixture) reachMailbox() {
	p := f.page
	p.On("SetViewport", mock.Anything, 1360, 900).Return(nil)
	p.On("Navigate", mock.Anything, f.profile.MailboxURL).Return(nil)
	p.On("WaitVisible", mock.Anything, f.profile.readySelector(), readyTimeout).Return(nil)
	p.On("IsVisible", mock.Anything, f.profile.LoginForm).Return(false, nil)
	p.On("IsVisible", mock.Anything, f.profile.Compose).Return(true, nil)
}

func (f *pageFixture) allStepsVisible() {
	f.page.On("WaitVisible", mock.Anything, mock.Anything, stepTimeout).Return(nil)
}

func (f *pageFixture) acceptDispatches() {
	p := f.page
	p.On("Click", mock.Anything, mock.Anything).Return(nil)
	p.On("Fill", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	p.On("Type", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	p.On("Press", mock.Anything, mock.Anything, mock.Anything).Return(nil)
}

func TestPlan_ShapeAndPurity(t *testing.T) {
	reg := testRegistry(t)
	wantKinds := []schemas.ActionKind{
		schemas.ActionClick, schemas.ActionType, schemas.ActionFill, schemas.ActionType, schemas.ActionClick,
	}

	for _, tag := range []schemas.ProviderTag{schemas.ProviderGmail, schemas.ProviderOutlook} {
		t.Run(string(tag), func(t *testing.T) {
			p := reg.Resolve(string(tag))
			require.Equal(t, tag, p.Tag())

			first := p.Plan(testIntent())
			second := p.Plan(testIntent())
			if diff := cmp.Diff(first, second); diff != "" {
				t.Fatalf("plan is not deterministic (-first +second):\n%s", diff)
			}

			require.Len(t, first.Actions, stepCount)
			assert.Equal(t, tag, first.Provider)
			for i, a := range first.Actions {
				assert.Equal(t, wantKinds[i], a.Kind, "step %d", i+1)
			}
			assert.Equal(t, "dana@example.com", first.Actions[StepRecipient].Text())
			assert.Equal(t, "Quick note", first.Actions[StepSubject].Text())
			assert.Equal(t, "Let's meet Friday", first.Actions[StepBody].Text())

			_, err := schemas.NewPlan(first.Provider, first.Actions)
			assert.NoError(t, err, "built plans satisfy the action invariants")
		})
	}
}

func TestPlan_EmptySubject(t *testing.T) {
	intent := testIntent()
	intent.Subject = ""
	plan := GmailProfile(testProvidersConfig().Gmail).Plan(intent)

	require.NotNil(t, plan.Actions[StepSubject].Value)
	assert.Equal(t, "", *plan.Actions[StepSubject].Value)
}

func TestPlan_Locators(t *testing.T) {
	cfg := testProvidersConfig()
	gmail := GmailProfile(cfg.Gmail).Plan(testIntent())
	outlook := OutlookProfile(cfg.Outlook).Plan(testIntent())

	assert.Equal(t, []string{
		"div[role='button'][gh='cm']",
		"input[aria-label='To recipients']",
		"input[name='subjectbox']",
		"div[aria-label='Message Body']",
		"div[role='button'][data-tooltip*='Send']",
	}, locators(gmail))
	assert.Equal(t, []string{
		"button[aria-label*='New mail']",
		"div[role='textbox'][aria-label='To']",
		"input[placeholder='Add a subject']",
		"div[aria-label='Message body']",
		"button[title*='Send']",
	}, locators(outlook))
}

func locators(p schemas.Plan) []string {
	out := make([]string, len(p.Actions))
	for i, a := range p.Actions {
		out[i] = a.Locator
	}
	return out
}

func TestRegistry_Resolve(t *testing.T) {
	reg := testRegistry(t)
	tests := []struct {
		name string
		want schemas.ProviderTag
	}{
		{"gmail", schemas.ProviderGmail},
		{"Outlook", schemas.ProviderOutlook},
		{" OUTLOOK ", schemas.ProviderOutlook},
		{"slack", schemas.ProviderGmail},
		{"auto", schemas.ProviderGmail},
		{"", schemas.ProviderGmail},
	}
	for _, tt := range tests {
		t.Run("resolves "+tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, reg.Resolve(tt.name).Tag())
		})
	}

	t.Run("configured default", func(t *testing.T) {
		cfg := testProvidersConfig()
		cfg.Default = "outlook"
		reg := NewRegistry(cfg, config.ViewportConfig{Width: 1360, Height: 900}, zaptest.NewLogger(t))
		assert.Equal(t, schemas.ProviderOutlook, reg.Resolve("slack").Tag())
	})

	t.Run("invalid configured default", func(t *testing.T) {
		cfg := testProvidersConfig()
		cfg.Default = "yahoo"
		reg := NewRegistry(cfg, config.ViewportConfig{Width: 1360, Height: 900}, zaptest.NewLogger(t))
		assert.Equal(t, schemas.ProviderGmail, reg.Resolve("").Tag())
	})
}

func TestExecute_Gmail(t *testing.T) {
	ctx := context.Background()
	p := testRegistry(t).Resolve("gmail")
	plan := p.Plan(testIntent())
	f := newPageFixture(GmailProfile(testProvidersConfig().Gmail))
	f.reachMailbox()
	f.allStepsVisible()
	f.acceptDispatches()

	report, err := p.Execute(ctx, f.session, plan, false)
	require.NoError(t, err)

	assert.Equal(t, []State{
		StateNavigating, StateAwaitingReadySignal, StateComposeReady, StateRunningSteps, StateDone,
	}, report.States)
	assert.False(t, report.LoginRequired)
	assert.False(t, report.Recovered)
	assert.Equal(t, stepCount, report.Dispatched())
	assert.Empty(t, report.FailedSteps())

	f.page.AssertCalled(t, "Click", mock.Anything, "div[role='button'][gh='cm']")
	f.page.AssertCalled(t, "Type", mock.Anything, "input[aria-label='To recipients']", "dana@example.com", 100*time.Millisecond)
	f.page.AssertCalled(t, "Fill", mock.Anything, "input[name='subjectbox']", "Quick note")
	f.page.AssertCalled(t, "Type", mock.Anything, "div[aria-label='Message Body']", "Let's meet Friday", 100*time.Millisecond)
	f.page.AssertCalled(t, "Click", mock.Anything, "div[role='button'][data-tooltip*='Send']")
	f.page.AssertNotCalled(t, "Press", mock.Anything, mock.Anything, mock.Anything)
	f.page.AssertNotCalled(t, "Close", mock.Anything)
}

func TestExecute_DryRunDispatchesNothing(t *testing.T) {
	for _, tag := range []string{"gmail", "outlook"} {
		t.Run(tag, func(t *testing.T) {
			reg := testRegistry(t)
			p := reg.Resolve(tag)
			m := p.(*mailProvider)
			f := newPageFixture(m.profile)
			f.reachMailbox()
			f.allStepsVisible()
			f.page.On("Close", mock.Anything).Return(nil).Once()

			report, err := p.Execute(context.Background(), f.session, p.Plan(testIntent()), true)
			require.NoError(t, err)

			assert.Equal(t, StateDone, report.State())
			assert.Len(t, report.Steps, stepCount)
			assert.Zero(t, report.Dispatched())
			for _, s := range report.Steps {
				assert.True(t, s.Located)
			}
			for _, method := range []string{"Click", "Fill", "Type", "Press"} {
				f.page.AssertNumberOfCalls(t, method, 0)
			}
			f.page.AssertExpectations(t)
		})
	}
}

func TestExecute_FailingStepDoesNotBlockLaterSteps(t *testing.T) {
	p := testRegistry(t).Resolve("gmail")
	plan := p.Plan(testIntent())
	f := newPageFixture(p.(*mailProvider).profile)
	f.reachMailbox()
	subject := plan.Actions[StepSubject].Locator
	f.page.On("WaitVisible", mock.Anything, subject, stepTimeout).Return(errNotVisible)
	f.allStepsVisible()
	f.acceptDispatches()

	report, err := p.Execute(context.Background(), f.session, plan, false)
	require.NoError(t, err)

	assert.Equal(t, StateDone, report.State())
	failed := report.FailedSteps()
	require.Len(t, failed, 1)
	assert.ErrorIs(t, failed[0], schemas.ErrStepFailure)
	var stepErr *schemas.StepError
	require.ErrorAs(t, failed[0], &stepErr)
	assert.Equal(t, StepSubject, stepErr.Index)
	assert.Equal(t, subject, stepErr.Locator)

	assert.Equal(t, stepCount-1, report.Dispatched())
	f.page.AssertNotCalled(t, "Fill", mock.Anything, subject, mock.Anything)
	f.page.AssertCalled(t, "Type", mock.Anything, plan.Actions[StepBody].Locator, "Let's meet Friday", 100*time.Millisecond)
	f.page.AssertCalled(t, "Click", mock.Anything, plan.Actions[StepSend].Locator)
}

func TestExecute_DispatchErrorIsIsolated(t *testing.T) {
	p := testRegistry(t).Resolve("gmail")
	plan := p.Plan(testIntent())
	f := newPageFixture(p.(*mailProvider).profile)
	f.reachMailbox()
	f.allStepsVisible()
	f.page.On("Click", mock.Anything, plan.Actions[StepOpenCompose].Locator).Return(errors.New("node detached"))
	f.acceptDispatches()

	report, err := p.Execute(context.Background(), f.session, plan, false)
	require.NoError(t, err)

	require.Len(t, report.FailedSteps(), 1)
	assert.True(t, report.Steps[StepOpenCompose].Located)
	assert.False(t, report.Steps[StepOpenCompose].Dispatched)
	assert.ErrorContains(t, report.Steps[StepOpenCompose].Err, "node detached")
	assert.True(t, report.Steps[StepSend].Dispatched)
}

func TestExecute_ProviderUnresponsive(t *testing.T) {
	p := testRegistry(t).Resolve("gmail")
	profile := p.(*mailProvider).profile
	f := newPageFixture(profile)
	f.page.On("SetViewport", mock.Anything, 1360, 900).Return(nil)
	f.page.On("Navigate", mock.Anything, gmailURL).Return(nil)
	f.page.On("WaitVisible", mock.Anything, profile.readySelector(), readyTimeout).Return(errNotVisible)

	report, err := p.Execute(context.Background(), f.session, p.Plan(testIntent()), false)
	require.Error(t, err)

	assert.ErrorIs(t, err, schemas.ErrProviderUnresponsive)
	assert.Contains(t, err.Error(), "unresponsive")
	assert.Equal(t, StateFaulted, report.State())
	assert.Empty(t, report.Steps, "no steps are attempted")
	f.page.AssertNotCalled(t, "Click", mock.Anything, mock.Anything)
}

func TestExecute_NavigationFailure(t *testing.T) {
	p := testRegistry(t).Resolve("outlook")
	f := newPageFixture(p.(*mailProvider).profile)
	f.page.On("SetViewport", mock.Anything, 1360, 900).Return(errors.New("emulation unsupported"))
	f.page.On("Navigate", mock.Anything, outlookURL).Return(errors.New("net::ERR_NAME_NOT_RESOLVED"))

	report, err := p.Execute(context.Background(), f.session, p.Plan(testIntent()), false)
	assert.ErrorIs(t, err, schemas.ErrProviderUnresponsive)
	assert.Equal(t, []State{StateNavigating, StateFaulted}, report.States)
}

func TestExecute_SessionFailure(t *testing.T) {
	p := testRegistry(t).Resolve("gmail")
	session := new(mocks.MockSession)
	session.On("NewPage", mock.Anything).Return(nil, errors.New("target closed"))

	report, err := p.Execute(context.Background(), session, p.Plan(testIntent()), false)
	assert.ErrorIs(t, err, schemas.ErrSession)
	assert.Equal(t, StateFaulted, report.State())
}

func TestExecute_Login(t *testing.T) {
	setup := func(t *testing.T, loginErr error) (Provider, *pageFixture) {
		p := testRegistry(t).Resolve("gmail")
		profile := p.(*mailProvider).profile
		f := newPageFixture(profile)
		f.page.On("SetViewport", mock.Anything, 1360, 900).Return(nil)
		f.page.On("Navigate", mock.Anything, gmailURL).Return(nil)
		f.page.On("WaitVisible", mock.Anything, profile.readySelector(), readyTimeout).Return(nil)
		f.page.On("IsVisible", mock.Anything, profile.LoginForm).Return(true, nil)
		f.page.On("WaitVisible", mock.Anything, profile.Landmark, loginTimeout).Return(loginErr)
		f.page.On("IsVisible", mock.Anything, profile.Compose).Return(true, nil)
		return p, f
	}

	t.Run("completed login continues to the steps", func(t *testing.T) {
		p, f := setup(t, nil)
		f.allStepsVisible()
		f.acceptDispatches()

		report, err := p.Execute(context.Background(), f.session, p.Plan(testIntent()), false)
		require.NoError(t, err)
		assert.True(t, report.LoginRequired)
		assert.Equal(t, []State{
			StateNavigating, StateAwaitingReadySignal, StateLoginRequired, StateAwaitingLoginComplete,
			StateComposeReady, StateRunningSteps, StateDone,
		}, report.States)
	})

	t.Run("login timeout aborts", func(t *testing.T) {
		p, f := setup(t, errNotVisible)

		report, err := p.Execute(context.Background(), f.session, p.Plan(testIntent()), false)
		assert.ErrorIs(t, err, schemas.ErrLoginTimeout)
		assert.True(t, report.LoginRequired)
		assert.Equal(t, StateFaulted, report.State())
		assert.Empty(t, report.Steps)
	})
}

func TestExecute_CancelledContext(t *testing.T) {
	p := testRegistry(t).Resolve("gmail")
	profile := p.(*mailProvider).profile
	ctx, cancel := context.WithCancel(context.Background())
	f := newPageFixture(profile)
	f.page.On("SetViewport", mock.Anything, 1360, 900).Return(nil)
	f.page.On("Navigate", mock.Anything, gmailURL).Return(nil)
	f.page.On("WaitVisible", mock.Anything, profile.readySelector(), readyTimeout).
		Run(func(mock.Arguments) { cancel() }).
		Return(context.Canceled)

	_, err := p.Execute(ctx, f.session, p.Plan(testIntent()), false)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, schemas.ErrProviderUnresponsive)
}

func TestExecute_ComposeRecovery(t *testing.T) {
	t.Run("gmail opens the compose URL", func(t *testing.T) {
		p := testRegistry(t).Resolve("gmail")
		profile := p.(*mailProvider).profile
		f := newPageFixture(profile)
		f.page.On("IsVisible", mock.Anything, profile.Compose).Return(false, nil)
		f.page.On("Navigate", mock.Anything, gmailURL+"?compose=new").Return(nil).Once()
		f.reachMailbox()
		f.allStepsVisible()
		f.acceptDispatches()

		report, err := p.Execute(context.Background(), f.session, p.Plan(testIntent()), false)
		require.NoError(t, err)
		assert.True(t, report.Recovered)
		f.page.AssertCalled(t, "Navigate", mock.Anything, gmailURL+"?compose=new")
	})

	t.Run("outlook reloads and failures are not fatal", func(t *testing.T) {
		p := testRegistry(t).Resolve("outlook")
		profile := p.(*mailProvider).profile
		f := newPageFixture(profile)
		f.page.On("IsVisible", mock.Anything, profile.Compose).Return(false, nil)
		f.page.On("Reload", mock.Anything).Return(errors.New("reload timed out")).Once()
		f.reachMailbox()
		f.allStepsVisible()
		f.acceptDispatches()

		report, err := p.Execute(context.Background(), f.session, p.Plan(testIntent()), false)
		require.NoError(t, err)
		assert.True(t, report.Recovered)
		assert.Equal(t, StateDone, report.State())
		f.page.AssertNumberOfCalls(t, "Reload", 1)
	})
}

func TestExecute_OutlookCommitsRecipient(t *testing.T) {
	p := testRegistry(t).Resolve("outlook")
	plan := p.Plan(testIntent())
	f := newPageFixture(p.(*mailProvider).profile)
	f.reachMailbox()
	f.allStepsVisible()
	f.acceptDispatches()

	_, err := p.Execute(context.Background(), f.session, plan, false)
	require.NoError(t, err)

	f.page.AssertCalled(t, "Type", mock.Anything, plan.Actions[StepRecipient].Locator, "dana@example.com", 80*time.Millisecond)
	f.page.AssertCalled(t, "Press", mock.Anything, "", "Enter")
	f.page.AssertNumberOfCalls(t, "Press", 1)
}

func TestPlan_PassesValidation(t *testing.T) {
	cfg := testProvidersConfig()
	intent := testIntent()
	intent.Subject = ""
	for _, profile := range []*Profile{GmailProfile(cfg.Gmail), OutlookProfile(cfg.Outlook)} {
		t.Run(string(profile.Tag), func(t *testing.T) {
			plan := profile.Plan(intent)
			require.NoError(t, plan.Validate())
			assert.NoError(t, checkPlan(profile, plan))
		})
	}
}

func TestExecute_RejectsInvalidPlan(t *testing.T) {
	p := testRegistry(t).Resolve("gmail")
	gmailPlan := p.Plan(testIntent())
	outlookPlan := testRegistry(t).Resolve("outlook").Plan(testIntent())

	badKind := p.Plan(testIntent())
	badKind.Actions = append([]schemas.DomAction(nil), badKind.Actions...)
	badKind.Actions[StepSend].Kind = schemas.ActionKind("hover")

	tests := []struct {
		name string
		plan schemas.Plan
	}{
		{"empty plan", schemas.Plan{Provider: schemas.ProviderGmail}},
		{"plan for another provider", outlookPlan},
		{"unknown provider", schemas.Plan{Provider: "slack", Actions: gmailPlan.Actions}},
		{"unknown action kind", badKind},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newPageFixture(p.(*mailProvider).profile)

			report, err := p.Execute(context.Background(), f.session, tt.plan, false)
			require.Error(t, err)
			assert.ErrorIs(t, err, schemas.ErrValidation)
			assert.Equal(t, []State{StateNavigating, StateFaulted}, report.States)
			f.session.AssertNumberOfCalls(t, "NewPage", 0)
			assert.Empty(t, f.page.Calls)
		})
	}
}

// hasDeadline matches contexts that carry a deadline.
func hasDeadline() any {
	return mock.MatchedBy(func(ctx context.Context) bool {
		_, ok := ctx.Deadline()
		return ok
	})
}

func TestExecute_BoundsEveryPageCall(t *testing.T) {
	p := testRegistry(t).Resolve("gmail")
	profile := p.(*mailProvider).profile
	session := new(mocks.MockSession)
	page := new(mocks.MockPage)
	session.On("NewPage", hasDeadline()).Return(page, nil).Once()
	page.On("SetViewport", hasDeadline(), 1360, 900).Return(nil).Once()
	page.On("Navigate", hasDeadline(), gmailURL).Return(nil).Once()
	page.On("WaitVisible", hasDeadline(), profile.readySelector(), readyTimeout).Return(nil).Once()
	page.On("IsVisible", hasDeadline(), profile.LoginForm).Return(false, nil).Once()
	page.On("IsVisible", hasDeadline(), profile.Compose).Return(true, nil).Once()
	page.On("WaitVisible", mock.Anything, mock.Anything, stepTimeout).Return(nil)
	page.On("Close", hasDeadline()).Return(nil).Once()

	report, err := p.Execute(context.Background(), session, p.Plan(testIntent()), true)
	require.NoError(t, err)
	assert.Equal(t, StateDone, report.State())
	session.AssertExpectations(t)
	page.AssertExpectations(t)
}

func TestExecute_NavigationAndReadyShareDeadline(t *testing.T) {
	p := testRegistry(t).Resolve("gmail")
	profile := p.(*mailProvider).profile
	f := newPageFixture(profile)

	var navDeadline, readyDeadline time.Time
	f.page.On("SetViewport", mock.Anything, 1360, 900).Return(nil)
	f.page.On("Navigate", mock.Anything, gmailURL).
		Run(func(args mock.Arguments) {
			navDeadline, _ = args.Get(0).(context.Context).Deadline()
		}).Return(nil)
	f.page.On("WaitVisible", mock.Anything, profile.readySelector(), readyTimeout).
		Run(func(args mock.Arguments) {
			readyDeadline, _ = args.Get(0).(context.Context).Deadline()
		}).Return(errNotVisible)

	start := time.Now()
	_, err := p.Execute(context.Background(), f.session, p.Plan(testIntent()), false)
	require.ErrorIs(t, err, schemas.ErrProviderUnresponsive)

	require.False(t, navDeadline.IsZero())
	assert.Equal(t, navDeadline, readyDeadline)
	assert.WithinDuration(t, start.Add(readyTimeout), readyDeadline, 5*time.Second)
}
