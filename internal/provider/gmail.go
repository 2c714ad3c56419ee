package provider

import (
	"context"

	"github.com/xkilldash9x/mailpilot/api/schemas"
	"github.com/xkilldash9x/mailpilot/internal/config"
)

const (
	gmailLoginForm = "input[type='email'], #identifierId"
	gmailCompose   = "div[role='button'][gh='cm']"
)

// GmailProfile describes the Gmail web client. When the compose button is
// missing the compose view is opened directly by URL.
func GmailProfile(cfg config.ProviderConfig) *Profile {
	p := &Profile{
		Tag:        schemas.ProviderGmail,
		MailboxURL: cfg.MailboxURL,
		Landmark:   mailboxLandmark,
		LoginForm:  gmailLoginForm,
		Compose:    gmailCompose,
		Recipient:  "input[aria-label='To recipients']",
		Subject:    "input[name='subjectbox']",
		Body:       "div[aria-label='Message Body']",
		Send:       "div[role='button'][data-tooltip*='Send']",
		TypeDelay:  cfg.TypeDelay,
	}
	p.Recover = func(ctx context.Context, page schemas.Page) error {
		return page.Navigate(ctx, p.MailboxURL+"?compose=new")
	}
	return p
}
