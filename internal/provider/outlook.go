package provider

import (
	"context"

	"github.com/xkilldash9x/mailpilot/api/schemas"
	"github.com/xkilldash9x/mailpilot/internal/config"
)

const (
	outlookLoginForm = "input[type='email'], #i0116"
	outlookCompose   = "button[aria-label*='New mail']"
)

// OutlookProfile describes Outlook on the web. The recipient field only
// accepts an address once it is turned into a chip, which Enter does.
func OutlookProfile(cfg config.ProviderConfig) *Profile {
	return &Profile{
		Tag:        schemas.ProviderOutlook,
		MailboxURL: cfg.MailboxURL,
		Landmark:   mailboxLandmark,
		LoginForm:  outlookLoginForm,
		Compose:    outlookCompose,
		Recipient:  "div[role='textbox'][aria-label='To']",
		Subject:    "input[placeholder='Add a subject']",
		Body:       "div[aria-label='Message body']",
		Send:       "button[title*='Send']",
		TypeDelay:  cfg.TypeDelay,
		Recover: func(ctx context.Context, page schemas.Page) error {
			return page.Reload(ctx)
		},
		AfterStep: commitRecipient,
	}
}

// commitRecipient presses Enter on whatever holds focus after the recipient
// was typed.
func commitRecipient(ctx context.Context, page schemas.Page, index int, _ schemas.DomAction) error {
	if index != StepRecipient {
		return nil
	}
	return page.Press(ctx, "", enterKey)
}
