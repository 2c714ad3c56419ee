package intent

import (
	"regexp"
	"strings"

	"github.com/xkilldash9x/mailpilot/api/schemas"
)

var (
	emailPattern = regexp.MustCompile(`[\w.\-+]+@[\w.\-]+`)
	// In the single-quoted form an apostrophe followed by a letter belongs to
	// the message ("Let's"); any other apostrophe closes it.
	messagePattern = regexp.MustCompile(`(?i)saying\s+'((?:[^']|'\pL)+)'|saying\s+"([^"]+)"|: (.+)$`)
	subjectPattern = regexp.MustCompile(`(?i)subject\s*[:\-]\s*(.+)$`)
)

// ExtractFallback parses an instruction with fixed patterns. It is used when
// no model is configured or the model's answer is unusable. The only failure
// is a missing or malformed recipient, reported as a validation error.
func ExtractFallback(text string) (schemas.ParsedIntent, error) {
	recipient := strings.TrimRight(emailPattern.FindString(text), ".-")
	if recipient == "" {
		return schemas.ParsedIntent{}, &schemas.ValidationError{
			Field:  "recipient",
			Reason: "could not find recipient email in instruction",
		}
	}

	message := text
	if m := messagePattern.FindStringSubmatch(text); m != nil {
		for _, group := range m[1:] {
			if group != "" {
				message = group
				break
			}
		}
	}
	message = strings.TrimSpace(message)

	var subject string
	if m := subjectPattern.FindStringSubmatch(text); m != nil {
		subject = strings.Trim(strings.TrimSpace(m[1]), `'"`)
	}

	return schemas.NewParsedIntent(recipient, subject, message, "")
}
