package schemas

import (
	"net/mail"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/net/idna"
)

// ParsedIntent is the structured interpretation of a natural-language
// instruction. Recipient is always a syntactically valid bare address.
type ParsedIntent struct {
	Recipient     string `json:"recipient"`
	Subject       string `json:"subject,omitempty"`
	Message       string `json:"message"`
	RecipientName string `json:"recipient_name,omitempty"`
}

// NewParsedIntent validates the recipient and fills in RecipientName when it
// was not supplied.
func NewParsedIntent(recipient, subject, message, recipientName string) (ParsedIntent, error) {
	addr, err := ValidateEmail(recipient)
	if err != nil {
		return ParsedIntent{}, err
	}
	intent := ParsedIntent{
		Recipient:     addr,
		Subject:       strings.TrimSpace(subject),
		Message:       message,
		RecipientName: strings.TrimSpace(recipientName),
	}
	if intent.RecipientName == "" {
		intent.RecipientName = RecipientNameFromAddress(addr)
	}
	return intent, nil
}

// Validate re-checks the recipient invariant. Useful for intents decoded from
// an external source.
func (p ParsedIntent) Validate() error {
	_, err := ValidateEmail(p.Recipient)
	return err
}

// ValidateEmail checks that s is a bare address (no display name) with a
// dotted, IDNA-valid domain, and returns it trimmed.
func ValidateEmail(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", &ValidationError{Field: "recipient", Reason: "missing recipient address"}
	}
	parsed, err := mail.ParseAddress(s)
	if err != nil {
		return "", &ValidationError{Field: "recipient", Reason: "invalid email address " + quote(s), Err: err}
	}
	if parsed.Name != "" || parsed.Address != s {
		return "", &ValidationError{Field: "recipient", Reason: "expected a bare address, got " + quote(s)}
	}

	at := strings.LastIndex(s, "@")
	domain := s[at+1:]
	if !strings.Contains(domain, ".") || strings.HasPrefix(domain, ".") || strings.HasSuffix(domain, ".") {
		return "", &ValidationError{Field: "recipient", Reason: "domain " + quote(domain) + " is not fully qualified"}
	}
	if _, err := idna.Lookup.ToASCII(domain); err != nil {
		return "", &ValidationError{Field: "recipient", Reason: "domain " + quote(domain) + " is not a valid hostname", Err: err}
	}
	return s, nil
}

// RecipientNameFromAddress guesses a display name from the local part:
// "dana.smith@example.com" becomes "Dana".
func RecipientNameFromAddress(addr string) string {
	local := addr
	if i := strings.Index(addr, "@"); i >= 0 {
		local = addr[:i]
	}
	if i := strings.Index(local, "."); i >= 0 {
		local = local[:i]
	}
	return capitalize(local)
}

// capitalize upper-cases the first rune and lower-cases the rest.
func capitalize(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}

func quote(s string) string { return "'" + s + "'" }
