package schemas

import (
	"fmt"
	"strings"
)

// ActionKind is the closed set of UI operations a plan step can perform.
type ActionKind string

const (
	ActionClick ActionKind = "click"
	ActionFill  ActionKind = "fill"
	ActionPress ActionKind = "press"
	ActionType  ActionKind = "type"
)

// String implements fmt.Stringer.
func (k ActionKind) String() string { return string(k) }

// Valid reports whether k belongs to the closed set.
func (k ActionKind) Valid() bool {
	switch k {
	case ActionClick, ActionFill, ActionPress, ActionType:
		return true
	}
	return false
}

// RequiresValue reports whether the kind carries textual input.
func (k ActionKind) RequiresValue() bool {
	return k == ActionFill || k == ActionType
}

// DomAction is a single UI step. Value is set iff Kind requires textual input.
//
// Locator is opaque to the engine and resolved by the page-automation layer:
// a CSS selector, an XPath expression, or a role expression.
type DomAction struct {
	Description string     `json:"description"`
	Locator     string     `json:"locator"`
	Kind        ActionKind `json:"action"`
	Value       *string    `json:"value,omitempty"`
}

// NewDomAction builds and validates an action. value is ignored (and must be
// nil) for click and press.
func NewDomAction(description, locator string, kind ActionKind, value *string) (DomAction, error) {
	a := DomAction{
		Description: description,
		Locator:     locator,
		Kind:        kind,
		Value:       value,
	}
	if err := a.Validate(); err != nil {
		return DomAction{}, err
	}
	return a, nil
}

// Validate checks the action invariants.
func (a DomAction) Validate() error {
	if !a.Kind.Valid() {
		return &ValidationError{Field: "action", Reason: fmt.Sprintf("unknown action kind %q", a.Kind)}
	}
	if strings.TrimSpace(a.Locator) == "" {
		return &ValidationError{Field: "locator", Reason: fmt.Sprintf("%s action %q has no locator", a.Kind, a.Description)}
	}
	if a.Kind.RequiresValue() && a.Value == nil {
		return &ValidationError{Field: "value", Reason: fmt.Sprintf("%s action %q requires a value", a.Kind, a.Description)}
	}
	if !a.Kind.RequiresValue() && a.Value != nil {
		return &ValidationError{Field: "value", Reason: fmt.Sprintf("%s action %q does not take a value", a.Kind, a.Description)}
	}
	return nil
}

// Text returns the action's value, or "" when it has none.
func (a DomAction) Text() string {
	if a.Value == nil {
		return ""
	}
	return *a.Value
}

// ProviderTag identifies a supported mail UI.
type ProviderTag string

const (
	ProviderGmail   ProviderTag = "gmail"
	ProviderOutlook ProviderTag = "outlook"

	// DefaultProvider is used whenever a requested name is not recognised.
	DefaultProvider = ProviderGmail
)

// String implements fmt.Stringer.
func (p ProviderTag) String() string { return string(p) }

// Valid reports whether p is one of the supported providers.
func (p ProviderTag) Valid() bool {
	switch p {
	case ProviderGmail, ProviderOutlook:
		return true
	}
	return false
}

// Plan is an ordered, provider-specific sequence of actions. Order is the
// execution order; it is never modified after construction.
type Plan struct {
	Provider ProviderTag `json:"provider"`
	Actions  []DomAction `json:"actions"`
}

// NewPlan validates the provider tag and every action. The action slice is
// copied so the caller cannot mutate the plan afterwards.
func NewPlan(provider ProviderTag, actions []DomAction) (Plan, error) {
	owned := make([]DomAction, len(actions))
	copy(owned, actions)
	p := Plan{Provider: provider, Actions: owned}
	if err := p.Validate(); err != nil {
		return Plan{}, err
	}
	return p, nil
}

// Validate checks the provider tag and every action. Plans that arrive from
// outside NewPlan are checked again before execution.
func (p Plan) Validate() error {
	if !p.Provider.Valid() {
		return &ValidationError{Field: "provider", Reason: fmt.Sprintf("unsupported provider %q", p.Provider)}
	}
	if len(p.Actions) == 0 {
		return &ValidationError{Field: "actions", Reason: "plan has no actions"}
	}
	for i, a := range p.Actions {
		if err := a.Validate(); err != nil {
			return fmt.Errorf("action %d: %w", i+1, err)
		}
	}
	return nil
}

// StrPtr is a small helper for building actions with values.
func StrPtr(s string) *string { return &s }
