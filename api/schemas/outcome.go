package schemas

import "time"

// RunStatus is the terminal status of a run.
type RunStatus string

const (
	StatusPlanned  RunStatus = "planned"
	StatusExecuted RunStatus = "executed"
	StatusFailed   RunStatus = "failed"
)

// String implements fmt.Stringer.
func (s RunStatus) String() string { return string(s) }

// DefaultSubject is used when neither an override nor the extractor
// produced a subject.
const DefaultSubject = "Quick note"

// RunOutcome is the write-once record of a single run, handed to the run log.
type RunOutcome struct {
	RunID              string       `json:"run_id"`
	Timestamp          time.Time    `json:"ts"`
	Provider           ProviderTag  `json:"provider"`
	RawInstruction     string       `json:"raw_instruction"`
	Parsed             ParsedIntent `json:"parsed"`
	ParaphrasedMessage string       `json:"paraphrased_message"`
	Subject            string       `json:"subject"`
	DryRun             bool         `json:"dry_run"`
	Status             RunStatus    `json:"status"`
	Error              *string      `json:"error"`
	FailedSteps        []string     `json:"failed_steps,omitempty"`
}

// Failed reports whether the run ended in StatusFailed.
func (o RunOutcome) Failed() bool { return o.Status == StatusFailed }

// ErrorMessage returns the recorded error, or "".
func (o RunOutcome) ErrorMessage() string {
	if o.Error == nil {
		return ""
	}
	return *o.Error
}
