package types

import "time"

// Status is the outcome of a single command
type Status string

const (
	StatusOk       Status = "ok"
	StatusEmpty    Status = "empty"
	StatusTimedOut Status = "timed-out"
)

// Failure classifies why a host did not run its command queue
type Failure string

const (
	FailureNone                 Failure = ""
	FailureTransportUnavailable Failure = "transport-unavailable"
	FailureSpawn                Failure = "spawn-failure"
	FailureAuthentication       Failure = "authentication-failure"
)

// Diagnosis is the result of the supplementary reachability check performed
// after a host could not be logged into
type Diagnosis string

const (
	DiagnosisNone        Diagnosis = ""
	DiagnosisAlive       Diagnosis = "alive"
	DiagnosisUnreachable Diagnosis = "unreachable"
	DiagnosisUnknown     Diagnosis = "unknown"
)

// Describe returns the operator facing wording of the diagnosis
func (d Diagnosis) Describe() string {
	switch d {
	case DiagnosisAlive:
		return "host alive but access denied or firewalled"
	case DiagnosisUnreachable:
		return "host unreachable"
	case DiagnosisUnknown:
		return "reachability unknown"
	default:
		return ""
	}
}

// CommandResult is the extracted response of one command on one host.
// It is never mutated after creation.
type CommandResult struct {
	Host      string        `json:"host"`
	Command   string        `json:"command"`
	Output    *string       `json:"output,omitempty"`
	Status    Status        `json:"status"`
	Elevation bool          `json:"elevation,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// NewCommandResult builds a result, deriving the status from the extracted output
func NewCommandResult(host, command, output string, duration time.Duration) CommandResult {
	result := CommandResult{
		Host:     host,
		Command:  command,
		Status:   StatusEmpty,
		Duration: duration,
	}
	if output != "" {
		result.Output = &output
		result.Status = StatusOk
	}
	return result
}

// Text returns the output or an empty string
func (c CommandResult) Text() string {
	if c.Output == nil {
		return ""
	}
	return *c.Output
}

// HostOutcome collects everything that happened to one host during a run
type HostOutcome struct {
	Host          string          `json:"host"`
	Transport     TransportKind   `json:"transport"`
	Reached       bool            `json:"reached"`
	Authenticated bool            `json:"authenticated"`
	Failure       Failure         `json:"failure,omitempty"`
	Diagnosis     Diagnosis       `json:"diagnosis,omitempty"`
	Error         string          `json:"error,omitempty"`
	Results       []CommandResult `json:"results"`
}

// Append records a command result
func (h *HostOutcome) Append(result CommandResult) {
	h.Results = append(h.Results, result)
}
