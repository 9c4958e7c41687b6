package convo

import (
	"errors"
	"fmt"
	"strings"

	"github.com/chris/daylog/internal/calendar"
)

// PlanExample is shown whenever a message could not be understood.
const PlanExample = "3pm 2h Lombard"

// ErrNotConfigured marks a collaborator whose configuration is missing.
var ErrNotConfigured = errors.New("not configured")

type Kind int

const (
	ParseFailure Kind = iota + 1
	CollaboratorFailure
	ConfigurationFailure
)

func (k Kind) String() string {
	switch k {
	case ParseFailure:
		return "parse"
	case CollaboratorFailure:
		return "collaborator"
	case ConfigurationFailure:
		return "configuration"
	}
	return "unknown"
}

const (
	SubsystemCalendar = "calendar"
	SubsystemLog      = "daily log"
	SubsystemChat     = "chat"
	SubsystemState    = "state store"
)

// Failure is the one error type the machine reports to users.
type Failure struct {
	Kind      Kind
	Subsystem string
	Action    string // what was attempted, e.g. "morning log"
	Err       error
}

func (f *Failure) Error() string {
	msg := fmt.Sprintf("%s failure", f.Kind)
	if f.Subsystem != "" {
		msg += " in " + f.Subsystem
	}
	if f.Action != "" {
		msg += " (" + f.Action + ")"
	}
	if f.Err != nil {
		msg += ": " + f.Err.Error()
	}
	return msg
}

func (f *Failure) Unwrap() error { return f.Err }

// UserMessage is the single line shown to the user for this failure.
func (f *Failure) UserMessage() string {
	switch f.Kind {
	case ParseFailure:
		return "Could not parse. Example: " + PlanExample
	case ConfigurationFailure:
		if f.Subsystem == SubsystemChat {
			return fmt.Sprintf("Chat is not configured. Send a plan like '%s', or use /help.", PlanExample)
		}
		return capitalize(f.Subsystem) + " is not configured."
	}
	action := f.Action
	if action == "" {
		action = f.Subsystem
	}
	return fmt.Sprintf("%s failed. Check %s config.", capitalize(action), f.Subsystem)
}

// UserMessage renders any error for a user: Failures by their own message,
// anything else generically.
func UserMessage(err error) string {
	var f *Failure
	if errors.As(err, &f) {
		return f.UserMessage()
	}
	return "Something went wrong. Try again?"
}

// collaborator wraps a failed call. Errors that signal missing
// configuration become ConfigurationFailures.
func collaborator(subsystem, action string, err error) *Failure {
	kind := CollaboratorFailure
	if errors.Is(err, ErrNotConfigured) || errors.Is(err, calendar.ErrNoPlanCalendar) {
		kind = ConfigurationFailure
	}
	return &Failure{Kind: kind, Subsystem: subsystem, Action: action, Err: err}
}

func notConfigured(subsystem string) *Failure {
	return &Failure{Kind: ConfigurationFailure, Subsystem: subsystem, Err: ErrNotConfigured}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
