// Package convo is the per-user conversation state machine. It decides what
// an incoming message means from the user's wait state and the text
// classifier, and drives the calendar, daily log and chat collaborators.
package convo

import (
	"context"
	"errors"
	"fmt"

	"github.com/chris/daylog/internal/plan"
)

type State int

const (
	None State = iota
	WaitMorning
	WaitPlan
	WaitPlanConfirm
	WaitNight
)

var stateNames = [...]string{
	None:            "NONE",
	WaitMorning:     "WAIT_MORNING",
	WaitPlan:        "WAIT_PLAN",
	WaitPlanConfirm: "WAIT_PLAN_CONFIRM",
	WaitNight:       "WAIT_NIGHT",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// ParseState is the inverse of String, used by stores. An empty string is
// None.
func ParseState(s string) (State, error) {
	if s == "" {
		return None, nil
	}
	for i, name := range stateNames {
		if name == s {
			return State(i), nil
		}
	}
	return None, fmt.Errorf("unknown conversation state %q", s)
}

var ErrPendingPlan = errors.New("pending plan must be set exactly in WAIT_PLAN_CONFIRM")

// UserState is one user's persisted conversation state.
type UserState struct {
	State       State
	PendingPlan *plan.Plan // only in WaitPlanConfirm
	LastDate    string     // YYYY-MM-DD of the last transition
}

// Validate checks the pending plan invariant. Stores call it before writing.
func (s UserState) Validate() error {
	if (s.State == WaitPlanConfirm) != (s.PendingPlan != nil) {
		return fmt.Errorf("%w: state %s", ErrPendingPlan, s.State)
	}
	return nil
}

// StateStore persists UserState and app-level markers. GetUserState returns
// (and records) the zero state for an unknown user; GetAppMarker returns ""
// for an unset key.
type StateStore interface {
	GetUserState(ctx context.Context, userID string) (UserState, error)
	SetUserState(ctx context.Context, userID string, state UserState) error
	GetAppMarker(ctx context.Context, key string) (string, error)
	SetAppMarker(ctx context.Context, key, value string) error
}
