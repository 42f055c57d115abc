package workflow

import (
	"errors"
	"fmt"
)

// State is a step of the capture, verify, claim flow
type State int

const (
	Idle State = iota
	Captured
	Verifying
	Accepted
	Rejected
	Claiming
	Claimed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Captured:
		return "captured"
	case Verifying:
		return "verifying"
	case Accepted:
		return "accepted"
	case Rejected:
		return "rejected"
	case Claiming:
		return "claiming"
	case Claimed:
		return "claimed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var (
	// ErrInvalidTransition matches every *TransitionError
	ErrInvalidTransition = errors.New("invalid workflow transition")

	// ErrSuperseded is returned by operations on a session replaced by Manager.Begin
	ErrSuperseded = errors.New("session superseded by a newer one")
)

// TransitionError reports an operation attempted from the wrong state
type TransitionError struct {
	From State
	Op   string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s from state %s", e.Op, e.From)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// Claim failure reasons
const (
	ReasonLocation    = "location"
	ReasonPersistence = "persistence"
)

// ClaimError reports a claim that failed and left the session in Accepted,
// from where it can be retried.
type ClaimError struct {
	Reason string
	Err    error
}

func (e *ClaimError) Error() string {
	return fmt.Sprintf("claim failed (%s): %v", e.Reason, e.Err)
}

func (e *ClaimError) Unwrap() error {
	return e.Err
}

// Retryable is always true; a failed claim never leaves the session stuck
func (e *ClaimError) Retryable() bool {
	return true
}
