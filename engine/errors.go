package engine

import (
	"errors"
	"fmt"

	"workshop-board/domain"
)

var (
	// ErrItemNotFound means the move intent named an id the board does not hold.
	ErrItemNotFound = errors.New("item not found on board")
	// ErrEvaluationInProgress means another gated move is already awaiting a verdict.
	ErrEvaluationInProgress = errors.New("an evaluation is already in progress")
	// ErrNoEvaluation means a verdict or cancellation arrived with no open evaluation.
	ErrNoEvaluation = errors.New("no evaluation is awaiting input")
	// ErrSessionClosed means the board session was already torn down.
	ErrSessionClosed = errors.New("board session is closed")
)

// TransitionRejectedError is returned for moves outside the declared edge set.
// The board and the network are never touched.
type TransitionRejectedError struct {
	Kind domain.Kind
	From domain.State
	To   domain.State
}

func (e *TransitionRejectedError) Error() string {
	return fmt.Sprintf("%s items cannot move from %q to %q", e.Kind, e.From, e.To)
}

// ConfirmationFailedError is returned when the confirming request failed and
// the optimistic move was rolled back. Nothing changed.
type ConfirmationFailedError struct {
	ID  string
	To  domain.State
	Err error
}

func (e *ConfirmationFailedError) Error() string {
	return fmt.Sprintf("confirming move of %s to %q failed: %v", e.ID, e.To, e.Err)
}

func (e *ConfirmationFailedError) Unwrap() error { return e.Err }

// ChainedOperationFailedError is surfaced when the follow-up work order
// creation failed after the state change had already committed. The move is
// NOT rolled back; callers must not treat this as "nothing changed".
type ChainedOperationFailedError struct {
	ID  string
	Err error
}

func (e *ChainedOperationFailedError) Error() string {
	return fmt.Sprintf("state change for %s committed but work order creation failed: %v", e.ID, e.Err)
}

func (e *ChainedOperationFailedError) Unwrap() error { return e.Err }

// VerdictInvalidError is returned when an evaluation verdict fails local
// validation. The sub-flow stays open; no board or network effect.
type VerdictInvalidError struct {
	Err error
}

func (e *VerdictInvalidError) Error() string {
	return fmt.Sprintf("verdict rejected: %v", e.Err)
}

func (e *VerdictInvalidError) Unwrap() error { return e.Err }
