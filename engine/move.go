package engine

import (
	"context"

	log "github.com/sirupsen/logrus"

	"workshop-board/domain"
)

// MoveIntent is a user-initiated column move: the item, the destination
// state derived from the drop target, and an optional position inside the
// destination column for same-column reorders.
type MoveIntent struct {
	ID       string       `json:"id"`
	To       domain.State `json:"to"`
	Position *int         `json:"position,omitempty"`
}

// MoveOutcome reports what a move intent did.
type MoveOutcome struct {
	// Item is the post-move snapshot. Nil while an evaluation is pending.
	Item *domain.Item `json:"item,omitempty"`
	// EvaluationRequired is set when the move was intercepted by the
	// evaluation gate; Candidates holds the sub-items offered for selection.
	EvaluationRequired bool                   `json:"evaluationRequired,omitempty"`
	Candidates         []domain.CandidateItem `json:"candidates,omitempty"`
	// Warning carries a ChainedOperationFailedError: the move committed but
	// a follow-up step failed.
	Warning error `json:"-"`
}

// Move executes an optimistic column move. It validates the transition,
// applies it to the board immediately, confirms it against the item service,
// and rolls the board back to its exact pre-move shape when confirmation
// fails. Moves into gated destinations open the evaluation sub-flow instead
// of committing.
func (s *Session) Move(ctx context.Context, intent MoveIntent) (MoveOutcome, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return MoveOutcome{}, ErrSessionClosed
	}
	item, ok := s.board.Get(intent.ID)
	if !ok {
		s.mu.Unlock()
		return MoveOutcome{}, ErrItemNotFound
	}

	// A drop on the item's own column is a pure reorder. Display order is
	// local state; the confirming request is never issued.
	if intent.To == item.State {
		if intent.Position != nil {
			s.board.Reorder(intent.ID, *intent.Position)
			s.broadcastLocked()
		}
		s.mu.Unlock()
		return MoveOutcome{Item: &item}, nil
	}

	if !s.policy.IsLegalTransition(item.State, intent.To) {
		s.mu.Unlock()
		return MoveOutcome{}, &TransitionRejectedError{Kind: s.policy.Kind, From: item.State, To: intent.To}
	}

	if s.policy.RequiresEvaluation(item.State, intent.To) {
		return s.openEvaluationLocked(ctx, item)
	}
	s.mu.Unlock()

	return s.commitMove(ctx, item, intent.To, nil)
}

// commitMove applies the transition optimistically, issues the confirming
// request, and undoes the board mutation when the request fails. The caller
// must not hold s.mu.
func (s *Session) commitMove(ctx context.Context, item domain.Item, to domain.State, verdict *domain.Verdict) (MoveOutcome, error) {
	s.mu.Lock()
	prevColumn, prevIndex, found := s.board.Locate(item.ID)
	if !found {
		s.mu.Unlock()
		return MoveOutcome{}, ErrItemNotFound
	}
	moved := item
	moved.State = to
	s.board.Replace(moved)
	s.broadcastLocked()
	s.mu.Unlock()

	confirmed, err := s.setState(ctx, item.ID, to, verdict)
	if err != nil {
		s.mu.Lock()
		s.board.restoreAt(item, prevColumn, prevIndex)
		s.broadcastLocked()
		s.mu.Unlock()
		s.logger.WithError(err).WithFields(log.Fields{
			"kind": s.policy.Kind,
			"item": item.ID,
			"to":   to,
		}).Warn("move rolled back after failed confirmation")
		return MoveOutcome{}, &ConfirmationFailedError{ID: item.ID, To: to, Err: err}
	}

	result := moved
	if confirmed != nil {
		// Merge authoritative fields returned by the confirming request.
		result = *confirmed
		s.mu.Lock()
		s.board.Replace(result)
		s.broadcastLocked()
		s.mu.Unlock()
	}
	return MoveOutcome{Item: &result}, nil
}

// setState guards against a confirming request that panics synchronously;
// the board must never be left half-moved.
func (s *Session) setState(ctx context.Context, id string, to domain.State, verdict *domain.Verdict) (item *domain.Item, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.WithFields(log.Fields{"item": id, "to": to, "panic": r}).Error("confirming request panicked")
			item = nil
			err = &panicError{value: r}
		}
	}()
	return s.svc.SetState(ctx, s.policy.Kind, id, to, verdict)
}

type panicError struct{ value any }

func (e *panicError) Error() string { return "confirming request panicked" }
