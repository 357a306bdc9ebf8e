package engine

import (
	"context"

	log "github.com/sirupsen/logrus"

	"workshop-board/domain"
)

// evaluation is a pending gate continuation: a gated move was attempted and
// the session is awaiting a verdict (or a cancellation) before the transition
// may commit.
type evaluation struct {
	item       domain.Item
	candidates []domain.CandidateItem
}

// openEvaluationLocked suspends a gated move: it fetches the candidate
// sub-items for the item's prior service and parks the move until a verdict
// arrives. Called with s.mu held; releases it.
func (s *Session) openEvaluationLocked(ctx context.Context, item domain.Item) (MoveOutcome, error) {
	if s.eval != nil {
		s.mu.Unlock()
		return MoveOutcome{}, ErrEvaluationInProgress
	}
	s.mu.Unlock()

	candidates, err := s.svc.ListCandidateItems(ctx, item.PriorServiceRef)
	if err != nil {
		s.logger.WithError(err).WithField("item", item.ID).Error("failed to load evaluation candidates")
		return MoveOutcome{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return MoveOutcome{}, ErrSessionClosed
	}
	if s.eval != nil {
		return MoveOutcome{}, ErrEvaluationInProgress
	}
	s.eval = &evaluation{item: item, candidates: candidates}
	return MoveOutcome{EvaluationRequired: true, Candidates: candidates}, nil
}

// ResolveEvaluation accepts the verdict produced by the sub-flow, validates
// it locally, maps the outcome to its destination state, and commits the
// suspended move with the verdict attached to the confirming request. A
// meets-conditions verdict chains the creation of a zero-cost work order
// after the move commits; a failure there is surfaced but the already
// committed state change is not rolled back.
func (s *Session) ResolveEvaluation(ctx context.Context, verdict domain.Verdict) (MoveOutcome, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return MoveOutcome{}, ErrSessionClosed
	}
	eval := s.eval
	if eval == nil || eval.item.ID != verdict.ItemID {
		s.mu.Unlock()
		return MoveOutcome{}, ErrNoEvaluation
	}
	if err := verdict.Validate(len(eval.candidates)); err != nil {
		// Invalid verdicts are rejected locally; the sub-flow stays open.
		s.mu.Unlock()
		return MoveOutcome{}, &VerdictInvalidError{Err: err}
	}
	dest, ok := s.policy.OutcomeDestination(verdict.Outcome)
	if !ok {
		s.mu.Unlock()
		return MoveOutcome{}, &VerdictInvalidError{Err: domain.ErrUnknownOutcome}
	}
	s.eval = nil
	s.mu.Unlock()

	outcome, err := s.commitMove(ctx, eval.item, dest, &verdict)
	if err != nil {
		return outcome, err
	}

	if dest == domain.WarrantyInRepair {
		if _, orderErr := s.svc.CreateZeroCostWorkOrder(ctx, eval.item.ID, verdict); orderErr != nil {
			s.logger.WithError(orderErr).WithFields(log.Fields{
				"item":    eval.item.ID,
				"outcome": verdict.Outcome,
			}).Error("work order creation failed after committed claim acceptance")
			outcome.Warning = &ChainedOperationFailedError{ID: eval.item.ID, Err: orderErr}
		}
	}
	return outcome, nil
}

// CancelEvaluation discards the pending verdict. No board or network
// mutation is performed; the suspended move simply never happens.
func (s *Session) CancelEvaluation(itemID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.eval == nil || s.eval.item.ID != itemID {
		return ErrNoEvaluation
	}
	s.eval = nil
	return nil
}

// EvaluationOpen reports whether a gated move is awaiting input for itemID.
func (s *Session) EvaluationOpen(itemID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eval != nil && s.eval.item.ID == itemID
}
