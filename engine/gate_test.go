package engine

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"workshop-board/domain"
)

func claimAwaitingEvaluation(id string) domain.Item {
	item := warrantyItem(id, domain.WarrantyAwaitingEvaluation, time.Hour)
	item.PriorServiceRef = "svc-" + id
	return item
}

func TestGatedMoveOpensEvaluationWithCandidates(t *testing.T) {
	candidates := []domain.CandidateItem{{ID: "p1", Description: "compressor"}}
	svc := &stubService{
		listFn: func(ctx context.Context, priorRef string) ([]domain.CandidateItem, error) {
			if priorRef != "svc-42" {
				t.Fatalf("candidates fetched with wrong reference %q", priorRef)
			}
			return candidates, nil
		},
	}
	s := newWarrantySession(t, svc, claimAwaitingEvaluation("42"))
	before := s.Snapshot()

	out, err := s.Move(context.Background(), MoveIntent{ID: "42", To: domain.WarrantyInRepair})
	if err != nil {
		t.Fatalf("gated move: %v", err)
	}
	if !out.EvaluationRequired || !reflect.DeepEqual(out.Candidates, candidates) {
		t.Fatalf("expected evaluation-required outcome, got %#v", out)
	}
	if svc.setStateCalls != 0 {
		t.Fatal("gated move must not confirm before a verdict")
	}
	if !reflect.DeepEqual(before, s.Snapshot()) {
		t.Fatal("gated move mutated the board before the verdict")
	}
	if !s.EvaluationOpen("42") {
		t.Fatal("evaluation should be awaiting input")
	}
}

func TestResolveMeetsConditionsCommitsAndChainsWorkOrder(t *testing.T) {
	svc := &stubService{
		listFn: func(ctx context.Context, priorRef string) ([]domain.CandidateItem, error) {
			return []domain.CandidateItem{{ID: "p1", Description: "compressor"}}, nil
		},
	}
	var confirmedVerdict *domain.Verdict
	svc.setStateFn = func(ctx context.Context, kind domain.Kind, id string, to domain.State, verdict *domain.Verdict) (*domain.Item, error) {
		if to != domain.WarrantyInRepair {
			t.Fatalf("verdict committed to %q", to)
		}
		confirmedVerdict = verdict
		return nil, nil
	}
	var orderFor string
	svc.createFn = func(ctx context.Context, warrantyID string, v domain.Verdict) (*domain.Item, error) {
		orderFor = warrantyID
		return &domain.Item{ID: "wo-1", Kind: domain.KindWorkOrder, State: domain.OrderOpen}, nil
	}
	s := newWarrantySession(t, svc, claimAwaitingEvaluation("42"))

	if _, err := s.Move(context.Background(), MoveIntent{ID: "42", To: domain.WarrantyInRepair}); err != nil {
		t.Fatalf("open gate: %v", err)
	}
	verdict := domain.Verdict{
		ItemID:   "42",
		Outcome:  domain.MeetsConditions,
		Selected: []domain.SelectedItem{{CandidateID: "p1"}},
	}
	out, err := s.ResolveEvaluation(context.Background(), verdict)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if out.Warning != nil {
		t.Fatalf("unexpected warning: %v", out.Warning)
	}
	if confirmedVerdict == nil || confirmedVerdict.Outcome != domain.MeetsConditions {
		t.Fatalf("verdict metadata not attached to confirming request: %#v", confirmedVerdict)
	}
	if orderFor != "42" {
		t.Fatalf("zero-cost work order created for %q", orderFor)
	}
	inRepair := columnByState(t, s.Snapshot().Columns, domain.WarrantyInRepair)
	if len(inRepair.Items) != 1 || inRepair.Items[0].ID != "42" {
		t.Fatalf("claim should sit in in-repair, got %#v", inRepair.Items)
	}
	if s.EvaluationOpen("42") {
		t.Fatal("gate should be idle after resolution")
	}
}

func TestInvalidVerdictRejectedLocallyAndGateStaysOpen(t *testing.T) {
	svc := &stubService{
		listFn: func(ctx context.Context, priorRef string) ([]domain.CandidateItem, error) {
			return []domain.CandidateItem{{ID: "p1"}}, nil
		},
	}
	s := newWarrantySession(t, svc, claimAwaitingEvaluation("42"))
	if _, err := s.Move(context.Background(), MoveIntent{ID: "42", To: domain.WarrantyClaimRejected}); err != nil {
		t.Fatalf("open gate: %v", err)
	}
	before := s.Snapshot()

	// does-not-meet with no justification must be rejected without any
	// network or board effect.
	_, err := s.ResolveEvaluation(context.Background(), domain.Verdict{ItemID: "42", Outcome: domain.DoesNotMeet})
	var invalid *VerdictInvalidError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected VerdictInvalidError, got %v", err)
	}
	if svc.setStateCalls != 0 {
		t.Fatal("invalid verdict must never reach the network")
	}
	if !reflect.DeepEqual(before, s.Snapshot()) {
		t.Fatal("invalid verdict mutated the board")
	}
	if !s.EvaluationOpen("42") {
		t.Fatal("sub-flow must stay open after a rejected verdict")
	}

	// The same verdict with justification proceeds to claim-rejected.
	svc.setStateFn = func(ctx context.Context, kind domain.Kind, id string, to domain.State, verdict *domain.Verdict) (*domain.Item, error) {
		if to != domain.WarrantyClaimRejected {
			t.Fatalf("expected claim-rejected destination, got %q", to)
		}
		return nil, nil
	}
	out, err := s.ResolveEvaluation(context.Background(), domain.Verdict{
		ItemID:        "42",
		Outcome:       domain.DoesNotMeet,
		Justification: "damage not covered",
	})
	if err != nil {
		t.Fatalf("resolve with justification: %v", err)
	}
	if out.Item == nil || out.Item.State != domain.WarrantyClaimRejected {
		t.Fatalf("unexpected outcome: %#v", out)
	}
	if svc.createCalls != 0 {
		t.Fatal("rejected claims must not create work orders")
	}
}

func TestChainedWorkOrderFailureSurfacedWithoutRollback(t *testing.T) {
	svc := &stubService{
		listFn: func(ctx context.Context, priorRef string) ([]domain.CandidateItem, error) {
			return nil, nil
		},
		setStateFn: func(ctx context.Context, kind domain.Kind, id string, to domain.State, verdict *domain.Verdict) (*domain.Item, error) {
			return nil, nil
		},
		createFn: func(ctx context.Context, warrantyID string, v domain.Verdict) (*domain.Item, error) {
			return nil, errors.New("orders service down")
		},
	}
	s := newWarrantySession(t, svc, claimAwaitingEvaluation("42"))
	if _, err := s.Move(context.Background(), MoveIntent{ID: "42", To: domain.WarrantyInRepair}); err != nil {
		t.Fatalf("open gate: %v", err)
	}

	// Empty candidate list: meets-conditions needs no selection.
	out, err := s.ResolveEvaluation(context.Background(), domain.Verdict{ItemID: "42", Outcome: domain.MeetsConditions})
	if err != nil {
		t.Fatalf("resolve must not fail outright: %v", err)
	}
	var chained *ChainedOperationFailedError
	if !errors.As(out.Warning, &chained) {
		t.Fatalf("expected ChainedOperationFailedError warning, got %v", out.Warning)
	}
	// The committed state change stays committed.
	inRepair := columnByState(t, s.Snapshot().Columns, domain.WarrantyInRepair)
	if len(inRepair.Items) != 1 || inRepair.Items[0].ID != "42" {
		t.Fatalf("move must not be rolled back on chained failure, got %#v", inRepair.Items)
	}
}

func TestCancelEvaluationDiscardsTheMove(t *testing.T) {
	svc := &stubService{
		listFn: func(ctx context.Context, priorRef string) ([]domain.CandidateItem, error) {
			return []domain.CandidateItem{{ID: "p1"}}, nil
		},
	}
	s := newWarrantySession(t, svc, claimAwaitingEvaluation("42"))
	before := s.Snapshot()
	if _, err := s.Move(context.Background(), MoveIntent{ID: "42", To: domain.WarrantyInRepair}); err != nil {
		t.Fatalf("open gate: %v", err)
	}

	if err := s.CancelEvaluation("42"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if svc.setStateCalls != 0 {
		t.Fatal("cancellation must not touch the network")
	}
	if !reflect.DeepEqual(before, s.Snapshot()) {
		t.Fatal("cancellation mutated the board")
	}
	if err := s.CancelEvaluation("42"); !errors.Is(err, ErrNoEvaluation) {
		t.Fatalf("second cancel should report no evaluation, got %v", err)
	}
	if _, err := s.ResolveEvaluation(context.Background(), domain.Verdict{ItemID: "42", Outcome: domain.MeetsConditions}); !errors.Is(err, ErrNoEvaluation) {
		t.Fatalf("resolve after cancel should report no evaluation, got %v", err)
	}
}

func TestSecondGatedMoveWhileAwaitingInput(t *testing.T) {
	svc := &stubService{
		listFn: func(ctx context.Context, priorRef string) ([]domain.CandidateItem, error) {
			return nil, nil
		},
	}
	s := newWarrantySession(t, svc, claimAwaitingEvaluation("42"), claimAwaitingEvaluation("43"))
	if _, err := s.Move(context.Background(), MoveIntent{ID: "42", To: domain.WarrantyInRepair}); err != nil {
		t.Fatalf("open gate: %v", err)
	}
	if _, err := s.Move(context.Background(), MoveIntent{ID: "43", To: domain.WarrantyInRepair}); !errors.Is(err, ErrEvaluationInProgress) {
		t.Fatalf("expected ErrEvaluationInProgress, got %v", err)
	}
}

func TestVerdictConfirmationFailureReopensNothing(t *testing.T) {
	svc := &stubService{
		listFn: func(ctx context.Context, priorRef string) ([]domain.CandidateItem, error) {
			return nil, nil
		},
		setStateFn: func(ctx context.Context, kind domain.Kind, id string, to domain.State, verdict *domain.Verdict) (*domain.Item, error) {
			return nil, errors.New("backend down")
		},
	}
	s := newWarrantySession(t, svc, claimAwaitingEvaluation("42"))
	before := s.Snapshot()
	if _, err := s.Move(context.Background(), MoveIntent{ID: "42", To: domain.WarrantyInRepair}); err != nil {
		t.Fatalf("open gate: %v", err)
	}

	_, err := s.ResolveEvaluation(context.Background(), domain.Verdict{ItemID: "42", Outcome: domain.MeetsConditions})
	var failed *ConfirmationFailedError
	if !errors.As(err, &failed) {
		t.Fatalf("expected ConfirmationFailedError, got %v", err)
	}
	if !reflect.DeepEqual(before, s.Snapshot()) {
		t.Fatal("board must be rolled back when the verdict's confirming request fails")
	}
	if svc.createCalls != 0 {
		t.Fatal("work order must not be created when the move never committed")
	}
}
