package engine

import (
	"context"
	"reflect"
	"testing"
	"time"

	"workshop-board/domain"
)

func createdEvent(item domain.Item) domain.Event {
	return domain.Event{Kind: item.Kind, Type: domain.ItemCreated, ItemID: item.ID, Item: &item}
}

func TestApplyCreatedIsDuplicateTolerant(t *testing.T) {
	s := newWarrantySession(t, &stubService{})
	item := warrantyItem("a", domain.WarrantyReceived, time.Hour)

	s.Apply(createdEvent(item))
	after := s.Snapshot()
	s.Apply(createdEvent(item))
	if !reflect.DeepEqual(after, s.Snapshot()) {
		t.Fatal("replayed created event changed the board")
	}
	col := columnByState(t, s.Snapshot().Columns, domain.WarrantyReceived)
	if len(col.Items) != 1 {
		t.Fatalf("expected exactly one item, got %d", len(col.Items))
	}
}

func TestApplyUpdatedAndStateChanged(t *testing.T) {
	s := newWarrantySession(t, &stubService{}, warrantyItem("a", domain.WarrantyReceived, time.Hour))

	updated := warrantyItem("a", domain.WarrantyReceived, time.Hour)
	updated.Notes = "customer called"
	s.Apply(domain.Event{Kind: domain.KindWarranty, Type: domain.ItemUpdated, ItemID: "a", Item: &updated})
	got, _ := boardGet(s, "a")
	if got.Notes != "customer called" {
		t.Fatalf("update not applied: %#v", got)
	}

	moved := updated
	moved.State = domain.WarrantyAwaitingEvaluation
	s.Apply(domain.Event{
		Kind:          domain.KindWarranty,
		Type:          domain.ItemStateChanged,
		ItemID:        "a",
		Item:          &moved,
		PreviousState: domain.WarrantyReceived,
	})
	col := columnByState(t, s.Snapshot().Columns, domain.WarrantyAwaitingEvaluation)
	if len(col.Items) != 1 || col.Items[0].ID != "a" {
		t.Fatalf("state change not folded in: %#v", col.Items)
	}
	if n := len(columnByState(t, s.Snapshot().Columns, domain.WarrantyReceived).Items); n != 0 {
		t.Fatalf("item left behind in old column: %d", n)
	}
}

func TestApplyDeleted(t *testing.T) {
	s := newWarrantySession(t, &stubService{}, warrantyItem("a", domain.WarrantyReceived, time.Hour))
	s.Apply(domain.Event{Kind: domain.KindWarranty, Type: domain.ItemDeleted, ItemID: "a"})
	for _, col := range s.Snapshot().Columns {
		if len(col.Items) != 0 {
			t.Fatalf("deleted item still present in %q", col.State)
		}
	}
}

func TestApplyIgnoresOtherKindsAndUnknownTypes(t *testing.T) {
	s := newWarrantySession(t, &stubService{}, warrantyItem("a", domain.WarrantyReceived, time.Hour))
	before := s.Snapshot()

	budget := domain.Item{ID: "b", Kind: domain.KindBudget, State: domain.BudgetDraft, CreatedAt: time.Now()}
	s.Apply(createdEvent(budget))
	s.Apply(domain.Event{Kind: domain.KindWarranty, Type: "item-archived", ItemID: "a"})

	if !reflect.DeepEqual(before, s.Snapshot()) {
		t.Fatal("foreign or unknown events mutated the board")
	}
}

// A state-changed push event arriving while a move on the same id awaits
// confirmation must neither panic nor duplicate the id; whichever write lands
// last wins.
func TestPushEventInterleavesWithInflightMove(t *testing.T) {
	svc := &stubService{}
	var s *Session
	svc.setStateFn = func(ctx context.Context, kind domain.Kind, id string, to domain.State, verdict *domain.Verdict) (*domain.Item, error) {
		// Simulate the push channel delivering a concurrent state change for
		// the same id while the confirming request is in flight.
		pushed := warrantyItem("42", domain.WarrantyInRepair, time.Hour)
		s.Apply(domain.Event{
			Kind:          domain.KindWarranty,
			Type:          domain.ItemStateChanged,
			ItemID:        "42",
			Item:          &pushed,
			PreviousState: domain.WarrantyAwaitingEvaluation,
		})
		return nil, nil
	}
	s = newWarrantySession(t, svc, warrantyItem("42", domain.WarrantyReceived, time.Hour))

	if _, err := s.Move(context.Background(), MoveIntent{ID: "42", To: domain.WarrantyAwaitingEvaluation}); err != nil {
		t.Fatalf("move: %v", err)
	}

	// The id must appear exactly once across all columns.
	count := 0
	for _, col := range s.Snapshot().Columns {
		for _, it := range col.Items {
			if it.ID == "42" {
				count++
			}
		}
	}
	if count != 1 {
		t.Fatalf("id 42 appears %d times across columns", count)
	}
}

func boardGet(s *Session, id string) (domain.Item, bool) {
	for _, col := range s.Snapshot().Columns {
		for _, it := range col.Items {
			if it.ID == id {
				return it, true
			}
		}
	}
	return domain.Item{}, false
}
