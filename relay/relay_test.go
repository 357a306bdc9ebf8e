package relay

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"workshop-board/domain"
	"workshop-board/subscription"
)

type fakeQueue struct {
	messages []*Message
}

func (q *fakeQueue) Dequeue(ctx context.Context) (*Message, error) {
	if len(q.messages) == 0 {
		return nil, nil
	}
	msg := q.messages[0]
	q.messages = q.messages[1:]
	return msg, nil
}

func quietLogger() *log.Logger {
	logger := log.New()
	logger.SetOutput(io.Discard)
	return logger
}

func setupRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rc.Close() })
	return rc, mr
}

func envelopeFor(t *testing.T, ev domain.Event) string {
	t.Helper()
	payload, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	raw, err := json.Marshal(domain.EventEnvelope{Kind: ev.Kind, Payload: sonic.NoCopyRawMessage(payload)})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return string(raw)
}

func TestRepublishForwardsToKindTopic(t *testing.T) {
	rc, _ := setupRedis(t)
	ctx := context.Background()

	sub := rc.Subscribe(ctx, subscription.TopicFor(domain.KindBudget))
	t.Cleanup(func() { _ = sub.Close() })
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	item := domain.Item{ID: "b1", Kind: domain.KindBudget, State: domain.BudgetExpired}
	raw := envelopeFor(t, domain.Event{
		ID:     "ev1",
		Kind:   domain.KindBudget,
		Type:   domain.ItemStateChanged,
		ItemID: "b1",
		Item:   &item,
	})
	if err := republish(ctx, quietLogger(), rc, raw); err != nil {
		t.Fatalf("republish: %v", err)
	}

	select {
	case msg := <-sub.Channel():
		var ev domain.Event
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			t.Fatalf("published payload not an event: %v", err)
		}
		if ev.ID != "ev1" || ev.Item == nil || ev.Item.State != domain.BudgetExpired {
			t.Fatalf("unexpected event: %#v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("nothing published")
	}
}

func TestRepublishDropsMalformedAndUnknownKind(t *testing.T) {
	rc, _ := setupRedis(t)
	ctx := context.Background()

	if err := republish(ctx, quietLogger(), rc, "not json"); err != nil {
		t.Fatalf("malformed payloads must be dropped, not retried: %v", err)
	}
	raw := envelopeFor(t, domain.Event{ID: "ev2", Kind: "equipment", Type: domain.ItemCreated})
	if err := republish(ctx, quietLogger(), rc, raw); err != nil {
		t.Fatalf("unknown kinds must be dropped, not retried: %v", err)
	}
}

func TestRunAcksProcessedMessages(t *testing.T) {
	rc, _ := setupRedis(t)

	acked := make(chan struct{}, 1)
	q := &fakeQueue{messages: []*Message{{
		Text: envelopeFor(t, domain.Event{ID: "ev3", Kind: domain.KindWorkOrder, Type: domain.ItemDeleted, ItemID: "wo1"}),
		Ack: func(ctx context.Context) error {
			acked <- struct{}{}
			return nil
		},
	}}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go Run(ctx, quietLogger(), q, rc)

	select {
	case <-acked:
	case <-time.After(2 * time.Second):
		t.Fatal("message was never acked")
	}
}
