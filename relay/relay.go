// Package relay drains the domain-events queue and republishes each event on
// the per-kind push topic so every running board session hears about
// mutations made by other clients and background processes.
package relay

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"workshop-board/domain"
	"workshop-board/subscription"
)

// Message is one dequeued queue entry. Ack deletes it; an unacked message
// becomes visible again and redelivers, so processing must be idempotent.
type Message struct {
	Text string
	Ack  func(ctx context.Context) error
}

// Queue abstracts the domain-events queue. Dequeue returns nil when the
// queue is empty.
type Queue interface {
	Dequeue(ctx context.Context) (*Message, error)
}

// AzureQueue adapts an azqueue client to the Queue interface.
type AzureQueue struct {
	client *azqueue.QueueClient
}

func NewAzureQueue(client *azqueue.QueueClient) *AzureQueue {
	return &AzureQueue{client: client}
}

func (q *AzureQueue) Dequeue(ctx context.Context) (*Message, error) {
	resp, err := q.client.DequeueMessage(ctx, nil)
	if err != nil {
		return nil, err
	}
	if len(resp.Messages) == 0 {
		return nil, nil
	}
	msg := resp.Messages[0]
	id, receipt := *msg.MessageID, *msg.PopReceipt
	return &Message{
		Text: *msg.MessageText,
		Ack: func(ctx context.Context) error {
			_, err := q.client.DeleteMessage(ctx, id, receipt, nil)
			return err
		},
	}, nil
}

// Run pumps the queue until ctx is cancelled.
func Run(ctx context.Context, logger *log.Logger, q Queue, rc *redis.Client) {
	for {
		if ctx.Err() != nil {
			return
		}
		msg, err := q.Dequeue(ctx)
		if err != nil {
			logger.WithError(err).Error("failed to dequeue domain event")
			sleep(ctx, time.Second)
			continue
		}
		if msg == nil {
			sleep(ctx, time.Second)
			continue
		}
		if err := republish(ctx, logger, rc, msg.Text); err != nil {
			// Leave the message unacked so it redelivers; per-kind insert
			// idempotency makes the replay harmless.
			logger.WithError(err).Error("failed to republish domain event")
			continue
		}
		if err := msg.Ack(ctx); err != nil {
			logger.WithError(err).Error("failed to ack domain event")
		}
	}
}

// republish validates the envelope and forwards the event payload onto the
// push topic of its kind.
func republish(ctx context.Context, logger *log.Logger, rc *redis.Client, raw string) error {
	var envelope domain.EventEnvelope
	if err := json.Unmarshal([]byte(raw), &envelope); err != nil {
		// A poison message would loop forever; log and drop it.
		logger.WithError(err).Warn("dropping malformed domain event")
		return nil
	}
	if !envelope.Kind.Valid() {
		logger.WithField("kind", envelope.Kind).Warn("dropping domain event of unknown kind")
		return nil
	}
	return rc.Publish(ctx, subscription.TopicFor(envelope.Kind), string(envelope.Payload)).Err()
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
