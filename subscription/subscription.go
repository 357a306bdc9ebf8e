package subscription

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"workshop-board/domain"
)

const topicPrefix = "board-updates:"

// TopicFor names the push channel topic carrying events for one board kind.
func TopicFor(kind domain.Kind) string {
	return topicPrefix + string(kind)
}

// Subscribe consumes the push topic for one board kind and hands each parsed
// event to apply. It keeps the subscription alive until ctx is cancelled,
// re-subscribing after a dropped connection; the backlog replayed after a
// reconnect may contain duplicates, which downstream reconciliation absorbs.
func Subscribe(ctx context.Context, logger *log.Logger, rc *redis.Client, kind domain.Kind, apply func(domain.Event)) {
	topic := TopicFor(kind)
	for {
		sub := rc.Subscribe(ctx, topic)
		ch := sub.Channel()
	receive:
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break receive
				}
				var ev domain.Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					logger.WithError(err).WithField("topic", topic).Error("unable to parse push event")
					continue
				}
				apply(ev)
			}
		}
		_ = sub.Close()
		if ctx.Err() != nil {
			return
		}
		logger.WithField("topic", topic).Error("push channel closed, reconnecting")
		time.Sleep(time.Second)
	}
}
