// Package pubsub implements the work item queue on Google Cloud Pub/Sub.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/orefield/specharvest/internal/specs"
)

// Queue publishes work items to a topic and receives them from a
// subscription. Dequeue is backed by a receive loop that acks messages as
// soon as they are handed to a caller; redelivery semantics are therefore
// at-most-once per process, which is acceptable because harvest runs are
// idempotent.
type Queue struct {
	client *pubsub.Client
	topic  *pubsub.Topic
	sub    *pubsub.Subscription
	logger *zap.Logger

	items chan specs.WorkItem

	startOnce sync.Once
	cancel    context.CancelFunc
}

// Config identifies the topic and subscription to use.
type Config struct {
	ProjectID    string
	Topic        string
	Subscription string
	Buffer       int
}

// New connects a Queue to Pub/Sub.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Queue, error) {
	if cfg.ProjectID == "" || cfg.Topic == "" {
		return nil, fmt.Errorf("project id and topic are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	buffer := cfg.Buffer
	if buffer <= 0 {
		buffer = 16
	}
	q := &Queue{
		client: client,
		topic:  client.Topic(cfg.Topic),
		logger: logger,
		items:  make(chan specs.WorkItem, buffer),
	}
	if cfg.Subscription != "" {
		q.sub = client.Subscription(cfg.Subscription)
	}
	return q, nil
}

// Enqueue publishes the work item as JSON and waits for the server ack.
func (q *Queue) Enqueue(ctx context.Context, item specs.WorkItem) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal work item: %w", err)
	}
	result := q.topic.Publish(ctx, &pubsub.Message{Data: data})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish work item: %w", err)
	}
	return nil
}

// Dequeue returns the next work item from the subscription.
func (q *Queue) Dequeue(ctx context.Context) (specs.WorkItem, error) {
	if q.sub == nil {
		return specs.WorkItem{}, fmt.Errorf("subscription is not configured")
	}
	q.startOnce.Do(q.startReceive)

	select {
	case <-ctx.Done():
		return specs.WorkItem{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case item := <-q.items:
		return item, nil
	}
}

func (q *Queue) startReceive() {
	recvCtx, cancel := context.WithCancel(context.Background())
	q.cancel = cancel
	go func() {
		err := q.sub.Receive(recvCtx, func(_ context.Context, msg *pubsub.Message) {
			var item specs.WorkItem
			if err := json.Unmarshal(msg.Data, &item); err != nil {
				q.logger.Warn("dropping malformed work item", zap.Error(err))
				msg.Ack()
				return
			}
			msg.Ack()
			select {
			case q.items <- item:
			case <-recvCtx.Done():
			}
		})
		if err != nil && recvCtx.Err() == nil {
			q.logger.Error("pubsub receive stopped", zap.Error(err))
		}
	}()
}

// Close stops the receive loop, the topic publisher and the client.
func (q *Queue) Close() error {
	if q.cancel != nil {
		q.cancel()
	}
	q.topic.Stop()
	if err := q.client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}
