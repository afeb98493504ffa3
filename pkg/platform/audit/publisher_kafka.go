package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaPublisher delivers audit events to a Kafka topic. Produce is
// asynchronous: a failed delivery is logged, never surfaced to the request
// path, since audit delivery must not fail a credit that already committed.
type KafkaPublisher struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

// KafkaPublisherOption configures a KafkaPublisher.
type KafkaPublisherOption func(*KafkaPublisher)

// WithLogger sets the logger used for delivery failures.
func WithLogger(logger *slog.Logger) KafkaPublisherOption {
	return func(p *KafkaPublisher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewKafkaPublisher connects to the given brokers and ensures the topic
// exists. Topic creation failures for pre-existing topics are ignored.
func NewKafkaPublisher(ctx context.Context, brokers []string, topic string, opts ...KafkaPublisherOption) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("at least one kafka broker is required")
	}
	if topic == "" {
		return nil, fmt.Errorf("audit topic is required")
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	p := &KafkaPublisher{
		client: client,
		topic:  topic,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}

	// Best-effort topic creation; brokers with auto-create or a pre-provisioned
	// topic make this a no-op.
	adm := kadm.NewClient(client)
	if _, err := adm.CreateTopics(ctx, 1, 1, nil, topic); err != nil {
		p.logger.WarnContext(ctx, "audit topic creation skipped",
			"topic", topic,
			"error", err,
		)
	}

	return p, nil
}

// Publish serializes the event and produces it asynchronously, keyed by
// identity so per-identity ordering is preserved within a partition.
func (p *KafkaPublisher) Publish(ctx context.Context, event Event) {
	value, err := json.Marshal(event)
	if err != nil {
		p.logger.ErrorContext(ctx, "failed to marshal audit event",
			"action", event.Action,
			"error", err,
		)
		return
	}

	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(event.IdentityKey),
		Value: value,
	}
	p.client.Produce(ctx, record, func(_ *kgo.Record, err error) {
		if err != nil {
			p.logger.Error("audit event delivery failed",
				"action", event.Action,
				"identity_key", event.IdentityKey,
				"error", err,
			)
		}
	})
}

// Close flushes outstanding records and releases the client.
func (p *KafkaPublisher) Close(ctx context.Context) error {
	if err := p.client.Flush(ctx); err != nil {
		p.client.Close()
		return fmt.Errorf("flush audit events: %w", err)
	}
	p.client.Close()
	return nil
}
