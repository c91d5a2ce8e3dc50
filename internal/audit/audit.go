// Package audit publishes validation lifecycle events to Kafka.
//
// Events are fire-and-forget: a broker outage must never fail or delay a
// validation run, so produce errors are logged and dropped. Supervisory
// consumers downstream use the stream to reconstruct who validated what
// and whether the offline guarantee held.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Event kinds.
const (
	KindRunStarted       = "run.started"
	KindRunCompleted     = "run.completed"
	KindRunFailed        = "run.failed"
	KindOfflineViolation = "run.offline_violation"
	KindPackagesReloaded = "packages.reloaded"
)

// Event is one audit record.
type Event struct {
	Kind      string    `json:"kind"`
	RunID     string    `json:"run_id,omitempty"`
	Profile   string    `json:"profile,omitempty"`
	Status    string    `json:"status,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher emits audit events.
type Publisher interface {
	Publish(ctx context.Context, e Event)
	Close()
}

// KafkaPublisher produces events to a Kafka topic, keyed by run so one
// run's events stay ordered within a partition.
type KafkaPublisher struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

// NewKafkaPublisher connects to the given brokers.
func NewKafkaPublisher(brokers []string, topic string, logger *slog.Logger) (*KafkaPublisher, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, err
	}
	return &KafkaPublisher{client: client, topic: topic, logger: logger}, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	payload, err := json.Marshal(e)
	if err != nil {
		p.logger.Error("encoding audit event", "kind", e.Kind, "error", err)
		return
	}
	record := &kgo.Record{Topic: p.topic, Key: []byte(e.RunID), Value: payload}
	p.client.Produce(ctx, record, func(_ *kgo.Record, err error) {
		if err != nil {
			p.logger.Warn("audit event dropped", "kind", e.Kind, "run_id", e.RunID, "error", err)
		}
	})
}

func (p *KafkaPublisher) Close() {
	p.client.Close()
}

// NopPublisher discards events; used when no brokers are configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) {}
func (NopPublisher) Close()                         {}
