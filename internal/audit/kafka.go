package audit

import (
	"context"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"crosswalk/internal/platform/config"
)

// KafkaSink produces audit payloads to the configured topic. The outbox
// worker is the only producer; domain code never talks to Kafka.
type KafkaSink struct {
	client *kgo.Client
	topic  string
}

// NewKafkaSink connects to the brokers and ensures the audit topic
// exists. Returns nil when no brokers are configured.
func NewKafkaSink(ctx context.Context, cfg config.KafkaConfig) (*KafkaSink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, nil
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	adm := kadm.NewClient(client)
	// 6 partitions, broker-default replication. CreateTopics is a no-op
	// when the topic already exists apart from the returned error, which
	// we tolerate.
	resp, err := adm.CreateTopics(ctx, 6, -1, nil, cfg.Topic)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("ensure audit topic: %w", err)
	}
	for _, t := range resp.Sorted() {
		if t.Err != nil && !errors.Is(t.Err, kerr.TopicAlreadyExists) {
			client.Close()
			return nil, fmt.Errorf("ensure audit topic %q: %w", t.Topic, t.Err)
		}
	}

	return &KafkaSink{client: client, topic: cfg.Topic}, nil
}

// Produce publishes one payload keyed by entity id so per-entity
// ordering is preserved within a partition.
func (s *KafkaSink) Produce(ctx context.Context, key string, payload []byte) error {
	record := &kgo.Record{Topic: s.topic, Key: []byte(key), Value: payload}
	return s.client.ProduceSync(ctx, record).FirstErr()
}

func (s *KafkaSink) Close() {
	s.client.Close()
}
