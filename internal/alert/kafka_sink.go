package alert

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/quantpipe/cointegration-pipeline/internal/model"
)

// KafkaSink publishes firings as JSON to a Kafka topic. The teacher
// used franz-go as a consumer (ws/kafka/consumer.go); here it is
// repurposed as a producer, since this pipeline has no inbound message
// bus role.
type KafkaSink struct {
	client *kgo.Client
	topic  string
}

// NewKafkaSink builds a franz-go client seeded with the given brokers
// and returns a sink that publishes to topic. Broker connections are
// opened lazily by the client on first produce, not here.
func NewKafkaSink(brokers []string, topic string) (*KafkaSink, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
	)
	if err != nil {
		return nil, fmt.Errorf("alert: kafka sink: %w", err)
	}
	return &KafkaSink{client: client, topic: topic}, nil
}

func (k *KafkaSink) Name() string { return "kafka" }

func (k *KafkaSink) Deliver(ctx context.Context, f model.Firing) error {
	payload, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("alert: marshal firing: %w", err)
	}
	record := &kgo.Record{Topic: k.topic, Value: payload, Key: []byte(f.Metric)}
	result := k.client.ProduceSync(ctx, record)
	return result.FirstErr()
}

// Close releases the underlying Kafka client.
func (k *KafkaSink) Close() {
	k.client.Close()
}
