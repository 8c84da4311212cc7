// README: Kafka journal; at-least-once record of the change-event firehose.
package propagation

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaJournal appends every committed change event to a Kafka topic, keyed
// by entity id so per-entity ordering survives partitioning. It backs the
// operator dashboard and offline audit; live delivery never depends on it.
type KafkaJournal struct {
	writer *kafka.Writer
}

func NewKafkaJournal(brokers []string, topic string) *KafkaJournal {
	w := kafka.NewWriter(kafka.WriterConfig{Brokers: brokers, Topic: topic, Balancer: &kafka.Hash{}})
	return &KafkaJournal{writer: w}
}

func (k *KafkaJournal) Record(e Event) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return k.writer.WriteMessages(ctx, kafka.Message{Key: []byte(e.EntityID), Value: b})
}

func (k *KafkaJournal) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}
