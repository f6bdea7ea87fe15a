// shared/kafka/producer.go
package kafka

import (
	"encoding/json"
	"log"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// Producer wraps the Kafka producer used by all services.
type Producer struct {
	producer *kafka.Producer
}

// NewProducer creates a new Kafka producer connected to the given brokers.
func NewProducer(bootstrapServers string) (*Producer, error) {
	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": bootstrapServers,
	})
	if err != nil {
		return nil, err
	}

	// Drain delivery reports so the internal queue never fills up.
	go func() {
		for e := range p.Events() {
			if ev, ok := e.(*kafka.Message); ok {
				if ev.TopicPartition.Error != nil {
					log.Printf("Failed to deliver message to %v: %v",
						ev.TopicPartition, ev.TopicPartition.Error)
				}
			}
		}
	}()

	return &Producer{producer: p}, nil
}

// SendMessage marshals value as JSON and produces it on the given topic.
func (p *Producer) SendMessage(topic string, key string, value interface{}) error {
	jsonValue, err := json.Marshal(value)
	if err != nil {
		return err
	}

	return p.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Key:            []byte(key),
		Value:          jsonValue,
	}, nil)
}

// Close closes the producer.
func (p *Producer) Close() {
	p.producer.Close()
}
