// shared/kafka/consumer.go
package kafka

import (
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// MessageHandler processes one consumed message.
type MessageHandler func(key []byte, value []byte) error

// Consumer wraps the Kafka consumer used by the worker services.
type Consumer struct {
	consumer *kafka.Consumer
}

// NewConsumer creates a new Kafka consumer in the given consumer group.
func NewConsumer(bootstrapServers, groupID string) (*Consumer, error) {
	c, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers":  bootstrapServers,
		"group.id":           groupID,
		"auto.offset.reset":  "earliest",
		"enable.auto.commit": "true",
	})
	if err != nil {
		return nil, err
	}

	return &Consumer{consumer: c}, nil
}

// Subscribe subscribes to the given topics, retrying while the brokers are
// still creating them at startup.
func (c *Consumer) Subscribe(topics []string) error {
	maxRetries := 15
	retryDelay := 2 * time.Second

	var err error
	for i := 0; i < maxRetries; i++ {
		err = c.consumer.SubscribeTopics(topics, nil)
		if err == nil {
			log.Printf("Subscribed to topics: %v", topics)
			return nil
		}

		if i < maxRetries-1 {
			log.Printf("Failed to subscribe to topics: %v, retrying in %v (attempt %d/%d)",
				err, retryDelay, i+1, maxRetries)
			time.Sleep(retryDelay)
			retryDelay = time.Duration(float64(retryDelay) * 1.5)
		}
	}

	return err
}

// ConsumeMessages polls for messages and hands them to handler until the
// process receives SIGINT/SIGTERM or all brokers go away.
func (c *Consumer) ConsumeMessages(handler MessageHandler) {
	sigchan := make(chan os.Signal, 1)
	signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)

	run := true
	for run {
		select {
		case sig := <-sigchan:
			log.Printf("Caught signal %v: terminating", sig)
			run = false
		default:
			ev := c.consumer.Poll(100)
			if ev == nil {
				continue
			}

			switch e := ev.(type) {
			case *kafka.Message:
				if err := handler(e.Key, e.Value); err != nil {
					log.Printf("Error processing message: %v", err)
				}
			case kafka.Error:
				// Subscription errors can resolve once the topics
				// exist; only a full broker outage stops the loop.
				if e.Code() == kafka.ErrAllBrokersDown {
					log.Printf("Fatal Kafka error: %v", e)
					run = false
				} else {
					log.Printf("Kafka error: %v", e)
				}
			}
		}
	}
}

// UnmarshalMessage unmarshals a consumed message value into v.
func UnmarshalMessage(value []byte, v interface{}) error {
	return json.Unmarshal(value, v)
}

// Close closes the consumer.
func (c *Consumer) Close() {
	c.consumer.Close()
}
