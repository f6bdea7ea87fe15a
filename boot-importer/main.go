package main

import (
	"context"
	"log"
	"net/http"
	"os"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"

	"kcibuild/shared/kafka"
	"kcibuild/shared/kci"
	"kcibuild/shared/message"
)

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func main() {
	port := getEnv("PORT", "8084")
	basePath := getEnv("STORAGE_BASE_PATH", kci.DefaultBasePath)
	redisAddr := getEnv("REDIS_ADDR", "redis:6379")
	kafkaBrokers := getEnv("KAFKA_BROKERS", "kafka:29092")

	log.Println("🚀 Starting Boot Importer...")

	kafkaProducer, err := kafka.NewProducer(kafkaBrokers)
	if err != nil {
		log.Fatalf("❌ Failed to create Kafka producer: %v", err)
	}
	defer kafkaProducer.Close()
	log.Println("✅ Kafka producer created")

	kafkaConsumer, err := kafka.NewConsumer(kafkaBrokers, "boot-importer")
	if err != nil {
		log.Fatalf("❌ Failed to create Kafka consumer: %v", err)
	}
	defer kafkaConsumer.Close()

	if err := kafkaConsumer.Subscribe([]string{message.TopicBootImports}); err != nil {
		log.Fatalf("❌ Failed to subscribe to topics: %v", err)
	}
	log.Printf("✅ Subscribed to %s topic", message.TopicBootImports)

	redisClient := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})
	defer redisClient.Close()

	if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
		log.Fatalf("❌ Failed to connect to Redis: %v", err)
	}
	log.Println("✅ Redis connection verified")

	importer := NewImporter(basePath, redisClient, kafkaProducer)

	go func() {
		log.Printf("🎧 Consuming messages from %s...", message.TopicBootImports)
		kafkaConsumer.ConsumeMessages(func(key, value []byte) error {
			var importMsg message.BootImportMessage
			if err := kafka.UnmarshalMessage(value, &importMsg); err != nil {
				log.Printf("❌ Failed to unmarshal boot import request: %v", err)
				return err
			}

			log.Printf("📬 Received boot import request: %s", importMsg.ID)
			return importer.ImportBoots(context.Background(), importMsg)
		})
	}()

	r := mux.NewRouter()

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	log.Printf("🌐 Boot Importer Service is running on port %s...", port)
	log.Fatal(http.ListenAndServe(":"+port, r))
}
