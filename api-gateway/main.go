package main

import (
	"context"
	"log"
	"net/http"
	"os"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"

	"kcibuild/api-gateway/auth"
	"kcibuild/api-gateway/users"
	"kcibuild/shared/kafka"
)

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS, PUT, DELETE")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func main() {
	port := getEnv("PORT", "8081")
	dashboardURL := getEnv("DASHBOARD_API_URL", "http://status-dashboard-api:8082")
	redisAddr := getEnv("REDIS_ADDR", "redis:6379")
	kafkaBrokers := getEnv("KAFKA_BROKERS", "kafka:29092")

	log.Println("🚀 Starting API Gateway...")

	redisClient := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})
	defer redisClient.Close()
	log.Println("✅ Redis client created")

	if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
		log.Fatalf("❌ Failed to connect to Redis: %v", err)
	}
	log.Println("✅ Redis connection verified")

	userStore := users.NewUserStore(redisClient)

	kafkaProducer, err := kafka.NewProducer(kafkaBrokers)
	if err != nil {
		log.Fatalf("❌ Failed to create Kafka producer: %v", err)
	}
	defer kafkaProducer.Close()
	log.Println("✅ Kafka producer created")

	gateway := NewGateway(userStore, kafkaProducer, dashboardURL)

	r := mux.NewRouter()

	r.Use(corsMiddleware)

	r.Methods("OPTIONS").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS, PUT, DELETE")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.WriteHeader(http.StatusOK)
	})

	r.Use(auth.AuthMiddleware)

	r.HandleFunc("/api/register", gateway.HandleRegister).Methods("POST")
	r.HandleFunc("/api/login", gateway.HandleLogin).Methods("POST")
	r.HandleFunc("/api/jobs", gateway.HandleSubmitJob).Methods("POST")
	r.HandleFunc("/api/boots", gateway.HandleSubmitBoot).Methods("POST")
	r.HandleFunc("/api/builds/{buildId}", gateway.HandleGetBuild).Methods("GET")

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	log.Printf("🌐 API Gateway Service is running on port %s...", port)
	log.Fatal(http.ListenAndServe(":"+port, r))
}
