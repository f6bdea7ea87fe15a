package main

import (
	"log"
	"net/http"
	"os"
	"sync"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"kcibuild/shared/kafka"
	"kcibuild/shared/message"
)

type WebSocketClient struct {
	conn     *websocket.Conn
	job      string
	clientID string
}

type NotificationService struct {
	clients      map[string]*WebSocketClient
	clientsMutex sync.RWMutex
	upgrader     websocket.Upgrader
}

func NewNotificationService() *NotificationService {
	return &NotificationService{
		clients: make(map[string]*WebSocketClient),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins for this example
			},
		},
	}
}

func (ns *NotificationService) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	// Upgrade the HTTP connection to a WebSocket connection
	conn, err := ns.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Failed to upgrade connection: %v", err)
		return
	}

	job := r.URL.Query().Get("job")
	clientID := r.URL.Query().Get("clientId")

	if clientID == "" {
		log.Printf("Missing clientId")
		conn.Close()
		return
	}

	client := &WebSocketClient{
		conn:     conn,
		job:      job, // Can be empty to receive updates for all trees
		clientID: clientID,
	}

	ns.clientsMutex.Lock()
	ns.clients[clientID] = client
	ns.clientsMutex.Unlock()

	defer func() {
		ns.clientsMutex.Lock()
		delete(ns.clients, clientID)
		ns.clientsMutex.Unlock()
		conn.Close()
	}()

	// Keep the connection alive and handle ping/pong
	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		// Handle ping messages
		if messageType == websocket.PingMessage {
			conn.WriteMessage(websocket.PongMessage, message)
		}
	}
}

// BroadcastImportStatus broadcasts an import status update to all connected
// clients watching that tree.
func (ns *NotificationService) BroadcastImportStatus(statusMsg message.ImportStatusMessage) {
	ns.clientsMutex.RLock()
	defer ns.clientsMutex.RUnlock()

	payload := map[string]interface{}{
		"type":     "status",
		"importId": statusMsg.ImportID,
		"job":      statusMsg.Job,
		"kernel":   statusMsg.Kernel,
		"status":   statusMsg.Status,
		"message":  statusMsg.Message,
		"time":     statusMsg.UpdatedAt,
	}

	for clientID, client := range ns.clients {
		// Send to clients that are interested in this tree or all trees
		if client.job == "" || client.job == statusMsg.Job {
			err := client.conn.WriteJSON(payload)
			if err != nil {
				log.Printf("Failed to send message to client %s: %v", clientID, err)
				// Client will be cleaned up by the connection handler
			}
		}
	}
}

// BroadcastReportTrigger broadcasts a completed import to all connected
// clients watching that tree.
func (ns *NotificationService) BroadcastReportTrigger(triggerMsg message.ReportTriggerMessage) {
	ns.clientsMutex.RLock()
	defer ns.clientsMutex.RUnlock()

	payload := map[string]interface{}{
		"type":     "report",
		"importId": triggerMsg.ImportID,
		"job":      triggerMsg.Job,
		"kernel":   triggerMsg.Kernel,
		"status":   triggerMsg.Status,
		"builds":   triggerMsg.Builds,
		"boots":    triggerMsg.Boots,
		"time":     triggerMsg.CompletedAt,
	}

	for clientID, client := range ns.clients {
		if client.job == "" || client.job == triggerMsg.Job {
			err := client.conn.WriteJSON(payload)
			if err != nil {
				log.Printf("Failed to send message to client %s: %v", clientID, err)
			}
		}
	}

	log.Printf("Broadcasted report trigger for %s-%s to %d clients",
		triggerMsg.Job, triggerMsg.Kernel, len(ns.clients))
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func main() {
	port := getEnv("PORT", "8086")
	kafkaBrokers := getEnv("KAFKA_BROKERS", "kafka:29092")

	kafkaConsumer, err := kafka.NewConsumer(kafkaBrokers, "notification")
	if err != nil {
		log.Fatalf("Failed to create Kafka consumer: %v", err)
	}
	defer kafkaConsumer.Close()

	err = kafkaConsumer.Subscribe([]string{message.TopicImportStatus, message.TopicReportTriggers})
	if err != nil {
		log.Fatalf("Failed to subscribe to topics: %v", err)
	}

	notificationService := NewNotificationService()

	go func() {
		kafkaConsumer.ConsumeMessages(func(key, value []byte) error {
			// Report triggers carry a completion timestamp; status updates
			// do not. Try the trigger shape first.
			var triggerMsg message.ReportTriggerMessage
			if err := kafka.UnmarshalMessage(value, &triggerMsg); err == nil &&
				triggerMsg.Job != "" && !triggerMsg.CompletedAt.IsZero() {
				notificationService.BroadcastReportTrigger(triggerMsg)
				return nil
			}

			var statusMsg message.ImportStatusMessage
			if err := kafka.UnmarshalMessage(value, &statusMsg); err == nil &&
				statusMsg.Job != "" && statusMsg.Status != "" {
				notificationService.BroadcastImportStatus(statusMsg)
				return nil
			}

			log.Printf("Unknown or invalid message type received")
			return nil
		})
	}()

	r := mux.NewRouter()

	r.HandleFunc("/ws", notificationService.HandleWebSocket)

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	log.Printf("Notification Service is running on port %s...", port)
	log.Fatal(http.ListenAndServe(":"+port, r))
}
