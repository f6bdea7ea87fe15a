package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"kcibuild/api-gateway/auth"
	"kcibuild/api-gateway/users"
	"kcibuild/shared/kci"
	"kcibuild/shared/message"
)

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token string `json:"token"`
	User  struct {
		ID    string `json:"id"`
		Email string `json:"email"`
		Role  string `json:"role"`
	} `json:"user"`
}

type JobImportRequest struct {
	Job    string `json:"job"`
	Kernel string `json:"kernel"`
}

type BootImportRequest struct {
	Job     string `json:"job"`
	Kernel  string `json:"kernel"`
	LabName string `json:"lab_name,omitempty"`
}

type ImportResponse struct {
	ImportID string `json:"import_id"`
	Message  string `json:"message"`
}

// taskPublisher is what the gateway needs from the Kafka producer.
type taskPublisher interface {
	SendMessage(topic string, key string, value interface{}) error
}

// Gateway holds the handler dependencies.
type Gateway struct {
	userStore    *users.UserStore
	publisher    taskPublisher
	dashboardURL string
}

func NewGateway(userStore *users.UserStore, publisher taskPublisher, dashboardURL string) *Gateway {
	return &Gateway{
		userStore:    userStore,
		publisher:    publisher,
		dashboardURL: dashboardURL,
	}
}

func (g *Gateway) HandleRegister(w http.ResponseWriter, r *http.Request) {
	log.Println("📝 Received registration request")
	var regReq RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&regReq); err != nil {
		log.Printf("❌ Invalid registration request body: %v", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if regReq.Email == "" || regReq.Password == "" {
		log.Println("❌ Registration missing email or password")
		http.Error(w, "Email and password are required", http.StatusBadRequest)
		return
	}

	user := &users.User{
		ID:        uuid.New().String(),
		Email:     regReq.Email,
		Password:  regReq.Password,
		Role:      "lab",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	if err := g.userStore.Create(r.Context(), user); err != nil {
		if err == users.ErrUserAlreadyExists {
			log.Printf("⚠️ User already exists: %s", regReq.Email)
			http.Error(w, "User with this email already exists", http.StatusConflict)
			return
		}
		log.Printf("❌ Failed to create user: %v", err)
		http.Error(w, "Failed to create user", http.StatusInternalServerError)
		return
	}

	g.writeLoginResponse(w, user)
	log.Printf("✅ User registered successfully: %s", user.Email)
}

func (g *Gateway) HandleLogin(w http.ResponseWriter, r *http.Request) {
	log.Println("🔐 Received login request")
	var loginReq LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&loginReq); err != nil {
		log.Printf("❌ Invalid login request body: %v", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if loginReq.Email == "" || loginReq.Password == "" {
		log.Println("❌ Login missing email or password")
		http.Error(w, "Email and password are required", http.StatusBadRequest)
		return
	}

	user, err := g.userStore.Authenticate(r.Context(), loginReq.Email, loginReq.Password)
	if err != nil {
		if err == users.ErrUserNotFound || err == users.ErrInvalidCredentials {
			log.Printf("⚠️ Authentication failed for: %s", loginReq.Email)
			http.Error(w, "Invalid email or password", http.StatusUnauthorized)
			return
		}
		log.Printf("❌ Authentication error: %v", err)
		http.Error(w, "Authentication failed", http.StatusInternalServerError)
		return
	}

	g.writeLoginResponse(w, user)
	log.Printf("✅ User logged in successfully: %s", user.Email)
}

func (g *Gateway) writeLoginResponse(w http.ResponseWriter, user *users.User) {
	token, err := auth.GenerateToken(user.ID, user.Email, user.Role)
	if err != nil {
		log.Printf("❌ Failed to generate token: %v", err)
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	resp := LoginResponse{Token: token}
	resp.User.ID = user.ID
	resp.User.Email = user.Email
	resp.User.Role = user.Role

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// HandleSubmitJob queues a build import for a job/kernel pair. Names that
// fail validation are rejected outright; they would end up as path
// components and lookup keys everywhere downstream.
func (g *Gateway) HandleSubmitJob(w http.ResponseWriter, r *http.Request) {
	log.Println("🏗️ Received job import request")

	userClaims, ok := auth.UserClaimsFromContext(r.Context())
	if !ok {
		log.Println("❌ No user claims in context")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	log.Printf("👤 User: %s (%s)", userClaims.Email, userClaims.ID)

	var jobReq JobImportRequest
	if err := json.NewDecoder(r.Body).Decode(&jobReq); err != nil {
		log.Printf("❌ Invalid job import request body: %v", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if !kci.IsValidName(jobReq.Job) {
		log.Printf("❌ Invalid job name: %q", jobReq.Job)
		http.Error(w, "Invalid job name", http.StatusBadRequest)
		return
	}
	if !kci.IsValidName(jobReq.Kernel) {
		log.Printf("❌ Invalid kernel name: %q", jobReq.Kernel)
		http.Error(w, "Invalid kernel name", http.StatusBadRequest)
		return
	}

	importID := uuid.New().String()
	importMsg := message.BuildImportMessage{
		ID:        importID,
		Job:       jobReq.Job,
		Kernel:    jobReq.Kernel,
		CreatedAt: time.Now(),
	}

	if err := g.publisher.SendMessage(message.TopicBuildImports, importID, importMsg); err != nil {
		log.Printf("❌ Failed to queue build import: %v", err)
		http.Error(w, "Failed to queue import", http.StatusInternalServerError)
		return
	}
	log.Printf("✅ Queued build import %s for %s-%s", importID, jobReq.Job, jobReq.Kernel)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ImportResponse{
		ImportID: importID,
		Message:  "Build import queued",
	})
}

// HandleSubmitBoot queues a boot report import. The lab name ends up as the
// last path component of the boot directory, so it gets the same validation
// gate plus the lab- prefix rule.
func (g *Gateway) HandleSubmitBoot(w http.ResponseWriter, r *http.Request) {
	log.Println("🚦 Received boot import request")

	var bootReq BootImportRequest
	if err := json.NewDecoder(r.Body).Decode(&bootReq); err != nil {
		log.Printf("❌ Invalid boot import request body: %v", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if !kci.IsValidName(bootReq.Job) || !kci.IsValidName(bootReq.Kernel) {
		log.Printf("❌ Invalid job or kernel name: %q / %q", bootReq.Job, bootReq.Kernel)
		http.Error(w, "Invalid job or kernel name", http.StatusBadRequest)
		return
	}
	if bootReq.LabName != "" {
		if !kci.IsValidName(bootReq.LabName) || !kci.IsLabDir(bootReq.LabName) {
			log.Printf("❌ Invalid lab name: %q", bootReq.LabName)
			http.Error(w, "Invalid lab name", http.StatusBadRequest)
			return
		}
	}

	importID := uuid.New().String()
	importMsg := message.BootImportMessage{
		ID:        importID,
		Job:       bootReq.Job,
		Kernel:    bootReq.Kernel,
		LabName:   bootReq.LabName,
		CreatedAt: time.Now(),
	}

	if err := g.publisher.SendMessage(message.TopicBootImports, importID, importMsg); err != nil {
		log.Printf("❌ Failed to queue boot import: %v", err)
		http.Error(w, "Failed to queue import", http.StatusInternalServerError)
		return
	}
	log.Printf("✅ Queued boot import %s for %s-%s", importID, bootReq.Job, bootReq.Kernel)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ImportResponse{
		ImportID: importID,
		Message:  "Boot import queued",
	})
}

// HandleGetBuild proxies build lookups to the dashboard API.
func (g *Gateway) HandleGetBuild(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	buildID := vars["buildId"]
	log.Printf("🔍 Fetching build %s", buildID)

	url := fmt.Sprintf("%s/api/builds/%s", g.dashboardURL, buildID)

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		log.Printf("❌ Failed to fetch build from dashboard API: %v", err)
		http.Error(w, "Failed to fetch build", http.StatusInternalServerError)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		http.Error(w, string(body), resp.StatusCode)
		return
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Printf("❌ Failed to read response body: %v", err)
		http.Error(w, "Failed to read build", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}
