package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"

	"kcibuild/shared/model"
)

type StatusDashboardAPI struct {
	redisClient *redis.Client
}

func NewStatusDashboardAPI(redisClient *redis.Client) *StatusDashboardAPI {
	return &StatusDashboardAPI{
		redisClient: redisClient,
	}
}

// listIDs returns up to 100 document IDs from a date-sorted index, newest
// first, falling back to a key scan when the index is empty.
func (api *StatusDashboardAPI) listIDs(ctx context.Context, indexKey, keyPrefix string) []string {
	ids, err := api.redisClient.ZRevRange(ctx, indexKey, 0, 99).Result()
	if err != nil {
		log.Printf("Failed to read index %s: %v", indexKey, err)
		ids = []string{}
	}

	if len(ids) == 0 {
		keys, err := api.redisClient.Keys(ctx, keyPrefix+"*").Result()
		if err != nil {
			log.Printf("Failed to scan keys %s*: %v", keyPrefix, err)
			return ids
		}
		for _, key := range keys {
			id := key[len(keyPrefix):]
			// Lookup keys like build:index:<job>:... share the prefix but
			// hold plain IDs, not documents.
			if strings.HasPrefix(id, "index:") {
				continue
			}
			ids = append(ids, id)
		}
	}

	return ids
}

func (api *StatusDashboardAPI) GetBuilds(w http.ResponseWriter, r *http.Request) {
	ctx := context.Background()

	job := r.URL.Query().Get("job")
	kernel := r.URL.Query().Get("kernel")

	builds := make([]*model.Build, 0)
	for _, buildID := range api.listIDs(ctx, "builds:by_date", "build:") {
		buildJSON, err := api.redisClient.Get(ctx, "build:"+buildID).Result()
		if err != nil {
			continue
		}

		var build model.Build
		if err := json.Unmarshal([]byte(buildJSON), &build); err != nil {
			continue
		}

		if job != "" && build.Job != job {
			continue
		}
		if kernel != "" && build.Kernel != kernel {
			continue
		}

		builds = append(builds, &build)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(builds)
}

func (api *StatusDashboardAPI) GetBuild(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	buildID := vars["buildId"]

	ctx := context.Background()

	buildJSON, err := api.redisClient.Get(ctx, "build:"+buildID).Result()
	if err != nil {
		if err == redis.Nil {
			http.Error(w, "Build not found", http.StatusNotFound)
			return
		}
		log.Printf("Failed to retrieve build %s: %v", buildID, err)
		http.Error(w, "Failed to retrieve build", http.StatusInternalServerError)
		return
	}

	var build model.Build
	if err := json.Unmarshal([]byte(buildJSON), &build); err != nil {
		log.Printf("Failed to parse build data for %s: %v", buildID, err)
		http.Error(w, "Failed to parse build data", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(&build)
}

func (api *StatusDashboardAPI) GetBoots(w http.ResponseWriter, r *http.Request) {
	ctx := context.Background()

	job := r.URL.Query().Get("job")
	lab := r.URL.Query().Get("lab")

	boots := make([]*model.Boot, 0)
	for _, bootID := range api.listIDs(ctx, "boots:by_date", "boot:") {
		bootJSON, err := api.redisClient.Get(ctx, "boot:"+bootID).Result()
		if err != nil {
			continue
		}

		var boot model.Boot
		if err := json.Unmarshal([]byte(bootJSON), &boot); err != nil {
			continue
		}

		if job != "" && boot.Job != job {
			continue
		}
		if lab != "" && boot.LabName != lab {
			continue
		}

		boots = append(boots, &boot)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(boots)
}

func (api *StatusDashboardAPI) GetBoot(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	bootID := vars["bootId"]

	ctx := context.Background()

	bootJSON, err := api.redisClient.Get(ctx, "boot:"+bootID).Result()
	if err != nil {
		if err == redis.Nil {
			http.Error(w, "Boot report not found", http.StatusNotFound)
			return
		}
		log.Printf("Failed to retrieve boot %s: %v", bootID, err)
		http.Error(w, "Failed to retrieve boot", http.StatusInternalServerError)
		return
	}

	var boot model.Boot
	if err := json.Unmarshal([]byte(bootJSON), &boot); err != nil {
		log.Printf("Failed to parse boot data for %s: %v", bootID, err)
		http.Error(w, "Failed to parse boot data", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(&boot)
}

func (api *StatusDashboardAPI) GetJobs(w http.ResponseWriter, r *http.Request) {
	ctx := context.Background()

	jobs := make([]*model.Job, 0)
	for _, name := range api.listIDs(ctx, "jobs:by_date", "job:") {
		jobJSON, err := api.redisClient.Get(ctx, "job:"+name).Result()
		if err != nil {
			continue
		}

		var job model.Job
		if err := json.Unmarshal([]byte(jobJSON), &job); err != nil {
			continue
		}

		jobs = append(jobs, &job)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(jobs)
}

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

func newRouter(api *StatusDashboardAPI) *mux.Router {
	r := mux.NewRouter()

	r.Use(corsMiddleware)

	r.Methods("OPTIONS").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS, PUT, DELETE")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.WriteHeader(http.StatusOK)
	})

	r.HandleFunc("/api/builds", api.GetBuilds).Methods("GET")
	r.HandleFunc("/api/builds/{buildId}", api.GetBuild).Methods("GET")
	r.HandleFunc("/api/boots", api.GetBoots).Methods("GET")
	r.HandleFunc("/api/boots/{bootId}", api.GetBoot).Methods("GET")
	r.HandleFunc("/api/jobs", api.GetJobs).Methods("GET")

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	return r
}

func main() {
	port := getEnv("PORT", "8082")
	redisAddr := getEnv("REDIS_ADDR", "redis:6379")

	redisClient := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})
	defer redisClient.Close()

	api := NewStatusDashboardAPI(redisClient)

	log.Printf("Status Dashboard API is running on port %s...", port)
	log.Fatal(http.ListenAndServe(":"+port, newRouter(api)))
}
