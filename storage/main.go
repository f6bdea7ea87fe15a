package main

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gorilla/mux"

	"kcibuild/shared/kci"
)

// StorageService serves and accepts files of the canonical artifact tree:
// <base>/<job>/<kernel>/<arch>-<config>[/<lab>]/<file>.
type StorageService struct {
	basePath string
}

func NewStorageService(basePath string) *StorageService {
	return &StorageService{
		basePath: basePath,
	}
}

// artifactPath composes the requested file path and guards it against
// escaping the artifact tree. Path segments were validated at ingestion;
// the file name comes straight from the URL, hence the check.
func (s *StorageService) artifactPath(dir, fileName string) (string, error) {
	if fileName == "" || kci.IsHidden(fileName) {
		return "", fmt.Errorf("invalid file name: %q", fileName)
	}

	path := filepath.Clean(filepath.Join(dir, fileName))
	if !strings.HasPrefix(path, filepath.Clean(s.basePath)+string(os.PathSeparator)) {
		return "", fmt.Errorf("path escapes the artifact tree: %q", fileName)
	}
	return path, nil
}

// GetBuildArtifact serves a file from a build directory, build.log and
// friends.
func (s *StorageService) GetBuildArtifact(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	buildDir := kci.BuildDir(
		s.basePath, vars["job"], vars["kernel"], vars["arch"], vars["config"])

	path, err := s.artifactPath(buildDir, vars["file"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if _, err := os.Stat(path); err != nil {
		http.Error(w, "Artifact not found", http.StatusNotFound)
		return
	}

	http.ServeFile(w, r, path)
}

// GetBootArtifact serves a boot report or log from a lab directory nested
// under the build directory.
func (s *StorageService) GetBootArtifact(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	bootDir := kci.BootDir(
		s.basePath, vars["job"], vars["kernel"], vars["arch"], vars["config"], vars["lab"])

	path, err := s.artifactPath(bootDir, vars["file"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if _, err := os.Stat(path); err != nil {
		http.Error(w, "Artifact not found", http.StatusNotFound)
		return
	}

	http.ServeFile(w, r, path)
}

// UploadBuildArtifact stores an uploaded file into the build directory,
// creating it on first upload.
func (s *StorageService) UploadBuildArtifact(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	buildDir := kci.BuildDir(
		s.basePath, vars["job"], vars["kernel"], vars["arch"], vars["config"])

	path, err := s.artifactPath(buildDir, vars["file"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil { // 32MB max
		http.Error(w, "Error parsing form: "+err.Error(), http.StatusBadRequest)
		return
	}

	file, _, err := r.FormFile("artifact")
	if err != nil {
		http.Error(w, "Error retrieving file: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		http.Error(w, "Error creating directory: "+err.Error(), http.StatusInternalServerError)
		return
	}

	dst, err := os.Create(path)
	if err != nil {
		http.Error(w, "Error creating file: "+err.Error(), http.StatusInternalServerError)
		return
	}
	defer dst.Close()

	if _, err := io.Copy(dst, file); err != nil {
		http.Error(w, "Error saving file: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	log.Printf("✅ Successfully uploaded artifact: %s", path)
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func newRouter(storage *StorageService) *mux.Router {
	r := mux.NewRouter()

	// The build directory segment is "<arch>-<config>". Pinning the arch
	// variable to the known architectures keeps the split unambiguous when
	// the configuration name itself contains a dash.
	buildRoute := "/builds/{job}/{kernel}/{arch:arm64|arm|mips|x86}-{config}/{file}"
	bootRoute := "/builds/{job}/{kernel}/{arch:arm64|arm|mips|x86}-{config}/{lab}/{file}"

	r.HandleFunc(buildRoute, storage.GetBuildArtifact).Methods("GET")
	r.HandleFunc(buildRoute, storage.UploadBuildArtifact).Methods("POST")
	r.HandleFunc(bootRoute, storage.GetBootArtifact).Methods("GET")

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	return r
}

func main() {
	port := getEnv("PORT", "8085")
	basePath := getEnv("STORAGE_BASE_PATH", kci.DefaultBasePath)

	if err := os.MkdirAll(basePath, 0755); err != nil {
		log.Fatalf("Failed to create artifacts directory: %v", err)
	}

	storage := NewStorageService(basePath)

	log.Printf("Storage Service is running on port %s...", port)
	log.Fatal(http.ListenAndServe(":"+port, newRouter(storage)))
}
