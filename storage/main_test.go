package main

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kcibuild/shared/kci"
)

func newTestStorage(t *testing.T) (*StorageService, string) {
	t.Helper()

	basePath := t.TempDir()
	return NewStorageService(basePath), basePath
}

func writeArtifact(t *testing.T, dir, name, content string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func multipartBody(t *testing.T, fieldName, fileName, content string) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile(fieldName, fileName)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	return body, writer.FormDataContentType()
}

func TestGetBuildArtifact(t *testing.T) {
	storage, basePath := newTestStorage(t)

	buildDir := kci.BuildDir(basePath, "next", "next-20240101", "arm64", "defconfig")
	writeArtifact(t, buildDir, kci.BuildLogFile, "make output")

	req := httptest.NewRequest(
		"GET", "/builds/next/next-20240101/arm64-defconfig/build.log", nil)
	rec := httptest.NewRecorder()
	newRouter(storage).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "make output", rec.Body.String())
}

func TestGetBuildArtifactSplitsArchFromConfig(t *testing.T) {
	storage, basePath := newTestStorage(t)

	// The configuration part of the directory name may itself contain a
	// dash; only the architecture prefix is split off.
	buildDir := kci.BuildDir(basePath, "next", "next-20240101", "arm", "defconfig+arm-frag")
	writeArtifact(t, buildDir, kci.BuildMetaFile, "{}")

	req := httptest.NewRequest(
		"GET", "/builds/next/next-20240101/arm-defconfig+arm-frag/build.json", nil)
	rec := httptest.NewRecorder()
	newRouter(storage).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetBootArtifact(t *testing.T) {
	storage, basePath := newTestStorage(t)

	bootDir := kci.BootDir(basePath, "next", "next-20240101", "arm", "multi_v7_defconfig", "lab-baylibre")
	writeArtifact(t, bootDir, "boot-beaglebone.json", `{"boot_result":"PASS"}`)

	req := httptest.NewRequest(
		"GET", "/builds/next/next-20240101/arm-multi_v7_defconfig/lab-baylibre/boot-beaglebone.json", nil)
	rec := httptest.NewRecorder()
	newRouter(storage).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "PASS")
}

func TestGetBuildArtifactNotFound(t *testing.T) {
	storage, _ := newTestStorage(t)

	req := httptest.NewRequest(
		"GET", "/builds/next/next-20240101/arm64-defconfig/build.log", nil)
	rec := httptest.NewRecorder()
	newRouter(storage).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetBuildArtifactRejectsHiddenFile(t *testing.T) {
	storage, basePath := newTestStorage(t)

	buildDir := kci.BuildDir(basePath, "next", "next-20240101", "arm64", "defconfig")
	writeArtifact(t, buildDir, ".secret", "hidden")

	req := httptest.NewRequest(
		"GET", "/builds/next/next-20240101/arm64-defconfig/.secret", nil)
	rec := httptest.NewRecorder()
	newRouter(storage).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadBuildArtifact(t *testing.T) {
	storage, basePath := newTestStorage(t)

	body, contentType := multipartBody(t, "artifact", "build.json", `{"defconfig":"defconfig"}`)
	req := httptest.NewRequest(
		"POST", "/builds/next/next-20240101/arm64-defconfig/build.json", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	newRouter(storage).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	buildDir := kci.BuildDir(basePath, "next", "next-20240101", "arm64", "defconfig")
	content, err := os.ReadFile(filepath.Join(buildDir, "build.json"))
	require.NoError(t, err)
	assert.Equal(t, `{"defconfig":"defconfig"}`, string(content))
}

func TestArtifactPathRejectsTraversal(t *testing.T) {
	storage, basePath := newTestStorage(t)

	buildDir := kci.BuildDir(basePath, "next", "next-20240101", "arm64", "defconfig")
	_, err := storage.artifactPath(buildDir, "../../../../etc/passwd")
	assert.Error(t, err)
}
