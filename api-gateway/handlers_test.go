package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kcibuild/api-gateway/auth"
	"kcibuild/api-gateway/users"
	"kcibuild/shared/message"
)

// fakePublisher records every message instead of talking to Kafka.
type fakePublisher struct {
	topics   []string
	payloads []interface{}
}

func (f *fakePublisher) SendMessage(topic string, key string, value interface{}) error {
	f.topics = append(f.topics, topic)
	f.payloads = append(f.payloads, value)
	return nil
}

func newTestGateway(t *testing.T) (*Gateway, *fakePublisher) {
	t.Helper()

	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { redisClient.Close() })

	publisher := &fakePublisher{}
	return NewGateway(users.NewUserStore(redisClient), publisher, "http://dashboard"), publisher
}

func submitJob(t *testing.T, gateway *Gateway, body JobImportRequest) *httptest.ResponseRecorder {
	t.Helper()

	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/api/jobs", bytes.NewReader(raw))
	claims := &auth.UserClaims{ID: "user-1", Email: "admin@example.org", Role: "admin"}
	req = req.WithContext(auth.ContextWithUserClaims(req.Context(), claims))

	w := httptest.NewRecorder()
	gateway.HandleSubmitJob(w, req)
	return w
}

func TestHandleSubmitJobQueuesImport(t *testing.T) {
	gateway, publisher := newTestGateway(t)

	w := submitJob(t, gateway, JobImportRequest{Job: "next", Kernel: "next-20260830"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp ImportResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.ImportID)

	require.Len(t, publisher.topics, 1)
	assert.Equal(t, message.TopicBuildImports, publisher.topics[0])

	importMsg, ok := publisher.payloads[0].(message.BuildImportMessage)
	require.True(t, ok)
	assert.Equal(t, "next", importMsg.Job)
	assert.Equal(t, "next-20260830", importMsg.Kernel)
	assert.Equal(t, resp.ImportID, importMsg.ID)
}

func TestHandleSubmitJobRejectsInvalidNames(t *testing.T) {
	testCases := []struct {
		name string
		req  JobImportRequest
	}{
		{"empty job", JobImportRequest{Job: "", Kernel: "v5.10"}},
		{"hidden job", JobImportRequest{Job: ".hidden", Kernel: "v5.10"}},
		{"job with slash", JobImportRequest{Job: "a/b", Kernel: "v5.10"}},
		{"kernel with space", JobImportRequest{Job: "next", Kernel: "v5 10"}},
		{"kernel trailing dash", JobImportRequest{Job: "next", Kernel: "v5.10-"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			gateway, publisher := newTestGateway(t)

			w := submitJob(t, gateway, tc.req)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Empty(t, publisher.topics, "invalid names must never reach the queue")
		})
	}
}

func TestHandleSubmitBootValidatesLabName(t *testing.T) {
	testCases := []struct {
		name     string
		lab      string
		wantCode int
	}{
		{"valid lab", "lab-collabora", http.StatusOK},
		{"no lab restriction", "", http.StatusOK},
		{"missing lab- prefix", "collabora", http.StatusBadRequest},
		{"invalid characters", "lab-col labora", http.StatusBadRequest},
		{"trailing dash", "lab-collabora-", http.StatusBadRequest},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			gateway, publisher := newTestGateway(t)

			raw, err := json.Marshal(BootImportRequest{
				Job:     "next",
				Kernel:  "v5.10",
				LabName: tc.lab,
			})
			require.NoError(t, err)

			req := httptest.NewRequest("POST", "/api/boots", bytes.NewReader(raw))
			w := httptest.NewRecorder()
			gateway.HandleSubmitBoot(w, req)

			assert.Equal(t, tc.wantCode, w.Code)
			if tc.wantCode == http.StatusOK {
				require.Len(t, publisher.topics, 1)
				assert.Equal(t, message.TopicBootImports, publisher.topics[0])
			} else {
				assert.Empty(t, publisher.topics)
			}
		})
	}
}

func TestRegisterAndLogin(t *testing.T) {
	gateway, _ := newTestGateway(t)

	raw, err := json.Marshal(RegisterRequest{Email: "boots@lab.example.org", Password: "hunter2"})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	gateway.HandleRegister(w, httptest.NewRequest("POST", "/api/register", bytes.NewReader(raw)))
	require.Equal(t, http.StatusOK, w.Code)

	var resp LoginResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, "lab", resp.User.Role)

	raw, err = json.Marshal(LoginRequest{Email: "boots@lab.example.org", Password: "hunter2"})
	require.NoError(t, err)

	w = httptest.NewRecorder()
	gateway.HandleLogin(w, httptest.NewRequest("POST", "/api/login", bytes.NewReader(raw)))
	assert.Equal(t, http.StatusOK, w.Code)

	raw, err = json.Marshal(LoginRequest{Email: "boots@lab.example.org", Password: "wrong"})
	require.NoError(t, err)

	w = httptest.NewRecorder()
	gateway.HandleLogin(w, httptest.NewRequest("POST", "/api/login", bytes.NewReader(raw)))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
