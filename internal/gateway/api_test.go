// ABOUTME: Tests for the gateway HTTP surface
// ABOUTME: Covers the emit API, auth requirements, ingress wiring, and the event log

package gateway

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/taskpulse/internal/auth"
	"github.com/2389/taskpulse/internal/config"
	"github.com/2389/taskpulse/internal/event"
)

const testSecret = "test-secret"

// capturingBroker is an httptest server standing in for the pubsub sidecar.
type capturingBroker struct {
	mu        sync.Mutex
	envelopes []event.Envelope
	srv       *httptest.Server
}

func newCapturingBroker(t *testing.T) *capturingBroker {
	t.Helper()
	b := &capturingBroker{}
	b.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var env event.Envelope
		if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		b.mu.Lock()
		b.envelopes = append(b.envelopes, env)
		b.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(b.srv.Close)
	return b
}

func (b *capturingBroker) published() []event.Envelope {
	b.mu.Lock()
	defer b.mu.Unlock()
	result := make([]event.Envelope, len(b.envelopes))
	copy(result, b.envelopes)
	return result
}

func setupGateway(t *testing.T) (*Gateway, *httptest.Server, *capturingBroker) {
	t.Helper()

	broker := newCapturingBroker(t)

	cfg := &config.Config{}
	cfg.Server.HTTPAddr = "127.0.0.1:0"
	cfg.Server.WriteTimeout = time.Second
	cfg.Auth.JWTSecret = testSecret
	cfg.Broker.BaseURL = broker.srv.URL
	cfg.Broker.PubSub = "task-pubsub"
	cfg.Broker.Topic = "task-events"
	cfg.Broker.PublishTimeout = time.Second
	cfg.Database.Path = ":memory:"

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	g, err := New(cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { g.store.Close() })

	srv := httptest.NewServer(g.Handler())
	t.Cleanup(srv.Close)
	return g, srv, broker
}

func bearerToken(t *testing.T, userID string) string {
	t.Helper()
	token, err := auth.NewJWTVerifier([]byte(testSecret)).Generate(userID, time.Hour)
	require.NoError(t, err)
	return token
}

func doJSON(t *testing.T, method, url, token string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestAPI_Health(t *testing.T) {
	_, srv, _ := setupGateway(t)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAPI_EmitRequiresAuth(t *testing.T) {
	_, srv, broker := setupGateway(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/events", "", EmitEventRequest{
		Action: event.ActionDeleted,
		TaskID: "t1",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Empty(t, broker.published())
}

func TestAPI_EmitPublishesToBroker(t *testing.T) {
	g, srv, broker := setupGateway(t)

	task := event.Task{ID: "t1", Title: "buy milk"}
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/events", bearerToken(t, "u1"), EmitEventRequest{
		Action: event.ActionCreated,
		Task:   &task,
	})
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	// Publish is fire-and-forget; wait for the in-flight send.
	g.publisher.Close()

	envs := broker.published()
	require.Len(t, envs, 1)
	assert.Equal(t, event.TypeTaskCreated, envs[0].Type)
	assert.Equal(t, "u1", envs[0].Data.UserID)
	require.NotNil(t, envs[0].Data.Task)
	assert.Equal(t, "buy milk", envs[0].Data.Task.Title)
}

func TestAPI_EmitValidation(t *testing.T) {
	_, srv, _ := setupGateway(t)
	token := bearerToken(t, "u1")

	tests := []struct {
		name string
		req  EmitEventRequest
	}{
		{"unknown action", EmitEventRequest{Action: "EXPLODED"}},
		{"created without task", EmitEventRequest{Action: event.ActionCreated}},
		{"updated without task", EmitEventRequest{Action: event.ActionUpdated}},
		{"completed without task", EmitEventRequest{Action: event.ActionCompleted}},
		{"deleted without task_id", EmitEventRequest{Action: event.ActionDeleted}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doJSON(t, http.MethodPost, srv.URL+"/api/events", token, tt.req)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestAPI_Connections(t *testing.T) {
	_, srv, _ := setupGateway(t)

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/connections", bearerToken(t, "u1"), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body ConnectionsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "u1", body.UserID)
	assert.Equal(t, 0, body.Sessions)
}

// Ingested events land in the event log even when nobody is connected:
// zero delivered sessions is a normal outcome, not an error.
func TestAPI_IngressToEventLog(t *testing.T) {
	_, srv, _ := setupGateway(t)

	env := event.NewEnvelope(event.TypeTaskDeleted, event.Data{
		TaskID: "t1",
		UserID: "u1",
		Action: event.ActionDeleted,
	})
	raw, err := json.Marshal(env)
	require.NoError(t, err)

	resp, err := http.Post(srv.URL+"/events/task", "application/cloudevents+json", bytes.NewReader(raw))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	logResp := doJSON(t, http.MethodGet, srv.URL+"/api/events/log", bearerToken(t, "u1"), nil)
	require.Equal(t, http.StatusOK, logResp.StatusCode)

	var entries []EventLogEntry
	require.NoError(t, json.NewDecoder(logResp.Body).Decode(&entries))
	require.Len(t, entries, 1)
	assert.Equal(t, env.ID, entries[0].EventID)
	assert.Equal(t, "DELETED", entries[0].Action)
	assert.Equal(t, 0, entries[0].Delivered)
}

func TestAPI_SubscribeAdvertisesTopic(t *testing.T) {
	_, srv, _ := setupGateway(t)

	resp, err := http.Get(srv.URL + "/dapr/subscribe")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var subs []map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&subs))
	require.Len(t, subs, 1)
	assert.Equal(t, "task-events", subs[0]["topic"])
}
