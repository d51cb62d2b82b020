// ABOUTME: Broker-facing webhook that routes inbound task events to live sessions
// ABOUTME: Unroutable events are acknowledged and dropped to stop redelivery

package ingress

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/2389/taskpulse/internal/event"
	"github.com/2389/taskpulse/internal/store"
)

// Broadcaster fans a push message out to a user's live sessions.
type Broadcaster interface {
	BroadcastToUser(userID string, msg event.PushMessage) int
}

// Recorder persists ingested events for the audit trail.
type Recorder interface {
	AppendEvent(ctx context.Context, rec *store.EventRecord) error
}

// Ingress decodes broker-delivered envelopes and forwards them to the
// registry. It never deduplicates: at-least-once redelivery broadcasts
// again by design, and any dedup belongs to the receiving client.
type Ingress struct {
	registry Broadcaster
	recorder Recorder
	pubsub   string
	topic    string
	logger   *slog.Logger
}

// New creates an Ingress. recorder may be nil to disable the audit trail.
func New(registry Broadcaster, recorder Recorder, pubsub, topic string, logger *slog.Logger) *Ingress {
	return &Ingress{
		registry: registry,
		recorder: recorder,
		pubsub:   pubsub,
		topic:    topic,
		logger:   logger,
	}
}

// ackResponse is the structured body returned to the broker.
type ackResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// subscription describes one topic subscription for GET /dapr/subscribe.
type subscription struct {
	PubSubName string `json:"pubsubname"`
	Topic      string `json:"topic"`
	Route      string `json:"route"`
}

// HandleTaskEvent handles POST /events/task. An unparsable body is the only
// non-2xx outcome; a parsable envelope is always acknowledged with SUCCESS,
// even when it cannot be routed, so the broker never retries it.
func (i *Ingress) HandleTaskEvent(w http.ResponseWriter, r *http.Request) {
	var env event.Envelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		i.logger.Warn("rejecting unparsable event body", "error", err)
		writeAck(w, http.StatusBadRequest, ackResponse{
			Status:  "ERROR",
			Message: "unparsable event body",
		})
		return
	}

	userID := env.Data.UserID
	if userID == "" {
		i.logger.Warn("dropping unroutable event",
			"event_id", env.ID,
			"type", env.Type,
			"reason", "missing userId",
		)
		writeAck(w, http.StatusOK, ackResponse{Status: "SUCCESS"})
		return
	}

	msg := pushMessage(env)
	delivered := i.registry.BroadcastToUser(userID, msg)

	i.record(r.Context(), env, delivered)

	i.logger.Info("forwarded task event",
		"event_id", env.ID,
		"event_type", msg.EventType,
		"user_id", userID,
		"delivered", delivered,
	)
	writeAck(w, http.StatusOK, ackResponse{Status: "SUCCESS"})
}

// HandleSubscribe handles GET /dapr/subscribe, advertising the topic
// subscription so the sidecar knows where to deliver task events.
func (i *Ingress) HandleSubscribe(w http.ResponseWriter, r *http.Request) {
	subs := []subscription{
		{
			PubSubName: i.pubsub,
			Topic:      i.topic,
			Route:      "/events/task",
		},
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(subs)
}

// record appends the event to the audit trail. Failures are logged only:
// delivery already happened and the broker must still get its ack.
func (i *Ingress) record(ctx context.Context, env event.Envelope, delivered int) {
	if i.recorder == nil {
		return
	}

	rec := &store.EventRecord{
		EventID:   env.ID,
		EventType: env.Type,
		UserID:    env.Data.UserID,
		Action:    env.Data.Action,
		TaskID:    env.Data.TaskID,
		Delivered: delivered,
	}
	if err := i.recorder.AppendEvent(ctx, rec); err != nil {
		i.logger.Error("failed to record event", "event_id", env.ID, "error", err)
	}
}

// pushMessage normalizes a broker envelope into the client push payload.
// Deletions carry only the task ID and no timestamp; other actions carry
// the full snapshot from the envelope.
func pushMessage(env event.Envelope) event.PushMessage {
	msg := event.PushMessage{
		EventType: clientEventType(env),
	}

	if env.Data.Action == event.ActionDeleted || env.Data.Task == nil {
		msg.Data = map[string]string{"id": env.Data.TaskID}
	} else {
		msg.Data = env.Data.Task
	}

	if env.Data.Action != event.ActionDeleted && !env.Time.IsZero() {
		t := env.Time
		msg.Timestamp = &t
	}
	return msg
}

// clientEventType maps the envelope onto the event_type string clients see,
// e.g. action CREATED (or type com.todo.task.created) becomes task_created.
func clientEventType(env event.Envelope) string {
	switch env.Data.Action {
	case event.ActionCreated:
		return "task_created"
	case event.ActionUpdated:
		return "task_updated"
	case event.ActionCompleted:
		return "task_completed"
	case event.ActionDeleted:
		return "task_deleted"
	}

	// Fall back to the type suffix for envelopes without an action field.
	if idx := strings.LastIndex(env.Type, "."); idx >= 0 && idx < len(env.Type)-1 {
		return "task_" + env.Type[idx+1:]
	}
	return "task_event"
}

func writeAck(w http.ResponseWriter, status int, body ackResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
