// ABOUTME: HTTP API handlers for emitting task events and inspecting sessions
// ABOUTME: The emit endpoint is the mutation path's hand-off into the publisher

package gateway

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/2389/taskpulse/internal/auth"
	"github.com/2389/taskpulse/internal/event"
	"github.com/2389/taskpulse/internal/store"
)

// EmitEventRequest is the JSON request body for POST /api/events. The task
// service calls this after a mutation commits; the owning user is the
// authenticated caller.
type EmitEventRequest struct {
	Action  string         `json:"action"` // CREATED, UPDATED, COMPLETED, DELETED
	Task    *event.Task    `json:"task,omitempty"`
	TaskID  string         `json:"task_id,omitempty"`
	Changes map[string]any `json:"changes,omitempty"`
}

// ConnectionsResponse is the JSON response for GET /api/connections.
type ConnectionsResponse struct {
	UserID   string `json:"user_id"`
	Sessions int    `json:"sessions"`
}

// EventLogEntry is one row of the GET /api/events/log response.
type EventLogEntry struct {
	EventID    string    `json:"event_id"`
	EventType  string    `json:"event_type"`
	Action     string    `json:"action"`
	TaskID     string    `json:"task_id"`
	Delivered  int       `json:"delivered"`
	ReceivedAt time.Time `json:"received_at"`
}

// handleEmitEvent accepts a task-mutation fact and hands it to the
// publisher. The response is always 202: publish is fire-and-forget and the
// mutation must never fail on notification problems.
func (g *Gateway) handleEmitEvent(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())

	var req EmitEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	switch req.Action {
	case event.ActionCreated:
		if req.Task == nil {
			writeError(w, http.StatusBadRequest, "task is required for CREATED")
			return
		}
		g.publisher.PublishTaskCreated(*req.Task, userID)
	case event.ActionUpdated:
		if req.Task == nil {
			writeError(w, http.StatusBadRequest, "task is required for UPDATED")
			return
		}
		g.publisher.PublishTaskUpdated(*req.Task, userID, req.Changes)
	case event.ActionCompleted:
		if req.Task == nil {
			writeError(w, http.StatusBadRequest, "task is required for COMPLETED")
			return
		}
		g.publisher.PublishTaskCompleted(*req.Task, userID)
	case event.ActionDeleted:
		if req.TaskID == "" {
			writeError(w, http.StatusBadRequest, "task_id is required for DELETED")
			return
		}
		g.publisher.PublishTaskDeleted(req.TaskID, userID)
	default:
		writeError(w, http.StatusBadRequest, "unknown action")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"status": "accepted"})
}

// handleConnections reports the caller's live session count.
func (g *Gateway) handleConnections(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())

	response := ConnectionsResponse{
		UserID:   userID,
		Sessions: g.registry.CountForUser(userID),
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleEventLog lists the caller's recent ingested events, newest first.
func (g *Gateway) handleEventLog(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())

	records, err := g.store.ListEvents(r.Context(), store.EventFilter{UserID: &userID})
	if err != nil {
		g.logger.Error("listing event log", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}

	entries := make([]EventLogEntry, 0, len(records))
	for _, rec := range records {
		entries = append(entries, EventLogEntry{
			EventID:    rec.EventID,
			EventType:  rec.EventType,
			Action:     rec.Action,
			TaskID:     rec.TaskID,
			Delivered:  rec.Delivered,
			ReceivedAt: rec.ReceivedAt,
		})
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entries)
}

// handleHealth responds to GET /healthz.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// writeError writes a JSON error response with the given status code.
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
