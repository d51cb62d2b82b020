// ABOUTME: CloudEvents-shaped envelope for task domain events
// ABOUTME: Defines the task snapshot, event data, and the client push payload

package event

import (
	"time"

	"github.com/google/uuid"
)

// Fixed envelope fields shared by every event this service emits.
const (
	SpecVersion = "1.0"
	Source      = "/services/taskpulse"
	ContentType = "application/json"
)

// Event types carried in the envelope's "type" field.
const (
	TypeTaskCreated   = "com.todo.task.created"
	TypeTaskUpdated   = "com.todo.task.updated"
	TypeTaskCompleted = "com.todo.task.completed"
	TypeTaskDeleted   = "com.todo.task.deleted"
)

// Actions carried in the envelope's data payload.
const (
	ActionCreated   = "CREATED"
	ActionUpdated   = "UPDATED"
	ActionCompleted = "COMPLETED"
	ActionDeleted   = "DELETED"
)

// Task is the snapshot of a task as it appears inside event payloads.
// Events are self-contained: a receiver can render the user-visible effect
// without re-querying the task service.
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Completed   bool       `json:"completed"`
	Priority    string     `json:"priority,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Data is the kind-specific payload of an envelope. Task is present for
// created/updated/completed events, Changes only for updated events.
// UserID is required for routing; an event without it is never broadcast.
type Data struct {
	TaskID  string         `json:"taskId"`
	UserID  string         `json:"userId"`
	Action  string         `json:"action"`
	Task    *Task          `json:"task,omitempty"`
	Changes map[string]any `json:"changes,omitempty"`
}

// Envelope is the wire format handed to the broker, one per task mutation.
// ID is generated once at publish time and never changes; downstream
// consumers may use it for idempotence.
type Envelope struct {
	SpecVersion     string    `json:"specversion"`
	ID              string    `json:"id"`
	Type            string    `json:"type"`
	Source          string    `json:"source"`
	Time            time.Time `json:"time"`
	DataContentType string    `json:"datacontenttype"`
	Data            Data      `json:"data"`
}

// NewEnvelope builds an envelope for the given event type and payload,
// stamping a fresh UUID and the current UTC time. Construction never
// performs I/O.
func NewEnvelope(eventType string, data Data) Envelope {
	return Envelope{
		SpecVersion:     SpecVersion,
		ID:              uuid.New().String(),
		Type:            eventType,
		Source:          Source,
		Time:            time.Now().UTC(),
		DataContentType: ContentType,
		Data:            data,
	}
}

// PushMessage is the payload delivered to connected clients. Timestamp is
// nil for deletions, where no snapshot time exists.
type PushMessage struct {
	EventType string     `json:"event_type"`
	Data      any        `json:"data"`
	Timestamp *time.Time `json:"timestamp"`
}
