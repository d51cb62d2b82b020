// ABOUTME: Store interface and entities for the ingested-event audit trail
// ABOUTME: Records what was delivered to whom, queryable by user and time

package store

import (
	"context"
	"time"
)

// EventRecord is one ingested task event and its delivery outcome. A
// Delivered count of zero is a normal outcome: the user simply had no open
// sessions when the event arrived.
type EventRecord struct {
	ID         string    // row UUID
	EventID    string    // envelope ID (repeats under broker redelivery)
	EventType  string    // e.g. com.todo.task.created
	UserID     string    // owning user
	Action     string    // CREATED, UPDATED, COMPLETED, DELETED
	TaskID     string    // affected task
	Delivered  int       // sessions that received the push
	ReceivedAt time.Time // when the ingress processed it
}

// EventFilter specifies filtering options for listing event records.
type EventFilter struct {
	Since  *time.Time // records after this time
	UserID *string    // filter by owning user
	Action *string    // filter by action
	Limit  int        // max results (default 100, max 1000)
}

// Store persists ingested events.
type Store interface {
	// AppendEvent appends a record, generating ID and ReceivedAt if unset.
	AppendEvent(ctx context.Context, rec *EventRecord) error

	// ListEvents returns matching records, newest first.
	ListEvents(ctx context.Context, filter EventFilter) ([]*EventRecord, error)

	// Close releases the underlying database.
	Close() error
}
