// ABOUTME: Tracks live push channels per user and fans events out to them
// ABOUTME: Sole shared-mutable-state holder; a failed send evicts the channel

package registry

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/2389/taskpulse/internal/event"
)

// Channel is the send handle for one live client session. The transport
// layer owns teardown but must unregister the channel when it closes.
type Channel interface {
	// Send delivers a single serialized message. An error means the
	// channel is broken and will be removed from the registry.
	Send(payload []byte) error

	// Close tears the channel down immediately. Used during shutdown.
	Close() error
}

// Registry maps user IDs to their open channels. A user may hold any number
// of simultaneous sessions; the mapping is the single source of truth for
// who is reachable right now.
type Registry struct {
	mu     sync.Mutex
	users  map[string]map[Channel]struct{}
	logger *slog.Logger
}

// New creates an empty Registry.
func New(logger *slog.Logger) *Registry {
	return &Registry{
		users:  make(map[string]map[Channel]struct{}),
		logger: logger,
	}
}

// Register adds a channel to the user's session set, creating the set if
// needed. Registration is idempotent membership and never fails.
func (r *Registry) Register(userID string, ch Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.users[userID]
	if !ok {
		set = make(map[Channel]struct{})
		r.users[userID] = set
	}
	set[ch] = struct{}{}

	r.logger.Info("session connected",
		"user_id", userID,
		"sessions", len(set),
	)
}

// Unregister removes a channel from the user's session set. Removing an
// absent channel is a no-op. The user entry is deleted once its last
// channel is gone so stale keys never accumulate.
func (r *Registry) Unregister(userID string, ch Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.users[userID]
	if !ok {
		return
	}
	if _, ok := set[ch]; !ok {
		return
	}
	delete(set, ch)
	if len(set) == 0 {
		delete(r.users, userID)
	}

	r.logger.Info("session disconnected",
		"user_id", userID,
		"sessions", len(set),
	)
}

// BroadcastToUser sends the message to every channel registered for the
// user and returns how many sends succeeded. Failures are isolated per
// channel: a broken channel is evicted and the remaining channels still
// receive the message. Zero registered channels is a silent no-op.
func (r *Registry) BroadcastToUser(userID string, msg event.PushMessage) int {
	channels := r.snapshot(userID)
	if len(channels) == 0 {
		return 0
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		r.logger.Error("failed to marshal push message",
			"user_id", userID,
			"event_type", msg.EventType,
			"error", err,
		)
		return 0
	}

	delivered := 0
	for _, ch := range channels {
		if err := ch.Send(payload); err != nil {
			r.logger.Warn("send failed, removing channel",
				"user_id", userID,
				"event_type", msg.EventType,
				"error", err,
			)
			r.Unregister(userID, ch)
			continue
		}
		delivered++
	}
	return delivered
}

// Send delivers a message to one specific channel of the user. Like
// broadcast, a failed send evicts the channel and is never fatal to the
// caller.
func (r *Registry) Send(userID string, ch Channel, msg event.PushMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		r.logger.Error("failed to marshal push message",
			"user_id", userID,
			"event_type", msg.EventType,
			"error", err,
		)
		return
	}

	if err := ch.Send(payload); err != nil {
		r.logger.Warn("send failed, removing channel",
			"user_id", userID,
			"event_type", msg.EventType,
			"error", err,
		)
		r.Unregister(userID, ch)
	}
}

// CountForUser returns the number of open sessions for the user.
func (r *Registry) CountForUser(userID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users[userID])
}

// Users returns the IDs of all users with at least one open session.
func (r *Registry) Users() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.users))
	for id := range r.users {
		ids = append(ids, id)
	}
	return ids
}

// CloseAll closes every registered channel and empties the registry. Called
// on server shutdown; the per-connection loops observe the close and their
// own unregister becomes a no-op.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	channels := make([]Channel, 0)
	for _, set := range r.users {
		for ch := range set {
			channels = append(channels, ch)
		}
	}
	r.users = make(map[string]map[Channel]struct{})
	r.mu.Unlock()

	for _, ch := range channels {
		if err := ch.Close(); err != nil {
			r.logger.Debug("closing channel", "error", err)
		}
	}
}

// snapshot copies the user's channel set so broadcast iteration tolerates
// concurrent unregister.
func (r *Registry) snapshot(userID string) []Channel {
	r.mu.Lock()
	defer r.mu.Unlock()

	set := r.users[userID]
	channels := make([]Channel, 0, len(set))
	for ch := range set {
		channels = append(channels, ch)
	}
	return channels
}
