// Package registry tracks the live push channels of connected users.
//
// # Overview
//
// The Registry is the single source of truth for "who is reachable right
// now". Each authenticated WebSocket session registers one Channel under its
// user ID; a user may hold any number of simultaneous sessions (laptop,
// phone, second tab) and an event for that user fans out to all of them.
//
//	reg := registry.New(logger)
//	reg.Register(userID, ch)
//	defer reg.Unregister(userID, ch)
//
// # Delivery contract
//
// Delivery is best-effort and at-most-once:
//
//   - BroadcastToUser sends to every channel of the user; a user with no
//     sessions is a silent no-op. There is no queueing and no retry — a
//     client that was offline re-fetches state on reconnect.
//   - A failed send marks the channel broken and evicts it. Failures are
//     isolated per channel: the user's other sessions still receive the
//     message, and the caller never sees an error.
//
// # Thread safety
//
// All state lives behind a single mutex. Broadcast snapshots the channel
// set before sending so iteration tolerates concurrent unregister, and
// sends happen outside the lock so one slow client cannot block
// registration.
package registry
