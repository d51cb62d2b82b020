// ABOUTME: WebSocket endpoint that admits authenticated sessions into the registry
// ABOUTME: Credential travels as a query parameter; auth failure closes with 1008

package ws

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/2389/taskpulse/internal/auth"
	"github.com/2389/taskpulse/internal/event"
	"github.com/2389/taskpulse/internal/registry"
)

// Endpoint accepts client WebSocket connections. The credential is read
// from the "token" query parameter because the browser WebSocket handshake
// cannot carry an Authorization header.
type Endpoint struct {
	verifier     auth.Verifier
	registry     *registry.Registry
	writeTimeout time.Duration
	logger       *slog.Logger
}

// NewEndpoint creates the connection endpoint.
func NewEndpoint(verifier auth.Verifier, reg *registry.Registry, writeTimeout time.Duration, logger *slog.Logger) *Endpoint {
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	return &Endpoint{
		verifier:     verifier,
		registry:     reg,
		writeTimeout: writeTimeout,
		logger:       logger,
	}
}

// ServeHTTP upgrades the connection and walks it through the session
// lifecycle: verify credential, register, read until the transport closes,
// unregister. Unregister runs on every exit path exactly once.
func (e *Endpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		e.logger.Warn("websocket accept failed", "error", err)
		return
	}

	userID, err := e.verifier.Verify(r.URL.Query().Get("token"))
	if err != nil {
		e.logger.Warn("refusing unauthenticated connection",
			"remote", r.RemoteAddr,
			"reason", closeReason(err),
		)
		conn.Close(websocket.StatusPolicyViolation, closeReason(err))
		return
	}

	ch := newChannel(conn, e.writeTimeout)
	e.registry.Register(userID, ch)
	defer e.registry.Unregister(userID, ch)
	defer conn.CloseNow()

	ctx := r.Context()
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				e.logger.Debug("session closed by client", "user_id", userID)
			} else {
				e.logger.Debug("session read ended", "user_id", userID, "error", err)
			}
			return
		}

		// Inbound frames are liveness only. Answer pings so clients can
		// detect a dead link without waiting for a failed send.
		if string(data) == "ping" {
			e.registry.Send(userID, ch, event.PushMessage{EventType: "pong"})
		}
	}
}

// closeReason maps a credential error to the close reason sent to the
// client. Auth failures always surface as explicit typed rejections, never
// as a silent drop.
func closeReason(err error) string {
	switch {
	case errors.Is(err, auth.ErrExpiredCredential):
		return "credential expired"
	case errors.Is(err, auth.ErrMissingSubject):
		return "credential has no subject"
	default:
		return "invalid credential"
	}
}
