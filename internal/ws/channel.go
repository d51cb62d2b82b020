// ABOUTME: Adapts a websocket connection to the registry's Channel interface
// ABOUTME: Each write gets its own deadline so one stuck client cannot stall fan-out

package ws

import (
	"context"
	"time"

	"github.com/coder/websocket"
)

type channel struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
}

func newChannel(conn *websocket.Conn, writeTimeout time.Duration) *channel {
	return &channel{
		conn:         conn,
		writeTimeout: writeTimeout,
	}
}

// Send writes one text frame. An error marks the channel broken; the
// registry evicts it and the read loop tears the session down.
func (c *channel) Send(payload []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.writeTimeout)
	defer cancel()
	return c.conn.Write(ctx, websocket.MessageText, payload)
}

// Close ends the session with a going-away status. Used on server shutdown;
// the connection's read loop observes the close and exits.
func (c *channel) Close() error {
	return c.conn.Close(websocket.StatusGoingAway, "server shutting down")
}
