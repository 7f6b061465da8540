package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"telecare-signaling/pkg/constants"
	"telecare-signaling/pkg/logger"
)

// client is one live WebSocket connection. It implements coordinator.Conn:
// outbound messages are enqueued on a bounded buffer and flushed by the
// write pump, so no coordinator operation ever blocks on the network.
type client struct {
	handler *Handler
	conn    *websocket.Conn
	send    chan []byte
	done    chan struct{}
	once    sync.Once

	// identity established by the auth middleware at upgrade time
	userID      string
	role        string
	displayName string

	// registered flips once the register event has been processed. It is
	// only touched by the read pump, which handles events serially.
	registered bool
}

// Send enqueues an outbound message without blocking. It reports false when
// the connection is closing or the buffer is full; callers treat that as a
// logged delivery failure, never an error.
func (c *client) Send(msg []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// close signals the write pump to exit. Safe to call more than once.
func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
	})
}

// readPump reads events from the WebSocket and dispatches them serially.
// Its exit is the single trigger for the full disconnect cleanup sequence.
func (c *client) readPump() {
	defer func() {
		c.handler.coordinator.Disconnect(c)
		c.close()
		c.conn.Close()
		c.handler.releaseSlot()
		c.handler.metrics.ConnectionClosed()
	}()

	c.conn.SetReadLimit(constants.MaxSignalPayloadBytes + 4096)
	c.conn.SetReadDeadline(time.Now().Add(constants.WebSocketPingInterval))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(constants.WebSocketPingInterval))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Debug("websocket connection closed",
					zap.String("user_id", c.userID),
					zap.Error(err))
			}
			break
		}
		c.handler.dispatch(c, message)
	}
}

// writePump drains the send buffer to the WebSocket and keeps the
// connection alive with pings
func (c *client) writePump() {
	ticker := time.NewTicker(constants.WebSocketPingInterval * 9 / 10)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(constants.WebSocketWriteTimeout))
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)
			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(constants.WebSocketWriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
