package realtime

import (
	"bytes"
	"encoding/json"
	"go-dm/internal/user"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second    // Time allowed to write a message to the peer.
	pongWait       = 60 * time.Second    // Time allowed to read the next pong message from the peer.
	pingPeriod     = (pongWait * 9) / 10 // Send pings to peer with this period. Must be less than pongWait.
	maxMessageSize = 512                 // Maximum control frame size allowed from peer.
	maxBatch       = 64                  // Envelopes joined into one websocket message.
)

// Op values a client may send.
const (
	OpSubscribe   = "subscribe"
	OpUnsubscribe = "unsubscribe"
)

// ControlFrame is what clients send over the socket.
type ControlFrame struct {
	Op      string `json:"op"`
	Channel string `json:"channel"`
}

// Client is a middleman between one websocket connection and the hub.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	// Buffered channel of outbound frames. Only the hub closes it.
	send chan []byte
	user user.User
	// Owned by the hub goroutine.
	channels map[string]bool
	log      *zap.Logger
}

func newClient(hub *Hub, conn *websocket.Conn, u user.User) *Client {
	return &Client{
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, 256),
		user:     u,
		channels: make(map[string]bool),
		log:      hub.log.With(zap.String("user_id", u.ID)),
	}
}

// readPump turns subscribe/unsubscribe frames into hub requests.
func (c *Client) readPump() {
	defer func() {
		enqueue(c.hub, c.hub.unregister, c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Info("websocket closed", zap.Error(err))
			}
			return
		}

		var frame ControlFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			c.log.Debug("ignoring malformed frame", zap.Error(err))
			continue
		}
		switch frame.Op {
		case OpSubscribe, OpUnsubscribe:
			sub := subscription{client: c, channel: frame.Channel, join: frame.Op == OpSubscribe}
			if !enqueue(c.hub, c.hub.subscribe, sub) {
				return
			}
		default:
			c.log.Debug("ignoring unknown op", zap.String("op", frame.Op))
		}
	}
}

// writePump pumps frames from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			if !ok {
				// The hub dropped this client.
				c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.flush(frame); err != nil {
				c.log.Debug("write failed", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// flush writes first together with whatever is already queued behind it.
func (c *Client) flush(first []byte) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, batch(first, c.send, maxBatch))
}

// batch joins first and up to limit-1 already queued envelopes into one
// newline separated message. It never waits for more to arrive.
func batch(first []byte, queue <-chan []byte, limit int) []byte {
	var buf bytes.Buffer
	buf.Write(first)
	for n := 1; n < limit; n++ {
		select {
		case next, ok := <-queue:
			if !ok {
				return buf.Bytes()
			}
			buf.WriteByte('\n')
			buf.Write(next)
		default:
			return buf.Bytes()
		}
	}
	return buf.Bytes()
}
