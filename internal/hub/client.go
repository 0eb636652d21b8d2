package hub

import (
	"time"

	"github.com/gorilla/websocket"
)

// Client represents one connected browser tab.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	account string
}

// NewClient wraps an upgraded connection for the given account.
// The caller must Register the client and start its pumps via Start.
func NewClient(h *Hub, conn *websocket.Conn, account string) *Client {
	bufSize := h.cfg.SendBufferSize
	if bufSize <= 0 {
		bufSize = 256
	}
	return &Client{
		hub:     h,
		conn:    conn,
		send:    make(chan []byte, bufSize),
		account: account,
	}
}

// Account returns the account this connection belongs to.
func (c *Client) Account() string {
	return c.account
}

// Start launches the read and write pumps.
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}

// readPump reads messages from the WebSocket connection. Inbound traffic is
// only used for liveness; all state changes go through the HTTP API.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.closeConn()
	}()

	c.conn.SetReadLimit(int64(c.hub.cfg.MaxMessageSize))
	deadline := c.readDeadline()
	//nolint:errcheck // Best-effort deadline on connection setup
	c.conn.SetReadDeadline(time.Now().Add(deadline))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(deadline))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			} else {
				c.hub.logger.Debug("websocket closed", "error", err)
			}
			return
		}
		// Any client message resets the read deadline (keeps connection
		// alive even if the browser doesn't answer protocol-level pings).
		//nolint:errcheck // Best-effort deadline reset
		c.conn.SetReadDeadline(time.Now().Add(deadline))
	}
}

// writePump writes messages to the WebSocket connection.
func (c *Client) writePump() {
	pingInterval := time.Duration(c.hub.cfg.PingInterval) * time.Second
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.closeConn()
	}()

	pongWait := time.Duration(c.hub.cfg.PongTimeout) * time.Second

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				// Hub closed the channel
				//nolint:errcheck // Best-effort close message
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			//nolint:errcheck // Best-effort deadline; write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// trySend queues data on the client's outbound buffer. It returns false
// when the buffer is full (the hub then drops the client). A send on a
// channel already closed by Unregister is absorbed.
func (c *Client) trySend(data []byte) (ok bool) {
	defer func() {
		if recover() != nil {
			// Client was unregistered concurrently; nothing to deliver.
			ok = true
		}
	}()

	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) readDeadline() time.Duration {
	return time.Duration(c.hub.cfg.PingInterval+c.hub.cfg.PongTimeout) * time.Second
}

func (c *Client) closeConn() {
	if c.conn != nil {
		//nolint:errcheck // Best-effort close
		c.conn.Close()
	}
}
