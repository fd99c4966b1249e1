package server

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 256
)

// The zero CheckOrigin rejects upgrades from pages on another origin.
var upgrader = websocket.Upgrader{}

// client is one browser tab connected to /ws.
type client struct {
	bridge *Bridge
	conn   *websocket.Conn
	send   chan []byte

	// Capabilities reported by the page. Both are assumed until it says otherwise.
	mu          sync.Mutex
	synthesis   bool
	recognition bool
}

func newClient(b *Bridge, conn *websocket.Conn) *client {
	return &client{
		bridge:      b,
		conn:        conn,
		send:        make(chan []byte, sendBuffer),
		synthesis:   true,
		recognition: true,
	}
}

func (c *client) canSpeak() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.synthesis
}

func (c *client) canListen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recognition
}

func (c *client) setCapabilities(synthesis, recognition *bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if synthesis != nil {
		c.synthesis = *synthesis
	}
	if recognition != nil {
		c.recognition = *recognition
	}
}

// readPump decodes browser messages until the connection drops.
func (c *client) readPump() {
	defer func() {
		c.bridge.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.bridge.logger.Debug("websocket read failed", "error", err)
			}
			return
		}

		var msg message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.bridge.logger.Debug("ignoring malformed message", "error", err)
			continue
		}
		c.bridge.handle(c, msg)
	}
}

// writePump is the only writer on conn.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
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
