package session

import (
	"sync"

	"github.com/gorilla/websocket"

	"github.com/paulgasbarra/together-we-code/internal/models"
)

// Client is one websocket connection and the participant behind it. Writes
// are serialized by the client's own mutex, so events sent by one goroutine
// reach the peer in the order they were sent.
type Client struct {
	conn        *websocket.Conn
	participant models.Participant

	mu   sync.Mutex
	hook func(models.Envelope)
}

func NewClient(conn *websocket.Conn, participant models.Participant) *Client {
	return &Client{conn: conn, participant: participant}
}

func (c *Client) Participant() models.Participant { return c.participant }

// SetSendHook replaces the websocket sender (used in tests).
func (c *Client) SetSendHook(fn func(models.Envelope)) {
	c.mu.Lock()
	c.hook = fn
	c.mu.Unlock()
}

// Send delivers one envelope, at most once. Write errors are dropped: a dead
// peer is detected by its read loop and cleaned up there.
func (c *Client) Send(env models.Envelope) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hook != nil {
		c.hook(env)
		return
	}
	if c.conn == nil {
		return
	}
	_ = c.conn.WriteJSON(env)
}
