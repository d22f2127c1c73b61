// Package session tracks room membership per connection and fans events out
// to the right room. Delivery is at-most-once with no replay: a participant
// joining after an event was published never receives it.
package session

import (
	"sync"

	"github.com/paulgasbarra/together-we-code/internal/models"
)

// Hub owns all active rooms and the room each connection currently belongs
// to. A connection is in at most one room at a time; joining a second room
// leaves the first. The hub is constructed once in main and injected, never
// referenced as a global.
type Hub struct {
	mu       sync.Mutex
	rooms    map[string]*Room
	byClient map[*Client]*Room
}

func NewHub() *Hub {
	return &Hub{
		rooms:    make(map[string]*Room),
		byClient: make(map[*Client]*Room),
	}
}

// Join moves c into the room for sessionID. If c already belongs to a room
// it leaves that room first, emitting user-left there. The other members of
// the new room are then told user-joined; the joiner itself is not.
func (h *Hub) Join(c *Client, sessionID string) *Room {
	h.mu.Lock()
	prev := h.byClient[c]
	if prev != nil && prev.ID == sessionID {
		h.mu.Unlock()
		return prev
	}
	room := h.rooms[sessionID]
	if room == nil {
		room = NewRoom(sessionID)
		h.rooms[sessionID] = room
	}
	h.byClient[c] = room
	h.mu.Unlock()

	if prev != nil {
		h.dropFrom(prev, c)
	}
	room.Join(c)
	p := c.Participant()
	room.Broadcast(c, models.Envelope{
		Type: models.EventUserJoined,
		Data: models.UserEvent{UserID: p.UserID, Username: p.Username},
	})
	return room
}

// Leave removes c from its current room, if any, emitting user-left to the
// former room exactly once. Safe to call twice; the second call is a no-op.
func (h *Hub) Leave(c *Client) {
	h.mu.Lock()
	room := h.byClient[c]
	delete(h.byClient, c)
	h.mu.Unlock()
	if room == nil {
		return
	}
	h.dropFrom(room, c)
}

func (h *Hub) dropFrom(room *Room, c *Client) {
	remaining := room.Leave(c)
	p := c.Participant()
	room.Broadcast(c, models.Envelope{
		Type: models.EventUserLeft,
		Data: models.UserEvent{UserID: p.UserID, Username: p.Username},
	})
	if remaining == 0 {
		h.mu.Lock()
		if h.rooms[room.ID] == room && room.MemberCount() == 0 {
			delete(h.rooms, room.ID)
		}
		h.mu.Unlock()
	}
}

// Room returns the active room for sessionID, if any.
func (h *Hub) Room(sessionID string) (*Room, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[sessionID]
	return room, ok
}

// RoomOf returns the room c currently belongs to, if any.
func (h *Hub) RoomOf(c *Client) (*Room, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.byClient[c]
	return room, ok
}

// Publish fans env out to the room for sessionID. When sender is non-nil it
// is excluded from delivery; a nil sender reaches every member.
func (h *Hub) Publish(sessionID string, sender *Client, env models.Envelope) bool {
	room, ok := h.Room(sessionID)
	if !ok {
		return false
	}
	if sender != nil {
		room.Broadcast(sender, env)
	} else {
		room.BroadcastAll(env)
	}
	return true
}
