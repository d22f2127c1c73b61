package session

import (
	"sync"

	"github.com/paulgasbarra/together-we-code/internal/models"
)

// Room is the ephemeral broadcast group for one active session. Membership
// changes and fan-out hold the same mutex, so a join or leave never
// interleaves with a broadcast for the same room.
type Room struct {
	ID string

	mu      sync.Mutex
	clients map[*Client]struct{}
}

func NewRoom(id string) *Room {
	return &Room{ID: id, clients: make(map[*Client]struct{})}
}

func (r *Room) Join(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c] = struct{}{}
}

// Leave removes the client and returns how many members remain.
func (r *Room) Leave(c *Client) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, c)
	return len(r.clients)
}

func (r *Room) MemberCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// Participants returns a snapshot of current members.
func (r *Room) Participants() []models.Participant {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Participant, 0, len(r.clients))
	for c := range r.clients {
		out = append(out, c.Participant())
	}
	return out
}

// Broadcast fans env out to every member except the sender. Used for code
// deltas so a typist never echoes its own keystrokes, and for presence
// notifications.
func (r *Room) Broadcast(sender *Client, env models.Envelope) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for c := range r.clients {
		if c == sender {
			continue
		}
		c.Send(env)
	}
}

// BroadcastAll fans env out to every member including the sender. Used for
// verdicts, so the submitter sees its own result too.
func (r *Room) BroadcastAll(env models.Envelope) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for c := range r.clients {
		c.Send(env)
	}
}
