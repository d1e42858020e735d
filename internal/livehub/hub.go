// Package livehub pushes match phase changes and operator notifications to
// connected venue screens over websockets. Each match has its own room.
package livehub

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/codr1/leaguedesk/internal/matchphase"
)

const (
	MessagePhase        = "phase"
	MessageNotification = "notification"

	sendBufferSize = 256
)

type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
	Room    string `json:"room,omitempty"`
}

// joinRequest adds a client to its room. initial, when set, produces the
// first frame for the client. It runs with the room locked so no broadcast
// can slip in between the snapshot and the join.
type joinRequest struct {
	client  *Client
	initial func() []byte
}

// Hub tracks clients per room. Run must be running for clients to join.
type Hub struct {
	register   chan joinRequest
	unregister chan *Client
	done       chan struct{}

	mu    sync.RWMutex
	rooms map[string]map[*Client]struct{}

	logger zerolog.Logger
}

func NewHub() *Hub {
	return &Hub{
		register:   make(chan joinRequest),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		rooms:      make(map[string]map[*Client]struct{}),
		logger:     log.With().Str("component", "livehub").Logger(),
	}
}

// RoomForMatch names the room screens following a match join.
func RoomForMatch(matchID int64) string {
	return "match_" + strconv.FormatInt(matchID, 10)
}

// Run serves register and unregister requests until ctx is done, then
// disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case req := <-h.register:
			client := req.client
			h.mu.Lock()
			if _, ok := h.rooms[client.room]; !ok {
				h.rooms[client.room] = make(map[*Client]struct{})
			}
			h.rooms[client.room][client] = struct{}{}
			if req.initial != nil {
				// send is fresh and buffered, this never blocks.
				if payload := req.initial(); payload != nil {
					client.send <- payload
				}
			}
			size := len(h.rooms[client.room])
			h.mu.Unlock()
			h.logger.Debug().Str("room", client.room).Int("clients", size).Msg("Client joined room")

		case client := <-h.unregister:
			h.mu.Lock()
			h.removeLocked(client)
			h.mu.Unlock()

		case <-ctx.Done():
			h.mu.Lock()
			for _, clients := range h.rooms {
				for client := range clients {
					h.removeLocked(client)
				}
			}
			h.mu.Unlock()
			close(h.done)
			h.logger.Info().Msg("Live hub stopped")
			return
		}
	}
}

// removeLocked closes the client's send channel. Only the Run goroutine
// calls it, with mu held, so broadcasts never send on a closed channel.
func (h *Hub) removeLocked(client *Client) {
	clients, ok := h.rooms[client.room]
	if !ok {
		return
	}
	if _, ok := clients[client]; !ok {
		return
	}
	delete(clients, client)
	close(client.send)
	if len(clients) == 0 {
		delete(h.rooms, client.room)
		h.logger.Debug().Str("room", client.room).Msg("Room closed as it is empty")
		return
	}
	h.logger.Debug().Str("room", client.room).Int("clients", len(clients)).Msg("Client left room")
}

func (h *Hub) join(client *Client, initial func() []byte) bool {
	select {
	case h.register <- joinRequest{client: client, initial: initial}:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// RoomSize returns the number of clients in room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// BroadcastToRoom sends message to every client in room. Clients whose
// buffers are full miss the message.
func (h *Hub) BroadcastToRoom(room string, message Message) {
	message.Room = room
	payload, err := json.Marshal(message)
	if err != nil {
		h.logger.Error().Err(err).Str("room", room).Msg("Failed to marshal hub message")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	clients, ok := h.rooms[room]
	if !ok {
		return
	}
	for client := range clients {
		select {
		case client.send <- payload:
		default:
			h.logger.Warn().Str("room", room).Msg("Client send buffer full, dropping message")
		}
	}
}

// PhaseChanged implements matchphase.Observer.
func (h *Hub) PhaseChanged(ctx context.Context, s matchphase.Snapshot) {
	h.BroadcastToRoom(RoomForMatch(s.MatchID), Message{Type: MessagePhase, Payload: s})
}

// Notify implements matchphase.Observer.
func (h *Hub) Notify(ctx context.Context, n matchphase.Notification) {
	h.BroadcastToRoom(RoomForMatch(n.MatchID), Message{Type: MessageNotification, Payload: n})
}
