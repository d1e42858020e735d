package livehub

import (
	"encoding/json"
	"net/http"
	"slices"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/codr1/leaguedesk/internal/api/apiutil"
	"github.com/codr1/leaguedesk/internal/matchphase"
)

// SnapshotFunc returns the current state of an open match, if it is open.
type SnapshotFunc func(matchID int64) (matchphase.Snapshot, bool)

type Handler struct {
	hub      *Hub
	snapshot SnapshotFunc
	upgrader websocket.Upgrader
}

// NewHandler serves the per-match websocket. With no allowed origins every
// origin may connect. snapshot may be nil.
func NewHandler(hub *Hub, snapshot SnapshotFunc, allowedOrigins []string) *Handler {
	return &Handler{
		hub:      hub,
		snapshot: snapshot,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if len(allowedOrigins) == 0 {
					return true
				}
				return slices.Contains(allowedOrigins, r.Header.Get("Origin"))
			},
		},
	}
}

// GET /ws/matches/{id}
func (h *Handler) ServeWs(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	matchID, err := apiutil.PathID(r, "match_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		logger.Warn().Err(err).Int64("match_id", matchID).Msg("Failed to upgrade websocket connection")
		return
	}

	room := RoomForMatch(matchID)
	client := &Client{
		hub:    h.hub,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		room:   room,
		logger: logger.With().Str("room", room).Logger(),
	}

	// Screens render the current phase right away instead of waiting for
	// the next change.
	var initial func() []byte
	if h.snapshot != nil {
		initial = func() []byte {
			s, ok := h.snapshot(matchID)
			if !ok {
				return nil
			}
			payload, err := json.Marshal(Message{Type: MessagePhase, Payload: s, Room: room})
			if err != nil {
				logger.Error().Err(err).Int64("match_id", matchID).Msg("Failed to encode initial snapshot")
				return nil
			}
			return payload
		}
	}

	if !h.hub.join(client, initial) {
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
	logger.Debug().Str("room", room).Msg("Websocket client connected")
}
