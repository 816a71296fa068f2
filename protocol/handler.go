package protocol

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/carlos-grullon/classnet-ws-server/domain"
	"github.com/carlos-grullon/classnet-ws-server/metrics"
)

type Handler struct {
	registry domain.Registry
}

func NewHandler(registry domain.Registry) *Handler {
	return &Handler{registry: registry}
}

func (h *Handler) Handle(conn domain.Connection, data []byte) {
	var msg domain.ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		slog.Warn("invalid message", "connId", conn.ID(), "error", err)
		return
	}

	switch msg.Type {
	case "ping":
		h.reply(conn, "pong", pongPayload{
			Timestamp: msg.Timestamp,
			UserID:    conn.UserID(),
		})
	case "check-online":
		h.checkOnline(conn, msg)
	default:
		slog.Warn("unknown message type", "connId", conn.ID(), "type", msg.Type)
	}
}

type pongPayload struct {
	Timestamp int64  `json:"timestamp"`
	UserID    string `json:"userId"`
}

type presenceResult struct {
	IsOnline  bool   `json:"isOnline"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// checkOnline answers with the registry state at the time of the call. A
// malformed target gets an error reply, never a dropped session.
func (h *Handler) checkOnline(conn domain.Connection, msg domain.ClientMessage) {
	metrics.PresenceQueries.Inc()

	result := presenceResult{Success: true, Timestamp: time.Now().UnixMilli()}
	if msg.TargetUserID == "" {
		result.Success = false
		result.Error = "targetUserId is required"
	} else {
		result.IsOnline = h.registry.Has(msg.TargetUserID)
	}
	h.reply(conn, "check-online", result)
}

func (h *Handler) reply(conn domain.Connection, event string, payload any) {
	data, err := json.Marshal(domain.Envelope{Event: event, Payload: payload})
	if err != nil {
		slog.Warn("marshal error", "connId", conn.ID(), "error", err)
		return
	}
	if err := conn.Send(data); err != nil {
		slog.Warn("send error", "connId", conn.ID(), "error", err)
	}
}
