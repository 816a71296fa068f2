package relay

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/carlos-grullon/classnet-ws-server/auth"
	"github.com/carlos-grullon/classnet-ws-server/domain"
	"github.com/carlos-grullon/classnet-ws-server/metrics"
)

const internalKeyHeader = "x-internal-key"

// Relay is the HTTP bridge between the backend and connected clients.
type Relay struct {
	auth     *auth.Authenticator
	registry domain.Registry
}

func New(a *auth.Authenticator, registry domain.Registry) *Relay {
	return &Relay{auth: a, registry: registry}
}

type emitRequest struct {
	UserID    string          `json:"userId"`
	EventType string          `json:"eventType"`
	Payload   json.RawMessage `json:"payload"`
}

type emitResponse struct {
	Success   bool   `json:"success"`
	Delivered bool   `json:"delivered"`
	Event     string `json:"event"`
	Timestamp int64  `json:"timestamp"`
}

// Emit handles POST /emit. An offline target is a normal outcome: the
// request is accepted (200) with delivered=false, not rejected.
func (r *Relay) Emit(c *gin.Context) {
	if !r.auth.VerifyKey(c.GetHeader(internalKeyHeader)) {
		metrics.EventsEmitted.WithLabelValues("unauthorized").Inc()
		c.JSON(http.StatusForbidden, gin.H{"success": false, "error": "invalid internal key"})
		return
	}

	var req emitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		metrics.EventsEmitted.WithLabelValues("bad_request").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid JSON body"})
		return
	}
	if req.UserID == "" || req.EventType == "" || len(req.Payload) == 0 {
		metrics.EventsEmitted.WithLabelValues("bad_request").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "userId, eventType and payload are required"})
		return
	}

	resp := emitResponse{Success: true, Event: req.EventType, Timestamp: time.Now().UnixMilli()}

	conn, ok := r.registry.Get(req.UserID)
	if !ok {
		metrics.EventsEmitted.WithLabelValues("undelivered").Inc()
		slog.Info("emit target offline", "userId", req.UserID, "event", req.EventType)
		c.JSON(http.StatusOK, resp)
		return
	}

	data, err := json.Marshal(domain.Envelope{Event: req.EventType, Payload: req.Payload})
	if err != nil {
		metrics.EventsEmitted.WithLabelValues("internal_error").Inc()
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "internal error"})
		return
	}

	if err := conn.Send(data); err != nil {
		metrics.EventsEmitted.WithLabelValues("undelivered").Inc()
		slog.Warn("emit send failed", "userId", req.UserID, "event", req.EventType, "error", err)
		c.JSON(http.StatusOK, resp)
		return
	}

	resp.Delivered = true
	metrics.EventsEmitted.WithLabelValues("delivered").Inc()
	slog.Info("event relayed", "userId", req.UserID, "event", req.EventType)
	c.JSON(http.StatusOK, resp)
}

// Health handles GET /health.
func (r *Relay) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"timestamp":   time.Now().UnixMilli(),
		"connections": r.registry.Size(),
	})
}
