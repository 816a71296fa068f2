package auth

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/carlos-grullon/classnet-ws-server/domain"
)

// Authenticator admits handshakes and vets relay calls against the single
// shared secret. Both entry points go through the same comparison.
type Authenticator struct {
	secret   string
	registry domain.Registry
}

func New(secret string, registry domain.Registry) *Authenticator {
	return &Authenticator{secret: secret, registry: registry}
}

// VerifyKey reports whether the presented credential matches the shared
// secret. Constant-time.
func (a *Authenticator) VerifyKey(presented string) bool {
	return subtle.ConstantTimeCompare([]byte(a.secret), []byte(presented)) == 1
}

// Check validates handshake parameters before the transport is upgraded.
// A failure here refuses the connection; nothing is registered.
func (a *Authenticator) Check(userID, key string) error {
	if userID == "" {
		return domain.ErrMissingIdentity
	}
	if !a.VerifyKey(key) {
		return domain.ErrInvalidCredential
	}
	return nil
}

type connectionAck struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	UserID    string `json:"userId"`
	Timestamp int64  `json:"timestamp"`
}

// Admit records conn in the registry, closing any displaced connection for
// the same user, and acknowledges admission to the client.
func (a *Authenticator) Admit(conn domain.Connection) error {
	if displaced := a.registry.Put(conn); displaced != nil {
		slog.Info("displacing previous connection", "userId", conn.UserID(), "connId", displaced.ID())
		_ = displaced.Close()
	}

	ack := domain.Envelope{
		Event: "connection",
		Payload: connectionAck{
			Success:   true,
			Message:   "connected",
			UserID:    conn.UserID(),
			Timestamp: time.Now().UnixMilli(),
		},
	}
	data, err := json.Marshal(ack)
	if err != nil {
		return err
	}
	return conn.Send(data)
}
