package domain

import "errors"

var (
	ErrMissingIdentity   = errors.New("missing user identity")
	ErrInvalidCredential = errors.New("invalid credential")
)

// Envelope is the wire shape of every server→client event. Clients dispatch
// on Event; Payload is whatever the producer put in it.
type Envelope struct {
	Event   string `json:"event"`
	Payload any    `json:"payload,omitempty"`
}

// ClientMessage is the wire shape of client→server messages.
type ClientMessage struct {
	Type         string `json:"type"`
	TargetUserID string `json:"targetUserId,omitempty"`
	Timestamp    int64  `json:"timestamp,omitempty"`
}

type Connection interface {
	ID() string
	UserID() string
	Send(data []byte) error
	Close() error
}

// Registry is the authoritative user→connection mapping. At most one entry
// per user at any instant; a newer connection for the same user displaces
// the previous one.
type Registry interface {
	Put(conn Connection) (displaced Connection)
	Remove(conn Connection) bool
	Get(userID string) (Connection, bool)
	Has(userID string) bool
	Size() int
}

type MessageHandler interface {
	Handle(conn Connection, data []byte)
}
