package registry

import (
	"log/slog"
	"sync"

	"github.com/carlos-grullon/classnet-ws-server/domain"
	"github.com/carlos-grullon/classnet-ws-server/metrics"
)

// Registry holds the user→connection mapping. It keeps a lookup reference
// only; connection lifetimes are owned by the transport layer.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]domain.Connection
}

func New() *Registry {
	return &Registry{
		conns: make(map[string]domain.Connection),
	}
}

// Put records conn as the authoritative connection for its user. Any prior
// mapping for the same user is displaced and returned so the caller can
// close it; last write wins.
func (r *Registry) Put(conn domain.Connection) domain.Connection {
	r.mu.Lock()
	displaced := r.conns[conn.UserID()]
	if displaced != nil && displaced.ID() == conn.ID() {
		displaced = nil
	}
	r.conns[conn.UserID()] = conn
	count := len(r.conns)
	r.mu.Unlock()

	metrics.ConnectionsActive.Set(float64(count))
	slog.Info("user registered", "userId", conn.UserID(), "connId", conn.ID(), "connections", count)
	return displaced
}

// Remove erases the mapping for conn's user, but only while the registry
// still points at that exact connection. A disconnect arriving after the
// user already reconnected must not evict the newer mapping.
func (r *Registry) Remove(conn domain.Connection) bool {
	r.mu.Lock()
	current, ok := r.conns[conn.UserID()]
	if !ok || current.ID() != conn.ID() {
		r.mu.Unlock()
		return false
	}
	delete(r.conns, conn.UserID())
	count := len(r.conns)
	r.mu.Unlock()

	metrics.ConnectionsActive.Set(float64(count))
	slog.Info("user unregistered", "userId", conn.UserID(), "connId", conn.ID(), "connections", count)
	return true
}

func (r *Registry) Get(userID string) (domain.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[userID]
	return conn, ok
}

func (r *Registry) Has(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.conns[userID]
	return ok
}

func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
