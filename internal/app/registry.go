package app

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Chatter/internal/core"
	"github.com/dkeye/Chatter/internal/domain"
)

// Registry maps a user id to its single live outbound connection.
// It is the only state shared across connection goroutines; every operation
// is an atomic per-key swap under one lock, so Resolve never observes a
// half-updated entry.
type Registry struct {
	mu    sync.RWMutex
	conns map[domain.UserID]core.SignalConnection
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[domain.UserID]core.SignalConnection)}
}

// Register makes conn the current connection for id. Last-connected wins:
// any prior entry is replaced, not queued behind. The old connection is not
// closed here; closing is owned by its own adapter's disconnect path,
// otherwise tearing down the old socket could be taken for the new session
// failing.
func (r *Registry) Register(id domain.UserID, conn core.SignalConnection) {
	r.mu.Lock()
	_, replaced := r.conns[id]
	r.conns[id] = conn
	r.mu.Unlock()
	log.Info().Str("module", "app.registry").Int64("user", int64(id)).Bool("replaced", replaced).Msg("session registered")
}

// Unregister removes the mapping for id, but only when conn is still the
// current one. A stale disconnect arriving after a replacement already took
// over is a no-op, not an error. A nil conn removes unconditionally.
func (r *Registry) Unregister(id domain.UserID, conn core.SignalConnection) {
	r.mu.Lock()
	current, ok := r.conns[id]
	removed := ok && (conn == nil || current == conn)
	if removed {
		delete(r.conns, id)
	}
	r.mu.Unlock()
	if removed {
		log.Info().Str("module", "app.registry").Int64("user", int64(id)).Msg("session unregistered")
	}
}

// Resolve returns the current connection for id. A miss means the recipient
// is offline, which is a normal best-effort-delivery outcome.
func (r *Registry) Resolve(id domain.UserID) (core.SignalConnection, bool) {
	r.mu.RLock()
	conn, ok := r.conns[id]
	r.mu.RUnlock()
	return conn, ok
}

// Online returns the currently registered user ids.
func (r *Registry) Online() []domain.UserID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.UserID, 0, len(r.conns))
	for id := range r.conns {
		out = append(out, id)
	}
	return out
}
