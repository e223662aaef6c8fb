package app

import (
	"context"
	"sync"

	"github.com/dkeye/duo/internal/core"
	"github.com/dkeye/duo/internal/domain"
	"github.com/rs/zerolog/log"
)

type connEntry struct {
	Room   domain.RoomID
	User   domain.UserID
	Signal core.SignalConnection
	Cancel context.CancelFunc
}

// ConnRegistry tracks every open signaling connection and the room it is
// currently bound to.
type ConnRegistry struct {
	mu    sync.RWMutex
	conns map[domain.ConnectionID]*connEntry
}

func NewConnRegistry() *ConnRegistry {
	return &ConnRegistry{conns: make(map[domain.ConnectionID]*connEntry)}
}

func (r *ConnRegistry) Bind(cid domain.ConnectionID, sig core.SignalConnection, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[cid] = &connEntry{Signal: sig, Cancel: cancel}
	log.Info().Str("module", "app.registry").Str("conn", string(cid)).Msg("bound connection")
}

func (r *ConnRegistry) Unbind(cid domain.ConnectionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, cid)
	log.Info().Str("module", "app.registry").Str("conn", string(cid)).Msg("unbound connection")
}

func (r *ConnRegistry) Signal(cid domain.ConnectionID) (core.SignalConnection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.conns[cid]; ok {
		return e.Signal, true
	}
	return nil, false
}

// RoomOf returns the room cid is bound to and the user id it joined with.
func (r *ConnRegistry) RoomOf(cid domain.ConnectionID) (domain.RoomID, domain.UserID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[cid]
	if !ok || e.Room == "" {
		return "", "", false
	}
	return e.Room, e.User, true
}

func (r *ConnRegistry) SetRoom(cid domain.ConnectionID, room domain.RoomID, user domain.UserID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[cid]
	if !ok {
		return false
	}
	e.Room, e.User = room, user
	return true
}

// TakeRoom clears and returns the room binding of cid. Only one of several
// concurrent callers gets ok == true, which makes leave idempotent.
func (r *ConnRegistry) TakeRoom(cid domain.ConnectionID) (domain.RoomID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[cid]
	if !ok || e.Room == "" {
		return "", false
	}
	room := e.Room
	e.Room, e.User = "", ""
	return room, true
}

// Cancel tears down the connection's context, ending its pumps.
func (r *ConnRegistry) Cancel(cid domain.ConnectionID) bool {
	r.mu.RLock()
	e, ok := r.conns[cid]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("conn", string(cid)).Msg("canceled connection")
	return true
}

func (r *ConnRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
