package app

import (
	"sync"
	"time"

	"github.com/dkeye/duo/internal/core"
	"github.com/dkeye/duo/internal/domain"
	"github.com/rs/zerolog/log"
)

// SessionRegistry maps room ids to sessions. It is constructed once per
// relay and passed to whoever needs it.
type SessionRegistry struct {
	now func() time.Time

	mu       sync.RWMutex
	sessions map[domain.RoomID]*core.Session
}

func NewSessionRegistry(now func() time.Time) *SessionRegistry {
	if now == nil {
		now = time.Now
	}
	return &SessionRegistry{
		now:      now,
		sessions: make(map[domain.RoomID]*core.Session),
	}
}

// GetOrCreate returns the live session for id, creating it if absent. A
// closed session still in the map is replaced.
func (r *SessionRegistry) GetOrCreate(id domain.RoomID) *core.Session {
	r.mu.RLock()
	sess, ok := r.sessions[id]
	r.mu.RUnlock()
	if ok && !sess.Closed() {
		return sess
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if sess, ok = r.sessions[id]; ok && !sess.Closed() {
		return sess
	}
	sess = core.NewSession(id, r.now())
	r.sessions[id] = sess
	log.Info().Str("module", "app.sessions").Str("room", string(id)).Msg("session created")
	return sess
}

func (r *SessionRegistry) Get(id domain.RoomID) (*core.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[id]
	return sess, ok
}

// Remove deletes id. Unknown ids are ignored.
func (r *SessionRegistry) Remove(id domain.RoomID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// RemoveSession deletes id only while it still maps to sess, so a session
// created concurrently under the same id survives.
func (r *SessionRegistry) RemoveSession(sess *core.Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.sessions[sess.ID()]; ok && cur == sess {
		delete(r.sessions, sess.ID())
		log.Info().Str("module", "app.sessions").Str("room", string(sess.ID())).Msg("session removed")
		return true
	}
	return false
}

// Snapshot returns the sessions held right now.
func (r *SessionRegistry) Snapshot() []*core.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*core.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

func (r *SessionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *SessionRegistry) Now() time.Time { return r.now() }
