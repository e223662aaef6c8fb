package core

import (
	"sync"
	"time"

	"github.com/dkeye/duo/internal/domain"
	"github.com/rs/zerolog/log"
)

// Session is the shared state of one room. Every membership or host change
// happens under mu, so joins, leaves, host claims and sweeps always see a
// consistent snapshot.
//
// A session that became empty is closed and must not be used again; the
// registry replaces it on the next GetOrCreate.
type Session struct {
	id        domain.RoomID
	createdAt time.Time

	mu         sync.Mutex
	members    []*domain.Member
	host       domain.ConnectionID
	emptySince time.Time
	closed     bool
}

func NewSession(id domain.RoomID, now time.Time) *Session {
	return &Session{id: id, createdAt: now, emptySince: now}
}

// JoinResult describes a successful join. Others holds the members that were
// present before the joiner, in join order.
type JoinResult struct {
	Member domain.Member
	IsHost bool
	Others []domain.Member
}

// LeaveResult describes a successful leave. NewHost is empty when the host
// did not change or nobody is left. Empty reports that the session closed.
type LeaveResult struct {
	Member    domain.Member
	WasHost   bool
	NewHost   domain.ConnectionID
	Remaining []domain.Member
	Empty     bool
}

// Info is a read-only view for APIs.
type Info struct {
	ID          domain.RoomID       `json:"roomId"`
	MemberCount int                 `json:"memberCount"`
	Host        domain.ConnectionID `json:"hostConnectionId,omitempty"`
	CreatedAt   time.Time           `json:"createdAt"`
}

func (s *Session) ID() domain.RoomID     { return s.id }
func (s *Session) CreatedAt() time.Time { return s.createdAt }

func (s *Session) Join(m *domain.Member) (JoinResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return JoinResult{}, domain.ErrRoomNotFound
	}
	if s.indexLocked(m.ConnectionID) >= 0 {
		return JoinResult{}, domain.ErrAlreadyMember
	}
	if len(s.members) >= domain.MaxMembers {
		return JoinResult{}, domain.ErrRoomFull
	}

	others := s.copyLocked("")
	s.members = append(s.members, m)
	isHost := len(s.members) == 1
	if isHost {
		s.host = m.ConnectionID
	}
	log.Info().Str("module", "core.session").Str("room", string(s.id)).Str("conn", string(m.ConnectionID)).
		Str("user", string(m.UserID)).Bool("host", isHost).Msg("member added")
	return JoinResult{Member: *m, IsHost: isHost, Others: others}, nil
}

// Leave removes cid. The earliest joined remaining member inherits the host
// role. When the last member leaves the session closes.
func (s *Session) Leave(cid domain.ConnectionID, now time.Time) (LeaveResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return LeaveResult{}, domain.ErrRoomNotFound
	}
	idx := s.indexLocked(cid)
	if idx < 0 {
		return LeaveResult{}, domain.ErrNotAMember
	}

	removed := s.members[idx]
	s.members = append(s.members[:idx], s.members[idx+1:]...)
	res := LeaveResult{Member: *removed, WasHost: s.host == cid}

	switch {
	case len(s.members) == 0:
		s.host = ""
		s.emptySince = now
		s.closed = true
		res.Empty = true
	case res.WasHost:
		s.host = s.members[0].ConnectionID
		res.NewHost = s.host
	}
	res.Remaining = s.copyLocked("")
	log.Info().Str("module", "core.session").Str("room", string(s.id)).Str("conn", string(cid)).
		Bool("was_host", res.WasHost).Str("new_host", string(res.NewHost)).Bool("empty", res.Empty).Msg("member removed")
	return res, nil
}

// SetHost makes cid the host of record. It fails if cid is not a member.
func (s *Session) SetHost(cid domain.ConnectionID) (domain.Member, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return domain.Member{}, false
	}
	idx := s.indexLocked(cid)
	if idx < 0 {
		return domain.Member{}, false
	}
	s.host = cid
	return *s.members[idx], true
}

// CloseIfIdle closes the session when it has no members and has been empty
// for at least retention. It reports whether the session is now closed by
// this call.
func (s *Session) CloseIfIdle(now time.Time, retention time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || len(s.members) > 0 {
		return false
	}
	if now.Sub(s.emptySince) < retention {
		return false
	}
	s.closed = true
	return true
}

func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) Find(cid domain.ConnectionID) (domain.Member, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx := s.indexLocked(cid); idx >= 0 {
		return *s.members[idx], true
	}
	return domain.Member{}, false
}

// Others returns the members excluding cid, in join order.
func (s *Session) Others(cid domain.ConnectionID) []domain.Member {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyLocked(cid)
}

// Members returns every member in join order.
func (s *Session) Members() []domain.Member {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyLocked("")
}

func (s *Session) Host() domain.ConnectionID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.host
}

func (s *Session) MemberCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.members)
}

func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{ID: s.id, MemberCount: len(s.members), Host: s.host, CreatedAt: s.createdAt}
}

func (s *Session) indexLocked(cid domain.ConnectionID) int {
	for i, m := range s.members {
		if m.ConnectionID == cid {
			return i
		}
	}
	return -1
}

func (s *Session) copyLocked(skip domain.ConnectionID) []domain.Member {
	out := make([]domain.Member, 0, len(s.members))
	for _, m := range s.members {
		if m.ConnectionID == skip {
			continue
		}
		out = append(out, *m)
	}
	return out
}
