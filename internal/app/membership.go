package app

import (
	"github.com/dkeye/duo/internal/core"
	"github.com/dkeye/duo/internal/domain"
)

// Membership enforces room capacity and host election on top of the
// session registry. Every call resolves the session first; a missing
// session is ErrRoomNotFound.
type Membership struct {
	Sessions *SessionRegistry
}

func NewMembership(sessions *SessionRegistry) *Membership {
	return &Membership{Sessions: sessions}
}

// Join adds cid to an existing room. The caller creates the room first.
func (m *Membership) Join(room domain.RoomID, cid domain.ConnectionID, uid domain.UserID, name string) (core.JoinResult, error) {
	sess, ok := m.Sessions.Get(room)
	if !ok {
		return core.JoinResult{}, domain.ErrRoomNotFound
	}
	return sess.Join(domain.NewMember(cid, uid, name, m.Sessions.Now()))
}

// Leave removes cid. A room left empty is deleted right away.
func (m *Membership) Leave(room domain.RoomID, cid domain.ConnectionID) (core.LeaveResult, error) {
	sess, ok := m.Sessions.Get(room)
	if !ok {
		return core.LeaveResult{}, domain.ErrRoomNotFound
	}
	res, err := sess.Leave(cid, m.Sessions.Now())
	if err != nil {
		return res, err
	}
	if res.Empty {
		m.Sessions.RemoveSession(sess)
	}
	return res, nil
}

// SetHost lets any current member claim the host role.
func (m *Membership) SetHost(room domain.RoomID, cid domain.ConnectionID) (domain.Member, bool) {
	sess, ok := m.Sessions.Get(room)
	if !ok {
		return domain.Member{}, false
	}
	return sess.SetHost(cid)
}

func (m *Membership) Others(room domain.RoomID, cid domain.ConnectionID) []domain.Member {
	sess, ok := m.Sessions.Get(room)
	if !ok {
		return nil
	}
	return sess.Others(cid)
}

func (m *Membership) Members(room domain.RoomID) []domain.Member {
	sess, ok := m.Sessions.Get(room)
	if !ok {
		return nil
	}
	return sess.Members()
}

func (m *Membership) Find(room domain.RoomID, cid domain.ConnectionID) (domain.Member, bool) {
	sess, ok := m.Sessions.Get(room)
	if !ok {
		return domain.Member{}, false
	}
	return sess.Find(cid)
}
