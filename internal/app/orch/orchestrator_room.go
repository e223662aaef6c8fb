package orch

import (
	"errors"

	"github.com/dkeye/duo/internal/core"
	"github.com/dkeye/duo/internal/domain"
	"github.com/dkeye/duo/internal/protocol"
	"github.com/rs/zerolog/log"
)

// Join validates msg, creates the room if needed and adds cid to it. A
// connection sitting in another room is moved: it leaves the old room only
// once the new one has accepted it, so a rejected join changes nothing.
func (o *Orchestrator) Join(cid domain.ConnectionID, msg protocol.Join) error {
	room, err := parseRoom(msg.RoomID)
	if err != nil {
		return err
	}
	uid, err := domain.ParseUserID(msg.UserID)
	if err != nil {
		return err
	}

	prev, _, switching := o.Conns.RoomOf(cid)
	if switching && prev == room {
		return domain.ErrAlreadyMember
	}

	var res core.JoinResult
	for range joinAttempts {
		o.Sessions.GetOrCreate(room)
		res, err = o.Members.Join(room, cid, uid, msg.Name)
		if !errors.Is(err, domain.ErrRoomNotFound) {
			break
		}
	}
	if err != nil {
		return err
	}

	if switching {
		log.Info().Str("module", "orch").Str("conn", string(cid)).Str("from_room", string(prev)).
			Str("room", string(room)).Msg("switching rooms")
		o.Leave(cid)
	}
	if !o.Conns.SetRoom(cid, room, uid) {
		// connection went away while joining
		o.leaveRoom(room, cid)
		return domain.ErrNotInRoom
	}
	log.Info().Str("module", "orch").Str("conn", string(cid)).Str("room", string(room)).
		Str("user", string(uid)).Bool("host", res.IsHost).Msg("joined")

	others := make([]protocol.Peer, 0, len(res.Others))
	for _, m := range res.Others {
		others = append(others, protocol.PeerOf(m))
	}
	o.Send(room, cid, protocol.RoomJoined{
		Type:         protocol.TypeRoomJoined,
		RoomID:       room,
		UserID:       uid,
		ConnectionID: cid,
		IsHost:       res.IsHost,
		OtherMembers: others,
	})

	joiner := protocol.PeerOf(res.Member)
	for _, m := range res.Others {
		o.Send(room, m.ConnectionID, protocol.PeerJoined{Type: protocol.TypePeerJoined, Peer: joiner})
		o.Send(room, m.ConnectionID, protocol.CreateOffer{
			Type:               protocol.TypeCreateOffer,
			TargetConnectionID: cid,
			TargetUserID:       uid,
		})
	}
	return nil
}

// Leave removes cid from its room and notifies whoever remains. It is safe
// to call any number of times; only the first call after a join acts.
func (o *Orchestrator) Leave(cid domain.ConnectionID) {
	room, ok := o.Conns.TakeRoom(cid)
	if !ok {
		return
	}
	o.leaveRoom(room, cid)
}

// leaveRoom removes cid from room and sends peer-left, plus host-changed when
// the host moved, to the remaining member.
func (o *Orchestrator) leaveRoom(room domain.RoomID, cid domain.ConnectionID) {
	res, err := o.Members.Leave(room, cid)
	if err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("conn", string(cid)).Str("room", string(room)).Msg("leave")
		return
	}
	log.Info().Str("module", "orch").Str("conn", string(cid)).Str("room", string(room)).Msg("left")

	var newHost *domain.Member
	for i := range res.Remaining {
		if res.Remaining[i].ConnectionID == res.NewHost {
			newHost = &res.Remaining[i]
		}
	}
	for _, m := range res.Remaining {
		o.Send(room, m.ConnectionID, protocol.PeerLeft{
			Type:         protocol.TypePeerLeft,
			UserID:       res.Member.UserID,
			ConnectionID: cid,
		})
		if newHost != nil {
			o.Send(room, m.ConnectionID, hostChanged(*newHost))
		}
	}
}

// ClaimHost makes cid the host of its room and tells every member,
// including cid.
func (o *Orchestrator) ClaimHost(cid domain.ConnectionID, msg protocol.HostChange) error {
	room, err := parseRoom(msg.RoomID)
	if err != nil {
		return err
	}
	host, ok := o.Members.SetHost(room, cid)
	if !ok {
		return domain.ErrNotInRoom
	}
	log.Info().Str("module", "orch").Str("conn", string(cid)).Str("room", string(room)).Msg("host claimed")
	for _, m := range o.Members.Members(room) {
		o.Send(room, m.ConnectionID, hostChanged(host))
	}
	return nil
}

func hostChanged(m domain.Member) protocol.HostChanged {
	return protocol.HostChanged{
		Type:         protocol.TypeHostChanged,
		HostUserID:   m.UserID,
		HostName:     m.DisplayName,
		ConnectionID: m.ConnectionID,
	}
}
