package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dkeye/duo/internal/domain"
	"github.com/dkeye/duo/internal/negotiation"
	"github.com/dkeye/duo/internal/protocol"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// Peer is a media connection towards one remote member.
type Peer interface {
	negotiation.PeerConnection
	OnICECandidate(func(webrtc.ICECandidateInit))
	OnNegotiationNeeded(func())
	AddLocalTrack(webrtc.TrackLocal) (*webrtc.RTPSender, error)
	RemoveLocalTrack(*webrtc.RTPSender) error
	Close()
}

type PeerFactory func(remote domain.ConnectionID) (Peer, error)

type Sender interface {
	Send(v any) error
}

type Reader interface {
	ReadMessage() ([]byte, error)
}

type pairing struct {
	peer   Peer
	coord  *negotiation.Coordinator
	user   domain.UserID
	sender *webrtc.RTPSender
	// set by local track changes, consumed by the negotiation-needed callback
	tracksChanged atomic.Bool
}

// Agent joins a room and keeps one negotiated peer connection per remote
// member.
type Agent struct {
	conn    Sender
	newPeer PeerFactory
	user    string
	name    string

	mu     sync.Mutex
	room   domain.RoomID
	self   domain.ConnectionID
	host   domain.ConnectionID
	peers  map[domain.ConnectionID]*pairing
	share  webrtc.TrackLocal
	events chan string
}

func NewAgent(conn Sender, newPeer PeerFactory, user, name string) *Agent {
	return &Agent{
		conn:    conn,
		newPeer: newPeer,
		user:    user,
		name:    name,
		peers:   make(map[domain.ConnectionID]*pairing),
	}
}

// Events returns a channel receiving the type of every handled message.
func (a *Agent) Events() <-chan string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.events == nil {
		a.events = make(chan string, 64)
	}
	return a.events
}

func (a *Agent) Join(room string) error {
	return a.conn.Send(protocol.Join{Type: protocol.TypeJoin, RoomID: room, UserID: a.user, Name: a.name})
}

func (a *Agent) Leave() error {
	a.closePeers()
	a.mu.Lock()
	a.room, a.host = "", ""
	a.mu.Unlock()
	return a.conn.Send(protocol.Envelope{Type: protocol.TypeLeave})
}

func (a *Agent) Self() domain.ConnectionID {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.self
}

func (a *Agent) Room() domain.RoomID {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.room
}

func (a *Agent) Host() domain.ConnectionID {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.host
}

// Coordinator returns the negotiation state towards remote.
func (a *Agent) Coordinator(remote domain.ConnectionID) (*negotiation.Coordinator, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.peers[remote]
	if !ok {
		return nil, false
	}
	return p.coord, true
}

// Run handles relay messages until r fails or ctx ends.
func (a *Agent) Run(ctx context.Context, r Reader) error {
	defer a.closePeers()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := r.ReadMessage()
		if err != nil {
			return err
		}
		if err := a.Handle(data); err != nil {
			log.Warn().Err(err).Str("module", "client.agent").Msg("handle message")
		}
	}
}

// Handle applies one relay message.
func (a *Agent) Handle(data []byte) error {
	var env protocol.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}
	defer a.emit(env.Type)

	switch env.Type {
	case protocol.TypeRoomJoined:
		var m protocol.RoomJoined
		if err := json.Unmarshal(data, &m); err != nil {
			return err
		}
		a.mu.Lock()
		a.room, a.self = m.RoomID, m.ConnectionID
		if m.IsHost {
			a.host = m.ConnectionID
		}
		a.mu.Unlock()
		log.Info().Str("module", "client.agent").Str("room", string(m.RoomID)).Bool("host", m.IsHost).
			Int("others", len(m.OtherMembers)).Msg("joined")
		for _, p := range m.OtherMembers {
			if _, err := a.pairing(p.ConnectionID, p.UserID); err != nil {
				return err
			}
		}
	case protocol.TypePeerJoined:
		var m protocol.PeerJoined
		if err := json.Unmarshal(data, &m); err != nil {
			return err
		}
		_, err := a.pairing(m.ConnectionID, m.UserID)
		return err
	case protocol.TypeCreateOffer:
		var m protocol.CreateOffer
		if err := json.Unmarshal(data, &m); err != nil {
			return err
		}
		p, err := a.pairing(m.TargetConnectionID, m.TargetUserID)
		if err != nil {
			return err
		}
		return p.coord.Negotiate()
	case protocol.TypeOffer, protocol.TypeAnswer, protocol.TypeCandidate:
		var m protocol.Relayed
		if err := json.Unmarshal(data, &m); err != nil {
			return err
		}
		return a.handleRelayed(m)
	case protocol.TypePeerLeft:
		var m protocol.PeerLeft
		if err := json.Unmarshal(data, &m); err != nil {
			return err
		}
		a.dropPeer(m.ConnectionID)
	case protocol.TypeHostChanged:
		var m protocol.HostChanged
		if err := json.Unmarshal(data, &m); err != nil {
			return err
		}
		a.mu.Lock()
		a.host = m.ConnectionID
		a.mu.Unlock()
		log.Info().Str("module", "client.agent").Str("host", string(m.HostUserID)).Msg("host changed")
	case protocol.TypeError:
		var m protocol.Error
		if err := json.Unmarshal(data, &m); err != nil {
			return err
		}
		log.Warn().Str("module", "client.agent").Str("message", m.Message).Msg("relay error")
	case protocol.TypePong:
	default:
		log.Debug().Str("module", "client.agent").Str("type", env.Type).Msg("ignored message")
	}
	return nil
}

func (a *Agent) handleRelayed(m protocol.Relayed) error {
	p, err := a.pairing(m.FromConnectionID, m.FromUserID)
	if err != nil {
		return err
	}
	switch m.Type {
	case protocol.TypeOffer:
		var sd webrtc.SessionDescription
		if err := json.Unmarshal(m.Offer, &sd); err != nil {
			return fmt.Errorf("decode offer: %w", err)
		}
		return p.coord.HandleOffer(sd)
	case protocol.TypeAnswer:
		var sd webrtc.SessionDescription
		if err := json.Unmarshal(m.Answer, &sd); err != nil {
			return fmt.Errorf("decode answer: %w", err)
		}
		return p.coord.HandleAnswer(sd)
	default:
		var ci webrtc.ICECandidateInit
		if err := json.Unmarshal(m.Candidate, &ci); err != nil {
			return fmt.Errorf("decode candidate: %w", err)
		}
		return p.coord.HandleCandidate(ci)
	}
}

// pairing returns the peer for remote, creating it on first use.
func (a *Agent) pairing(remote domain.ConnectionID, user domain.UserID) (*pairing, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if remote == "" {
		return nil, negotiation.ErrNoTarget
	}
	if p, ok := a.peers[remote]; ok {
		return p, nil
	}
	if a.self == "" {
		return nil, errors.New("not joined")
	}

	peer, err := a.newPeer(remote)
	if err != nil {
		return nil, fmt.Errorf("new peer: %w", err)
	}
	p := &pairing{peer: peer, user: user}
	p.coord = negotiation.New(peer, &signaler{agent: a}, a.self, remote)

	peer.OnICECandidate(func(ci webrtc.ICECandidateInit) {
		raw, err := json.Marshal(ci)
		if err != nil {
			return
		}
		if err := a.conn.Send(protocol.Candidate{
			Type:               protocol.TypeCandidate,
			Candidate:          raw,
			RoomID:             string(a.Room()),
			TargetConnectionID: string(remote),
		}); err != nil {
			log.Warn().Err(err).Str("module", "client.agent").Msg("send candidate")
		}
	})
	peer.OnNegotiationNeeded(func() {
		if !p.tracksChanged.Swap(false) {
			return
		}
		if err := p.coord.MediaChanged(); err != nil {
			log.Error().Err(err).Str("module", "client.agent").Str("remote", string(remote)).Msg("renegotiate")
		}
	})

	if a.share != nil {
		if p.sender, err = peer.AddLocalTrack(a.share); err != nil {
			log.Error().Err(err).Str("module", "client.agent").Msg("attach share to new peer")
		}
	}
	a.peers[remote] = p
	log.Info().Str("module", "client.agent").Str("remote", string(remote)).Bool("polite", p.coord.Polite()).Msg("peer created")
	return p, nil
}

func (a *Agent) dropPeer(remote domain.ConnectionID) {
	a.mu.Lock()
	p, ok := a.peers[remote]
	delete(a.peers, remote)
	a.mu.Unlock()
	if ok {
		p.coord.Reset()
		p.peer.Close()
		log.Info().Str("module", "client.agent").Str("remote", string(remote)).Msg("peer left")
	}
}

func (a *Agent) closePeers() {
	a.mu.Lock()
	peers := a.peers
	a.peers = make(map[domain.ConnectionID]*pairing)
	a.mu.Unlock()
	for _, p := range peers {
		p.peer.Close()
	}
}

// ShareScreen adds track to every peer connection and claims host.
// Renegotiation follows from the peers' negotiation-needed events.
func (a *Agent) ShareScreen(track webrtc.TrackLocal) error {
	a.mu.Lock()
	if a.share != nil {
		a.mu.Unlock()
		return errors.New("already sharing")
	}
	a.share = track
	room := a.room
	peers := a.snapshotLocked()
	a.mu.Unlock()

	for _, p := range peers {
		p.tracksChanged.Store(true)
		sender, err := p.peer.AddLocalTrack(track)
		if err != nil {
			p.tracksChanged.Store(false)
			return fmt.Errorf("add track: %w", err)
		}
		p.sender = sender
	}
	if room == "" {
		return nil
	}
	return a.conn.Send(protocol.HostChange{Type: protocol.TypeHostChanged, RoomID: string(room)})
}

func (a *Agent) StopShare() error {
	a.mu.Lock()
	if a.share == nil {
		a.mu.Unlock()
		return nil
	}
	a.share = nil
	peers := a.snapshotLocked()
	a.mu.Unlock()

	for _, p := range peers {
		if p.sender == nil {
			continue
		}
		p.tracksChanged.Store(true)
		if err := p.peer.RemoveLocalTrack(p.sender); err != nil {
			p.tracksChanged.Store(false)
			return fmt.Errorf("remove track: %w", err)
		}
		p.sender = nil
	}
	return nil
}

func (a *Agent) snapshotLocked() []*pairing {
	out := make([]*pairing, 0, len(a.peers))
	for _, p := range a.peers {
		out = append(out, p)
	}
	return out
}

func (a *Agent) emit(t string) {
	a.mu.Lock()
	ch := a.events
	a.mu.Unlock()
	if ch == nil {
		return
	}
	select {
	case ch <- t:
	default:
	}
}

type signaler struct {
	agent *Agent
}

func (s *signaler) SendOffer(target domain.ConnectionID, sd webrtc.SessionDescription) error {
	raw, err := json.Marshal(sd)
	if err != nil {
		return err
	}
	return s.agent.conn.Send(protocol.Offer{
		Type:               protocol.TypeOffer,
		Offer:              raw,
		RoomID:             string(s.agent.Room()),
		TargetConnectionID: string(target),
	})
}

func (s *signaler) SendAnswer(target domain.ConnectionID, sd webrtc.SessionDescription) error {
	raw, err := json.Marshal(sd)
	if err != nil {
		return err
	}
	return s.agent.conn.Send(protocol.Answer{
		Type:               protocol.TypeAnswer,
		Answer:             raw,
		RoomID:             string(s.agent.Room()),
		TargetConnectionID: string(target),
	})
}
