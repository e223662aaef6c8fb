// Package protocol defines the JSON envelopes exchanged between peers and the
// relay. Every message is an object with a "type" field; SDP and ICE payloads
// are carried as raw JSON and forwarded untouched.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/dkeye/duo/internal/domain"
)

// Inbound (peer -> relay).
const (
	TypeJoin        = "join"
	TypeLeave       = "leave"
	TypeOffer       = "offer"
	TypeAnswer      = "answer"
	TypeCandidate   = "ice-candidate"
	TypeHostChanged = "host-changed"
	TypePing        = "ping"
)

// Outbound (relay -> peer). offer, answer, ice-candidate and host-changed
// are shared with the inbound set.
const (
	TypeRoomJoined  = "room-joined"
	TypePeerJoined  = "peer-joined"
	TypePeerLeft    = "peer-left"
	TypeCreateOffer = "create-offer"
	TypeError       = "error"
	TypePong        = "pong"
)

type Envelope struct {
	Type string `json:"type"`
}

type Join struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
	Name   string `json:"name,omitempty"`
}

type Offer struct {
	Type               string          `json:"type"`
	Offer              json.RawMessage `json:"offer"`
	RoomID             string          `json:"roomId"`
	TargetConnectionID string          `json:"targetConnectionId,omitempty"`
}

type Answer struct {
	Type               string          `json:"type"`
	Answer             json.RawMessage `json:"answer"`
	RoomID             string          `json:"roomId"`
	TargetConnectionID string          `json:"targetConnectionId"`
}

type Candidate struct {
	Type               string          `json:"type"`
	Candidate          json.RawMessage `json:"candidate"`
	RoomID             string          `json:"roomId"`
	TargetConnectionID string          `json:"targetConnectionId,omitempty"`
}

type HostChange struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
}

// Peer describes another member of the room.
type Peer struct {
	UserID       domain.UserID       `json:"userId"`
	Name         string              `json:"name"`
	ConnectionID domain.ConnectionID `json:"connectionId"`
}

func PeerOf(m domain.Member) Peer {
	return Peer{UserID: m.UserID, Name: m.DisplayName, ConnectionID: m.ConnectionID}
}

type RoomJoined struct {
	Type         string              `json:"type"`
	RoomID       domain.RoomID       `json:"roomId"`
	UserID       domain.UserID       `json:"userId"`
	ConnectionID domain.ConnectionID `json:"connectionId"`
	IsHost       bool                `json:"isHost"`
	OtherMembers []Peer              `json:"otherMembers"`
}

type PeerJoined struct {
	Type string `json:"type"`
	Peer
}

type PeerLeft struct {
	Type         string              `json:"type"`
	UserID       domain.UserID       `json:"userId"`
	ConnectionID domain.ConnectionID `json:"connectionId"`
}

type CreateOffer struct {
	Type               string              `json:"type"`
	TargetConnectionID domain.ConnectionID `json:"targetConnectionId"`
	TargetUserID       domain.UserID       `json:"targetUserId"`
}

// Relayed is a forwarded offer, answer or ice-candidate. Exactly one of the
// payload fields is set, matching Type.
type Relayed struct {
	Type             string              `json:"type"`
	Offer            json.RawMessage     `json:"offer,omitempty"`
	Answer           json.RawMessage     `json:"answer,omitempty"`
	Candidate        json.RawMessage     `json:"candidate,omitempty"`
	FromConnectionID domain.ConnectionID `json:"fromConnectionId"`
	FromUserID       domain.UserID       `json:"fromUserId,omitempty"`
}

type HostChanged struct {
	Type         string              `json:"type"`
	HostUserID   domain.UserID       `json:"hostUserId"`
	HostName     string              `json:"hostName"`
	ConnectionID domain.ConnectionID `json:"connectionId"`
}

type Error struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func NewError(err error) Error {
	return Error{Type: TypeError, Message: err.Error()}
}

// SessionDescription mirrors the browser RTCSessionDescriptionInit shape.
type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// ICECandidate mirrors RTCIceCandidateInit.
type ICECandidate struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

// ValidateDescription checks that raw carries a non-empty type and sdp.
func ValidateDescription(raw json.RawMessage) error {
	var sd SessionDescription
	if len(raw) == 0 {
		return fmt.Errorf("%w: missing session description", domain.ErrInvalidFormat)
	}
	if err := json.Unmarshal(raw, &sd); err != nil {
		return fmt.Errorf("%w: session description: %v", domain.ErrInvalidFormat, err)
	}
	if sd.Type == "" || sd.SDP == "" {
		return fmt.Errorf("%w: session description needs type and sdp", domain.ErrInvalidFormat)
	}
	return nil
}

// ValidateCandidate checks that raw carries a non-empty candidate string.
func ValidateCandidate(raw json.RawMessage) error {
	var c ICECandidate
	if len(raw) == 0 {
		return fmt.Errorf("%w: missing candidate", domain.ErrInvalidFormat)
	}
	if err := json.Unmarshal(raw, &c); err != nil {
		return fmt.Errorf("%w: candidate: %v", domain.ErrInvalidFormat, err)
	}
	if c.Candidate == "" {
		return fmt.Errorf("%w: empty candidate", domain.ErrInvalidFormat)
	}
	return nil
}
