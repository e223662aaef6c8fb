package orch

import (
	"fmt"

	"github.com/dkeye/duo/internal/domain"
	"github.com/dkeye/duo/internal/protocol"
	"github.com/rs/zerolog/log"
)

func (o *Orchestrator) RelayOffer(cid domain.ConnectionID, msg protocol.Offer) error {
	if err := protocol.ValidateDescription(msg.Offer); err != nil {
		return fmt.Errorf("offer: %w", err)
	}
	return o.relay(cid, msg.RoomID, msg.TargetConnectionID, protocol.Relayed{Type: protocol.TypeOffer, Offer: msg.Offer})
}

// RelayAnswer requires an explicit target; answers are never broadcast.
func (o *Orchestrator) RelayAnswer(cid domain.ConnectionID, msg protocol.Answer) error {
	if err := protocol.ValidateDescription(msg.Answer); err != nil {
		return fmt.Errorf("answer: %w", err)
	}
	if msg.TargetConnectionID == "" {
		return fmt.Errorf("%w: answer needs targetConnectionId", domain.ErrInvalidFormat)
	}
	return o.relay(cid, msg.RoomID, msg.TargetConnectionID, protocol.Relayed{Type: protocol.TypeAnswer, Answer: msg.Answer})
}

// RelayCandidate returns an error for the caller to log; it is never
// reported back to the sender.
func (o *Orchestrator) RelayCandidate(cid domain.ConnectionID, msg protocol.Candidate) error {
	if err := protocol.ValidateCandidate(msg.Candidate); err != nil {
		return err
	}
	return o.relay(cid, msg.RoomID, msg.TargetConnectionID, protocol.Relayed{Type: protocol.TypeCandidate, Candidate: msg.Candidate})
}

func (o *Orchestrator) relay(cid domain.ConnectionID, rawRoom, target string, out protocol.Relayed) error {
	room, err := parseRoom(rawRoom)
	if err != nil {
		return err
	}
	sender, ok := o.Members.Find(room, cid)
	if !ok {
		return domain.ErrNotInRoom
	}
	out.FromConnectionID = cid
	out.FromUserID = sender.UserID

	var targets []domain.ConnectionID
	if target != "" {
		tid := domain.ConnectionID(target)
		if tid == cid {
			return fmt.Errorf("%w: cannot target yourself", domain.ErrInvalidFormat)
		}
		if _, ok := o.Members.Find(room, tid); !ok {
			return fmt.Errorf("target %s: %w", target, domain.ErrNotAMember)
		}
		targets = append(targets, tid)
	} else {
		for _, m := range o.Members.Others(room, cid) {
			targets = append(targets, m.ConnectionID)
		}
	}

	for _, t := range targets {
		o.Send(room, t, out)
		o.Metrics.Relayed(out.Type)
	}
	log.Debug().Str("module", "orch").Str("type", out.Type).Str("room", string(room)).
		Str("from", string(cid)).Int("targets", len(targets)).Msg("relayed")
	return nil
}
