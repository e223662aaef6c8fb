// Package orch implements the signaling relay: it validates inbound
// messages, applies membership changes and routes SDP/ICE payloads between
// the members of a room.
package orch

import (
	"encoding/json"
	"errors"

	"github.com/dkeye/duo/internal/app"
	"github.com/dkeye/duo/internal/core"
	"github.com/dkeye/duo/internal/domain"
	"github.com/dkeye/duo/internal/metrics"
	"github.com/rs/zerolog/log"
)

// joinAttempts bounds retries when the session closes between lookup and
// join.
const joinAttempts = 3

// Orchestrator owns no locks of its own. Membership changes happen under the
// session lock inside Membership; deliveries happen after it returns.
type Orchestrator struct {
	Sessions *app.SessionRegistry
	Members  *app.Membership
	Conns    *app.ConnRegistry
	Policy   app.Policy
	Metrics  *metrics.Metrics
}

func New(sessions *app.SessionRegistry, conns *app.ConnRegistry, policy app.Policy, m *metrics.Metrics) *Orchestrator {
	return &Orchestrator{
		Sessions: sessions,
		Members:  app.NewMembership(sessions),
		Conns:    conns,
		Policy:   policy,
		Metrics:  m,
	}
}

// Connect registers a new connection. cancel must tear the connection down
// so that its reader ends and calls Disconnect.
func (o *Orchestrator) Connect(cid domain.ConnectionID, sig core.SignalConnection, cancel func()) {
	o.Conns.Bind(cid, sig, cancel)
	o.Metrics.ConnOpened()
}

// Disconnect runs the same cleanup as an explicit leave, then forgets the
// connection.
func (o *Orchestrator) Disconnect(cid domain.ConnectionID) {
	o.Leave(cid)
	o.Conns.Unbind(cid)
	o.Metrics.ConnClosed()
}

// Send marshals v and queues it on cid. A full queue is handed to Policy.
func (o *Orchestrator) Send(room domain.RoomID, cid domain.ConnectionID, v any) {
	sig, ok := o.Conns.Signal(cid)
	if !ok {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("marshal outbound")
		return
	}
	err = sig.TrySend(b)
	switch {
	case err == nil:
	case errors.Is(err, core.ErrBackpressure):
		o.onBackpressure(room, cid)
	default:
		log.Debug().Err(err).Str("module", "orch").Str("conn", string(cid)).Msg("send failed")
	}
}

func (o *Orchestrator) onBackpressure(room domain.RoomID, cid domain.ConnectionID) {
	o.Metrics.Rejected("backpressure")
	if o.Policy == nil {
		return
	}
	switch o.Policy.OnBackPressure(room, cid) {
	case app.KickMember:
		log.Warn().Str("module", "orch").Str("room", string(room)).Str("conn", string(cid)).Msg("kicking slow connection")
		o.Conns.Cancel(cid)
	case app.DropMessage:
		log.Warn().Str("module", "orch").Str("conn", string(cid)).Msg("dropped message to slow connection")
	case app.NoAction:
	}
}

// RoomInfo returns a snapshot of a live room.
func (o *Orchestrator) RoomInfo(raw string) (core.Info, error) {
	room, err := parseRoom(raw)
	if err != nil {
		return core.Info{}, err
	}
	sess, ok := o.Sessions.Get(room)
	if !ok || sess.Closed() {
		return core.Info{}, domain.ErrRoomNotFound
	}
	return sess.Info(), nil
}

func parseRoom(raw string) (domain.RoomID, error) {
	return domain.ParseRoomID(raw)
}
