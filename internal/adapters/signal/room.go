package signal

import (
	"encoding/json"
	"fmt"

	"github.com/dkeye/duo/internal/domain"
	"github.com/dkeye/duo/internal/protocol"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleJoin(cid domain.ConnectionID, token string, conn *WsSignalConn, data []byte) {
	var p protocol.Join
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("bad join payload")
		ctl.replyError(conn, fmt.Errorf("%w: join: %v", domain.ErrInvalidFormat, err))
		return
	}
	if _, err := domain.ParseRoomID(p.RoomID); err != nil {
		ctl.replyError(conn, err)
		return
	}
	if _, err := domain.ParseUserID(p.UserID); err != nil {
		ctl.replyError(conn, err)
		return
	}
	key := token
	if key == "" {
		key = string(cid)
	}
	if !ctl.Limiter.Allow(key) {
		log.Warn().Str("module", "signal").Str("conn", string(cid)).Str("client", token).Msg("join rate limited")
		ctl.replyError(conn, domain.ErrRateLimited)
		return
	}
	if err := ctl.Orch.Join(cid, p); err != nil {
		log.Info().Err(err).Str("module", "signal").Str("conn", string(cid)).Str("room", p.RoomID).Msg("join rejected")
		ctl.replyError(conn, err)
	}
}

func (ctl *SignalWSController) handleLeave(cid domain.ConnectionID) {
	log.Info().Str("module", "signal").Str("conn", string(cid)).Msg("leave")
	ctl.Orch.Leave(cid)
}

func (ctl *SignalWSController) handleHostChanged(cid domain.ConnectionID, conn *WsSignalConn, data []byte) {
	var p protocol.HostChange
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.replyError(conn, fmt.Errorf("%w: host-changed: %v", domain.ErrInvalidFormat, err))
		return
	}
	if err := ctl.Orch.ClaimHost(cid, p); err != nil {
		ctl.replyError(conn, err)
	}
}
