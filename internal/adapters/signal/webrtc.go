package signal

import (
	"encoding/json"
	"fmt"

	"github.com/dkeye/duo/internal/domain"
	"github.com/dkeye/duo/internal/protocol"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleOffer(cid domain.ConnectionID, conn *WsSignalConn, data []byte) {
	var p protocol.Offer
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.replyError(conn, fmt.Errorf("%w: offer: %v", domain.ErrInvalidFormat, err))
		return
	}
	if err := ctl.Orch.RelayOffer(cid, p); err != nil {
		log.Info().Err(err).Str("module", "signal").Str("conn", string(cid)).Msg("offer rejected")
		ctl.replyError(conn, err)
	}
}

func (ctl *SignalWSController) handleAnswer(cid domain.ConnectionID, conn *WsSignalConn, data []byte) {
	var p protocol.Answer
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.replyError(conn, fmt.Errorf("%w: answer: %v", domain.ErrInvalidFormat, err))
		return
	}
	if err := ctl.Orch.RelayAnswer(cid, p); err != nil {
		log.Info().Err(err).Str("module", "signal").Str("conn", string(cid)).Msg("answer rejected")
		ctl.replyError(conn, err)
	}
}

// Candidates are best effort: anything wrong with one is logged and dropped.
func (ctl *SignalWSController) handleCandidate(cid domain.ConnectionID, data []byte) {
	var p protocol.Candidate
	if err := json.Unmarshal(data, &p); err != nil {
		log.Debug().Err(err).Str("module", "signal").Str("conn", string(cid)).Msg("bad candidate payload")
		ctl.Orch.Metrics.Rejected(domain.ErrInvalidFormat.Error())
		return
	}
	if err := ctl.Orch.RelayCandidate(cid, p); err != nil {
		log.Debug().Err(err).Str("module", "signal").Str("conn", string(cid)).Msg("candidate dropped")
		ctl.Orch.Metrics.Rejected(errorReason(err))
	}
}
