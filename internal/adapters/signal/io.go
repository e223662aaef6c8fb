package signal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/duo/internal/domain"
	"github.com/dkeye/duo/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const writeWait = 5 * time.Second

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.Options.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Msg("writePump ctx done")
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Debug().Err(err).Str("module", "signal").Msg("writePump ping")
				return
			}
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

// readPump handles messages one at a time, so everything a connection sends
// is processed and forwarded in order.
func (ctl *SignalWSController) readPump(ctx context.Context, cancel context.CancelFunc, cid domain.ConnectionID, token string, c *WsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("conn", string(cid)).Msg("readPump closing")
		ctl.Orch.Disconnect(cid)
		cancel()
		c.Close()
		ctl.Limiter.Forget(token)
	}()

	pongWait := ctl.Options.pongWait()
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("conn", string(cid)).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Warn().Err(err).Str("module", "signal").Str("conn", string(cid)).Msg("readPump read error")
				}
				return
			}
			_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
			ctl.handleSignal(cid, token, c, data)
		}
	}
}

func (ctl *SignalWSController) handleSignal(cid domain.ConnectionID, token string, c *WsSignalConn, data []byte) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("module", "signal").Str("conn", string(cid)).Interface("panic", r).Msg("message handler panicked")
		}
	}()

	var env protocol.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		ctl.replyError(c, fmt.Errorf("%w: not a json object", domain.ErrInvalidFormat))
		return
	}
	log.Debug().Str("module", "signal").Str("conn", string(cid)).Str("type", env.Type).Msg("inbound")

	switch env.Type {
	case protocol.TypeJoin:
		ctl.handleJoin(cid, token, c, data)
	case protocol.TypeLeave:
		ctl.handleLeave(cid)
	case protocol.TypeHostChanged:
		ctl.handleHostChanged(cid, c, data)
	case protocol.TypeOffer:
		ctl.handleOffer(cid, c, data)
	case protocol.TypeAnswer:
		ctl.handleAnswer(cid, c, data)
	case protocol.TypeCandidate:
		ctl.handleCandidate(cid, data)
	case protocol.TypePing:
		ctl.handlePing(c)
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown signal")
		ctl.replyError(c, fmt.Errorf("%w: unknown message type %q", domain.ErrInvalidFormat, env.Type))
	}
}

func (ctl *SignalWSController) sendJSON(c *WsSignalConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}

func (ctl *SignalWSController) replyError(c *WsSignalConn, err error) {
	ctl.Orch.Metrics.Rejected(errorReason(err))
	ctl.sendJSON(c, protocol.NewError(err))
}

func errorReason(err error) string {
	for _, e := range []error{
		domain.ErrRoomNotFound,
		domain.ErrRoomFull,
		domain.ErrAlreadyMember,
		domain.ErrNotAMember,
		domain.ErrInvalidFormat,
		domain.ErrNotInRoom,
		domain.ErrRateLimited,
	} {
		if errors.Is(err, e) {
			return e.Error()
		}
	}
	return "internal"
}
