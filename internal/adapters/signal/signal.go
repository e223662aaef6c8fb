package signal

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/duo/internal/app/orch"
	"github.com/dkeye/duo/internal/core"
	"github.com/dkeye/duo/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/lucsky/cuid"
	"github.com/rs/zerolog/log"
)

type Options struct {
	SendBuffer int
	ReadLimit  int64
	PingPeriod time.Duration
}

func (o Options) withDefaults() Options {
	if o.SendBuffer <= 0 {
		o.SendBuffer = 32
	}
	if o.ReadLimit <= 0 {
		o.ReadLimit = 64 << 10
	}
	if o.PingPeriod <= 0 {
		o.PingPeriod = 30 * time.Second
	}
	return o
}

// pongWait is how long a connection may stay silent before it is dropped.
func (o Options) pongWait() time.Duration { return o.PingPeriod * 10 / 9 }

type SignalWSController struct {
	Orch    *orch.Orchestrator
	Limiter *RoomRateLimiter
	Options Options
}

func NewSignalWSController(o *orch.Orchestrator, limiter *RoomRateLimiter, opts Options) *SignalWSController {
	return &SignalWSController{
		Orch:    o,
		Limiter: limiter,
		Options: opts.withDefaults(),
	}
}

type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return core.ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal upgrades the request and serves one signaling connection
// until either side closes it or ctx ends.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	token := c.GetString("client_token")
	cid := domain.ConnectionID(cuid.New())
	log.Info().Str("module", "signal").Str("conn", string(cid)).Str("client", token).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	ws.SetReadLimit(ctl.Options.ReadLimit)

	conn := &WsSignalConn{
		conn: ws,
		send: make(chan core.Frame, ctl.Options.SendBuffer),
	}

	ctx, cancel := context.WithCancel(ctx)
	ctl.Orch.Connect(cid, conn, func() {
		cancel()
		conn.Close()
	})

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cancel, cid, token, conn)
}
