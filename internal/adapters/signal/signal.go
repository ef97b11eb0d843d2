package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/dkeye/Pairline/internal/app/orch"
	"github.com/dkeye/Pairline/internal/config"
	"github.com/dkeye/Pairline/internal/core"
	"github.com/dkeye/Pairline/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

type SignalWSController struct {
	Orch    *orch.Orchestrator
	cfg     config.WSConfig
	limiter *RateLimiter

	upgrader websocket.Upgrader
}

func NewSignalWSController(o *orch.Orchestrator, cfg config.WSConfig, limiter *RateLimiter) *SignalWSController {
	ctl := &SignalWSController{
		Orch:    o,
		cfg:     cfg,
		limiter: limiter,
	}
	ctl.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     ctl.checkOrigin,
	}
	return ctl
}

// checkOrigin allows everything when no origins are configured.
func (ctl *SignalWSController) checkOrigin(r *http.Request) bool {
	if len(ctl.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	return origin == "" || slices.Contains(ctl.cfg.AllowedOrigins, origin)
}

// WsSignalConn implements core.Connection over a websocket. The write pump
// is its only writer, so events reach the client in enqueue order.
type WsSignalConn struct {
	uid  domain.UserID
	conn *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	closed bool
}

func newWsSignalConn(uid domain.UserID, ws *websocket.Conn, buffer int) *WsSignalConn {
	return &WsSignalConn{
		uid:  uid,
		conn: ws,
		send: make(chan []byte, buffer),
	}
}

func (c *WsSignalConn) UserID() domain.UserID { return c.uid }

func (c *WsSignalConn) Send(ev domain.Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", ev.Name, err)
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrConnClosed
	}
	select {
	case c.send <- b:
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
	c.mu.Unlock()
	// The write pump flushes what is queued and then closes the socket;
	// the deadline unblocks a reader that would otherwise wait forever.
	_ = c.conn.SetReadDeadline(time.Now())
}

// HandleSignal upgrades an already authenticated request and runs the
// connection until either side goes away.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context, uid domain.UserID) {
	l := log.With().Str("module", "signal").Str("uid", string(uid)).Logger()

	ws, err := ctl.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		l.Error().Err(err).Msg("ws upgrade")
		return
	}
	l.Info().Msg("new WS connection")

	conn := newWsSignalConn(uid, ws, ctl.cfg.SendBuffer)
	ctx, cancel := context.WithCancel(ctx)

	go ctl.writePump(ctx, conn)
	ctl.Orch.Connect(uid, conn)
	go ctl.readPump(ctx, cancel, conn)
}

func (ctl *SignalWSController) reply(c *WsSignalConn, reason string) {
	_ = ctl.Orch.Out.Conn(c, domain.NewEvent(domain.EventError, domain.Reason{Reason: reason}))
}
