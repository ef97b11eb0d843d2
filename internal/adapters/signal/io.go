package signal

import (
	"context"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Str("uid", string(c.uid)).Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.cfg.WriteWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Str("uid", string(c.uid)).Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.cfg.WriteWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().Err(err).Str("module", "signal").Str("uid", string(c.uid)).Msg("writePump ping failed")
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, cancel context.CancelFunc, c *WsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("uid", string(c.uid)).Msg("readPump closing")
		ctl.Orch.Disconnect(c.uid, c)
		if _, online := ctl.Orch.Registry.Lookup(c.uid); !online {
			ctl.limiter.Forget(c.uid)
		}
		c.Close()
		cancel()
	}()

	c.conn.SetReadLimit(ctl.cfg.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(ctl.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(ctl.cfg.PongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				log.Warn().Err(err).Str("module", "signal").Str("uid", string(c.uid)).Msg("readPump unexpected close")
			} else {
				log.Debug().Err(err).Str("module", "signal").Str("uid", string(c.uid)).Msg("readPump read end")
			}
			return
		}
		ctl.handleSignal(ctx, c, data)
	}
}

// handleSignal runs on the read goroutine, so events from one connection
// are dispatched strictly in arrival order.
func (ctl *SignalWSController) handleSignal(ctx context.Context, c *WsSignalConn, data []byte) {
	if !ctl.limiter.Allow(c.uid) {
		log.Warn().Str("module", "signal").Str("uid", string(c.uid)).Msg("rate limited")
		ctl.reply(c, "rate_limited")
		return
	}

	in, err := decodeInbound(data)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("uid", string(c.uid)).Msg("bad inbound event")
		ctl.reply(c, reasonFor(err))
		return
	}
	_ = ctl.Orch.Dispatch(ctx, c, in)
}

func reasonFor(err error) string {
	switch {
	case errors.Is(err, ErrUnknownEvent):
		return "unknown_event"
	case errors.Is(err, ErrMissingField):
		return "missing_field"
	case errors.Is(err, ErrInvalidSDP):
		return "invalid_sdp"
	case errors.Is(err, ErrInvalidCandidate):
		return "invalid_candidate"
	}
	return "bad_payload"
}
