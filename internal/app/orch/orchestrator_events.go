package orch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/Pairline/internal/app/call"
	"github.com/dkeye/Pairline/internal/core"
	"github.com/dkeye/Pairline/internal/domain"
	"github.com/rs/zerolog/log"
)

type Options struct {
	StoreTimeout time.Duration
	RingTimeout  time.Duration
}

var (
	ErrUnknownEvent    = errors.New("unknown event")
	ErrStaleConnection = errors.New("connection no longer registered")
)

// Dispatch routes one decoded event from conn. The acting identity is
// always the connection's own, and only the registered connection may act
// for it: events a superseded connection read before it was replaced are
// dropped.
func (o *Orchestrator) Dispatch(ctx context.Context, conn core.Connection, in domain.Inbound) error {
	from := conn.UserID()
	if cur, ok := o.Registry.Lookup(from); !ok || cur != conn {
		log.Debug().Str("module", "orch").Str("uid", string(from)).Str("event", string(in.EventName())).Msg("event from stale connection dropped")
		return ErrStaleConnection
	}
	var err error

	switch ev := in.(type) {
	case domain.SendMessage:
		// The router already told the sender about any failure.
		return o.Messages.Route(ctx, conn, ev)
	case domain.TypingStart:
		o.Typing.StartTyping(from, ev.ReceiverID)
	case domain.TypingStop:
		o.Typing.StopTyping(from, ev.ReceiverID)
	case domain.CallInitiate:
		err = o.Calls.InitiateFrom(conn, ev.ReceiverID, ev.CallType, ev.Offer)
	case domain.CallAnswer:
		err = o.Calls.Answer(from, ev.CallerID, ev.Answer)
	case domain.CallReject:
		err = o.Calls.Reject(from, ev.CallerID)
	case domain.CallICECandidate:
		err = o.Calls.RelayICECandidate(from, ev.TargetID, ev.Candidate)
	case domain.CallEnd:
		err = o.Calls.End(from, ev.TargetID)
	case domain.Ping:
		_ = o.Out.Conn(conn, domain.NewEvent(domain.EventPong, nil))
	default:
		err = fmt.Errorf("%w: %T", ErrUnknownEvent, in)
	}

	if err == nil {
		return nil
	}
	l := log.With().Str("module", "orch").Str("uid", string(from)).Str("event", string(in.EventName())).Logger()
	switch {
	case errors.Is(err, call.ErrNoSession), errors.Is(err, call.ErrUnavailable), errors.Is(err, call.ErrStaleCaller):
		// Stale or unroutable; nothing to report.
		l.Debug().Err(err).Msg("event ignored")
	case errors.Is(err, call.ErrBusy):
		l.Debug().Err(err).Msg("call refused")
	default:
		l.Warn().Err(err).Msg("event rejected")
		_ = o.Out.Conn(conn, domain.NewEvent(domain.EventError, domain.Reason{Reason: reasonFor(err)}))
	}
	return err
}

func reasonFor(err error) string {
	if errors.Is(err, ErrUnknownEvent) {
		return "unknown_event"
	}
	return domain.ReasonCode(err)
}
