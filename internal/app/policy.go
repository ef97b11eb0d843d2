package app

import (
	"errors"

	"github.com/dkeye/Pairline/internal/core"
	"github.com/dkeye/Pairline/internal/domain"
	"github.com/rs/zerolog/log"
)

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	DropEvent
	CloseConnection
)

// Policy decides what happens to a connection whose outbound buffer is full.
type Policy interface {
	OnBackPressure(conn core.Connection, ev domain.Event) BackpressureAction
}

// SimplePolicy closes slow consumers; the read loop then runs the normal
// disconnect path. Ephemeral events are just dropped.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(_ core.Connection, ev domain.Event) BackpressureAction {
	switch ev.Name {
	case domain.EventTypingStart, domain.EventTypingStop, domain.EventCallCandidate, domain.EventUsersOnline:
		return DropEvent
	}
	return CloseConnection
}

// Outbox is the single way events leave the hub.
type Outbox struct {
	Registry *Registry
	Policy   Policy
}

func NewOutbox(reg *Registry, policy Policy) *Outbox {
	return &Outbox{Registry: reg, Policy: policy}
}

// To delivers ev to id if online and reports whether id was online.
func (o *Outbox) To(id domain.UserID, ev domain.Event) bool {
	conn, ok := o.Registry.Lookup(id)
	if !ok {
		return false
	}
	_ = o.Conn(conn, ev)
	return true
}

// Conn delivers ev to a specific connection. Send errors are handled here
// and never affect other targets.
func (o *Outbox) Conn(conn core.Connection, ev domain.Event) error {
	err := conn.Send(ev)
	if err == nil {
		return nil
	}
	l := log.With().Str("module", "app.outbox").Str("uid", string(conn.UserID())).Str("event", string(ev.Name)).Logger()
	if !errors.Is(err, core.ErrBackpressure) || o.Policy == nil {
		l.Debug().Err(err).Msg("send failed")
		return err
	}
	switch o.Policy.OnBackPressure(conn, ev) {
	case CloseConnection:
		l.Warn().Msg("slow consumer, closing connection")
		conn.Close()
	case DropEvent:
		l.Debug().Msg("slow consumer, event dropped")
	case NoAction:
	}
	return err
}
