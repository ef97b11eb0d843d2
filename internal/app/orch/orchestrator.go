package orch

import (
	"github.com/dkeye/Pairline/internal/app"
	"github.com/dkeye/Pairline/internal/app/call"
	"github.com/dkeye/Pairline/internal/core"
	"github.com/dkeye/Pairline/internal/domain"
	"github.com/rs/zerolog/log"
)

// Orchestrator is the connection lifecycle manager and the dispatcher for
// inbound events. Adapters only ever talk to it.
type Orchestrator struct {
	Registry *app.Registry
	Out      *app.Outbox
	Presence *app.Presence
	Messages *app.MessageRouter
	Typing   *app.TypingRelay
	Calls    *call.Coordinator
}

// New wires the hub around one registry.
func New(store core.MessageStore, policy app.Policy, opts Options) *Orchestrator {
	reg := app.NewRegistry()
	out := app.NewOutbox(reg, policy)
	return &Orchestrator{
		Registry: reg,
		Out:      out,
		Presence: app.NewPresence(out),
		Messages: app.NewMessageRouter(store, out, opts.StoreTimeout),
		Typing:   app.NewTypingRelay(out),
		Calls:    call.NewCoordinator(out, opts.RingTimeout),
	}
}

// Connect registers an authenticated connection. A previous connection for
// the same identity is told it was superseded and closed, and any call it
// carried is ended.
func (o *Orchestrator) Connect(id domain.UserID, conn core.Connection) {
	prev := o.Registry.Register(id, conn)
	if prev != nil {
		_ = prev.Send(domain.NewEvent(domain.EventSuperseded, nil))
		prev.Close()
		o.Calls.Terminate(id, domain.ReasonSuperseded)
		log.Info().Str("module", "orch").Str("uid", string(id)).Msg("previous connection superseded")
	}
	o.Presence.Announce()
}

// Disconnect runs when a connection's read loop exits. Only the registered
// connection may tear down the identity's presence and call.
func (o *Orchestrator) Disconnect(id domain.UserID, conn core.Connection) {
	if !o.Registry.Unregister(id, conn) {
		return
	}
	o.Calls.Terminate(id, domain.ReasonDisconnected)
	o.Presence.Announce()
}

// Shutdown ends live calls and closes every connection.
func (o *Orchestrator) Shutdown() {
	o.Calls.Close()
	for _, c := range o.Registry.Connections() {
		c.Close()
	}
	log.Info().Str("module", "orch").Msg("all connections closed")
}
