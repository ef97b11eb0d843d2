// Package call owns pairwise call negotiation: which identities are in a
// call with whom, in what state, and the relay of opaque offer, answer and
// ICE candidate payloads between exactly those two identities.
package call

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/dkeye/Pairline/internal/app"
	"github.com/dkeye/Pairline/internal/core"
	"github.com/dkeye/Pairline/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var (
	ErrNoSession   = errors.New("no matching call session")
	ErrBusy        = errors.New("party already in a call")
	ErrUnavailable = errors.New("party not online")
	ErrStaleCaller = errors.New("caller connection no longer registered")
)

type session struct {
	domain.CallSession
	timer *time.Timer
}

// Coordinator keeps one session per identity. Both participants map to the
// same session so either side resolves it, and every mutation happens
// under mu.
type Coordinator struct {
	out         *app.Outbox
	ringTimeout time.Duration
	now         func() time.Time

	mu     sync.Mutex
	byUser map[domain.UserID]*session
}

func NewCoordinator(out *app.Outbox, ringTimeout time.Duration) *Coordinator {
	return &Coordinator{
		out:         out,
		ringTimeout: ringTimeout,
		now:         time.Now,
		byUser:      make(map[domain.UserID]*session),
	}
}

// Initiate starts ringing callee. An offline callee yields call:unavailable
// and a party already in a call yields call:busy, both to the caller only.
func (c *Coordinator) Initiate(caller, callee domain.UserID, typ domain.CallType, offer json.RawMessage) error {
	return c.initiate(caller, nil, callee, typ, offer)
}

// InitiateFrom is Initiate on behalf of a specific connection. The call is
// only created while conn is still the one registered for its identity.
// The check runs under mu, so a concurrent supersede either finds the new
// session and terminates it or makes this call fail.
func (c *Coordinator) InitiateFrom(conn core.Connection, callee domain.UserID, typ domain.CallType, offer json.RawMessage) error {
	return c.initiate(conn.UserID(), conn, callee, typ, offer)
}

func (c *Coordinator) initiate(caller domain.UserID, via core.Connection, callee domain.UserID, typ domain.CallType, offer json.RawMessage) error {
	if caller == callee {
		return domain.ErrSelfTarget
	}
	if _, err := domain.ParseCallType(string(typ)); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	l := log.With().Str("module", "app.call").Str("uid", string(caller)).Str("peer", string(callee)).Logger()

	if via != nil {
		if cur, ok := c.out.Registry.Lookup(caller); !ok || cur != via {
			return ErrStaleCaller
		}
	}

	calleeConn, ok := c.out.Registry.Lookup(callee)
	if !ok {
		l.Info().Msg("callee unavailable")
		c.out.To(caller, domain.NewEvent(domain.EventCallUnavail, domain.FromUser{UserID: callee}))
		return ErrUnavailable
	}
	if c.byUser[caller] != nil || c.byUser[callee] != nil {
		l.Info().Msg("party busy")
		c.out.To(caller, domain.NewEvent(domain.EventCallBusy, domain.FromUser{UserID: callee}))
		return ErrBusy
	}

	s := &session{CallSession: domain.CallSession{
		ID:        uuid.NewString(),
		Caller:    caller,
		Callee:    callee,
		Type:      typ,
		State:     domain.CallRinging,
		CreatedAt: c.now(),
	}}
	c.byUser[caller] = s
	c.byUser[callee] = s
	if c.ringTimeout > 0 {
		s.timer = time.AfterFunc(c.ringTimeout, func() { c.expire(s) })
	}

	_ = c.out.Conn(calleeConn, domain.NewEvent(domain.EventCallIncoming, domain.CallIncoming{
		CallerID: caller,
		CallType: typ,
		Offer:    offer,
	}))
	l.Info().Str("call_id", s.ID).Str("type", string(typ)).Msg("call ringing")
	return nil
}

// Answer accepts a ringing call. If the caller is gone it does nothing; the
// caller's disconnect tears the session down.
func (c *Coordinator) Answer(callee, caller domain.UserID, answer json.RawMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.byUser[callee]
	if s == nil || s.Callee != callee || s.Caller != caller || s.State != domain.CallRinging {
		return ErrNoSession
	}
	callerConn, ok := c.out.Registry.Lookup(caller)
	if !ok {
		return ErrUnavailable
	}
	if !s.Transition(domain.CallActive, c.now()) {
		return ErrNoSession
	}
	s.stopTimer()

	_ = c.out.Conn(callerConn, domain.NewEvent(domain.EventCallAnswered, domain.CallAnswered{
		UserID: callee,
		Answer: answer,
	}))
	log.Info().Str("module", "app.call").Str("uid", string(callee)).Str("peer", string(caller)).Str("call_id", s.ID).Msg("call answered")
	return nil
}

// RelayICECandidate forwards a candidate unchanged to the other party of a
// live session between from and to.
func (c *Coordinator) RelayICECandidate(from, to domain.UserID, candidate json.RawMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.byUser[from]
	if s == nil || s.Peer(from) != to || s.State == domain.CallEnded {
		return ErrNoSession
	}
	if !c.out.To(to, domain.NewEvent(domain.EventCallCandidate, domain.CallCandidate{
		UserID:    from,
		Candidate: candidate,
	})) {
		return ErrUnavailable
	}
	return nil
}

func (c *Coordinator) Reject(callee, caller domain.UserID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.byUser[callee]
	if s == nil || s.Callee != callee || s.Caller != caller || s.State != domain.CallRinging {
		return ErrNoSession
	}
	c.remove(s)
	c.out.To(caller, domain.NewEvent(domain.EventCallRejected, domain.FromUser{UserID: callee}))
	log.Info().Str("module", "app.call").Str("uid", string(callee)).Str("peer", string(caller)).Str("call_id", s.ID).Msg("call rejected")
	return nil
}

// End hangs up from either side, ringing or active.
func (c *Coordinator) End(from, to domain.UserID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.byUser[from]
	if s == nil || s.Peer(from) != to {
		return ErrNoSession
	}
	c.remove(s)
	c.out.To(to, domain.NewEvent(domain.EventCallEnded, domain.CallEndedPayload{UserID: from, Reason: domain.ReasonHangup}))
	log.Info().Str("module", "app.call").Str("uid", string(from)).Str("peer", string(to)).Str("call_id", s.ID).Msg("call ended")
	return nil
}

// Terminate force-ends whatever call id is part of and tells the other
// party. It reports whether a session was torn down.
func (c *Coordinator) Terminate(id domain.UserID, reason string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.byUser[id]
	if s == nil {
		return false
	}
	c.remove(s)
	peer := s.Peer(id)
	c.out.To(peer, domain.NewEvent(domain.EventCallEnded, domain.CallEndedPayload{UserID: id, Reason: reason}))
	log.Info().Str("module", "app.call").Str("uid", string(id)).Str("peer", string(peer)).Str("call_id", s.ID).Str("reason", reason).Msg("call terminated")
	return true
}

// expire is the ring timeout. It goes through the same teardown as a
// forced termination, notifying both sides.
func (c *Coordinator) expire(s *session) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.byUser[s.Caller] != s || s.State != domain.CallRinging {
		return
	}
	c.remove(s)
	c.out.To(s.Caller, domain.NewEvent(domain.EventCallEnded, domain.CallEndedPayload{UserID: s.Callee, Reason: domain.ReasonTimeout}))
	c.out.To(s.Callee, domain.NewEvent(domain.EventCallEnded, domain.CallEndedPayload{UserID: s.Caller, Reason: domain.ReasonTimeout}))
	log.Info().Str("module", "app.call").Str("uid", string(s.Caller)).Str("peer", string(s.Callee)).Str("call_id", s.ID).Msg("call ring timeout")
}

// remove must be called with mu held.
func (c *Coordinator) remove(s *session) {
	s.Transition(domain.CallEnded, c.now())
	s.stopTimer()
	if c.byUser[s.Caller] == s {
		delete(c.byUser, s.Caller)
	}
	if c.byUser[s.Callee] == s {
		delete(c.byUser, s.Callee)
	}
}

func (s *session) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// StatusOf reports how id sees its current call and who the peer is.
func (c *Coordinator) StatusOf(id domain.UserID) (domain.CallStatus, domain.UserID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.byUser[id]
	if s == nil {
		return domain.StatusIdle, ""
	}
	return s.StatusFor(id), s.Peer(id)
}

// Sessions returns copies of all live sessions.
func (c *Coordinator) Sessions() []domain.CallSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.CallSession, 0, len(c.byUser)/2)
	for id, s := range c.byUser {
		if id == s.Caller {
			out = append(out, s.CallSession)
		}
	}
	return out
}

// Close ends every live session, telling both parties.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, s := range c.byUser {
		if id != s.Caller {
			continue
		}
		c.remove(s)
		c.out.To(s.Caller, domain.NewEvent(domain.EventCallEnded, domain.CallEndedPayload{UserID: s.Callee, Reason: domain.ReasonShutdown}))
		c.out.To(s.Callee, domain.NewEvent(domain.EventCallEnded, domain.CallEndedPayload{UserID: s.Caller, Reason: domain.ReasonShutdown}))
	}
}
