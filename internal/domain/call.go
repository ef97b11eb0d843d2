package domain

import (
	"errors"
	"time"
)

type CallType string

const (
	CallAudio CallType = "audio"
	CallVideo CallType = "video"
)

var ErrUnknownCallType = errors.New("unknown call type")

func ParseCallType(raw string) (CallType, error) {
	switch CallType(raw) {
	case CallAudio, CallVideo:
		return CallType(raw), nil
	}
	return "", ErrUnknownCallType
}

// CallState is the state of the session as a whole.
type CallState string

const (
	CallRinging CallState = "ringing"
	CallActive  CallState = "active"
	CallEnded   CallState = "ended"
)

var allowedTransitions = map[CallState]map[CallState]struct{}{
	CallRinging: {
		CallActive: {},
		CallEnded:  {},
	},
	CallActive: {
		CallEnded: {},
	},
	CallEnded: {},
}

// CanTransition reports whether a session may move from one state to another.
func CanTransition(from, to CallState) bool {
	_, ok := allowedTransitions[from][to]
	return ok
}

// CallStatus is how one participant sees the call.
type CallStatus string

const (
	StatusIdle      CallStatus = "idle"
	StatusCalling   CallStatus = "calling"
	StatusReceiving CallStatus = "receiving"
	StatusInCall    CallStatus = "in-call"
	StatusEnded     CallStatus = "ended"
)

// End reasons carried by call:ended.
const (
	ReasonHangup       = "hangup"
	ReasonDisconnected = "disconnected"
	ReasonSuperseded   = "superseded"
	ReasonTimeout      = "timeout"
	ReasonShutdown     = "shutdown"
)

// CallSession is the server-side record of a pairwise call negotiation.
type CallSession struct {
	ID         string     `json:"id"`
	Caller     UserID     `json:"caller"`
	Callee     UserID     `json:"callee"`
	Type       CallType   `json:"type"`
	State      CallState  `json:"state"`
	CreatedAt  time.Time  `json:"createdAt"`
	AnsweredAt *time.Time `json:"answeredAt,omitempty"`
}

func (s *CallSession) Involves(id UserID) bool {
	return s.Caller == id || s.Callee == id
}

// Peer returns the other participant. It assumes Involves(id).
func (s *CallSession) Peer(id UserID) UserID {
	if s.Caller == id {
		return s.Callee
	}
	return s.Caller
}

// StatusFor maps the session state to the participant's point of view.
func (s *CallSession) StatusFor(id UserID) CallStatus {
	if !s.Involves(id) {
		return StatusIdle
	}
	switch s.State {
	case CallRinging:
		if id == s.Caller {
			return StatusCalling
		}
		return StatusReceiving
	case CallActive:
		return StatusInCall
	case CallEnded:
		return StatusEnded
	}
	return StatusIdle
}

// Transition moves the session to the next state if allowed.
func (s *CallSession) Transition(to CallState, at time.Time) bool {
	if !CanTransition(s.State, to) {
		return false
	}
	s.State = to
	if to == CallActive {
		s.AnsweredAt = &at
	}
	return true
}
