package domain

import "encoding/json"

type EventName string

// Outbound events.
const (
	EventUsersOnline    EventName = "users:online"
	EventMessageReceive EventName = "message:receive"
	EventMessageSent    EventName = "message:sent"
	EventMessageError   EventName = "message:error"
	EventTypingStart    EventName = "typing:start"
	EventTypingStop     EventName = "typing:stop"
	EventCallIncoming   EventName = "call:incoming"
	EventCallUnavail    EventName = "call:unavailable"
	EventCallBusy       EventName = "call:busy"
	EventCallAnswered   EventName = "call:answered"
	EventCallRejected   EventName = "call:rejected"
	EventCallCandidate  EventName = "call:ice-candidate"
	EventCallEnded      EventName = "call:ended"
	EventSuperseded     EventName = "session:superseded"
	EventPong           EventName = "pong"
	EventError          EventName = "error"
)

// Event is what the hub sends to a connection. The transport adapter
// decides the wire encoding.
type Event struct {
	Name EventName `json:"event"`
	Data any       `json:"data"`
}

func NewEvent(name EventName, data any) Event {
	if data == nil {
		data = struct{}{}
	}
	return Event{Name: name, Data: data}
}

type UsersOnline struct {
	Users []UserID `json:"users"`
}

type MessageEnvelope struct {
	Message Message `json:"message"`
}

type Reason struct {
	Reason string `json:"reason"`
}

// FromUser tags events whose only content is who triggered them.
type FromUser struct {
	UserID UserID `json:"userId"`
}

type CallIncoming struct {
	CallerID UserID          `json:"callerId"`
	CallType CallType        `json:"callType"`
	Offer    json.RawMessage `json:"offer"`
}

type CallAnswered struct {
	UserID UserID          `json:"userId"`
	Answer json.RawMessage `json:"answer"`
}

type CallCandidate struct {
	UserID    UserID          `json:"userId"`
	Candidate json.RawMessage `json:"candidate"`
}

type CallEndedPayload struct {
	UserID UserID `json:"userId"`
	Reason string `json:"reason"`
}
