package domain

import "encoding/json"

// Inbound is one decoded client event. Each concrete type corresponds to a
// single event name; the sender's identity is never part of the payload.
type Inbound interface {
	EventName() EventName
}

const (
	InMessageSend   EventName = "message:send"
	InTypingStart   EventName = "typing:start"
	InTypingStop    EventName = "typing:stop"
	InCallInitiate  EventName = "call:initiate"
	InCallAnswer    EventName = "call:answer"
	InCallReject    EventName = "call:reject"
	InCallCandidate EventName = "call:ice-candidate"
	InCallEnd       EventName = "call:end"
	InPing          EventName = "ping"
)

type SendMessage struct {
	ReceiverID UserID      `json:"receiverId"`
	Content    string      `json:"content"`
	Type       MessageType `json:"type"`
	MediaRef   string      `json:"mediaRef,omitempty"`
	FileName   string      `json:"fileName,omitempty"`
	FileSize   int64       `json:"fileSize,omitempty"`
}

type TypingStart struct {
	ReceiverID UserID `json:"receiverId"`
}

type TypingStop struct {
	ReceiverID UserID `json:"receiverId"`
}

type CallInitiate struct {
	ReceiverID UserID          `json:"receiverId"`
	CallType   CallType        `json:"callType"`
	Offer      json.RawMessage `json:"offer"`
}

type CallAnswer struct {
	CallerID UserID          `json:"callerId"`
	Answer   json.RawMessage `json:"answer"`
}

type CallReject struct {
	CallerID UserID `json:"callerId"`
}

type CallICECandidate struct {
	TargetID  UserID          `json:"targetId"`
	Candidate json.RawMessage `json:"candidate"`
}

type CallEnd struct {
	TargetID UserID `json:"targetId"`
}

type Ping struct{}

func (SendMessage) EventName() EventName      { return InMessageSend }
func (TypingStart) EventName() EventName      { return InTypingStart }
func (TypingStop) EventName() EventName       { return InTypingStop }
func (CallInitiate) EventName() EventName     { return InCallInitiate }
func (CallAnswer) EventName() EventName       { return InCallAnswer }
func (CallReject) EventName() EventName       { return InCallReject }
func (CallICECandidate) EventName() EventName { return InCallCandidate }
func (CallEnd) EventName() EventName          { return InCallEnd }
func (Ping) EventName() EventName             { return InPing }
