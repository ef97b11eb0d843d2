package domain

import (
	"errors"
	"time"
)

const MaxContentLen = 8192

type MessageType string

const (
	MessageText  MessageType = "text"
	MessageVoice MessageType = "voice"
	MessageImage MessageType = "image"
	MessageFile  MessageType = "file"
)

var (
	ErrEmptyReceiver      = errors.New("receiver id empty")
	ErrSelfTarget         = errors.New("cannot target yourself")
	ErrEmptyContent       = errors.New("message content cannot be empty")
	ErrContentTooLong     = errors.New("message content too long")
	ErrMissingMedia       = errors.New("media reference required")
	ErrUnknownMessageType = errors.New("unknown message type")
)

// Message is a persisted chat record. Only the store creates them.
type Message struct {
	ID        string      `json:"id"`
	Sender    UserID      `json:"sender"`
	Receiver  UserID      `json:"receiver"`
	Content   string      `json:"content"`
	Type      MessageType `json:"type"`
	MediaRef  string      `json:"mediaRef,omitempty"`
	FileName  string      `json:"fileName,omitempty"`
	FileSize  int64       `json:"fileSize,omitempty"`
	Read      bool        `json:"read"`
	CreatedAt time.Time   `json:"createdAt"`
}

// NewMessage is what the router hands to the store.
type NewMessage struct {
	Sender   UserID
	Receiver UserID
	Content  string
	Type     MessageType
	MediaRef string
	FileName string
	FileSize int64
}

// Validate checks a draft before it reaches the store. An empty type is
// treated as text.
func (m *NewMessage) Validate() error {
	if m.Receiver == "" {
		return ErrEmptyReceiver
	}
	if m.Receiver == m.Sender {
		return ErrSelfTarget
	}
	if len(m.Content) > MaxContentLen {
		return ErrContentTooLong
	}
	switch m.Type {
	case "":
		m.Type = MessageText
		fallthrough
	case MessageText:
		if m.Content == "" {
			return ErrEmptyContent
		}
	case MessageVoice, MessageImage, MessageFile:
		if m.MediaRef == "" {
			return ErrMissingMedia
		}
	default:
		return ErrUnknownMessageType
	}
	return nil
}
