// Package domain contains entities without transport or lifecycle logic.
package domain

import (
	"errors"
	"time"
)

const MaxUserIDLen = 64

var (
	ErrUserIDEmpty   = errors.New("user id empty")
	ErrUserIDTooLong = errors.New("user id too long")
)

// UserID is the identity issued by the authenticator. The hub never
// interprets it.
type UserID string

func (id UserID) String() string { return string(id) }

func ParseUserID(raw string) (UserID, error) {
	if raw == "" {
		return "", ErrUserIDEmpty
	}
	if len(raw) > MaxUserIDLen {
		return "", ErrUserIDTooLong
	}
	return UserID(raw), nil
}

// UserPresence is one row of the user directory. LastSeen is set once the
// identity has disconnected and is cleared while it is online.
type UserPresence struct {
	ID       UserID     `json:"userId"`
	Online   bool       `json:"online"`
	LastSeen *time.Time `json:"lastSeen,omitempty"`
}
