package core

import (
	"context"
	"errors"

	"github.com/dkeye/Pairline/internal/domain"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

// Connection abstracts a live client channel.
// Owned by the adapter; the adapter must Close() it.
type Connection interface {
	UserID() domain.UserID
	// Send enqueues without blocking. It returns ErrBackpressure when the
	// outbound buffer is full and ErrConnClosed after Close.
	Send(domain.Event) error
	Close()
}

// MessageStore is the persistence collaborator. The hub only creates
// records through it; history and read flags serve the REST surface.
type MessageStore interface {
	Create(ctx context.Context, m domain.NewMessage) (domain.Message, error)
	History(ctx context.Context, a, b domain.UserID, limit int) ([]domain.Message, error)
	MarkRead(ctx context.Context, reader, peer domain.UserID) (int64, error)
	Close() error
}
