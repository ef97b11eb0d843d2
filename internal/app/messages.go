package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/Pairline/internal/core"
	"github.com/dkeye/Pairline/internal/domain"
	"github.com/rs/zerolog/log"
)

var ErrStoreFailed = errors.New("message store failed")

// MessageRouter persists a chat message and routes the stored record to
// the recipient and back to the sender.
type MessageRouter struct {
	store   core.MessageStore
	out     *Outbox
	timeout time.Duration
}

func NewMessageRouter(store core.MessageStore, out *Outbox, timeout time.Duration) *MessageRouter {
	return &MessageRouter{store: store, out: out, timeout: timeout}
}

// Route handles one message:send. The sender is taken from the connection.
// It never retries; on failure only the sender hears about it.
func (r *MessageRouter) Route(ctx context.Context, sender core.Connection, req domain.SendMessage) error {
	from := sender.UserID()
	draft := domain.NewMessage{
		Sender:   from,
		Receiver: req.ReceiverID,
		Content:  req.Content,
		Type:     req.Type,
		MediaRef: req.MediaRef,
		FileName: req.FileName,
		FileSize: req.FileSize,
	}
	if err := draft.Validate(); err != nil {
		r.fail(sender, domain.ReasonCode(err))
		return err
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	msg, err := r.store.Create(ctx, draft)
	if err != nil {
		log.Error().Err(err).Str("module", "app.messages").Str("uid", string(from)).Str("to", string(req.ReceiverID)).Msg("store create")
		r.fail(sender, "store_failed")
		return fmt.Errorf("%w: %w", ErrStoreFailed, err)
	}

	env := domain.MessageEnvelope{Message: msg}
	delivered := r.out.To(msg.Receiver, domain.NewEvent(domain.EventMessageReceive, env))
	_ = r.out.Conn(sender, domain.NewEvent(domain.EventMessageSent, env))

	log.Debug().
		Str("module", "app.messages").
		Str("uid", string(from)).
		Str("to", string(msg.Receiver)).
		Str("id", msg.ID).
		Bool("recipient_online", delivered).
		Msg("message routed")
	return nil
}

func (r *MessageRouter) fail(sender core.Connection, reason string) {
	_ = r.out.Conn(sender, domain.NewEvent(domain.EventMessageError, domain.Reason{Reason: reason}))
}
