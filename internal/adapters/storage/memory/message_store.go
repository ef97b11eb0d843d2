package memory

import (
	"context"
	"sync"
	"time"

	"github.com/dkeye/Pairline/internal/domain"
	"github.com/google/uuid"
)

type MessageStore struct {
	mu       sync.Mutex
	messages []domain.Message
	now      func() time.Time
}

func NewMessageStore() *MessageStore {
	return &MessageStore{
		messages: make([]domain.Message, 0),
		now:      time.Now,
	}
}

func (s *MessageStore) Create(ctx context.Context, m domain.NewMessage) (domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return domain.Message{}, err
	}
	msg := domain.Message{
		ID:        uuid.NewString(),
		Sender:    m.Sender,
		Receiver:  m.Receiver,
		Content:   m.Content,
		Type:      m.Type,
		MediaRef:  m.MediaRef,
		FileName:  m.FileName,
		FileSize:  m.FileSize,
		CreatedAt: s.now().UTC(),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	return msg, nil
}

// History returns the conversation between a and b, oldest first, keeping
// the most recent limit messages when limit > 0.
func (s *MessageStore) History(ctx context.Context, a, b domain.UserID, limit int) ([]domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Message, 0)
	for _, m := range s.messages {
		if (m.Sender == a && m.Receiver == b) || (m.Sender == b && m.Receiver == a) {
			out = append(out, m)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// MarkRead flags every unread message from peer to reader.
func (s *MessageStore) MarkRead(ctx context.Context, reader, peer domain.UserID) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for i := range s.messages {
		m := &s.messages[i]
		if m.Sender == peer && m.Receiver == reader && !m.Read {
			m.Read = true
			n++
		}
	}
	return n, nil
}

// Len reports how many messages were stored.
func (s *MessageStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

func (s *MessageStore) Close() error { return nil }
