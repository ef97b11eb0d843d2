package app

import "github.com/dkeye/Pairline/internal/domain"

// TypingRelay forwards typing signals. It keeps no state; every signal is
// forwarded on its own and absent recipients are ignored.
type TypingRelay struct {
	out *Outbox
}

func NewTypingRelay(out *Outbox) *TypingRelay {
	return &TypingRelay{out: out}
}

func (t *TypingRelay) StartTyping(from, to domain.UserID) bool {
	return t.relay(domain.EventTypingStart, from, to)
}

func (t *TypingRelay) StopTyping(from, to domain.UserID) bool {
	return t.relay(domain.EventTypingStop, from, to)
}

func (t *TypingRelay) relay(name domain.EventName, from, to domain.UserID) bool {
	if to == "" || to == from {
		return false
	}
	return t.out.To(to, domain.NewEvent(name, domain.FromUser{UserID: from}))
}
