package app

import (
	"sync"

	"github.com/dkeye/Pairline/internal/domain"
	"github.com/rs/zerolog/log"
)

// Presence pushes the online set to every connected identity.
type Presence struct {
	out *Outbox
	// mu keeps snapshot order equal to enqueue order, so no target sees
	// an older set after a newer one.
	mu sync.Mutex
}

func NewPresence(out *Outbox) *Presence {
	return &Presence{out: out}
}

func (p *Presence) Announce() {
	p.mu.Lock()
	defer p.mu.Unlock()

	snaps := p.out.Registry.entries()
	users := make([]domain.UserID, 0, len(snaps))
	for _, s := range snaps {
		users = append(users, s.ID)
	}
	ev := domain.NewEvent(domain.EventUsersOnline, domain.UsersOnline{Users: users})

	sent := 0
	for _, s := range snaps {
		if err := p.out.Conn(s.Conn, ev); err == nil {
			sent++
		}
	}
	log.Debug().Str("module", "app.presence").Int("online", len(users)).Int("sent_to", sent).Msg("presence announced")
}
