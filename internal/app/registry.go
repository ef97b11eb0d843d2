package app

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"github.com/dkeye/Pairline/internal/core"
	"github.com/dkeye/Pairline/internal/domain"
	"github.com/rs/zerolog/log"
)

// Registry is the single source of truth for who is online: at most one
// connection per identity, last writer wins.
type Registry struct {
	mu       sync.RWMutex
	conns    map[domain.UserID]core.Connection
	lastSeen map[domain.UserID]time.Time
	now      func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		conns:    make(map[domain.UserID]core.Connection),
		lastSeen: make(map[domain.UserID]time.Time),
		now:      time.Now,
	}
}

// Register binds conn to id and returns the connection it superseded, if
// any. The superseded connection is not closed here.
func (r *Registry) Register(id domain.UserID, conn core.Connection) core.Connection {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, ok := r.conns[id]
	r.conns[id] = conn
	if ok && prev != conn {
		log.Info().Str("module", "app.registry").Str("uid", string(id)).Msg("superseded previous connection")
		return prev
	}
	log.Info().Str("module", "app.registry").Str("uid", string(id)).Int("online", len(r.conns)).Msg("registered")
	return nil
}

// Unregister removes the entry only if conn is still the registered one,
// so a late disconnect cannot evict a newer connection.
func (r *Registry) Unregister(id domain.UserID, conn core.Connection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.conns[id]
	if !ok || cur != conn {
		log.Debug().Str("module", "app.registry").Str("uid", string(id)).Msg("stale unregister ignored")
		return false
	}
	delete(r.conns, id)
	r.lastSeen[id] = r.now().UTC()
	log.Info().Str("module", "app.registry").Str("uid", string(id)).Int("online", len(r.conns)).Msg("unregistered")
	return true
}

func (r *Registry) Lookup(id domain.UserID) (core.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[id]
	return c, ok
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Snapshot returns the sorted set of online identities.
func (r *Registry) Snapshot() []domain.UserID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.UserID, 0, len(r.conns))
	for id := range r.conns {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

type regSnap struct {
	ID   domain.UserID
	Conn core.Connection
}

// entries returns the identities together with their connections, taken
// under one lock.
func (r *Registry) entries() []regSnap {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]regSnap, 0, len(r.conns))
	for id, c := range r.conns {
		out = append(out, regSnap{ID: id, Conn: c})
	}
	slices.SortFunc(out, func(a, b regSnap) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// Connections returns every registered connection.
func (r *Registry) Connections() []core.Connection {
	snaps := r.entries()
	out := make([]core.Connection, 0, len(snaps))
	for _, s := range snaps {
		out = append(out, s.Conn)
	}
	return out
}

// Directory lists every identity seen since start: online ones first, then
// offline ones by most recent departure.
func (r *Registry) Directory() []domain.UserPresence {
	r.mu.RLock()
	out := make([]domain.UserPresence, 0, len(r.conns)+len(r.lastSeen))
	for id := range r.conns {
		out = append(out, domain.UserPresence{ID: id, Online: true})
	}
	for id, at := range r.lastSeen {
		if _, online := r.conns[id]; online {
			continue
		}
		at := at
		out = append(out, domain.UserPresence{ID: id, LastSeen: &at})
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b domain.UserPresence) int {
		switch {
		case a.Online != b.Online:
			if a.Online {
				return -1
			}
			return 1
		case !a.Online && !a.LastSeen.Equal(*b.LastSeen):
			return b.LastSeen.Compare(*a.LastSeen)
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}
