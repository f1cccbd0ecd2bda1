package web

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/conorfennell/studydeck/internal/domain"
	"github.com/conorfennell/studydeck/internal/session"
)

// studySession is one browser's pass over a deck.
// mu serialises requests against the coordinator, which is not safe for concurrent use.
type studySession struct {
	mu       sync.Mutex
	id       string
	deck     domain.Deck
	coord    *session.Coordinator
	revealed bool
	lastSeen time.Time
}

// sessionRegistry holds live study sessions keyed by id and drops those idle longer than ttl.
type sessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]*studySession
	ttl      time.Duration
	now      func() time.Time
}

func newSessionRegistry(ttl time.Duration) *sessionRegistry {
	return &sessionRegistry{
		sessions: make(map[string]*studySession),
		ttl:      ttl,
		now:      time.Now,
	}
}

func (r *sessionRegistry) add(deck domain.Deck, coord *session.Coordinator) *studySession {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evictLocked()

	s := &studySession{
		id:       uuid.NewString(),
		deck:     deck,
		coord:    coord,
		lastSeen: r.now(),
	}
	r.sessions[s.id] = s
	return s
}

func (r *sessionRegistry) get(id string) (*studySession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evictLocked()

	s, ok := r.sessions[id]
	if ok {
		s.lastSeen = r.now()
	}
	return s, ok
}

// removeDeck drops every session studying deckID.
func (r *sessionRegistry) removeDeck(deckID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.sessions {
		if s.deck.ID == deckID {
			delete(r.sessions, id)
		}
	}
}

// removeCard drops cardID from every session that has yet to review it.
func (r *sessionRegistry) removeCard(cardID string) {
	r.mu.Lock()
	live := make([]*studySession, 0, len(r.sessions))
	for _, s := range r.sessions {
		live = append(live, s)
	}
	r.mu.Unlock()

	for _, s := range live {
		s.mu.Lock()
		cur, _ := s.coord.CurrentCard()
		if s.coord.Remove(cardID) && cur.ID == cardID {
			s.revealed = false
		}
		s.mu.Unlock()
	}
}

func (r *sessionRegistry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *sessionRegistry) evictLocked() {
	cutoff := r.now().Add(-r.ttl)
	for id, s := range r.sessions {
		if s.lastSeen.Before(cutoff) {
			delete(r.sessions, id)
		}
	}
}
