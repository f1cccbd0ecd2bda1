// Package session runs a single study pass over a deck.
//
// A Coordinator loads the deck's cards once, fixes their review order, and
// walks through them one review at a time. Each review is scheduled with the
// sm2 engine and handed to the Store before the coordinator moves on, so a
// failed write never loses or skips a card.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/conorfennell/studydeck/internal/domain"
	"github.com/conorfennell/studydeck/internal/sm2"
)

var (
	// ErrNoCurrentCard is returned by SubmitReview when the session is complete or empty.
	ErrNoCurrentCard = errors.New("no current card")
	// ErrAlreadyLoaded is returned when Load is called more than once.
	ErrAlreadyLoaded = errors.New("session already loaded")
	// ErrPersistence matches any *PersistenceError with errors.Is.
	ErrPersistence = errors.New("failed to persist review")
	// ErrInvalidQuality is sm2.ErrInvalidQuality, re-exported for callers of this package.
	ErrInvalidQuality = sm2.ErrInvalidQuality
	// ErrCardNotFound is returned by SubmitReview when the current card was
	// deleted from the store. The card has been dropped from the session.
	ErrCardNotFound = domain.ErrCardNotFound
)

// PersistenceError reports that the store rejected a review.
// The coordinator has not advanced; the same review may be submitted again.
type PersistenceError struct {
	CardID string
	Err    error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to persist review for card %s: %v", e.CardID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

// Store is the storage the coordinator reads cards from and writes reviews to.
type Store interface {
	// CardsByDeck returns every card of a deck in no particular order.
	CardsByDeck(ctx context.Context, deckID string) ([]domain.Card, error)
	// SaveReview replaces the schedule of log.CardID with log.Schedule.
	// It returns an error matching domain.ErrCardNotFound when the card no longer exists.
	SaveReview(ctx context.Context, log domain.ReviewLog) error
}

// State is the lifecycle stage of a Coordinator.
type State int

const (
	Loading State = iota
	Active
	Complete
	Empty
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Active:
		return "active"
	case Complete:
		return "complete"
	case Empty:
		return "empty"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Coordinator holds the ordered queue of a study session.
// It is not safe for concurrent use.
type Coordinator struct {
	deckID string
	store  Store
	engine sm2.Engine
	now    func() time.Time
	log    *slog.Logger

	state  State
	order  []string // card ids, fixed at Load
	cards  map[string]domain.Card
	cursor int

	// set while the last write for the current card failed
	pending *pendingReview
}

type pendingReview struct {
	cardID     string
	quality    sm2.Quality
	reviewedAt time.Time
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock sets the function used to timestamp reviews.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		c.now = now
	}
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		c.log = l
	}
}

// New returns a coordinator for deckID in the Loading state.
func New(deckID string, store Store, engine sm2.Engine, opts ...Option) *Coordinator {
	c := &Coordinator{
		deckID: deckID,
		store:  store,
		engine: engine,
		now:    time.Now,
		log:    slog.Default(),
		state:  Loading,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With("deck_id", deckID)
	return c
}

// Load reads the deck's cards and fixes the review order: cards that were
// never reviewed first, then by next review date ascending. Cards with equal
// dates keep the order the store returned them in.
func (c *Coordinator) Load(ctx context.Context) error {
	if c.state != Loading {
		return ErrAlreadyLoaded
	}

	cards, err := c.store.CardsByDeck(ctx, c.deckID)
	if err != nil {
		return fmt.Errorf("failed to load cards for deck %s: %w", c.deckID, err)
	}

	ordered := Order(cards)
	c.order = make([]string, 0, len(ordered))
	c.cards = make(map[string]domain.Card, len(ordered))
	for _, card := range ordered {
		c.order = append(c.order, card.ID)
		c.cards[card.ID] = card
	}
	c.cursor = 0

	if len(c.order) == 0 {
		c.state = Empty
	} else {
		c.state = Active
	}
	c.log.Debug("session loaded", "cards", len(c.order), "state", c.state)
	return nil
}

// Order returns a copy of cards sorted for review. See Load.
func Order(cards []domain.Card) []domain.Card {
	ordered := make([]domain.Card, len(cards))
	copy(ordered, cards)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i].Schedule.NextReview, ordered[j].Schedule.NextReview
		switch {
		case a == nil:
			return b != nil
		case b == nil:
			return false
		default:
			return a.Before(*b)
		}
	})
	return ordered
}

// State returns the current lifecycle stage.
func (c *Coordinator) State() State {
	return c.state
}

// DeckID returns the deck being studied.
func (c *Coordinator) DeckID() string {
	return c.deckID
}

// CurrentCard returns the card under review, or false outside the Active state.
func (c *Coordinator) CurrentCard() (domain.Card, bool) {
	if c.state != Active {
		return domain.Card{}, false
	}
	return c.cards[c.order[c.cursor]], true
}

// IsComplete reports whether there is nothing left to review.
func (c *Coordinator) IsComplete() bool {
	return c.state == Complete || c.state == Empty
}

// Position returns the zero-based index of the current card and the session length.
// Once complete, index equals total.
func (c *Coordinator) Position() (index, total int) {
	if c.state == Complete {
		return len(c.order), len(c.order)
	}
	return c.cursor, len(c.order)
}

// SubmitReview schedules the current card with quality q, persists the result
// and advances. If the store fails, it returns a *PersistenceError and stays
// on the same card; resubmitting the same quality reuses the failed review's
// timestamp, so the retried write carries the same schedule.
//
// If the store reports the card as deleted, nothing is written: the card is
// dropped, the session moves on to the next one and ErrCardNotFound is returned.
func (c *Coordinator) SubmitReview(ctx context.Context, q sm2.Quality) (domain.Schedule, error) {
	if !q.Valid() {
		return domain.Schedule{}, fmt.Errorf("%w: %d", ErrInvalidQuality, int(q))
	}
	card, ok := c.CurrentCard()
	if !ok {
		return domain.Schedule{}, ErrNoCurrentCard
	}

	reviewedAt := c.now()
	if p := c.pending; p != nil && p.cardID == card.ID && p.quality == q {
		reviewedAt = p.reviewedAt
	}
	next := c.engine.Next(card.Schedule, q, reviewedAt)

	err := c.store.SaveReview(ctx, domain.ReviewLog{
		CardID:     card.ID,
		ReviewedAt: reviewedAt,
		Quality:    int(q),
		Schedule:   next,
	})
	if errors.Is(err, domain.ErrCardNotFound) {
		c.log.Info("card deleted during session, skipping", "card_id", card.ID)
		c.Remove(card.ID)
		return domain.Schedule{}, fmt.Errorf("%w: %s", ErrCardNotFound, card.ID)
	}
	if err != nil {
		c.log.Warn("review not persisted", "card_id", card.ID, "quality", q.String(), "error", err)
		c.pending = &pendingReview{cardID: card.ID, quality: q, reviewedAt: reviewedAt}
		return domain.Schedule{}, &PersistenceError{CardID: card.ID, Err: err}
	}

	c.pending = nil
	card.Schedule = next
	c.cards[card.ID] = card

	if c.cursor+1 < len(c.order) {
		c.cursor++
	} else {
		c.state = Complete
	}
	c.log.Debug("review recorded",
		"card_id", card.ID,
		"quality", q.String(),
		"interval", next.Interval,
		"ease_factor", next.EaseFactor,
		"state", c.state,
	)
	return next, nil
}

// Remove drops a card that has not been reviewed yet from the session, for
// example after it was deleted. Cards already reviewed stay counted.
// It reports whether the card was dropped.
func (c *Coordinator) Remove(cardID string) bool {
	if c.state != Active {
		return false
	}
	i := c.cursor
	for i < len(c.order) && c.order[i] != cardID {
		i++
	}
	if i == len(c.order) {
		return false
	}

	c.order = append(c.order[:i], c.order[i+1:]...)
	delete(c.cards, cardID)
	if c.pending != nil && c.pending.cardID == cardID {
		c.pending = nil
	}
	if c.cursor >= len(c.order) {
		c.state = Complete
	}
	c.log.Debug("card removed from session", "card_id", cardID, "remaining", len(c.order)-c.cursor, "state", c.state)
	return true
}
