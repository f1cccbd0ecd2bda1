package domain

import (
	"errors"
	"strings"
	"time"
)

// ErrCardNotFound is returned by stores when a card does not exist, including
// one deleted after it was read.
var ErrCardNotFound = errors.New("card not found")

// DefaultEaseFactor is the ease factor given to a newly created card.
const DefaultEaseFactor = 2.5

// Deck is a named collection of cards.
type Deck struct {
	ID          string
	Title       string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Card is a single study item inside a deck.
// Its Schedule is only ever replaced as the result of a review.
type Card struct {
	ID        string
	DeckID    string
	SourceID  int64 // 0 when the card was created by hand
	Hash      string
	Content   Content
	Schedule  Schedule
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Schedule is the spaced-repetition state of a card.
// A nil NextReview means the card has never been reviewed and is due now.
type Schedule struct {
	EaseFactor   float64
	Interval     int // days
	Repetitions  int
	LastReviewed *time.Time
	NextReview   *time.Time
}

// NewSchedule returns the schedule of a card that has never been reviewed.
func NewSchedule() Schedule {
	return Schedule{
		EaseFactor:  DefaultEaseFactor,
		Interval:    0,
		Repetitions: 0,
	}
}

// IsDue reports whether the card should be reviewed at t.
func (s Schedule) IsDue(t time.Time) bool {
	return s.NextReview == nil || !s.NextReview.After(t)
}

// Kind identifies a Content variant.
type Kind string

const (
	KindText Kind = "text"
	KindCode Kind = "code"
)

// Content is what a card displays. It is either TextContent or CodeContent.
type Content interface {
	Kind() Kind
	// Prompt is the side shown before the answer is revealed.
	Prompt() string
	isContent()
}

// TextContent is a plain front/back card.
type TextContent struct {
	Front string
	Back  string
}

func (TextContent) Kind() Kind { return KindText }
func (c TextContent) Prompt() string { return c.Front }
func (TextContent) isContent() {}

// CodeContent is a card whose answer is the output of a code snippet.
type CodeContent struct {
	Question       string
	Code           string
	ExpectedOutput string
}

func (CodeContent) Kind() Kind { return KindCode }
func (c CodeContent) Prompt() string { return c.Question }
func (CodeContent) isContent() {}

// CheckOutput reports whether out matches the expected output,
// ignoring leading and trailing whitespace.
func (c CodeContent) CheckOutput(out string) bool {
	return strings.TrimSpace(out) == strings.TrimSpace(c.ExpectedOutput)
}

// ReviewLog records a single review event for a card and the schedule it produced.
// Quality is the raw three-bucket value the user picked:
// 1: Hard
// 2: Good
// 3: Easy
type ReviewLog struct {
	CardID     string
	ReviewedAt time.Time
	Quality    int
	Schedule   Schedule
}

// Source is a directory or git repository that cards are imported from.
type Source struct {
	ID          int64
	Path        string
	Type        string // "local" or "git"
	DeckID      string
	LastScanned *time.Time
}
