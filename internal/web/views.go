package web

import (
	"html/template"
	"time"

	"github.com/conorfennell/studydeck/internal/domain"
	"github.com/conorfennell/studydeck/internal/sm2"
)

var templateFuncs = template.FuncMap{
	"date": func(t *time.Time) string {
		if t == nil {
			return "never"
		}
		return t.Local().Format("2006-01-02")
	},
	"qualities": func() []sm2.Quality {
		return []sm2.Quality{sm2.Hard, sm2.Good, sm2.Easy}
	},
}

// cardView flattens both content variants for the templates.
type cardView struct {
	ID         string
	DeckID     string
	Kind       domain.Kind
	Prompt     string
	Answer     string
	Code       string
	Imported   bool
	Due        bool
	Interval   int
	EaseFactor float64
	NextReview *time.Time
}

func (v cardView) IsCode() bool { return v.Kind == domain.KindCode }

func newCardView(c domain.Card, now time.Time) cardView {
	v := cardView{
		ID:         c.ID,
		DeckID:     c.DeckID,
		Kind:       c.Content.Kind(),
		Prompt:     c.Content.Prompt(),
		Imported:   c.SourceID != 0,
		Due:        c.Schedule.IsDue(now),
		Interval:   c.Schedule.Interval,
		EaseFactor: c.Schedule.EaseFactor,
		NextReview: c.Schedule.NextReview,
	}
	switch content := c.Content.(type) {
	case domain.TextContent:
		v.Answer = content.Back
	case domain.CodeContent:
		v.Answer = content.ExpectedOutput
		v.Code = content.Code
	}
	return v
}

type decksPage struct {
	Decks []domain.Deck
	Error string
}

type deckPage struct {
	Deck     domain.Deck
	Cards    []cardView
	DueCount int
	Error    string
}

type historyView struct {
	CardID string
	Logs   []domain.ReviewLog
}

// studyView is the state of a study session as shown to the user.
type studyView struct {
	SessionID    string
	Deck         domain.Deck
	Number       int // one-based
	Total        int
	Card         *cardView
	Revealed     bool
	Complete     bool
	Empty        bool
	Error        string
	RetryQuality sm2.Quality
}

type checkView struct {
	Match    bool
	Expected string
}

type sourceView struct {
	domain.Source
	DeckTitle string
}

type sourcesPage struct {
	Sources []sourceView
	Decks   []domain.Deck
	Error   string
}

type syncView struct {
	Path     string
	Parsed   int
	Inserted int
	Deleted  int
	Errors   int
}
