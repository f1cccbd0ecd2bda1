package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/conorfennell/studydeck/internal/cardhash"
	"github.com/conorfennell/studydeck/internal/domain"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open() returned an unexpected error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestWithForeignKeys(t *testing.T) {
	testCases := []struct {
		dsn      string
		expected string
	}{
		{"studydeck.db", "studydeck.db?_pragma=foreign_keys(1)"},
		{"file:x.db?cache=shared", "file:x.db?cache=shared&_pragma=foreign_keys(1)"},
		{"x.db?_pragma=foreign_keys(0)", "x.db?_pragma=foreign_keys(0)"},
	}
	for _, tc := range testCases {
		if got := withForeignKeys(tc.dsn); got != tc.expected {
			t.Errorf("Expected '%s', but got '%s'", tc.expected, got)
		}
	}
}

func TestDecks(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	deck, err := db.InsertDeck(ctx, "Go", "Language trivia")
	if err != nil {
		t.Fatalf("InsertDeck() returned an unexpected error: %v", err)
	}
	if deck.ID == "" {
		t.Fatal("Expected the new deck to get an ID")
	}

	got, err := db.GetDeck(ctx, deck.ID)
	if err != nil {
		t.Fatalf("GetDeck() returned an unexpected error: %v", err)
	}
	if got.Title != "Go" || got.Description != "Language trivia" {
		t.Errorf("Expected deck 'Go', but got %+v", got)
	}

	if err := db.UpdateDeck(ctx, deck.ID, "Golang", ""); err != nil {
		t.Fatalf("UpdateDeck() returned an unexpected error: %v", err)
	}
	decks, err := db.ListDecks(ctx)
	if err != nil {
		t.Fatalf("ListDecks() returned an unexpected error: %v", err)
	}
	if len(decks) != 1 || decks[0].Title != "Golang" {
		t.Errorf("Expected one deck titled 'Golang', but got %+v", decks)
	}

	if _, err := db.GetDeck(ctx, "missing"); !errors.Is(err, ErrDeckNotFound) {
		t.Errorf("Expected ErrDeckNotFound, but got %v", err)
	}
	if err := db.DeleteDeck(ctx, "missing"); !errors.Is(err, ErrDeckNotFound) {
		t.Errorf("Expected ErrDeckNotFound, but got %v", err)
	}
}

func TestCards(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	deck, err := db.InsertDeck(ctx, "Mixed", "")
	if err != nil {
		t.Fatalf("InsertDeck() returned an unexpected error: %v", err)
	}

	text, err := db.InsertCard(ctx, deck.ID, 0, domain.TextContent{Front: "capital of France?", Back: "Paris"})
	if err != nil {
		t.Fatalf("InsertCard() returned an unexpected error: %v", err)
	}
	code, err := db.InsertCard(ctx, deck.ID, 0, domain.CodeContent{Question: "output?", Code: "console.log(1+1)", ExpectedOutput: "2"})
	if err != nil {
		t.Fatalf("InsertCard() returned an unexpected error: %v", err)
	}

	cards, err := db.CardsByDeck(ctx, deck.ID)
	if err != nil {
		t.Fatalf("CardsByDeck() returned an unexpected error: %v", err)
	}
	if len(cards) != 2 || cards[0].ID != text.ID || cards[1].ID != code.ID {
		t.Fatalf("Expected both cards in insertion order, but got %+v", cards)
	}
	if c, ok := cards[1].Content.(domain.CodeContent); !ok || c.ExpectedOutput != "2" {
		t.Errorf("Expected the code card to round-trip, but got %#v", cards[1].Content)
	}
	if s := cards[0].Schedule; s.EaseFactor != 2.5 || s.Interval != 0 || s.Repetitions != 0 || s.NextReview != nil {
		t.Errorf("Expected a fresh schedule, but got %+v", s)
	}

	t.Run("duplicate content in the same deck is rejected", func(t *testing.T) {
		if _, err := db.InsertCard(ctx, deck.ID, 0, domain.TextContent{Front: "Capital of France?", Back: "paris"}); err == nil {
			t.Error("Expected inserting a duplicate card to fail")
		}
	})

	t.Run("find by hash", func(t *testing.T) {
		found, err := db.FindCardByHash(ctx, deck.ID, text.Hash)
		if err != nil || found == nil || found.ID != text.ID {
			t.Errorf("Expected to find card %s, but got %v, %v", text.ID, found, err)
		}
		missing, err := db.FindCardByHash(ctx, deck.ID, "nope")
		if err != nil || missing != nil {
			t.Errorf("Expected nil for an unknown hash, but got %v, %v", missing, err)
		}
	})

	t.Run("update content keeps the schedule", func(t *testing.T) {
		if err := db.UpdateCardContent(ctx, text.ID, domain.TextContent{Front: "capital of Italy?", Back: "Rome"}); err != nil {
			t.Fatalf("UpdateCardContent() returned an unexpected error: %v", err)
		}
		got, err := db.GetCard(ctx, text.ID)
		if err != nil {
			t.Fatalf("GetCard() returned an unexpected error: %v", err)
		}
		if got.Content.(domain.TextContent).Back != "Rome" || got.Hash == text.Hash {
			t.Errorf("Expected updated content and hash, but got %+v", got)
		}
	})

	t.Run("delete", func(t *testing.T) {
		if err := db.DeleteCard(ctx, code.ID); err != nil {
			t.Fatalf("DeleteCard() returned an unexpected error: %v", err)
		}
		if _, err := db.GetCard(ctx, code.ID); !errors.Is(err, ErrCardNotFound) {
			t.Errorf("Expected ErrCardNotFound, but got %v", err)
		}
		if err := db.DeleteCard(ctx, code.ID); !errors.Is(err, ErrCardNotFound) {
			t.Errorf("Expected ErrCardNotFound, but got %v", err)
		}
	})
}

func TestSaveReview(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	deck, _ := db.InsertDeck(ctx, "Deck", "")
	card, err := db.InsertCard(ctx, deck.ID, 0, domain.TextContent{Front: "f", Back: "b"})
	if err != nil {
		t.Fatalf("InsertCard() returned an unexpected error: %v", err)
	}

	reviewedAt := time.Date(2024, 1, 3, 10, 0, 0, 0, time.UTC)
	next := reviewedAt.AddDate(0, 0, 6)
	log := domain.ReviewLog{
		CardID:     card.ID,
		ReviewedAt: reviewedAt,
		Quality:    3,
		Schedule: domain.Schedule{
			EaseFactor:   2.36,
			Interval:     6,
			Repetitions:  2,
			LastReviewed: &reviewedAt,
			NextReview:   &next,
		},
	}
	if err := db.SaveReview(ctx, log); err != nil {
		t.Fatalf("SaveReview() returned an unexpected error: %v", err)
	}

	got, err := db.GetCard(ctx, card.ID)
	if err != nil {
		t.Fatalf("GetCard() returned an unexpected error: %v", err)
	}
	s := got.Schedule
	if s.EaseFactor != 2.36 || s.Interval != 6 || s.Repetitions != 2 {
		t.Errorf("Expected schedule {2.36 6 2}, but got %+v", s)
	}
	if s.LastReviewed == nil || !s.LastReviewed.Equal(reviewedAt) {
		t.Errorf("Expected last reviewed %v, but got %v", reviewedAt, s.LastReviewed)
	}
	if s.NextReview == nil || !s.NextReview.Equal(next) {
		t.Errorf("Expected next review %v, but got %v", next, s.NextReview)
	}

	logs, err := db.ReviewLogs(ctx, card.ID)
	if err != nil {
		t.Fatalf("ReviewLogs() returned an unexpected error: %v", err)
	}
	if len(logs) != 1 || logs[0].Quality != 3 || logs[0].Schedule.Interval != 6 {
		t.Errorf("Expected one review log, but got %+v", logs)
	}

	t.Run("unknown card", func(t *testing.T) {
		log.CardID = "missing"
		if err := db.SaveReview(ctx, log); !errors.Is(err, ErrCardNotFound) {
			t.Errorf("Expected ErrCardNotFound, but got %v", err)
		}
	})

	t.Run("deleting the card deletes its history", func(t *testing.T) {
		if err := db.DeleteCard(ctx, card.ID); err != nil {
			t.Fatalf("DeleteCard() returned an unexpected error: %v", err)
		}
		logs, err := db.ReviewLogs(ctx, card.ID)
		if err != nil {
			t.Fatalf("ReviewLogs() returned an unexpected error: %v", err)
		}
		if len(logs) != 0 {
			t.Errorf("Expected no review logs after deletion, but got %d", len(logs))
		}
	})
}

func TestDeleteDeckCascades(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	deck, _ := db.InsertDeck(ctx, "Doomed", "")
	card, err := db.InsertCard(ctx, deck.ID, 0, domain.TextContent{Front: "f", Back: "b"})
	if err != nil {
		t.Fatalf("InsertCard() returned an unexpected error: %v", err)
	}
	if _, err := db.InsertSource(ctx, "/notes/doomed", "local", deck.ID); err != nil {
		t.Fatalf("InsertSource() returned an unexpected error: %v", err)
	}

	if err := db.DeleteDeck(ctx, deck.ID); err != nil {
		t.Fatalf("DeleteDeck() returned an unexpected error: %v", err)
	}
	if _, err := db.GetCard(ctx, card.ID); !errors.Is(err, ErrCardNotFound) {
		t.Errorf("Expected the deck's card to be deleted, but got %v", err)
	}
	sources, err := db.GetAllSources(ctx)
	if err != nil {
		t.Fatalf("GetAllSources() returned an unexpected error: %v", err)
	}
	if len(sources) != 0 {
		t.Errorf("Expected the deck's sources to be deleted, but got %+v", sources)
	}
}

func TestSources(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	db.now = func() time.Time { return time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC) }
	deck, _ := db.InsertDeck(ctx, "Notes", "")

	id, err := db.InsertSource(ctx, "https://example.com/notes.git", "git", deck.ID)
	if err != nil {
		t.Fatalf("InsertSource() returned an unexpected error: %v", err)
	}
	if _, err := db.InsertSource(ctx, "https://example.com/notes.git", "git", deck.ID); err == nil {
		t.Error("Expected a duplicate source path to be rejected")
	}

	s, err := db.FindSourceByPath(ctx, "https://example.com/notes.git")
	if err != nil || s == nil {
		t.Fatalf("FindSourceByPath() = %v, %v", s, err)
	}
	if s.ID != id || s.Type != "git" || s.DeckID != deck.ID || s.LastScanned != nil {
		t.Errorf("Unexpected source %+v", s)
	}

	if err := db.UpdateSourceLastScanned(ctx, id); err != nil {
		t.Fatalf("UpdateSourceLastScanned() returned an unexpected error: %v", err)
	}
	sources, err := db.GetAllSources(ctx)
	if err != nil {
		t.Fatalf("GetAllSources() returned an unexpected error: %v", err)
	}
	if len(sources) != 1 || sources[0].LastScanned == nil || !sources[0].LastScanned.Equal(db.now()) {
		t.Errorf("Expected last scanned to be set, but got %+v", sources)
	}

	if err := db.DeleteSource(ctx, id); err != nil {
		t.Fatalf("DeleteSource() returned an unexpected error: %v", err)
	}
	if err := db.DeleteSource(ctx, id); !errors.Is(err, ErrSourceNotFound) {
		t.Errorf("Expected ErrSourceNotFound, but got %v", err)
	}
	if s, _ := db.FindSourceByPath(ctx, "https://example.com/notes.git"); s != nil {
		t.Errorf("Expected the source to be gone, but got %+v", s)
	}
}

func TestCardsBySource(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	deck, _ := db.InsertDeck(ctx, "Imported", "")
	sourceID, err := db.InsertSource(ctx, "/notes", "local", deck.ID)
	if err != nil {
		t.Fatalf("InsertSource() returned an unexpected error: %v", err)
	}

	imported, err := db.InsertCard(ctx, deck.ID, sourceID, domain.TextContent{Front: "from file", Back: "x"})
	if err != nil {
		t.Fatalf("InsertCard() returned an unexpected error: %v", err)
	}
	if _, err := db.InsertCard(ctx, deck.ID, 0, domain.TextContent{Front: "by hand", Back: "y"}); err != nil {
		t.Fatalf("InsertCard() returned an unexpected error: %v", err)
	}

	cards, err := db.CardsBySource(ctx, sourceID)
	if err != nil {
		t.Fatalf("CardsBySource() returned an unexpected error: %v", err)
	}
	if len(cards) != 1 || cards[0].ID != imported.ID || cards[0].SourceID != sourceID {
		t.Errorf("Expected only the imported card, but got %+v", cards)
	}

	if err := db.DeleteSource(ctx, sourceID); err != nil {
		t.Fatalf("DeleteSource() returned an unexpected error: %v", err)
	}
	got, err := db.GetCard(ctx, imported.ID)
	if err != nil {
		t.Fatalf("Expected the imported card to outlive its source, but got %v", err)
	}
	if got.SourceID != 0 {
		t.Errorf("Expected the card to be detached from the deleted source, but got source %d", got.SourceID)
	}
}

func TestUpdateCardContentDetachesImportedCard(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	deck, _ := db.InsertDeck(ctx, "Imported", "")
	sourceID, err := db.InsertSource(ctx, "/notes", "local", deck.ID)
	if err != nil {
		t.Fatalf("InsertSource() returned an unexpected error: %v", err)
	}
	original := domain.TextContent{Front: "from file", Back: "x"}
	card, err := db.InsertCard(ctx, deck.ID, sourceID, original)
	if err != nil {
		t.Fatalf("InsertCard() returned an unexpected error: %v", err)
	}

	testCases := []struct {
		name       string
		content    domain.Content
		wantSource int64
	}{
		{"same content", domain.TextContent{Front: "From File", Back: "x "}, sourceID},
		{"new content", domain.TextContent{Front: "from file", Back: "y"}, 0},
		{"back to the original", original, 0},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if err := db.UpdateCardContent(ctx, card.ID, tc.content); err != nil {
				t.Fatalf("UpdateCardContent() returned an unexpected error: %v", err)
			}
			got, err := db.GetCard(ctx, card.ID)
			if err != nil {
				t.Fatalf("GetCard() returned an unexpected error: %v", err)
			}
			if got.SourceID != tc.wantSource {
				t.Errorf("Expected source %d, but got %d", tc.wantSource, got.SourceID)
			}
			if got.Hash != cardhash.Hash(tc.content) {
				t.Errorf("Expected hash %s, but got %s", cardhash.Hash(tc.content), got.Hash)
			}
		})
	}
}
