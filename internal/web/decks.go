package web

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/conorfennell/studydeck/internal/cardhash"
	"github.com/conorfennell/studydeck/internal/domain"
	"github.com/conorfennell/studydeck/internal/storage"
	"github.com/conorfennell/studydeck/internal/validate"
)

type deckForm struct {
	Title       string `validate:"required,max=200"`
	Description string `validate:"max=2000"`
}

func parseDeckForm(r *http.Request) (deckForm, error) {
	f := deckForm{
		Title:       strings.TrimSpace(r.PostFormValue("title")),
		Description: strings.TrimSpace(r.PostFormValue("description")),
	}
	return f, validate.Struct(f)
}

type cardForm struct {
	Kind           string `validate:"oneof=text code"`
	Front          string `validate:"required_if=Kind text"`
	Back           string `validate:"required_if=Kind text"`
	Question       string `validate:"required_if=Kind code"`
	Code           string `validate:"required_if=Kind code"`
	ExpectedOutput string
}

func parseCardForm(r *http.Request) (domain.Content, error) {
	f := cardForm{
		Kind:           r.PostFormValue("kind"),
		Front:          strings.TrimSpace(r.PostFormValue("front")),
		Back:           strings.TrimSpace(r.PostFormValue("back")),
		Question:       strings.TrimSpace(r.PostFormValue("question")),
		Code:           strings.TrimRight(r.PostFormValue("code"), "\r\n\t "),
		ExpectedOutput: strings.TrimSpace(r.PostFormValue("expected_output")),
	}
	if f.Kind == "" {
		f.Kind = string(domain.KindText)
	}
	if err := validate.Struct(f); err != nil {
		return nil, err
	}
	if f.Kind == string(domain.KindCode) {
		return domain.CodeContent{Question: f.Question, Code: f.Code, ExpectedOutput: f.ExpectedOutput}, nil
	}
	return domain.TextContent{Front: f.Front, Back: f.Back}, nil
}

// handleGetDecks renders the list of decks.
func (s *Server) handleGetDecks() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		decks, err := s.db.ListDecks(r.Context())
		if err != nil {
			s.serverError(w, "Error getting decks", err)
			return
		}
		s.render(w, http.StatusOK, decksPage{Decks: decks}, "decks")
	}
}

// handlePostDeck creates a deck and re-renders the deck list.
func (s *Server) handlePostDeck() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		f, formErr := parseDeckForm(r)
		if formErr == nil {
			if _, err := s.db.InsertDeck(ctx, f.Title, f.Description); err != nil {
				s.serverError(w, "Error inserting deck", err)
				return
			}
		}

		decks, err := s.db.ListDecks(ctx)
		if err != nil {
			s.serverError(w, "Error getting decks after add", err)
			return
		}
		page := decksPage{Decks: decks}
		status := http.StatusOK
		if formErr != nil {
			page.Error = formErr.Error()
			status = http.StatusBadRequest
		}
		s.render(w, status, page, "deck_list")
	}
}

// handleGetDeck renders a deck with its cards and the number due now.
func (s *Server) handleGetDeck() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, ok := s.loadDeckPage(w, r, r.PathValue("deckID"))
		if !ok {
			return
		}
		s.render(w, http.StatusOK, page, "deck")
	}
}

// handlePutDeck renames a deck and re-renders its header.
func (s *Server) handlePutDeck() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		deckID := r.PathValue("deckID")

		f, formErr := parseDeckForm(r)
		if formErr == nil {
			err := s.db.UpdateDeck(ctx, deckID, f.Title, f.Description)
			if errors.Is(err, storage.ErrDeckNotFound) {
				http.NotFound(w, r)
				return
			}
			if err != nil {
				s.serverError(w, "Error updating deck", err, "deck_id", deckID)
				return
			}
		}

		page, ok := s.loadDeckPage(w, r, deckID)
		if !ok {
			return
		}
		status := http.StatusOK
		if formErr != nil {
			page.Error = formErr.Error()
			status = http.StatusBadRequest
		}
		s.render(w, status, page, "deck_header")
	}
}

// handleDeleteDeck deletes a deck with all its cards and re-renders the deck list.
func (s *Server) handleDeleteDeck() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		deckID := r.PathValue("deckID")

		err := s.db.DeleteDeck(ctx, deckID)
		if errors.Is(err, storage.ErrDeckNotFound) {
			http.NotFound(w, r)
			return
		}
		if err != nil {
			s.serverError(w, "Error deleting deck", err, "deck_id", deckID)
			return
		}
		s.sessions.removeDeck(deckID)

		decks, err := s.db.ListDecks(ctx)
		if err != nil {
			s.serverError(w, "Error getting decks after delete", err)
			return
		}
		s.render(w, http.StatusOK, decksPage{Decks: decks}, "deck_list")
	}
}

// handlePostCard adds a hand-made card to a deck and re-renders the card list.
func (s *Server) handlePostCard() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		deckID := r.PathValue("deckID")

		if _, err := s.db.GetDeck(ctx, deckID); err != nil {
			if errors.Is(err, storage.ErrDeckNotFound) {
				http.NotFound(w, r)
				return
			}
			s.serverError(w, "Error getting deck", err, "deck_id", deckID)
			return
		}

		status := http.StatusOK
		var formErr string
		content, err := parseCardForm(r)
		switch {
		case err != nil:
			status, formErr = http.StatusBadRequest, err.Error()
		default:
			existing, err := s.db.FindCardByHash(ctx, deckID, cardhash.Hash(content))
			if err != nil {
				s.serverError(w, "Error checking for duplicate card", err, "deck_id", deckID)
				return
			}
			if existing != nil {
				status, formErr = http.StatusConflict, "This deck already has that card."
				break
			}
			if _, err := s.db.InsertCard(ctx, deckID, 0, content); err != nil {
				s.serverError(w, "Error inserting card", err, "deck_id", deckID)
				return
			}
		}

		page, ok := s.loadDeckPage(w, r, deckID)
		if !ok {
			return
		}
		page.Error = formErr
		s.render(w, status, page, "card_list")
	}
}

// handlePutCard replaces a card's content. Its schedule is kept.
// Content that another card of the deck already has is refused with 409.
func (s *Server) handlePutCard() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		cardID := r.PathValue("cardID")

		content, err := parseCardForm(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		card, err := s.db.GetCard(ctx, cardID)
		if errors.Is(err, storage.ErrCardNotFound) {
			http.NotFound(w, r)
			return
		}
		if err != nil {
			s.serverError(w, "Error getting card", err, "card_id", cardID)
			return
		}

		existing, err := s.db.FindCardByHash(ctx, card.DeckID, cardhash.Hash(content))
		if err != nil {
			s.serverError(w, "Error checking for duplicate card", err, "card_id", cardID)
			return
		}
		if existing != nil && existing.ID != cardID {
			http.Error(w, "This deck already has that card.", http.StatusConflict)
			return
		}

		err = s.db.UpdateCardContent(ctx, cardID, content)
		if errors.Is(err, storage.ErrCardNotFound) {
			http.NotFound(w, r)
			return
		}
		if err != nil {
			s.serverError(w, "Error updating card", err, "card_id", cardID)
			return
		}

		card, err = s.db.GetCard(ctx, cardID)
		if err != nil {
			s.serverError(w, "Error getting card after update", err, "card_id", cardID)
			return
		}
		s.render(w, http.StatusOK, newCardView(card, time.Now()), "card_row")
	}
}

// handleDeleteCard deletes a card with its schedule and history, and drops it
// from open study sessions. The empty response removes the row it was swapped into.
func (s *Server) handleDeleteCard() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cardID := r.PathValue("cardID")
		err := s.db.DeleteCard(r.Context(), cardID)
		if errors.Is(err, storage.ErrCardNotFound) {
			http.NotFound(w, r)
			return
		}
		if err != nil {
			s.serverError(w, "Error deleting card", err, "card_id", cardID)
			return
		}
		s.sessions.removeCard(cardID)
		w.WriteHeader(http.StatusOK)
	}
}

// handleGetCardHistory renders a card's review log.
func (s *Server) handleGetCardHistory() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		cardID := r.PathValue("cardID")

		if _, err := s.db.GetCard(ctx, cardID); err != nil {
			if errors.Is(err, storage.ErrCardNotFound) {
				http.NotFound(w, r)
				return
			}
			s.serverError(w, "Error getting card", err, "card_id", cardID)
			return
		}
		logs, err := s.db.ReviewLogs(ctx, cardID)
		if err != nil {
			s.serverError(w, "Error getting review history", err, "card_id", cardID)
			return
		}
		s.render(w, http.StatusOK, historyView{CardID: cardID, Logs: logs}, "card_history")
	}
}

// loadDeckPage reads a deck and its cards, writing a 404 or 500 itself when it returns false.
func (s *Server) loadDeckPage(w http.ResponseWriter, r *http.Request, deckID string) (deckPage, bool) {
	ctx := r.Context()
	deck, err := s.db.GetDeck(ctx, deckID)
	if err != nil {
		if errors.Is(err, storage.ErrDeckNotFound) {
			http.NotFound(w, r)
			return deckPage{}, false
		}
		s.serverError(w, "Error getting deck", err, "deck_id", deckID)
		return deckPage{}, false
	}

	cards, err := s.db.CardsByDeck(ctx, deckID)
	if err != nil {
		s.serverError(w, "Error getting cards", err, "deck_id", deckID)
		return deckPage{}, false
	}

	now := time.Now()
	page := deckPage{Deck: deck, Cards: make([]cardView, 0, len(cards))}
	for _, c := range cards {
		v := newCardView(c, now)
		if v.Due {
			page.DueCount++
		}
		page.Cards = append(page.Cards, v)
	}
	return page, true
}
