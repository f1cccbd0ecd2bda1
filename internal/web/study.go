package web

import (
	"errors"
	"net/http"
	"time"

	"github.com/conorfennell/studydeck/internal/domain"
	"github.com/conorfennell/studydeck/internal/session"
	"github.com/conorfennell/studydeck/internal/sm2"
	"github.com/conorfennell/studydeck/internal/storage"
)

// handlePostStudy starts a study session over a deck and redirects to it.
func (s *Server) handlePostStudy() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		deckID := r.PathValue("deckID")

		deck, err := s.db.GetDeck(ctx, deckID)
		if err != nil {
			if errors.Is(err, storage.ErrDeckNotFound) {
				http.NotFound(w, r)
				return
			}
			s.serverError(w, "Error getting deck", err, "deck_id", deckID)
			return
		}

		coord := session.New(deckID, s.db, s.engine, session.WithLogger(s.log))
		if err := coord.Load(ctx); err != nil {
			s.serverError(w, "Error loading study session", err, "deck_id", deckID)
			return
		}
		sess := s.sessions.add(deck, coord)
		_, total := coord.Position()
		s.log.Info("Study session started", "session_id", sess.id, "deck_id", deckID, "cards", total)

		http.Redirect(w, r, "/study/"+sess.id, http.StatusSeeOther)
	}
}

// handleGetStudy renders the study page for the current card.
func (s *Server) handleGetStudy() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := s.studySession(w, r)
		if !ok {
			return
		}
		sess.mu.Lock()
		defer sess.mu.Unlock()
		s.render(w, http.StatusOK, newStudyView(sess), "study")
	}
}

// handlePostReveal shows the answer side of the current card.
func (s *Server) handlePostReveal() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := s.studySession(w, r)
		if !ok {
			return
		}
		sess.mu.Lock()
		defer sess.mu.Unlock()

		status := http.StatusOK
		if _, ok := sess.coord.CurrentCard(); ok {
			sess.revealed = true
		} else {
			status = http.StatusConflict
		}
		s.render(w, status, newStudyView(sess), "study_card")
	}
}

// handlePostCheck compares typed output against a code card's expected output.
func (s *Server) handlePostCheck() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := s.studySession(w, r)
		if !ok {
			return
		}
		sess.mu.Lock()
		defer sess.mu.Unlock()

		card, ok := sess.coord.CurrentCard()
		if !ok {
			http.Error(w, session.ErrNoCurrentCard.Error(), http.StatusConflict)
			return
		}
		code, ok := card.Content.(domain.CodeContent)
		if !ok {
			http.Error(w, "The current card is not a code card", http.StatusBadRequest)
			return
		}
		view := checkView{
			Match:    code.CheckOutput(r.PostFormValue("output")),
			Expected: code.ExpectedOutput,
		}
		s.render(w, http.StatusOK, view, "check_result")
	}
}

// handlePostReview grades the current card and renders the next one.
// A failed write answers 503 with the same card and a retry button for the same quality.
// A card deleted since the session started is skipped with a notice.
func (s *Server) handlePostReview() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := s.studySession(w, r)
		if !ok {
			return
		}
		sess.mu.Lock()
		defer sess.mu.Unlock()

		q, err := sm2.ParseQuality(r.PostFormValue("quality"))
		if err == nil {
			_, err = sess.coord.SubmitReview(r.Context(), q)
		}

		status := http.StatusOK
		var view studyView
		switch {
		case err == nil:
			sess.revealed = false
			view = newStudyView(sess)
		case errors.Is(err, session.ErrInvalidQuality):
			status = http.StatusBadRequest
			view = newStudyView(sess)
			view.Error = "Pick Hard, Good or Easy."
		case errors.Is(err, session.ErrCardNotFound):
			s.log.Info("Reviewed card was deleted", "session_id", sess.id, "error", err)
			sess.revealed = false
			view = newStudyView(sess)
			view.Error = "That card was deleted, so it was skipped."
		case errors.Is(err, session.ErrNoCurrentCard):
			status = http.StatusConflict
			view = newStudyView(sess)
		case errors.Is(err, session.ErrPersistence):
			s.log.Error("Error saving review", "session_id", sess.id, "error", err)
			status = http.StatusServiceUnavailable
			view = newStudyView(sess)
			view.Error = "Your review could not be saved. Try again."
			view.RetryQuality = q
		default:
			s.serverError(w, "Error submitting review", err, "session_id", sess.id)
			return
		}
		s.render(w, status, view, "study_card")
	}
}

// studySession looks up the session named in the path, writing a 404 when it is unknown or expired.
func (s *Server) studySession(w http.ResponseWriter, r *http.Request) (*studySession, bool) {
	sess, ok := s.sessions.get(r.PathValue("sessionID"))
	if !ok {
		http.Error(w, "Study session not found or expired", http.StatusNotFound)
		return nil, false
	}
	return sess, true
}

func newStudyView(sess *studySession) studyView {
	index, total := sess.coord.Position()
	v := studyView{
		SessionID: sess.id,
		Deck:      sess.deck,
		Number:    index + 1,
		Total:     total,
		Revealed:  sess.revealed,
		Complete:  sess.coord.State() == session.Complete,
		Empty:     sess.coord.State() == session.Empty,
	}
	if card, ok := sess.coord.CurrentCard(); ok {
		cv := newCardView(card, time.Now())
		v.Card = &cv
	}
	return v
}
