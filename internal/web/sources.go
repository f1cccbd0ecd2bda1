package web

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/conorfennell/studydeck/internal/storage"
	"github.com/conorfennell/studydeck/internal/sync"
	"github.com/conorfennell/studydeck/internal/validate"
)

type sourceForm struct {
	Path   string `validate:"required"`
	DeckID string `validate:"required,uuid"`
}

// handleGetSources renders the main sources management page.
func (s *Server) handleGetSources() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, err := s.sourcesPage(r.Context())
		if err != nil {
			s.serverError(w, "Error getting sources", err)
			return
		}
		s.render(w, http.StatusOK, page, "sources")
	}
}

// handlePostSource adds a new source and re-renders the source list.
func (s *Server) handlePostSource() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		f := sourceForm{
			Path:   strings.TrimSpace(r.PostFormValue("path")),
			DeckID: r.PostFormValue("deck_id"),
		}

		status := http.StatusOK
		var formErr string
		if err := validate.Struct(f); err != nil {
			status, formErr = http.StatusBadRequest, err.Error()
		} else if _, err := s.db.GetDeck(ctx, f.DeckID); err != nil {
			if !errors.Is(err, storage.ErrDeckNotFound) {
				s.serverError(w, "Error getting deck for new source", err, "deck_id", f.DeckID)
				return
			}
			status, formErr = http.StatusBadRequest, err.Error()
		} else if _, err := s.syncer.AddSource(ctx, f.Path, f.DeckID); err != nil {
			s.log.Warn("Error inserting new source", "path", f.Path, "error", err)
			status, formErr = http.StatusBadRequest, err.Error()
			if errors.Is(err, sync.ErrSourceExists) {
				status = http.StatusConflict
			}
		}

		page, err := s.sourcesPage(ctx)
		if err != nil {
			s.serverError(w, "Error getting sources after add", err)
			return
		}
		page.Error = formErr
		s.render(w, status, page, "source_list")
	}
}

// handleDeleteSource deletes a source and re-renders the source list.
// Cards already imported from it stay in their deck.
func (s *Server) handleDeleteSource() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id, err := strconv.ParseInt(r.PathValue("sourceID"), 10, 64)
		if err != nil {
			http.Error(w, "Invalid source ID", http.StatusBadRequest)
			return
		}

		err = s.db.DeleteSource(ctx, id)
		if errors.Is(err, storage.ErrSourceNotFound) {
			http.NotFound(w, r)
			return
		}
		if err != nil {
			s.serverError(w, "Error deleting source", err, "source_id", id)
			return
		}

		page, err := s.sourcesPage(ctx)
		if err != nil {
			s.serverError(w, "Error getting sources after delete", err)
			return
		}
		s.render(w, http.StatusOK, page, "source_list")
	}
}

// handlePostSync triggers a manual sync and re-renders the source list.
func (s *Server) handlePostSync() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		results, err := s.syncer.Run(ctx) // Run in the foreground to make the user wait
		if err != nil {
			s.serverError(w, "Error running sync", err)
			return
		}

		views := make([]syncView, 0, len(results))
		for _, res := range results {
			views = append(views, syncView{
				Path:     res.Path,
				Parsed:   res.Parsed,
				Inserted: res.Inserted,
				Deleted:  res.Deleted,
				Errors:   len(res.Errors),
			})
		}

		page, err := s.sourcesPage(ctx)
		if err != nil {
			s.serverError(w, "Error getting sources after sync", err)
			return
		}

		// Render both the sync summary and the updated list
		data := struct {
			sourcesPage
			Results []syncView
		}{page, views}
		s.render(w, http.StatusOK, data, "sync_success", "source_list")
	}
}

func (s *Server) sourcesPage(ctx context.Context) (sourcesPage, error) {
	sources, err := s.db.GetAllSources(ctx)
	if err != nil {
		return sourcesPage{}, err
	}
	decks, err := s.db.ListDecks(ctx)
	if err != nil {
		return sourcesPage{}, err
	}

	titles := make(map[string]string, len(decks))
	for _, d := range decks {
		titles[d.ID] = d.Title
	}
	page := sourcesPage{Decks: decks, Sources: make([]sourceView, 0, len(sources))}
	for _, src := range sources {
		page.Sources = append(page.Sources, sourceView{Source: src, DeckTitle: titles[src.DeckID]})
	}
	return page, nil
}
