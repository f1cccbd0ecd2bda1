// Package sync imports cards from markdown sources into their decks.
package sync

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/conorfennell/studydeck/internal/cardhash"
	"github.com/conorfennell/studydeck/internal/domain"
	"github.com/conorfennell/studydeck/internal/gitsource"
	"github.com/conorfennell/studydeck/internal/parser"
)

// ErrSourceExists is returned by AddSource when the path is already configured.
var ErrSourceExists = errors.New("source already exists")

// Store is the storage a Syncer reconciles sources against.
type Store interface {
	InsertSource(ctx context.Context, path, sourceType, deckID string) (int64, error)
	FindSourceByPath(ctx context.Context, path string) (*domain.Source, error)
	GetAllSources(ctx context.Context) ([]domain.Source, error)
	FindCardByHash(ctx context.Context, deckID, hash string) (*domain.Card, error)
	InsertCard(ctx context.Context, deckID string, sourceID int64, content domain.Content) (domain.Card, error)
	CardsBySource(ctx context.Context, sourceID int64) ([]domain.Card, error)
	DeleteCard(ctx context.Context, id string) error
	UpdateSourceLastScanned(ctx context.Context, sourceID int64) error
}

// GitSyncer fetches a remote repository into a local directory.
type GitSyncer func(ctx context.Context, repoURL, localPath string) error

// Result summarises the reconciliation of one source.
type Result struct {
	SourceID int64
	Path     string
	Parsed   int
	Inserted int
	Deleted  int
	Errors   []error
}

// Syncer reconciles every configured source with its deck.
type Syncer struct {
	store    Store
	reposDir string
	git      GitSyncer
	log      *slog.Logger
}

// New returns a Syncer that checks git sources out under reposDir.
func New(store Store, reposDir string, log *slog.Logger) *Syncer {
	return &Syncer{
		store:    store,
		reposDir: reposDir,
		git:      gitsource.Sync,
		log:      log,
	}
}

// WithGit replaces the function used to fetch git sources.
func (s *Syncer) WithGit(g GitSyncer) *Syncer {
	s.git = g
	return s
}

// AddSource registers a local directory or git URL as a source for deckID.
// Local paths are made absolute and must name an existing directory.
func (s *Syncer) AddSource(ctx context.Context, path, deckID string) (int64, error) {
	sourceType := "local"
	if gitsource.IsGitURL(path) {
		sourceType = "git"
	} else {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return 0, fmt.Errorf("failed to get absolute path for %s: %w", path, err)
		}
		info, err := os.Stat(absPath)
		if err != nil {
			return 0, fmt.Errorf("source path %s: %w", absPath, err)
		}
		if !info.IsDir() {
			return 0, fmt.Errorf("source path %s is not a directory", absPath)
		}
		path = absPath
	}

	existing, err := s.store.FindSourceByPath(ctx, path)
	if err != nil {
		return 0, err
	}
	if existing != nil {
		return 0, fmt.Errorf("%w: %s (ID %d)", ErrSourceExists, path, existing.ID)
	}

	id, err := s.store.InsertSource(ctx, path, sourceType, deckID)
	if err != nil {
		return 0, err
	}
	s.log.Info("Added new source", "id", id, "type", sourceType, "path", path, "deck_id", deckID)
	return id, nil
}

// Run iterates over all sources and reconciles them.
// A failing source is logged and skipped; only listing the sources is fatal.
func (s *Syncer) Run(ctx context.Context) ([]Result, error) {
	s.log.Info("Starting sync process for all sources...")
	sources, err := s.store.GetAllSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get sources: %w", err)
	}

	if len(sources) == 0 {
		s.log.Info("No sources configured. Add one with --add-source <path/or/url.git>")
		return nil, nil
	}

	var results []Result
	for _, source := range sources {
		res, err := s.SyncSource(ctx, source)
		if err != nil {
			s.log.Error("Error syncing source", "id", source.ID, "path", source.Path, "error", err)
			continue
		}
		results = append(results, res)
	}
	s.log.Info("Sync process complete.", "sources", len(sources), "synced", len(results))
	return results, nil
}

// SyncSource reconciles a single source. Git sources are cloned or pulled first.
func (s *Syncer) SyncSource(ctx context.Context, source domain.Source) (Result, error) {
	s.log.Info("Syncing source", "id", source.ID, "type", source.Type, "path", source.Path)

	dir := source.Path
	if source.Type == "git" {
		localRepoPath, err := gitsource.LocalPath(s.reposDir, source.Path)
		if err != nil {
			return Result{}, fmt.Errorf("determining local path for %s: %w", source.Path, err)
		}
		if err := s.git(ctx, source.Path, localRepoPath); err != nil {
			return Result{}, fmt.Errorf("syncing git repo %s: %w", source.Path, err)
		}
		dir = localRepoPath
	}

	return s.reconcile(ctx, source, dir)
}

// reconcile inserts cards found under dir that the deck lacks and deletes
// cards previously imported from this source that are no longer found.
// Deleting a card also deletes its schedule and review history.
func (s *Syncer) reconcile(ctx context.Context, source domain.Source, dir string) (Result, error) {
	res := Result{SourceID: source.ID, Path: source.Path}
	found := make(map[string]bool)

	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(strings.ToLower(d.Name()), ".md") {
			return nil
		}

		contents, parseErr := parser.ParseFile(path)
		if parseErr != nil {
			res.Errors = append(res.Errors, fmt.Errorf("parsing %s: %w", path, parseErr))
		}
		for _, content := range contents {
			hash := cardhash.Hash(content)
			res.Parsed++
			if found[hash] {
				continue
			}
			found[hash] = true

			existing, findErr := s.store.FindCardByHash(ctx, source.DeckID, hash)
			if findErr != nil {
				res.Errors = append(res.Errors, fmt.Errorf("db check for %s: %w", hash, findErr))
				continue
			}
			if existing == nil {
				s.log.Debug("New card found, inserting...", "hash", hash)
				if _, insertErr := s.store.InsertCard(ctx, source.DeckID, source.ID, content); insertErr != nil {
					res.Errors = append(res.Errors, fmt.Errorf("db insert for %s: %w", hash, insertErr))
					continue
				}
				res.Inserted++
			}
		}
		return nil
	})
	if walkErr != nil {
		return res, fmt.Errorf("walking directory %s: %w", dir, walkErr)
	}

	dbCards, err := s.store.CardsBySource(ctx, source.ID)
	if err != nil {
		return res, fmt.Errorf("getting cards for source %d: %w", source.ID, err)
	}

	for _, dbCard := range dbCards {
		if found[dbCard.Hash] {
			continue
		}
		s.log.Info("Orphaned card, deleting", "hash", dbCard.Hash)
		if err := s.store.DeleteCard(ctx, dbCard.ID); err != nil {
			s.log.Warn("Failed to delete orphaned card", "hash", dbCard.Hash, "error", err)
			res.Errors = append(res.Errors, fmt.Errorf("db delete for %s: %w", dbCard.Hash, err))
			continue
		}
		res.Deleted++
	}

	if err := s.store.UpdateSourceLastScanned(ctx, source.ID); err != nil {
		s.log.Warn("Failed to update last scanned for source", "source_id", source.ID, "error", err)
	}

	s.log.Info("reconciliation complete",
		"path", source.Path,
		"parsed_cards", res.Parsed,
		"inserted", res.Inserted,
		"orphaned_deleted", res.Deleted,
		"errors", len(res.Errors),
	)
	return res, nil
}
