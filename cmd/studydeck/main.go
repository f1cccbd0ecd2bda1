package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/conorfennell/studydeck/internal/config"
	"github.com/conorfennell/studydeck/internal/domain"
	"github.com/conorfennell/studydeck/internal/logging"
	"github.com/conorfennell/studydeck/internal/sm2"
	"github.com/conorfennell/studydeck/internal/storage"
	"github.com/conorfennell/studydeck/internal/sync"
	"github.com/conorfennell/studydeck/internal/web"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		slog.Error("studydeck failed", "error", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	// 1. Load config from file, environment and flags
	fs := config.NewFlagSet("studydeck")
	cfg, err := config.Load(fs, args)
	if errors.Is(err, pflag.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}

	logger, err := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}

	// 2. Open the database
	db, err := storage.Open(cfg.DB)
	if err != nil {
		return err
	}
	defer db.Close()
	logger.Info("Database opened successfully", "path", cfg.DB)

	syncer := sync.New(db, cfg.ReposDir, logger)

	// 3. Run the requested action
	switch {
	case cfg.AddSource != "":
		deck, err := findOrCreateDeck(ctx, db, cfg.Deck)
		if err != nil {
			return err
		}
		_, err = syncer.AddSource(ctx, cfg.AddSource, deck.ID)
		return err
	case cfg.Sync:
		_, err := syncer.Run(ctx)
		return err
	case cfg.Serve:
		return serve(ctx, cfg, db, syncer)
	}

	fmt.Fprintln(os.Stderr, "Nothing to do. Use --add-source, --sync or --serve.")
	fs.PrintDefaults()
	return nil
}

// findOrCreateDeck returns the deck titled title, creating it when there is none.
func findOrCreateDeck(ctx context.Context, db *storage.DB, title string) (domain.Deck, error) {
	decks, err := db.ListDecks(ctx)
	if err != nil {
		return domain.Deck{}, err
	}
	for _, d := range decks {
		if d.Title == title {
			return d, nil
		}
	}
	deck, err := db.InsertDeck(ctx, title, "")
	if err != nil {
		return domain.Deck{}, err
	}
	slog.Info("Created deck", "id", deck.ID, "title", deck.Title)
	return deck, nil
}

func serve(ctx context.Context, cfg config.Config, db *storage.DB, syncer *sync.Syncer) error {
	handler, err := web.NewServer(db, syncer, sm2.NewEngine(cfg.Scale()), cfg.SessionTTL)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting server", "addr", cfg.Addr, "quality_scale", cfg.QualityScale)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	slog.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
