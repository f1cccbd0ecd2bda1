package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/conorfennell/studydeck/internal/domain"
	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Registers the sqlite driver
)

var (
	ErrDeckNotFound   = errors.New("deck not found")
	ErrCardNotFound   = domain.ErrCardNotFound
	ErrSourceNotFound = errors.New("source not found")
)

// DB represents a wrapper around the SQL database connection.
type DB struct {
	conn *sql.DB
	now  func() time.Time
}

// Open creates a new database connection and ensures the schema is up to date.
// Foreign keys are switched on so deleting a deck or card removes what it owns.
func Open(dsn string) (*DB, error) {
	db, err := sql.Open("sqlite", withForeignKeys(dsn))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows one writer; a single connection also keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Execute the schema to create tables if they don't exist.
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &DB{conn: db, now: time.Now}, nil
}

func withForeignKeys(dsn string) string {
	if strings.Contains(dsn, "foreign_keys") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=foreign_keys(1)"
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) timestamp() time.Time {
	return db.now().UTC()
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

// InsertDeck creates a new, empty deck.
func (db *DB) InsertDeck(ctx context.Context, title, description string) (domain.Deck, error) {
	now := db.timestamp()
	deck := domain.Deck{
		ID:          uuid.NewString(),
		Title:       title,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO decks (id, title, description, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, deck.ID, deck.Title, deck.Description, deck.CreatedAt, deck.UpdatedAt)
	if err != nil {
		return domain.Deck{}, fmt.Errorf("failed to insert deck %q: %w", title, err)
	}
	return deck, nil
}

// GetDeck retrieves a deck by its ID.
func (db *DB) GetDeck(ctx context.Context, id string) (domain.Deck, error) {
	var d domain.Deck
	row := db.conn.QueryRowContext(ctx, `
		SELECT id, title, description, created_at, updated_at
		FROM decks WHERE id = ?
	`, id)
	err := row.Scan(&d.ID, &d.Title, &d.Description, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Deck{}, fmt.Errorf("%w: %s", ErrDeckNotFound, id)
		}
		return domain.Deck{}, fmt.Errorf("failed to get deck %s: %w", id, err)
	}
	return d, nil
}

// ListDecks retrieves all decks, newest first.
func (db *DB) ListDecks(ctx context.Context) ([]domain.Deck, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, title, description, created_at, updated_at
		FROM decks ORDER BY created_at DESC, rowid DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list decks: %w", err)
	}
	defer rows.Close()

	var decks []domain.Deck
	for rows.Next() {
		var d domain.Deck
		if err := rows.Scan(&d.ID, &d.Title, &d.Description, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan deck row: %w", err)
		}
		decks = append(decks, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list decks: %w", err)
	}
	return decks, nil
}

// UpdateDeck changes a deck's title and description.
func (db *DB) UpdateDeck(ctx context.Context, id, title, description string) error {
	res, err := db.conn.ExecContext(ctx, `
		UPDATE decks
		SET title = ?, description = ?, updated_at = ?
		WHERE id = ?
	`, title, description, db.timestamp(), id)
	if err != nil {
		return fmt.Errorf("failed to update deck %s: %w", id, err)
	}
	return expectOne(res, ErrDeckNotFound, id)
}

// DeleteDeck removes a deck together with its cards, their review logs and its sources.
func (db *DB) DeleteDeck(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM decks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete deck %s: %w", id, err)
	}
	return expectOne(res, ErrDeckNotFound, id)
}

func expectOne(res sql.Result, notFound error, id any) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %v", notFound, id)
	}
	return nil
}

// InsertSource inserts a new source for a deck and returns its ID.
func (db *DB) InsertSource(ctx context.Context, path, sourceType, deckID string) (int64, error) {
	res, err := db.conn.ExecContext(ctx, `
		INSERT INTO sources (path, type, deck_id)
		VALUES (?, ?, ?)
	`, path, sourceType, deckID)
	if err != nil {
		return 0, fmt.Errorf("failed to insert source %s: %w", path, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for source %s: %w", path, err)
	}
	return id, nil
}

// FindSourceByPath retrieves a source by its path. It returns nil if there is none.
func (db *DB) FindSourceByPath(ctx context.Context, path string) (*domain.Source, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT id, path, type, deck_id, last_scanned
		FROM sources WHERE path = ?
	`, path)
	s, err := scanSource(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Source not found
		}
		return nil, fmt.Errorf("failed to find source by path %s: %w", path, err)
	}
	return &s, nil
}

// GetAllSources retrieves all stored sources.
func (db *DB) GetAllSources(ctx context.Context) ([]domain.Source, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, path, type, deck_id, last_scanned
		FROM sources ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get all sources: %w", err)
	}
	defer rows.Close()

	var sources []domain.Source
	for rows.Next() {
		s, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan source row: %w", err)
		}
		sources = append(sources, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to get all sources: %w", err)
	}
	return sources, nil
}

// UpdateSourceLastScanned updates the last_scanned timestamp for a source.
func (db *DB) UpdateSourceLastScanned(ctx context.Context, sourceID int64) error {
	res, err := db.conn.ExecContext(ctx, `
		UPDATE sources
		SET last_scanned = ?
		WHERE id = ?
	`, db.timestamp(), sourceID)
	if err != nil {
		return fmt.Errorf("failed to update last scanned for source ID %d: %w", sourceID, err)
	}
	return expectOne(res, ErrSourceNotFound, sourceID)
}

// DeleteSource removes a source. Cards already imported stay in their deck.
func (db *DB) DeleteSource(ctx context.Context, sourceID int64) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM sources WHERE id = ?`, sourceID)
	if err != nil {
		return fmt.Errorf("failed to delete source ID %d: %w", sourceID, err)
	}
	return expectOne(res, ErrSourceNotFound, sourceID)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSource(sc scanner) (domain.Source, error) {
	var (
		s           domain.Source
		lastScanned sql.NullTime
	)
	if err := sc.Scan(&s.ID, &s.Path, &s.Type, &s.DeckID, &lastScanned); err != nil {
		return domain.Source{}, err
	}
	s.LastScanned = timePtr(lastScanned)
	return s, nil
}
