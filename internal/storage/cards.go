package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/conorfennell/studydeck/internal/cardhash"
	"github.com/conorfennell/studydeck/internal/domain"
	"github.com/google/uuid"
)

const cardColumns = `id, deck_id, source_id, hash, kind, front, back, question, code, expected_output,
	ease_factor, interval_days, repetitions, last_reviewed, next_review, created_at, updated_at`

// contentColumns flattens a content variant into the kind, front, back,
// question, code and expected_output columns.
func contentColumns(c domain.Content) (kind domain.Kind, cols [5]string, err error) {
	switch v := c.(type) {
	case domain.TextContent:
		return domain.KindText, [5]string{v.Front, v.Back, "", "", ""}, nil
	case domain.CodeContent:
		return domain.KindCode, [5]string{"", "", v.Question, v.Code, v.ExpectedOutput}, nil
	}
	return "", cols, fmt.Errorf("unsupported card content %T", c)
}

func scanCard(sc scanner) (domain.Card, error) {
	var (
		c                           domain.Card
		kind                        string
		front, back                 string
		question, code, expectedOut string
		lastReviewed, nextReview    sql.NullTime
		sourceID                    sql.NullInt64
	)
	err := sc.Scan(
		&c.ID,
		&c.DeckID,
		&sourceID,
		&c.Hash,
		&kind,
		&front,
		&back,
		&question,
		&code,
		&expectedOut,
		&c.Schedule.EaseFactor,
		&c.Schedule.Interval,
		&c.Schedule.Repetitions,
		&lastReviewed,
		&nextReview,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return domain.Card{}, err
	}

	switch domain.Kind(kind) {
	case domain.KindCode:
		c.Content = domain.CodeContent{Question: question, Code: code, ExpectedOutput: expectedOut}
	default:
		c.Content = domain.TextContent{Front: front, Back: back}
	}
	c.SourceID = sourceID.Int64
	c.Schedule.LastReviewed = timePtr(lastReviewed)
	c.Schedule.NextReview = timePtr(nextReview)
	return c, nil
}

// InsertCard adds a card to a deck with the schedule of a never-reviewed card.
// sourceID is the source the card was imported from, or 0 for a hand-made card.
func (db *DB) InsertCard(ctx context.Context, deckID string, sourceID int64, content domain.Content) (domain.Card, error) {
	kind, cols, err := contentColumns(content)
	if err != nil {
		return domain.Card{}, err
	}

	now := db.timestamp()
	card := domain.Card{
		ID:        uuid.NewString(),
		DeckID:    deckID,
		SourceID:  sourceID,
		Hash:      cardhash.Hash(content),
		Content:   content,
		Schedule:  domain.NewSchedule(),
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO cards (id, deck_id, source_id, hash, kind, front, back, question, code, expected_output,
			ease_factor, interval_days, repetitions, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		card.ID,
		card.DeckID,
		sql.NullInt64{Int64: sourceID, Valid: sourceID != 0},
		card.Hash,
		string(kind),
		cols[0], cols[1], cols[2], cols[3], cols[4],
		card.Schedule.EaseFactor,
		card.Schedule.Interval,
		card.Schedule.Repetitions,
		card.CreatedAt,
		card.UpdatedAt,
	)
	if err != nil {
		return domain.Card{}, fmt.Errorf("failed to insert card %s into deck %s: %w", card.Hash, deckID, err)
	}
	return card, nil
}

// GetCard retrieves a card by its ID.
func (db *DB) GetCard(ctx context.Context, id string) (domain.Card, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+cardColumns+` FROM cards WHERE id = ?`, id)
	c, err := scanCard(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Card{}, fmt.Errorf("%w: %s", ErrCardNotFound, id)
		}
		return domain.Card{}, fmt.Errorf("failed to get card %s: %w", id, err)
	}
	return c, nil
}

// FindCardByHash retrieves a deck's card by content hash. It returns nil if there is none.
func (db *DB) FindCardByHash(ctx context.Context, deckID, hash string) (*domain.Card, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT `+cardColumns+`
		FROM cards WHERE deck_id = ? AND hash = ?
	`, deckID, hash)
	c, err := scanCard(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Card not found
		}
		return nil, fmt.Errorf("failed to find card by hash %s: %w", hash, err)
	}
	return &c, nil
}

// CardsByDeck retrieves every card of a deck in insertion order.
func (db *DB) CardsByDeck(ctx context.Context, deckID string) ([]domain.Card, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+cardColumns+`
		FROM cards WHERE deck_id = ?
		ORDER BY created_at, rowid
	`, deckID)
	if err != nil {
		return nil, fmt.Errorf("failed to get cards for deck %s: %w", deckID, err)
	}
	defer rows.Close()

	var cards []domain.Card
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan card row for deck %s: %w", deckID, err)
		}
		cards = append(cards, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to get cards for deck %s: %w", deckID, err)
	}
	return cards, nil
}

// CardsBySource retrieves every card imported from a source.
func (db *DB) CardsBySource(ctx context.Context, sourceID int64) ([]domain.Card, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+cardColumns+`
		FROM cards WHERE source_id = ?
		ORDER BY created_at, rowid
	`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get cards for source ID %d: %w", sourceID, err)
	}
	defer rows.Close()

	var cards []domain.Card
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan card row for source ID %d: %w", sourceID, err)
		}
		cards = append(cards, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to get cards for source ID %d: %w", sourceID, err)
	}
	return cards, nil
}

// UpdateCardContent replaces a card's content and hash. Its schedule is kept.
// A card imported from a source is detached from it when the content changes,
// so the next sync neither matches nor deletes it.
func (db *DB) UpdateCardContent(ctx context.Context, id string, content domain.Content) error {
	kind, cols, err := contentColumns(content)
	if err != nil {
		return err
	}
	hash := cardhash.Hash(content)
	// SET expressions see the row as it was before the update.
	res, err := db.conn.ExecContext(ctx, `
		UPDATE cards
		SET source_id = CASE WHEN hash = ? THEN source_id ELSE NULL END,
			hash = ?, kind = ?, front = ?, back = ?, question = ?, code = ?, expected_output = ?, updated_at = ?
		WHERE id = ?
	`,
		hash,
		hash,
		string(kind),
		cols[0], cols[1], cols[2], cols[3], cols[4],
		db.timestamp(),
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to update card %s: %w", id, err)
	}
	return expectOne(res, ErrCardNotFound, id)
}

// DeleteCard removes a card together with its schedule and review logs.
func (db *DB) DeleteCard(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM cards WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete card %s: %w", id, err)
	}
	return expectOne(res, ErrCardNotFound, id)
}

// SaveReview replaces the five scheduling fields of log.CardID and appends
// the review to the card's history, in one transaction.
func (db *DB) SaveReview(ctx context.Context, log domain.ReviewLog) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin review transaction for card %s: %w", log.CardID, err)
	}
	defer tx.Rollback()

	s := log.Schedule
	res, err := tx.ExecContext(ctx, `
		UPDATE cards
		SET ease_factor = ?, interval_days = ?, repetitions = ?, last_reviewed = ?, next_review = ?, updated_at = ?
		WHERE id = ?
	`,
		s.EaseFactor,
		s.Interval,
		s.Repetitions,
		nullTime(s.LastReviewed),
		nullTime(s.NextReview),
		log.ReviewedAt.UTC(),
		log.CardID,
	)
	if err != nil {
		return fmt.Errorf("failed to update schedule for card %s: %w", log.CardID, err)
	}
	if err := expectOne(res, ErrCardNotFound, log.CardID); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO review_logs (card_id, reviewed_at, quality, ease_factor, interval_days, repetitions, next_review)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		log.CardID,
		log.ReviewedAt.UTC(),
		log.Quality,
		s.EaseFactor,
		s.Interval,
		s.Repetitions,
		nullTime(s.NextReview),
	)
	if err != nil {
		return fmt.Errorf("failed to insert review log for card %s: %w", log.CardID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit review for card %s: %w", log.CardID, err)
	}
	return nil
}

// ReviewLogs retrieves a card's review history, oldest first.
func (db *DB) ReviewLogs(ctx context.Context, cardID string) ([]domain.ReviewLog, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT card_id, reviewed_at, quality, ease_factor, interval_days, repetitions, next_review
		FROM review_logs WHERE card_id = ?
		ORDER BY id
	`, cardID)
	if err != nil {
		return nil, fmt.Errorf("failed to get review logs for card %s: %w", cardID, err)
	}
	defer rows.Close()

	var logs []domain.ReviewLog
	for rows.Next() {
		var (
			l          domain.ReviewLog
			nextReview sql.NullTime
		)
		if err := rows.Scan(
			&l.CardID,
			&l.ReviewedAt,
			&l.Quality,
			&l.Schedule.EaseFactor,
			&l.Schedule.Interval,
			&l.Schedule.Repetitions,
			&nextReview,
		); err != nil {
			return nil, fmt.Errorf("failed to scan review log row for card %s: %w", cardID, err)
		}
		reviewedAt := l.ReviewedAt
		l.Schedule.LastReviewed = &reviewedAt
		l.Schedule.NextReview = timePtr(nextReview)
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to get review logs for card %s: %w", cardID, err)
	}
	return logs, nil
}
