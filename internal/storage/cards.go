package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/brainstormbuddy/studybuddy/internal/cardhash"
	"github.com/brainstormbuddy/studybuddy/internal/domain"
	"github.com/brainstormbuddy/studybuddy/internal/srs"
)

const cardColumns = `c.id, c.deck_id, c.front, c.back, c.context, c.hash,
	c.interval, c.ease_factor, c.repetitions, c.next_review_date`

// InsertCard adds a card to a deck with the initial schedule for today.
// The card hash is computed from its content when empty.
func (db *DB) InsertCard(ctx context.Context, deckID int64, card domain.Card, today time.Time) (*domain.Card, error) {
	return insertCard(ctx, db.conn, deckID, card, today)
}

func insertCard(ctx context.Context, q queryer, deckID int64, card domain.Card, today time.Time) (*domain.Card, error) {
	card.DeckID = deckID
	if card.Hash == "" {
		card.Hash = cardhash.Hash(card)
	}
	card.Schedule = srs.NewState(today)

	res, err := q.ExecContext(ctx, `
		INSERT INTO cards (deck_id, front, back, context, hash, interval, ease_factor, repetitions, next_review_date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		card.DeckID,
		card.Front,
		card.Back,
		card.Context,
		card.Hash,
		card.Schedule.Interval,
		card.Schedule.EaseFactor,
		card.Schedule.Repetitions,
		formatDate(card.Schedule.NextReviewDate),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert card %s: %w", card.Hash, err)
	}
	if card.ID, err = res.LastInsertId(); err != nil {
		return nil, fmt.Errorf("failed to get last insert ID for card %s: %w", card.Hash, err)
	}
	return &card, nil
}

func scanCard(row interface{ Scan(...any) error }) (domain.Card, error) {
	var c domain.Card
	var next string
	if err := row.Scan(
		&c.ID,
		&c.DeckID,
		&c.Front,
		&c.Back,
		&c.Context,
		&c.Hash,
		&c.Schedule.Interval,
		&c.Schedule.EaseFactor,
		&c.Schedule.Repetitions,
		&next,
	); err != nil {
		return c, err
	}
	date, err := parseDate(next)
	if err != nil {
		return c, err
	}
	c.Schedule.NextReviewDate = date
	return c, nil
}

func queryCards(ctx context.Context, q queryer, query string, args ...any) ([]domain.Card, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cards []domain.Card
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan card row: %w", err)
		}
		cards = append(cards, c)
	}
	return cards, rows.Err()
}

// FindCard retrieves a card by ID. It returns nil, nil when there is none.
func (db *DB) FindCard(ctx context.Context, id int64) (*domain.Card, error) {
	c, err := scanCard(db.conn.QueryRowContext(ctx, `SELECT `+cardColumns+` FROM cards c WHERE c.id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find card %d: %w", id, err)
	}
	return &c, nil
}

// FindCardByHash retrieves a card of a deck by its content hash. It returns nil, nil when there is none.
func (db *DB) FindCardByHash(ctx context.Context, deckID int64, hash string) (*domain.Card, error) {
	c, err := scanCard(db.conn.QueryRowContext(ctx, `
		SELECT `+cardColumns+` FROM cards c WHERE c.deck_id = ? AND c.hash = ?
		ORDER BY c.id LIMIT 1
	`, deckID, hash))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find card by hash %s: %w", hash, err)
	}
	return &c, nil
}

// ListDeckCards returns every card of a deck in insertion order.
func (db *DB) ListDeckCards(ctx context.Context, deckID int64) ([]domain.Card, error) {
	cards, err := queryCards(ctx, db.conn, `SELECT `+cardColumns+` FROM cards c WHERE c.deck_id = ? ORDER BY c.id`, deckID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cards of deck %d: %w", deckID, err)
	}
	return cards, nil
}

// DueCards returns the user's cards whose next review date is on or before today,
// oldest due date first.
func (db *DB) DueCards(ctx context.Context, userID int64, today time.Time) ([]domain.Card, error) {
	cards, err := queryCards(ctx, db.conn, `
		SELECT `+cardColumns+`
		FROM cards c JOIN decks d ON d.id = c.deck_id
		WHERE d.user_id = ? AND c.next_review_date <= ?
		ORDER BY c.next_review_date, c.id
	`, userID, formatDate(today))
	if err != nil {
		return nil, fmt.Errorf("failed to get due cards for user %d: %w", userID, err)
	}
	return cards, nil
}

// UserCards returns every card across the user's decks.
func (db *DB) UserCards(ctx context.Context, userID int64) ([]domain.Card, error) {
	cards, err := queryCards(ctx, db.conn, `
		SELECT `+cardColumns+`
		FROM cards c JOIN decks d ON d.id = c.deck_id
		WHERE d.user_id = ?
		ORDER BY c.id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get cards for user %d: %w", userID, err)
	}
	return cards, nil
}

// GetCardsBySourceID retrieves all cards of decks imported from a source.
func (db *DB) GetCardsBySourceID(ctx context.Context, sourceID int64) ([]domain.Card, error) {
	cards, err := queryCards(ctx, db.conn, `
		SELECT `+cardColumns+`
		FROM cards c JOIN decks d ON d.id = c.deck_id
		WHERE d.source_id = ?
		ORDER BY c.id
	`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get cards for source ID %d: %w", sourceID, err)
	}
	return cards, nil
}

// SaveSchedule replaces a card's schedule with next, provided the stored
// schedule still equals prev. Concurrent reviews of the same card therefore
// cannot overwrite each other.
func (db *DB) SaveSchedule(ctx context.Context, cardID int64, prev, next srs.State) error {
	return saveSchedule(ctx, db.conn, cardID, prev, next)
}

func saveSchedule(ctx context.Context, q queryer, cardID int64, prev, next srs.State) error {
	res, err := q.ExecContext(ctx, `
		UPDATE cards
		SET interval = ?, ease_factor = ?, repetitions = ?, next_review_date = ?
		WHERE id = ? AND interval = ? AND ease_factor = ? AND repetitions = ? AND next_review_date = ?
	`,
		next.Interval,
		next.EaseFactor,
		next.Repetitions,
		formatDate(next.NextReviewDate),
		cardID,
		prev.Interval,
		prev.EaseFactor,
		prev.Repetitions,
		formatDate(prev.NextReviewDate),
	)
	if err != nil {
		return fmt.Errorf("failed to save schedule for card %d: %w", cardID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to save schedule for card %d: %w", cardID, err)
	}
	if n == 1 {
		return nil
	}

	var exists bool
	if err := q.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM cards WHERE id = ?)`, cardID).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check card %d: %w", cardID, err)
	}
	if !exists {
		return fmt.Errorf("card %d: %w", cardID, ErrNotFound)
	}
	return fmt.Errorf("card %d: %w", cardID, ErrStaleSchedule)
}

// DeleteCard removes a card and its review history.
func (db *DB) DeleteCard(ctx context.Context, id int64) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM cards WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete card %d: %w", id, err)
	}
	return nil
}
