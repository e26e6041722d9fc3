package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/brainstormbuddy/studybuddy/internal/domain"
)

const deckSelect = `
	SELECT d.id, d.user_id, d.topic_name, d.is_public, d.source_id, d.source_file, d.created_at,
		(SELECT COUNT(*) FROM cards c WHERE c.deck_id = d.id)
	FROM decks d`

func scanDeck(row interface{ Scan(...any) error }) (domain.Deck, error) {
	var d domain.Deck
	var sourceID sql.NullInt64
	var sourceFile sql.NullString
	err := row.Scan(&d.ID, &d.UserID, &d.Topic, &d.Public, &sourceID, &sourceFile, &d.CreatedAt, &d.CardCount)
	d.SourceID = sourceID.Int64
	d.SourceFile = sourceFile.String
	return d, err
}

func (db *DB) queryDecks(ctx context.Context, query string, args ...any) ([]domain.Deck, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var decks []domain.Deck
	for rows.Next() {
		d, err := scanDeck(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan deck row: %w", err)
		}
		decks = append(decks, d)
	}
	return decks, rows.Err()
}

func insertDeck(ctx context.Context, q queryer, deck domain.Deck) (domain.Deck, error) {
	deck.CreatedAt = time.Now().UTC()
	var sourceID sql.NullInt64
	var sourceFile sql.NullString
	if deck.SourceID != 0 {
		sourceID = sql.NullInt64{Int64: deck.SourceID, Valid: true}
		sourceFile = sql.NullString{String: deck.SourceFile, Valid: true}
	}
	res, err := q.ExecContext(ctx, `
		INSERT INTO decks (user_id, topic_name, is_public, source_id, source_file, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, deck.UserID, deck.Topic, deck.Public, sourceID, sourceFile, deck.CreatedAt)
	if err != nil {
		return deck, fmt.Errorf("failed to insert deck %q: %w", deck.Topic, err)
	}
	if deck.ID, err = res.LastInsertId(); err != nil {
		return deck, fmt.Errorf("failed to get last insert ID for deck %q: %w", deck.Topic, err)
	}
	return deck, nil
}

// CreateDeck stores a deck together with its cards in one transaction.
// Every card starts with the initial schedule for today.
func (db *DB) CreateDeck(ctx context.Context, deck domain.Deck, cards []domain.Card, today time.Time) (*domain.Deck, error) {
	err := db.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		if deck, err = insertDeck(ctx, tx, deck); err != nil {
			return err
		}
		for _, c := range cards {
			if _, err := insertCard(ctx, tx, deck.ID, c, today); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	deck.CardCount = len(cards)
	return &deck, nil
}

// FindDeck retrieves a deck by ID. It returns nil, nil when there is none.
func (db *DB) FindDeck(ctx context.Context, id int64) (*domain.Deck, error) {
	d, err := scanDeck(db.conn.QueryRowContext(ctx, deckSelect+` WHERE d.id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find deck %d: %w", id, err)
	}
	return &d, nil
}

// FindDeckBySourceFile retrieves the deck imported from a file of a source.
// It returns nil, nil when there is none.
func (db *DB) FindDeckBySourceFile(ctx context.Context, sourceID int64, file string) (*domain.Deck, error) {
	d, err := scanDeck(db.conn.QueryRowContext(ctx, deckSelect+` WHERE d.source_id = ? AND d.source_file = ?`, sourceID, file))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find deck for %s: %w", file, err)
	}
	return &d, nil
}

// ListDecks returns the decks owned by a user.
func (db *DB) ListDecks(ctx context.Context, userID int64) ([]domain.Deck, error) {
	decks, err := db.queryDecks(ctx, deckSelect+` WHERE d.user_id = ? ORDER BY d.id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list decks for user %d: %w", userID, err)
	}
	return decks, nil
}

// ListSourceDecks returns the decks imported from a source.
func (db *DB) ListSourceDecks(ctx context.Context, sourceID int64) ([]domain.Deck, error) {
	decks, err := db.queryDecks(ctx, deckSelect+` WHERE d.source_id = ? ORDER BY d.id`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list decks for source %d: %w", sourceID, err)
	}
	return decks, nil
}

// ListPublicDecks returns every deck shared with the community, newest first.
func (db *DB) ListPublicDecks(ctx context.Context) ([]domain.Deck, error) {
	decks, err := db.queryDecks(ctx, deckSelect+` WHERE d.is_public = 1 ORDER BY d.created_at DESC, d.id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list public decks: %w", err)
	}
	return decks, nil
}

// SetDeckPublic shares or unshares a deck.
func (db *DB) SetDeckPublic(ctx context.Context, id int64, public bool) error {
	res, err := db.conn.ExecContext(ctx, `UPDATE decks SET is_public = ? WHERE id = ?`, public, id)
	if err != nil {
		return fmt.Errorf("failed to update deck %d: %w", id, err)
	}
	return checkAffected(res, "deck", id)
}

// DeleteDeck removes a deck with its cards.
func (db *DB) DeleteDeck(ctx context.Context, id int64) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM decks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete deck %d: %w", id, err)
	}
	return checkAffected(res, "deck", id)
}

// CloneDeck copies a public deck into a new private deck owned by userID.
// The copies start with fresh schedules; the source deck is untouched.
func (db *DB) CloneDeck(ctx context.Context, deckID, userID int64, today time.Time) (*domain.Deck, error) {
	src, err := db.FindDeck(ctx, deckID)
	if err != nil {
		return nil, err
	}
	if src == nil {
		return nil, fmt.Errorf("deck %d: %w", deckID, ErrNotFound)
	}
	if !src.Public {
		return nil, fmt.Errorf("deck %d: %w", deckID, ErrDeckNotPublic)
	}
	cards, err := db.ListDeckCards(ctx, deckID)
	if err != nil {
		return nil, err
	}
	for i := range cards {
		cards[i].ID = 0
	}
	return db.CreateDeck(ctx, domain.Deck{UserID: userID, Topic: src.Topic}, cards, today)
}
