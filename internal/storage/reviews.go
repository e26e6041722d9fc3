package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/brainstormbuddy/studybuddy/internal/domain"
)

// RecordReview saves the new schedule of a reviewed card and appends the
// review to the log, atomically. The save fails with ErrStaleSchedule if the
// card was rescheduled after r.Before was read.
func (db *DB) RecordReview(ctx context.Context, r domain.Review) error {
	return db.inTx(ctx, func(tx *sql.Tx) error {
		if err := saveSchedule(ctx, tx, r.CardID, r.Before, r.After); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO review_logs (card_id, user_id, quality, reviewed_on, interval, ease_factor, repetitions)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`,
			r.CardID,
			r.UserID,
			int(r.Quality),
			formatDate(r.ReviewedOn),
			r.After.Interval,
			r.After.EaseFactor,
			r.After.Repetitions,
		)
		if err != nil {
			return fmt.Errorf("failed to log review of card %d: %w", r.CardID, err)
		}
		return nil
	})
}

// ReviewDates returns the distinct days on which the user reviewed cards, newest first.
func (db *DB) ReviewDates(ctx context.Context, userID int64) ([]time.Time, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT DISTINCT reviewed_on FROM review_logs
		WHERE user_id = ?
		ORDER BY reviewed_on DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get review dates for user %d: %w", userID, err)
	}
	defer rows.Close()

	var dates []time.Time
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("failed to scan review date: %w", err)
		}
		d, err := parseDate(s)
		if err != nil {
			return nil, err
		}
		dates = append(dates, d)
	}
	return dates, rows.Err()
}

// CountReviewsOn returns how many ratings the user gave on the given day.
func (db *DB) CountReviewsOn(ctx context.Context, userID int64, day time.Time) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM review_logs WHERE user_id = ? AND reviewed_on = ?
	`, userID, formatDate(day)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count reviews for user %d: %w", userID, err)
	}
	return n, nil
}
