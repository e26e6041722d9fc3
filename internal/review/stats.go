package review

import (
	"context"
	"fmt"
	"time"

	"github.com/brainstormbuddy/studybuddy/internal/domain"
	"github.com/brainstormbuddy/studybuddy/internal/srs"
)

// MatureInterval is the interval, in days, from which a card counts as mature.
const MatureInterval = 21

// StatsStore is the persistence boundary for progress statistics.
type StatsStore interface {
	UserCards(ctx context.Context, userID int64) ([]domain.Card, error)
	ReviewDates(ctx context.Context, userID int64) ([]time.Time, error)
	CountReviewsOn(ctx context.Context, userID int64, day time.Time) (int, error)
}

// Stats summarizes a user's progress.
type Stats struct {
	TotalCards    int `json:"total_cards"`
	DueToday      int `json:"due_today"`
	Learning      int `json:"learning"`
	Mature        int `json:"mature"`
	ReviewedToday int `json:"reviewed_today"`
	StreakDays    int `json:"streak_days"`
}

// ComputeStats gathers the user's statistics as of today.
func ComputeStats(ctx context.Context, store StatsStore, userID int64, today time.Time) (*Stats, error) {
	cards, err := store.UserCards(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load cards: %w", err)
	}

	stats := &Stats{TotalCards: len(cards)}
	for _, c := range cards {
		if c.Schedule.Due(today) {
			stats.DueToday++
		}
		if c.Schedule.Mode() == srs.Learning {
			stats.Learning++
		}
		if c.Schedule.Interval >= MatureInterval {
			stats.Mature++
		}
	}

	if stats.ReviewedToday, err = store.CountReviewsOn(ctx, userID, today); err != nil {
		return nil, fmt.Errorf("count reviews: %w", err)
	}

	dates, err := store.ReviewDates(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load review dates: %w", err)
	}
	stats.StreakDays = Streak(dates, today)
	return stats, nil
}

// Streak counts consecutive study days ending today, or yesterday if there
// was no study today yet. dates may be in any order and contain duplicates.
func Streak(dates []time.Time, today time.Time) int {
	days := make(map[time.Time]bool, len(dates))
	for _, d := range dates {
		days[srs.Date(d)] = true
	}

	check := srs.Date(today)
	if !days[check] {
		check = check.AddDate(0, 0, -1)
	}

	streak := 0
	for days[check] {
		streak++
		check = check.AddDate(0, 0, -1)
	}
	return streak
}
