// Package review drives spaced-repetition review sessions: it takes a
// snapshot of a user's due cards, presents them one at a time, collects one
// rating per card, reschedules the card and persists the result before
// moving on.
package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/brainstormbuddy/studybuddy/internal/domain"
	"github.com/brainstormbuddy/studybuddy/internal/srs"
	"github.com/brainstormbuddy/studybuddy/internal/storage"
)

var (
	// ErrSessionDone is returned when rating after the last card.
	ErrSessionDone = errors.New("no cards left in session")
	// ErrAnswerHidden is returned when rating a card whose answer was not shown.
	ErrAnswerHidden = errors.New("answer has not been revealed")
	// ErrUnknownSession is returned for an ID the manager does not hold.
	ErrUnknownSession = errors.New("unknown review session")
)

// CardStore is the persistence boundary a session needs. RecordReview
// reports storage.ErrStaleSchedule when the card was rescheduled since it was
// read and storage.ErrNotFound when it no longer exists.
type CardStore interface {
	DueCards(ctx context.Context, userID int64, today time.Time) ([]domain.Card, error)
	RecordReview(ctx context.Context, r domain.Review) error
}

// Ratings offered to the learner.
var Ratings = map[string]srs.Quality{
	"hard": srs.Hard,
	"good": srs.Good,
	"easy": srs.Easy,
}

// ParseRating accepts a rating name or its numeric quality. Only the three
// offered ratings are accepted.
func ParseRating(s string) (srs.Quality, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if q, ok := Ratings[s]; ok {
		return q, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		if err := checkRating(srs.Quality(n)); err != nil {
			return 0, err
		}
		return srs.Quality(n), nil
	}
	return 0, fmt.Errorf("%w: rating %q", srs.ErrInvalidInput, s)
}

func checkRating(q srs.Quality) error {
	switch q {
	case srs.Hard, srs.Good, srs.Easy:
		return nil
	}
	return fmt.Errorf("%w: rating %d is not one of %d, %d, %d", srs.ErrInvalidInput, q, srs.Hard, srs.Good, srs.Easy)
}

// Session is the state of one pass over a user's due cards.
// The queue is fixed when the session starts.
type Session struct {
	ID        string
	UserID    int64
	StartedAt time.Time

	mu       sync.Mutex
	store    CardStore
	params   *srs.Params
	now      func() time.Time
	queue    []domain.Card
	pos      int
	revealed bool
	reviewed int
	skipped  int

	lastUsed time.Time // guarded by Manager.mu
}

// Snapshot is a read-only view of a session for callers.
type Snapshot struct {
	ID        string       `json:"id"`
	UserID    int64        `json:"user_id"`
	Total     int          `json:"total"`
	Reviewed  int          `json:"reviewed"`
	Skipped   int          `json:"skipped"`
	Remaining int          `json:"remaining"`
	Revealed  bool         `json:"revealed"`
	Card      *domain.Card `json:"card,omitempty"`
}

// Snapshot returns the current position. The card's back and context are
// blanked until the answer is revealed.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		ID:        s.ID,
		UserID:    s.UserID,
		Total:     len(s.queue),
		Reviewed:  s.reviewed,
		Skipped:   s.skipped,
		Remaining: len(s.queue) - s.pos,
		Revealed:  s.revealed,
	}
	if s.pos < len(s.queue) {
		card := s.queue[s.pos]
		if !s.revealed {
			card.Back = ""
			card.Context = ""
		}
		snap.Card = &card
	}
	return snap
}

// Current returns the card being shown, or false when the session is finished.
func (s *Session) Current() (domain.Card, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pos >= len(s.queue) {
		return domain.Card{}, false
	}
	return s.queue[s.pos], true
}

// Done reports whether every card has been rated.
func (s *Session) Done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos >= len(s.queue)
}

// Reveal shows the back of the current card.
func (s *Session) Reveal() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pos >= len(s.queue) {
		return ErrSessionDone
	}
	s.revealed = true
	return nil
}

// Rate applies the learner's rating to the current card, persists the new
// schedule and advances. If the card was rescheduled by another session or
// deleted meanwhile, it is dropped from this session and the store error is
// returned. On any other error the session stays on the same card.
func (s *Session) Rate(ctx context.Context, q srs.Quality) (srs.State, error) {
	if err := checkRating(q); err != nil {
		return srs.State{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pos >= len(s.queue) {
		return srs.State{}, ErrSessionDone
	}
	if !s.revealed {
		return srs.State{}, ErrAnswerHidden
	}

	card := s.queue[s.pos]
	today := s.now()
	next, err := s.params.Schedule(card.Schedule, q, today)
	if err != nil {
		return srs.State{}, fmt.Errorf("schedule card %d: %w", card.ID, err)
	}

	err = s.store.RecordReview(ctx, domain.Review{
		CardID:     card.ID,
		UserID:     s.UserID,
		Quality:    q,
		ReviewedOn: srs.Date(today),
		Before:     card.Schedule,
		After:      next,
	})
	if err != nil {
		if errors.Is(err, storage.ErrStaleSchedule) || errors.Is(err, storage.ErrNotFound) {
			slog.Info("card changed outside session, skipping", "session", s.ID, "card_id", card.ID, "error", err)
			s.pos++
			s.skipped++
			s.revealed = false
		}
		return srs.State{}, fmt.Errorf("record review of card %d: %w", card.ID, err)
	}

	slog.Debug("card reviewed",
		"session", s.ID,
		"card_id", card.ID,
		"quality", int(q),
		"interval", next.Interval,
		"ease_factor", next.EaseFactor,
		"next_review", next.NextReviewDate.Format(time.DateOnly),
	)

	s.queue[s.pos].Schedule = next
	s.pos++
	s.reviewed++
	s.revealed = false
	return next, nil
}

// Default session limits.
const (
	DefaultIdleTimeout     = 2 * time.Hour
	DefaultSessionsPerUser = 3
)

// Manager owns the live sessions. Sessions idle for longer than IdleTimeout
// are evicted, and a user holds at most SessionsPerUser sessions; starting
// one more evicts that user's least recently used session.
type Manager struct {
	store    CardStore
	params   *srs.Params
	maxCards int

	// Now is the clock used for due dates and review days.
	Now             func() time.Time
	IdleTimeout     time.Duration
	SessionsPerUser int

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a manager. maxCards limits the queue size of a
// session; zero means no limit.
func NewManager(store CardStore, params *srs.Params, maxCards int) *Manager {
	if params == nil {
		params = srs.DefaultParams()
	}
	return &Manager{
		store:           store,
		params:          params,
		maxCards:        maxCards,
		Now:             time.Now,
		IdleTimeout:     DefaultIdleTimeout,
		SessionsPerUser: DefaultSessionsPerUser,
		sessions:        make(map[string]*Session),
	}
}

// Start snapshots the user's due cards into a new session.
func (m *Manager) Start(ctx context.Context, userID int64) (*Session, error) {
	now := m.Now()
	due, err := m.store.DueCards(ctx, userID, now)
	if err != nil {
		return nil, fmt.Errorf("load due cards: %w", err)
	}
	if m.maxCards > 0 && len(due) > m.maxCards {
		due = due[:m.maxCards]
	}

	s := &Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		StartedAt: now,
		store:     m.store,
		params:    m.params,
		now:       m.Now,
		queue:     due,
		lastUsed:  now,
	}

	m.mu.Lock()
	m.evictIdle(now)
	m.evictOldest(userID)
	m.sessions[s.ID] = s
	m.mu.Unlock()

	slog.Info("review session started", "session", s.ID, "user_id", userID, "due", len(due))
	return s, nil
}

// evictIdle drops sessions unused for longer than IdleTimeout. m.mu must be held.
func (m *Manager) evictIdle(now time.Time) {
	if m.IdleTimeout <= 0 {
		return
	}
	for id, s := range m.sessions {
		if now.Sub(s.lastUsed) > m.IdleTimeout {
			delete(m.sessions, id)
			slog.Info("review session expired", "session", id, "user_id", s.UserID)
		}
	}
}

// evictOldest makes room for one more session of userID. m.mu must be held.
func (m *Manager) evictOldest(userID int64) {
	if m.SessionsPerUser <= 0 {
		return
	}
	for {
		var oldest *Session
		count := 0
		for _, s := range m.sessions {
			if s.UserID != userID {
				continue
			}
			count++
			if oldest == nil || s.lastUsed.Before(oldest.lastUsed) {
				oldest = s
			}
		}
		if count < m.SessionsPerUser {
			return
		}
		delete(m.sessions, oldest.ID)
		slog.Info("review session evicted", "session", oldest.ID, "user_id", userID)
	}
}

// Get returns a live session and marks it as used.
func (m *Manager) Get(id string) (*Session, error) {
	now := m.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if ok && m.IdleTimeout > 0 && now.Sub(s.lastUsed) > m.IdleTimeout {
		delete(m.sessions, id)
		ok = false
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	s.lastUsed = now
	return s, nil
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// End discards a session. Reviews already rated stay persisted.
func (m *Manager) End(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	snap := s.Snapshot()
	slog.Info("review session ended", "session", id, "reviewed", snap.Reviewed, "remaining", snap.Remaining)
	return nil
}
