package domain

import (
	"time"

	"github.com/brainstormbuddy/studybuddy/internal/srs"
)

// User owns decks and review history. Authentication lives elsewhere.
type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

// Deck is a named collection of flashcards belonging to one user.
// Decks imported from a source remember the file they came from.
type Deck struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"user_id"`
	Topic      string    `json:"topic"`
	Public     bool      `json:"public"`
	SourceID   int64     `json:"source_id,omitempty"`
	SourceFile string    `json:"source_file,omitempty"`
	CardCount  int       `json:"card_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// Card is a single front/back flashcard with its schedule.
type Card struct {
	ID       int64     `json:"id"`
	DeckID   int64     `json:"deck_id"`
	Front    string    `json:"front"`
	Back     string    `json:"back"`
	Context  string    `json:"context,omitempty"`
	Hash     string    `json:"hash,omitempty"`
	Schedule srs.State `json:"schedule"`
}

// Review records one rating of a card and the schedule it produced.
type Review struct {
	CardID     int64       `json:"card_id"`
	UserID     int64       `json:"user_id"`
	Quality    srs.Quality `json:"quality"`
	ReviewedOn time.Time   `json:"reviewed_on"`
	Before     srs.State   `json:"before"`
	After      srs.State   `json:"after"`
}

// Source types.
const (
	SourceLocal = "local"
	SourceGit   = "git"
)

// Source is a local directory or git repository holding markdown decks.
type Source struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id"`
	Path        string    `json:"path"`
	Type        string    `json:"type"`
	LastScanned time.Time `json:"last_scanned,omitempty"`
}
