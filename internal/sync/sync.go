// Package sync reconciles deck sources with the card store.
package sync

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/brainstormbuddy/studybuddy/internal/cardhash"
	"github.com/brainstormbuddy/studybuddy/internal/domain"
	"github.com/brainstormbuddy/studybuddy/internal/gitsource"
	"github.com/brainstormbuddy/studybuddy/internal/parser"
	"github.com/brainstormbuddy/studybuddy/internal/storage"
)

// Report summarizes a sync run.
type Report struct {
	Sources      int     `json:"sources"`
	Decks        int     `json:"decks"`
	ParsedCards  int     `json:"parsed_cards"`
	NewCards     int     `json:"new_cards"`
	DeletedCards int     `json:"deleted_cards"`
	DeletedDecks int     `json:"deleted_decks"`
	Errors       []error `json:"-"`
}

// Syncer imports decks from every configured source.
type Syncer struct {
	db       *storage.DB
	reposDir string

	// Now is the clock used to schedule newly imported cards.
	Now func() time.Time
}

// New creates a Syncer that checks git sources out under reposDir.
func New(db *storage.DB, reposDir string) *Syncer {
	return &Syncer{db: db, reposDir: reposDir, Now: time.Now}
}

// Run iterates over all sources and reconciles them. Problems with a single
// source or file are collected in the report; only store failures that
// prevent listing sources are returned as errors.
func (s *Syncer) Run(ctx context.Context) (*Report, error) {
	slog.Info("starting sync of all sources")
	sources, err := s.db.GetAllSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("get sources: %w", err)
	}

	report := &Report{}
	if len(sources) == 0 {
		slog.Info("no sources configured, add one with --add-source <path/or/url.git>")
		return report, nil
	}

	for _, source := range sources {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		slog.Info("syncing source", "id", source.ID, "type", source.Type, "path", source.Path)

		root := source.Path
		if source.Type == domain.SourceGit {
			if root, err = s.checkout(ctx, source.Path); err != nil {
				slog.Error("error syncing git repo", "url", source.Path, "error", err)
				report.Errors = append(report.Errors, err)
				continue
			}
		}
		s.reconcile(ctx, source, root, report)
		report.Sources++
	}

	slog.Info("sync complete",
		"sources", report.Sources,
		"new_cards", report.NewCards,
		"deleted_cards", report.DeletedCards,
		"errors", len(report.Errors),
	)
	return report, nil
}

func (s *Syncer) checkout(ctx context.Context, repoURL string) (string, error) {
	if err := os.MkdirAll(s.reposDir, 0o755); err != nil {
		return "", fmt.Errorf("create repos directory: %w", err)
	}
	local, err := gitsource.LocalPath(s.reposDir, repoURL)
	if err != nil {
		return "", err
	}
	if err := gitsource.Sync(ctx, repoURL, local); err != nil {
		return "", err
	}
	return local, nil
}

type cardKey struct {
	deckID int64
	hash   string
}

// reconcile imports every markdown file under root as a deck of the source's
// owner. Cards whose content is unchanged keep their schedule; cards and
// decks no longer present are deleted. A file that cannot be read or matched
// to its deck leaves that deck and its cards untouched.
func (s *Syncer) reconcile(ctx context.Context, source domain.Source, root string, report *Report) {
	today := s.Now()
	seenCards := make(map[cardKey]bool)
	seenDecks := make(map[int64]bool)
	failedFiles := make(map[string]bool)
	var newCards, parsed int
	var errs []error

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
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

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		parsedDeck, err := parser.ParseFile(path)
		if err != nil {
			errs = append(errs, fmt.Errorf("parsing %s: %w", path, err))
			failedFiles[rel] = true
			return nil
		}
		if len(parsedDeck.Cards) == 0 {
			return nil
		}
		parsed += len(parsedDeck.Cards)

		deck, err := s.db.FindDeckBySourceFile(ctx, source.ID, rel)
		if err != nil {
			errs = append(errs, err)
			failedFiles[rel] = true
			return nil
		}
		if deck == nil {
			deck, err = s.db.CreateDeck(ctx, domain.Deck{
				UserID:     source.UserID,
				Topic:      parsedDeck.Topic,
				SourceID:   source.ID,
				SourceFile: rel,
			}, nil, today)
			if err != nil {
				errs = append(errs, err)
				return nil
			}
			slog.Info("new deck found", "topic", deck.Topic, "file", rel)
		}
		seenDecks[deck.ID] = true

		for _, card := range parsedDeck.Cards {
			card.Hash = cardhash.Hash(card)
			seenCards[cardKey{deck.ID, card.Hash}] = true

			existing, err := s.db.FindCardByHash(ctx, deck.ID, card.Hash)
			if err != nil {
				errs = append(errs, fmt.Errorf("db check for %s: %w", card.Hash, err))
				continue
			}
			if existing != nil {
				continue
			}
			slog.Debug("new card found, inserting", "hash", card.Hash)
			if _, err := s.db.InsertCard(ctx, deck.ID, card, today); err != nil {
				errs = append(errs, fmt.Errorf("db insert for %s: %w", card.Hash, err))
				continue
			}
			newCards++
		}
		return nil
	})
	if walkErr != nil {
		slog.Error("error walking directory", "path", root, "error", walkErr)
		report.Errors = append(report.Errors, walkErr)
		return
	}

	decks, err := s.db.ListSourceDecks(ctx, source.ID)
	if err != nil {
		report.Errors = append(report.Errors, err)
		return
	}
	// Decks of files that failed this run are kept as they are.
	kept := make(map[int64]bool)
	for _, d := range decks {
		if failedFiles[d.SourceFile] {
			kept[d.ID] = true
		}
	}

	dbCards, err := s.db.GetCardsBySourceID(ctx, source.ID)
	if err != nil {
		report.Errors = append(report.Errors, err)
		return
	}
	var orphanedCards int
	for _, c := range dbCards {
		if seenCards[cardKey{c.DeckID, c.Hash}] || !seenDecks[c.DeckID] || kept[c.DeckID] {
			continue
		}
		slog.Debug("orphaned card, deleting", "hash", c.Hash)
		if err := s.db.DeleteCard(ctx, c.ID); err != nil {
			slog.Warn("failed to delete orphaned card", "hash", c.Hash, "error", err)
			continue
		}
		orphanedCards++
	}

	for _, d := range decks {
		if seenDecks[d.ID] || kept[d.ID] {
			continue
		}
		slog.Info("deck file removed, deleting deck", "topic", d.Topic, "file", d.SourceFile)
		if err := s.db.DeleteDeck(ctx, d.ID); err != nil {
			slog.Warn("failed to delete deck", "deck_id", d.ID, "error", err)
			continue
		}
		report.DeletedDecks++
	}

	if err := s.db.UpdateSourceLastScanned(ctx, source.ID, today); err != nil {
		slog.Warn("failed to update last scanned for source", "source_id", source.ID, "error", err)
	}

	report.Decks += len(seenDecks)
	report.ParsedCards += parsed
	report.NewCards += newCards
	report.DeletedCards += orphanedCards
	report.Errors = append(report.Errors, errs...)

	slog.Info("reconciliation complete",
		"path", root,
		"parsed_cards", parsed,
		"new_cards", newCards,
		"orphaned_deleted", orphanedCards,
		"errors", len(errs),
	)
}
