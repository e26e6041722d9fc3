package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/brainstormbuddy/studybuddy/internal/domain"
	"github.com/brainstormbuddy/studybuddy/internal/gitsource"
)

var (
	// ErrSourceExists is returned when registering a path twice.
	ErrSourceExists = errors.New("source already exists")
	// ErrBadSource is returned for a local path that is not a readable
	// directory or a git URL that cannot be checked out under the repos directory.
	ErrBadSource = errors.New("invalid source")
)

// AddSource registers a local directory or git URL for a user. Local paths
// are stored absolute so later syncs do not depend on the working directory.
func (s *Syncer) AddSource(ctx context.Context, userID int64, path string) (*domain.Source, error) {
	source := domain.Source{UserID: userID, Path: path, Type: domain.SourceLocal}
	if gitsource.IsRemote(path) {
		source.Type = domain.SourceGit
		if _, err := gitsource.LocalPath(s.reposDir, path); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadSource, err)
		}
	} else {
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", path, err)
		}
		info, err := os.Stat(abs)
		if err != nil || !info.IsDir() {
			return nil, fmt.Errorf("%w: %s is not a directory", ErrBadSource, abs)
		}
		source.Path = abs
	}

	existing, err := s.db.FindSourceByPath(ctx, source.Path)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: %s", ErrSourceExists, source.Path)
	}

	if source.ID, err = s.db.InsertSource(ctx, userID, source.Path, source.Type); err != nil {
		return nil, err
	}
	slog.Info("source added", "id", source.ID, "type", source.Type, "path", source.Path)
	return &source, nil
}
