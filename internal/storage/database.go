package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/brainstormbuddy/studybuddy/internal/domain"
	_ "modernc.org/sqlite" // Registers the sqlite driver
)

// dateLayout is the on-disk form of calendar dates.
const dateLayout = "2006-01-02"

var (
	// ErrNotFound is returned when an update targets a row that does not exist.
	ErrNotFound = errors.New("not found")
	// ErrStaleSchedule is returned when a card's stored schedule no longer
	// matches the one the caller reviewed, i.e. it was reviewed concurrently.
	ErrStaleSchedule = errors.New("card schedule changed since it was read")
	// ErrDeckNotPublic is returned when cloning a deck its owner has not shared.
	ErrDeckNotPublic = errors.New("deck is not public")
)

// DB represents a wrapper around the SQL database connection.
type DB struct {
	conn *sql.DB
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Open creates a new database connection and ensures the schema is up to date.
func Open(dsn string) (*DB, error) {
	db, err := sql.Open("sqlite", withPragmas(dsn))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection serializes writers, which SQLite requires anyway.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &DB{conn: db}, nil
}

// withPragmas enables foreign keys and a busy timeout unless the DSN already sets pragmas.
func withPragmas(dsn string) string {
	if strings.Contains(dsn, "_pragma=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// inTx runs fn in a transaction, committing on success.
func (db *DB) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// checkAffected turns an update or delete that matched no row into ErrNotFound.
func checkAffected(res sql.Result, what string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows for %s %d: %w", what, id, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", what, id, ErrNotFound)
	}
	return nil
}

func formatDate(t time.Time) string {
	return t.Format(dateLayout)
}

func parseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(dateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid stored date %q: %w", s, err)
	}
	return t, nil
}

// CreateUser inserts a new user and returns it.
func (db *DB) CreateUser(ctx context.Context, username string) (*domain.User, error) {
	now := time.Now().UTC()
	res, err := db.conn.ExecContext(ctx, `
		INSERT INTO users (username, created_at) VALUES (?, ?)
	`, username, now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert user %s: %w", username, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get last insert ID for user %s: %w", username, err)
	}
	return &domain.User{ID: id, Username: username, CreatedAt: now}, nil
}

// FindUser retrieves a user by ID. It returns nil, nil when there is none.
func (db *DB) FindUser(ctx context.Context, id int64) (*domain.User, error) {
	return db.findUser(ctx, `SELECT id, username, created_at FROM users WHERE id = ?`, id)
}

// FindUserByName retrieves a user by username. It returns nil, nil when there is none.
func (db *DB) FindUserByName(ctx context.Context, username string) (*domain.User, error) {
	return db.findUser(ctx, `SELECT id, username, created_at FROM users WHERE username = ?`, username)
}

func (db *DB) findUser(ctx context.Context, query string, arg any) (*domain.User, error) {
	var u domain.User
	err := db.conn.QueryRowContext(ctx, query, arg).Scan(&u.ID, &u.Username, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find user %v: %w", arg, err)
	}
	return &u, nil
}
