package storage

const schema = `
-- The 'users' table holds the owners of decks and review history.
CREATE TABLE IF NOT EXISTS users (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    username TEXT NOT NULL UNIQUE,
    created_at DATETIME NOT NULL
);

-- The 'sources' table tracks where imported decks come from, either a local directory or a git repository.
CREATE TABLE IF NOT EXISTS sources (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id INTEGER NOT NULL,
    path TEXT NOT NULL UNIQUE,
    type TEXT NOT NULL DEFAULT 'local', -- 'local' or 'git'
    last_scanned DATETIME,

    FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
);

-- The 'decks' table groups flashcards by topic. Public decks are visible to every user.
CREATE TABLE IF NOT EXISTS decks (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id INTEGER NOT NULL,
    topic_name TEXT NOT NULL,
    is_public INTEGER NOT NULL DEFAULT 0,
    source_id INTEGER,
    source_file TEXT,
    created_at DATETIME NOT NULL,

    UNIQUE(source_id, source_file),
    FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE,
    FOREIGN KEY(source_id) REFERENCES sources(id) ON DELETE CASCADE
);

-- The 'cards' table stores each flashcard and its SM-2 schedule.
-- next_review_date is a calendar date in YYYY-MM-DD form.
CREATE TABLE IF NOT EXISTS cards (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    deck_id INTEGER NOT NULL,
    front TEXT NOT NULL,
    back TEXT NOT NULL,
    context TEXT NOT NULL DEFAULT '',
    hash TEXT NOT NULL,
    interval INTEGER NOT NULL DEFAULT 1,
    ease_factor REAL NOT NULL DEFAULT 2.5,
    repetitions INTEGER NOT NULL DEFAULT 0,
    next_review_date TEXT NOT NULL,

    FOREIGN KEY(deck_id) REFERENCES decks(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_cards_deck_hash ON cards(deck_id, hash);
CREATE INDEX IF NOT EXISTS idx_cards_next_review ON cards(next_review_date);

-- The 'review_logs' table keeps one row per rating, used for statistics and streaks.
CREATE TABLE IF NOT EXISTS review_logs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    card_id INTEGER NOT NULL,
    user_id INTEGER NOT NULL,
    quality INTEGER NOT NULL,
    reviewed_on TEXT NOT NULL,
    interval INTEGER NOT NULL,
    ease_factor REAL NOT NULL,
    repetitions INTEGER NOT NULL,

    FOREIGN KEY(card_id) REFERENCES cards(id) ON DELETE CASCADE,
    FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_review_logs_user ON review_logs(user_id, reviewed_on);
`
