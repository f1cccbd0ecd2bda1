package storage

const schema = `
-- The 'decks' table groups cards into named collections.
CREATE TABLE IF NOT EXISTS decks (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL
);

-- The 'cards' table stores card content and its scheduling state.
-- kind selects which content columns are used: 'text' uses front/back,
-- 'code' uses question/code/expected_output.
CREATE TABLE IF NOT EXISTS cards (
    id TEXT PRIMARY KEY,
    deck_id TEXT NOT NULL,
    source_id INTEGER, -- NULL for cards created by hand
    hash TEXT NOT NULL,
    kind TEXT NOT NULL DEFAULT 'text',
    front TEXT NOT NULL DEFAULT '',
    back TEXT NOT NULL DEFAULT '',
    question TEXT NOT NULL DEFAULT '',
    code TEXT NOT NULL DEFAULT '',
    expected_output TEXT NOT NULL DEFAULT '',
    ease_factor REAL NOT NULL DEFAULT 2.5,
    interval_days INTEGER NOT NULL DEFAULT 0,
    repetitions INTEGER NOT NULL DEFAULT 0,
    last_reviewed DATETIME,
    next_review DATETIME, -- NULL: never reviewed, due now
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL,

    UNIQUE(deck_id, hash),
    FOREIGN KEY(deck_id) REFERENCES decks(id) ON DELETE CASCADE,
    FOREIGN KEY(source_id) REFERENCES sources(id) ON DELETE SET NULL
);

CREATE INDEX IF NOT EXISTS idx_cards_deck_id ON cards(deck_id);
CREATE INDEX IF NOT EXISTS idx_cards_source_id ON cards(source_id);

-- The 'review_logs' table keeps one row per review and the schedule it produced.
CREATE TABLE IF NOT EXISTS review_logs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    card_id TEXT NOT NULL,
    reviewed_at DATETIME NOT NULL,
    quality INTEGER NOT NULL,
    ease_factor REAL NOT NULL,
    interval_days INTEGER NOT NULL,
    repetitions INTEGER NOT NULL,
    next_review DATETIME,

    FOREIGN KEY(card_id) REFERENCES cards(id) ON DELETE CASCADE
);

-- The 'sources' table tracks where a deck's cards are imported from,
-- either a local directory or a git repository.
CREATE TABLE IF NOT EXISTS sources (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    path TEXT NOT NULL UNIQUE,
    type TEXT NOT NULL DEFAULT 'local', -- 'local' or 'git'
    deck_id TEXT NOT NULL,
    last_scanned DATETIME,

    FOREIGN KEY(deck_id) REFERENCES decks(id) ON DELETE CASCADE
);
`
