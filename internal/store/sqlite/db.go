package sqlite

import (
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// Open opens a SQLite database with the given DSN.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys = ON;`); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	return db, nil
}

// Migrate creates the schema. Statements are idempotent so this can run on
// every startup.
//
// Conversations store the participant pair in canonical order
// (user_lo_id < user_hi_id); the unique index on the pair is what arbitrates
// concurrent get-or-create races. Message ids come from AUTOINCREMENT, which
// keeps them monotonic and usable as a tie-break for equal sent_at values.
// The messages foreign key cascades so purging a conversation removes its
// messages in the same transaction.
func Migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY,
			username VARCHAR(50) UNIQUE NOT NULL,
			avatar_url TEXT DEFAULT NULL,
			hashed_password VARCHAR(255) NOT NULL,
			is_active BOOLEAN DEFAULT TRUE,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			last_seen DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS conversations (
			id INTEGER PRIMARY KEY,
			user_lo_id INTEGER NOT NULL,
			user_hi_id INTEGER NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			deleted_for_lo BOOLEAN DEFAULT 0,
			deleted_for_hi BOOLEAN DEFAULT 0,
			FOREIGN KEY (user_lo_id) REFERENCES users(id),
			FOREIGN KEY (user_hi_id) REFERENCES users(id),
			CHECK (user_lo_id < user_hi_id)
		);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_conversations_pair
			ON conversations(user_lo_id, user_hi_id);`,
		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			conversation_id INTEGER NOT NULL,
			sender_id INTEGER NOT NULL,
			receiver_id INTEGER NOT NULL,
			content TEXT NOT NULL,
			sent_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			status INTEGER NOT NULL DEFAULT 0,
			FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE,
			FOREIGN KEY (sender_id) REFERENCES users(id),
			FOREIGN KEY (receiver_id) REFERENCES users(id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_users_username ON users(username);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, sent_at, id);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_receiver_status ON messages(receiver_id, status);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_sender ON messages(sender_id);`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	return nil
}

// isUniqueViolation reports whether err is a SQLite unique-constraint error.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
