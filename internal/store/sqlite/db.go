// Package sqlite implements the store contracts on SQLite.
package sqlite

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/halodesk/support-platform/internal/store"
)

// Open opens the SQLite database and runs migrations.
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
	if err := migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// New bundles the sqlite repositories into a store.
func New(db *sql.DB) *store.Store {
	return &store.Store{
		Conversations: NewConversationRepo(db),
		Messages:      NewMessageRepo(db),
		Contacts:      NewContactRepo(db),
		Users:         NewUserRepo(db),
		Notifications: NewNotificationRepo(db),
	}
}

// migrate applies an idempotent set of CREATE TABLE / CREATE INDEX statements.
func migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY,
			name VARCHAR(100) NOT NULL,
			role VARCHAR(20) NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS contacts (
			id INTEGER PRIMARY KEY,
			phone VARCHAR(32) UNIQUE NOT NULL,
			name VARCHAR(100),
			verified BOOLEAN DEFAULT 0,
			company_id INTEGER,
			created_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS conversations (
			id INTEGER PRIMARY KEY,
			contact_id INTEGER NOT NULL,
			status VARCHAR(20) NOT NULL,
			priority VARCHAR(10) NOT NULL,
			assignment_state VARCHAR(20) NOT NULL,
			assigned_agent_id INTEGER,
			assigned_by_user_id INTEGER,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			first_response_at DATETIME,
			agent_request_at DATETIME,
			assigned_at DATETIME,
			agent_first_message_at DATETIME,
			agent_last_message_at DATETIME,
			client_last_message_at DATETIME,
			warning_sent_at DATETIME,
			closed_at DATETIME,
			avg_agent_response_seconds REAL,
			version INTEGER NOT NULL DEFAULT 1,
			FOREIGN KEY (contact_id) REFERENCES contacts(id)
		);`,
		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY,
			conversation_id INTEGER NOT NULL,
			external_id VARCHAR(128),
			sender_user_id INTEGER,
			sender_contact_id INTEGER,
			body TEXT,
			interactive_reply_id VARCHAR(128),
			interactive_reply_title VARCHAR(256),
			status VARCHAR(16) NOT NULL,
			sent_at DATETIME NOT NULL,
			delivered_at DATETIME,
			read_at DATETIME,
			FOREIGN KEY (conversation_id) REFERENCES conversations(id)
		);`,
		`CREATE TABLE IF NOT EXISTS attachments (
			id INTEGER PRIMARY KEY,
			message_id INTEGER UNIQUE NOT NULL,
			provider_media_id VARCHAR(128),
			mime_type VARCHAR(128),
			file_name VARCHAR(256),
			caption TEXT,
			url TEXT,
			FOREIGN KEY (message_id) REFERENCES messages(id)
		);`,
		`CREATE TABLE IF NOT EXISTS notifications (
			id VARCHAR(36) PRIMARY KEY,
			type VARCHAR(40) NOT NULL,
			title VARCHAR(256) NOT NULL,
			body TEXT,
			conversation_id INTEGER,
			created_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS notification_recipients (
			notification_id VARCHAR(36) NOT NULL,
			user_id INTEGER NOT NULL,
			read_at DATETIME,
			PRIMARY KEY (notification_id, user_id),
			FOREIGN KEY (notification_id) REFERENCES notifications(id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_contact ON conversations(contact_id, status);`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_status_created ON conversations(status, created_at);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, id);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_external ON messages(external_id);`,
		`CREATE INDEX IF NOT EXISTS idx_notif_recipients_user ON notification_recipients(user_id);`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
