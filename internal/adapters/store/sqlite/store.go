// Package sqlite backs the stores with an embedded database (modernc.org
// driver, no cgo).
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/dkeye/Chatter/internal/core"
	"github.com/dkeye/Chatter/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	user_name TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS conversations (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	name              TEXT NOT NULL,
	last_message_time INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS users_conversations (
	user_id         INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	conversation_id INTEGER NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
	PRIMARY KEY (user_id, conversation_id)
);
CREATE TABLE IF NOT EXISTS messages (
	id              TEXT PRIMARY KEY,
	text            TEXT NOT NULL,
	sent_time       INTEGER NOT NULL,
	sender_id       INTEGER NOT NULL,
	conversation_id INTEGER NOT NULL REFERENCES conversations(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, sent_time);
`

type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("sqlite: enable foreign keys: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) SaveMessage(ctx context.Context, m domain.Message) (domain.Message, error) {
	// INSERT OR IGNORE + re-read keeps the insert idempotent on the
	// client-minted id: retries return the original row.
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO messages (id, text, sent_time, sender_id, conversation_id) VALUES (?, ?, ?, ?, ?)`,
		m.ID, m.Text, m.SentTime, int64(m.SenderID), int64(m.ConversationID))
	if err != nil {
		return domain.Message{}, fmt.Errorf("sqlite: insert message: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE conversations SET last_message_time = MAX(last_message_time, ?) WHERE id = ?`,
		m.SentTime, int64(m.ConversationID))
	if err != nil {
		return domain.Message{}, fmt.Errorf("sqlite: touch conversation: %w", err)
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT id, text, sent_time, sender_id, conversation_id FROM messages WHERE id = ?`, m.ID)
	return scanMessage(row)
}

func (s *Store) MessagesForConversation(ctx context.Context, id domain.ConversationID) ([]domain.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, text, sent_time, sender_id, conversation_id FROM messages WHERE conversation_id = ? ORDER BY sent_time, id`,
		int64(id))
	if err != nil {
		return nil, fmt.Errorf("sqlite: query messages: %w", err)
	}
	defer rows.Close()

	var out []domain.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) CreateUser(ctx context.Context, u domain.User) (domain.User, error) {
	res, err := s.db.ExecContext(ctx, `INSERT INTO users (user_name) VALUES (?)`, u.Name)
	if err != nil {
		return domain.User{}, fmt.Errorf("sqlite: insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.User{}, fmt.Errorf("sqlite: user id: %w", err)
	}
	u.ID = domain.UserID(id)
	return u, nil
}

func (s *Store) User(ctx context.Context, id domain.UserID) (domain.User, error) {
	var u domain.User
	err := s.db.QueryRowContext(ctx, `SELECT id, user_name FROM users WHERE id = ?`, int64(id)).
		Scan(&u.ID, &u.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, core.ErrNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("sqlite: query user: %w", err)
	}
	return u, nil
}

func (s *Store) CreateConversation(ctx context.Context, c domain.Conversation) (domain.Conversation, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Conversation{}, fmt.Errorf("sqlite: begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO conversations (name, last_message_time) VALUES (?, ?)`, c.Name, c.LastMessageTime)
	if err != nil {
		return domain.Conversation{}, fmt.Errorf("sqlite: insert conversation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Conversation{}, fmt.Errorf("sqlite: conversation id: %w", err)
	}
	c.ID = domain.ConversationID(id)

	for _, userID := range c.Participants {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO users_conversations (user_id, conversation_id) VALUES (?, ?)`,
			int64(userID), id); err != nil {
			return domain.Conversation{}, fmt.Errorf("sqlite: insert participant: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.Conversation{}, fmt.Errorf("sqlite: commit: %w", err)
	}
	return c, nil
}

func (s *Store) Conversation(ctx context.Context, id domain.ConversationID) (domain.Conversation, error) {
	var c domain.Conversation
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, last_message_time FROM conversations WHERE id = ?`, int64(id)).
		Scan(&c.ID, &c.Name, &c.LastMessageTime)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Conversation{}, core.ErrNotFound
	}
	if err != nil {
		return domain.Conversation{}, fmt.Errorf("sqlite: query conversation: %w", err)
	}
	c.Participants, err = s.Participants(ctx, id)
	if err != nil {
		return domain.Conversation{}, err
	}
	return c, nil
}

func (s *Store) UpdateConversation(ctx context.Context, c domain.Conversation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE conversations SET name = ?, last_message_time = ? WHERE id = ?`,
		c.Name, c.LastMessageTime, int64(c.ID))
	if err != nil {
		return fmt.Errorf("sqlite: update conversation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrNotFound
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM users_conversations WHERE conversation_id = ?`, int64(c.ID)); err != nil {
		return fmt.Errorf("sqlite: clear participants: %w", err)
	}
	for _, userID := range c.Participants {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO users_conversations (user_id, conversation_id) VALUES (?, ?)`,
			int64(userID), int64(c.ID)); err != nil {
			return fmt.Errorf("sqlite: insert participant: %w", err)
		}
	}
	return tx.Commit()
}

func (s *Store) ConversationsForUser(ctx context.Context, id domain.UserID) ([]domain.Conversation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.id, c.name, c.last_message_time
		 FROM conversations c
		 JOIN users_conversations uc ON uc.conversation_id = c.id
		 WHERE uc.user_id = ?
		 ORDER BY c.last_message_time DESC`, int64(id))
	if err != nil {
		return nil, fmt.Errorf("sqlite: query conversations: %w", err)
	}
	defer rows.Close()

	var out []domain.Conversation
	for rows.Next() {
		var c domain.Conversation
		if err := rows.Scan(&c.ID, &c.Name, &c.LastMessageTime); err != nil {
			return nil, fmt.Errorf("sqlite: scan conversation: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if out[i].Participants, err = s.Participants(ctx, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Store) Participants(ctx context.Context, id domain.ConversationID) ([]domain.UserID, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id FROM users_conversations WHERE conversation_id = ? ORDER BY user_id`, int64(id))
	if err != nil {
		return nil, fmt.Errorf("sqlite: query participants: %w", err)
	}
	defer rows.Close()

	var out []domain.UserID
	for rows.Next() {
		var userID int64
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("sqlite: scan participant: %w", err)
		}
		out = append(out, domain.UserID(userID))
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(row scanner) (domain.Message, error) {
	var m domain.Message
	var senderID, convID int64
	if err := row.Scan(&m.ID, &m.Text, &m.SentTime, &senderID, &convID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Message{}, core.ErrNotFound
		}
		return domain.Message{}, fmt.Errorf("sqlite: scan message: %w", err)
	}
	m.SenderID = domain.UserID(senderID)
	m.ConversationID = domain.ConversationID(convID)
	return m, nil
}
