package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"rick-api/models"
)

// The schema sticks to types both postgres and sqlite understand. Timestamps
// are written in UTC by the store, so TIMESTAMP without zone is sufficient.
// seq numbers messages per conversation in insertion order and breaks
// created_at ties or clock steps.
const schema = `
CREATE TABLE IF NOT EXISTS conversations (
    id UUID PRIMARY KEY,
    title TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
    id UUID PRIMARY KEY,
    conversation_id UUID NOT NULL REFERENCES conversations(id),
    role TEXT NOT NULL,
    content TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    seq BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS messages_conversation_seq_idx
    ON messages (conversation_id, seq);`

// Store persists conversations and their messages
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Option configures a Store
type Option func(*Store)

// WithClock overrides the time source used for created_at values
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New wraps an open database handle
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open connects to the database with the given driver ("postgres" or "sqlite3"),
// verifies the connection and creates the schema.
func Open(ctx context.Context, driver, dsn string, opts ...Option) (*Store, error) {
	if driver == "sqlite3" {
		dsn = sqliteDSN(dsn)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driver, err)
	}
	if driver == "sqlite3" {
		// sqlite allows a single writer; in-memory databases also live per connection.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s database: %w", driver, err)
	}

	s := New(db, opts...)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// sqliteDSN turns on foreign key enforcement, which sqlite leaves off per connection.
func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "_foreign_keys=") || strings.Contains(dsn, "_fk=") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&_foreign_keys=on"
	}
	return dsn + "?_foreign_keys=on"
}

// DB exposes the underlying handle for pool tuning
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close releases the database handle
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates the tables if they do not exist yet
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

// EnsureConversation returns id when it is set, otherwise it creates a new
// conversation with the given title and returns its generated id.
// A supplied id is not checked for existence.
func (s *Store) EnsureConversation(ctx context.Context, id uuid.UUID, title string) (uuid.UUID, error) {
	if id != uuid.Nil {
		return id, nil
	}

	conv, err := s.CreateConversation(ctx, title)
	if err != nil {
		return uuid.Nil, err
	}
	return conv.ID, nil
}

// CreateConversation inserts a new conversation
func (s *Store) CreateConversation(ctx context.Context, title string) (models.Conversation, error) {
	conv := models.Conversation{
		ID:        uuid.New(),
		Title:     title,
		CreatedAt: s.now().UTC(),
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO conversations (id, title, created_at) VALUES ($1, $2, $3)",
		conv.ID, conv.Title, conv.CreatedAt)
	if err != nil {
		return models.Conversation{}, fmt.Errorf("insert conversation: %w", err)
	}
	return conv, nil
}

// AppendMessage stores a message at the end of a conversation.
// Concurrent appends to one conversation may share a seq; ordering is only
// guaranteed between sequential appends.
func (s *Store) AppendMessage(ctx context.Context, conversationID uuid.UUID, role models.Role, content string) (models.Message, error) {
	var last int64
	err := s.db.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(seq), 0) FROM messages WHERE conversation_id = $1",
		conversationID).Scan(&last)
	if err != nil {
		return models.Message{}, fmt.Errorf("next message seq: %w", err)
	}

	msg := models.Message{
		ID:             uuid.New(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      s.now().UTC(),
		Seq:            last + 1,
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO messages (id, conversation_id, role, content, created_at, seq) VALUES ($1, $2, $3, $4, $5, $6)",
		msg.ID, msg.ConversationID, string(msg.Role), msg.Content, msg.CreatedAt, msg.Seq)
	if err != nil {
		return models.Message{}, fmt.Errorf("insert %s message: %w", role, err)
	}
	return msg, nil
}

// ListConversations returns all conversations, newest first
func (s *Store) ListConversations(ctx context.Context) ([]models.Conversation, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, title, created_at FROM conversations ORDER BY created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer rows.Close()

	conversations := []models.Conversation{}
	for rows.Next() {
		var conv models.Conversation
		if err := rows.Scan(&conv.ID, &conv.Title, &conv.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		conversations = append(conversations, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversations: %w", err)
	}
	return conversations, nil
}

// GetHistory returns the messages of one conversation, oldest first.
// An unknown conversation yields an empty slice.
func (s *Store) GetHistory(ctx context.Context, conversationID uuid.UUID) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, conversation_id, role, content, created_at, seq FROM messages WHERE conversation_id = $1 ORDER BY seq ASC, created_at ASC",
		conversationID)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		var (
			msg  models.Message
			role string
		)
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &role, &msg.Content, &msg.CreatedAt, &msg.Seq); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.Role = models.Role(role)
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return messages, nil
}
