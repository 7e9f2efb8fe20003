package conversations

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRegistry persists conversations and timelines in PostgreSQL.
// Contacts are stored as JSONB; messages keep append order through a serial column.
type PostgresRegistry struct {
	db querier
}

// NewPostgresRegistry creates a registry on top of a pgx pool.
func NewPostgresRegistry(pool *pgxpool.Pool) *PostgresRegistry {
	if pool == nil {
		panic("conversations: pgx pool required")
	}
	return &PostgresRegistry{db: pool}
}

func newPostgresRegistryWithQuerier(db querier) *PostgresRegistry {
	if db == nil {
		panic("conversations: querier required")
	}
	return &PostgresRegistry{db: db}
}

// Get loads a conversation with its full timeline.
func (r *PostgresRegistry) Get(ctx context.Context, id string) (Conversation, error) {
	conv, err := r.header(ctx, id)
	if err != nil {
		return Conversation{}, err
	}
	msgs, err := r.Messages(ctx, id)
	if err != nil {
		return Conversation{}, err
	}
	conv.Messages = msgs
	return conv, nil
}

func (r *PostgresRegistry) header(ctx context.Context, id string) (Conversation, error) {
	var (
		conv    Conversation
		contact []byte
	)
	err := r.db.QueryRow(ctx,
		`SELECT id, contact, unread_count, pinned FROM conversations WHERE id = $1`, id,
	).Scan(&conv.ID, &contact, &conv.UnreadCount, &conv.Pinned)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Conversation{}, ErrConversationNotFound
		}
		return Conversation{}, fmt.Errorf("conversations: get %s: %w", id, err)
	}
	if err := json.Unmarshal(contact, &conv.Contact); err != nil {
		return Conversation{}, fmt.Errorf("conversations: decode contact %s: %w", id, err)
	}
	conv.Messages = []Message{}
	return conv, nil
}

// Contact returns only the contact of a conversation.
func (r *PostgresRegistry) Contact(ctx context.Context, id string) (Contact, error) {
	conv, err := r.header(ctx, id)
	if err != nil {
		return Contact{}, err
	}
	return conv.Contact, nil
}

// List returns conversation headers (without messages), pinned first.
func (r *PostgresRegistry) List(ctx context.Context, filter ListFilter) ([]Conversation, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, contact, unread_count, pinned FROM conversations ORDER BY pinned DESC, created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("conversations: list: %w", err)
	}
	defer rows.Close()

	out := []Conversation{}
	for rows.Next() {
		var (
			conv    Conversation
			contact []byte
		)
		if err := rows.Scan(&conv.ID, &contact, &conv.UnreadCount, &conv.Pinned); err != nil {
			return nil, fmt.Errorf("conversations: scan conversation: %w", err)
		}
		if err := json.Unmarshal(contact, &conv.Contact); err != nil {
			return nil, fmt.Errorf("conversations: decode contact %s: %w", conv.ID, err)
		}
		conv.Messages = []Message{}
		if filter.Matches(conv) {
			out = append(out, conv)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("conversations: list: %w", err)
	}
	SortForInbox(out)
	return out, nil
}

// Messages returns the timeline of a conversation in append order.
func (r *PostgresRegistry) Messages(ctx context.Context, id string) ([]Message, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, sender, content, type, payload, display_time, created_at
		FROM conversation_messages
		WHERE conversation_id = $1
		ORDER BY seq
	`, id)
	if err != nil {
		return nil, fmt.Errorf("conversations: messages %s: %w", id, err)
	}
	defer rows.Close()

	out := []Message{}
	for rows.Next() {
		var (
			msg     Message
			sender  string
			msgType string
			payload []byte
		)
		if err := rows.Scan(&msg.ID, &sender, &msg.Content, &msgType, &payload, &msg.Timestamp, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("conversations: scan message: %w", err)
		}
		msg.Sender = Sender(sender)
		msg.Type = MessageType(msgType)
		if len(payload) > 0 && string(payload) != "null" {
			if err := json.Unmarshal(payload, &msg.Payload); err != nil {
				return nil, fmt.Errorf("conversations: decode payload %s: %w", msg.ID, err)
			}
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

// AppendMessage inserts a message only when the conversation exists.
func (r *PostgresRegistry) AppendMessage(ctx context.Context, id string, msg Message) error {
	tag, err := r.insertMessage(ctx, id, msg, false)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConversationNotFound
	}
	return nil
}

func (r *PostgresRegistry) insertMessage(ctx context.Context, id string, msg Message, ignoreDuplicate bool) (pgconn.CommandTag, error) {
	var payload []byte
	if len(msg.Payload) > 0 {
		data, err := json.Marshal(msg.Payload)
		if err != nil {
			return pgconn.CommandTag{}, fmt.Errorf("conversations: marshal payload: %w", err)
		}
		payload = data
	}
	createdAt := msg.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query := `
		INSERT INTO conversation_messages (id, conversation_id, sender, content, type, payload, display_time, created_at)
		SELECT $1, $2, $3, $4, $5, $6, $7, $8
		WHERE EXISTS (SELECT 1 FROM conversations WHERE id = $2)
	`
	if ignoreDuplicate {
		query += ` ON CONFLICT (id) DO NOTHING`
	}
	tag, err := r.db.Exec(ctx, query,
		msg.ID, id, string(msg.Sender), msg.Content, string(msg.Type), payload, msg.Timestamp, createdAt,
	)
	if err != nil {
		return pgconn.CommandTag{}, fmt.Errorf("conversations: append message %s: %w", id, err)
	}
	return tag, nil
}

// Upsert registers a conversation or refreshes its contact metadata. Seed
// messages are inserted idempotently by id.
func (r *PostgresRegistry) Upsert(ctx context.Context, conv Conversation) error {
	if err := conv.Validate(); err != nil {
		return err
	}
	contact, err := json.Marshal(conv.Contact)
	if err != nil {
		return fmt.Errorf("conversations: marshal contact: %w", err)
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO conversations (id, contact, unread_count, pinned)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET contact = EXCLUDED.contact,
		    unread_count = EXCLUDED.unread_count,
		    pinned = EXCLUDED.pinned,
		    updated_at = now()
	`, conv.ID, contact, conv.UnreadCount, conv.Pinned)
	if err != nil {
		return fmt.Errorf("conversations: upsert %s: %w", conv.ID, err)
	}
	for _, msg := range conv.Messages {
		if _, err := r.insertMessage(ctx, conv.ID, msg, true); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes a conversation; messages cascade.
func (r *PostgresRegistry) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM conversations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("conversations: delete %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConversationNotFound
	}
	return nil
}
