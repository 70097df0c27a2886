package chat

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"expertly/cmd/identity"
	"expertly/cmd/identity/ids"
)

// PostgresStore implements Store on top of pgx.
//
// The (initiator_id, expert_id) pair is unique regardless of order via the
// pair_key generated column, so concurrent createOrGet calls for the same
// pair converge on one row.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an existing pool. The caller owns the pool lifecycle.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

var _ Store = (*PostgresStore)(nil)

const chatSchemaSQL = `
CREATE SCHEMA IF NOT EXISTS expertly;

CREATE TABLE IF NOT EXISTS expertly.conversations (
    id                 TEXT PRIMARY KEY,
    initiator_id       TEXT NOT NULL REFERENCES expertly.accounts(id) ON DELETE CASCADE,
    expert_id          TEXT NOT NULL REFERENCES expertly.accounts(id) ON DELETE CASCADE,
    initiator_language TEXT NOT NULL DEFAULT '',
    expert_language    TEXT NOT NULL DEFAULT '',
    last_message       TEXT NOT NULL DEFAULT '',
    last_message_at    TIMESTAMPTZ,
    created_at         TIMESTAMPTZ NOT NULL,
    updated_at         TIMESTAMPTZ NOT NULL,
    pair_key           TEXT GENERATED ALWAYS AS (
        LEAST(initiator_id, expert_id) || ':' || GREATEST(initiator_id, expert_id)
    ) STORED,
    CONSTRAINT conversations_distinct_parties CHECK (initiator_id <> expert_id)
);

CREATE UNIQUE INDEX IF NOT EXISTS conversations_pair_key_idx
    ON expertly.conversations (pair_key);
CREATE INDEX IF NOT EXISTS conversations_initiator_idx
    ON expertly.conversations (initiator_id);
CREATE INDEX IF NOT EXISTS conversations_expert_idx
    ON expertly.conversations (expert_id);

CREATE TABLE IF NOT EXISTS expertly.messages (
    id                 TEXT PRIMARY KEY,
    conversation_id    TEXT NOT NULL REFERENCES expertly.conversations(id) ON DELETE CASCADE,
    sender_id          TEXT NOT NULL REFERENCES expertly.accounts(id) ON DELETE CASCADE,
    sender_role        TEXT NOT NULL DEFAULT 'user',
    content            TEXT NOT NULL,
    translated_content TEXT NOT NULL DEFAULT '',
    source_language    TEXT NOT NULL DEFAULT '',
    target_language    TEXT NOT NULL DEFAULT '',
    is_translated      BOOLEAN NOT NULL DEFAULT FALSE,
    created_at         TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS messages_conversation_idx
    ON expertly.messages (conversation_id, created_at, id);
`

// EnsureSchema creates the chat tables if they do not exist. Must run after
// the identity schema (accounts are referenced).
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, chatSchemaSQL)
	return err
}

const conversationColumns = `id, initiator_id, expert_id, initiator_language, expert_language,
	last_message, last_message_at, created_at, updated_at`

func scanConversation(row pgx.Row) (Conversation, error) {
	var c Conversation
	err := row.Scan(
		&c.ID, &c.InitiatorID, &c.ExpertID, &c.InitiatorLanguage, &c.ExpertLanguage,
		&c.LastMessage, &c.LastMessageAt, &c.CreatedAt, &c.UpdatedAt,
	)
	return c, err
}

func (s *PostgresStore) CreateConversation(ctx context.Context, conv Conversation) (Conversation, error) {
	const op = "chat.CreateConversation"

	if conv.InitiatorID == "" || conv.ExpertID == "" || conv.InitiatorID == conv.ExpertID {
		return Conversation{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "two distinct participants required"}
	}

	now := conv.CreatedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}
	id, err := ids.NewULID(now)
	if err != nil {
		return Conversation{}, err
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO expertly.conversations
			(id, initiator_id, expert_id, initiator_language, expert_language, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		RETURNING `+conversationColumns,
		id, conv.InitiatorID, conv.ExpertID,
		conv.InitiatorLanguage, conv.ExpertLanguage, now,
	)

	created, err := scanConversation(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23505":
				// Lost the race: return the existing pair row.
				return s.FindConversationByPair(ctx, conv.InitiatorID, conv.ExpertID)
			case "23503":
				return Conversation{}, NotFoundError{Op: op, Resource: "account"}
			case "23514":
				return Conversation{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "two distinct participants required"}
			}
		}
		return Conversation{}, err
	}
	return created, nil
}

func (s *PostgresStore) GetConversation(ctx context.Context, id string) (Conversation, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+conversationColumns+` FROM expertly.conversations WHERE id = $1`, id)
	c, err := scanConversation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Conversation{}, NotFoundError{Op: "chat.GetConversation", Resource: "conversation"}
	}
	return c, err
}

func (s *PostgresStore) FindConversationByPair(ctx context.Context, a, b string) (Conversation, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+conversationColumns+` FROM expertly.conversations
		WHERE pair_key = LEAST($1::text, $2::text) || ':' || GREATEST($1::text, $2::text)`,
		a, b)
	c, err := scanConversation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Conversation{}, NotFoundError{Op: "chat.FindConversationByPair", Resource: "conversation"}
	}
	return c, err
}

func (s *PostgresStore) ListConversationsFor(ctx context.Context, accountID string) ([]Conversation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+conversationColumns+` FROM expertly.conversations
		WHERE initiator_id = $1 OR expert_id = $1
		ORDER BY COALESCE(last_message_at, created_at) DESC, id DESC`,
		accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ConversationIDsFor(ctx context.Context, accountID string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id FROM expertly.conversations
		WHERE initiator_id = $1 OR expert_id = $1
		ORDER BY id`,
		accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SetConversationLanguage(ctx context.Context, conversationID, accountID, language string, now time.Time) error {
	const op = "chat.SetConversationLanguage"

	tag, err := s.pool.Exec(ctx, `
		UPDATE expertly.conversations SET
			initiator_language = CASE WHEN initiator_id = $2 THEN $3 ELSE initiator_language END,
			expert_language    = CASE WHEN expert_id    = $2 THEN $3 ELSE expert_language END,
			updated_at = $4
		WHERE id = $1 AND (initiator_id = $2 OR expert_id = $2)`,
		conversationID, accountID, language, now)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		// Distinguish missing conversation from a non-participant caller.
		if _, err := s.GetConversation(ctx, conversationID); err != nil {
			return err
		}
		return ForbiddenError{Op: op, Msg: "not a participant"}
	}
	return nil
}

func (s *PostgresStore) TouchLastMessage(ctx context.Context, conversationID, preview string, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE expertly.conversations
		SET last_message = $2, last_message_at = $3, updated_at = $3
		WHERE id = $1`,
		conversationID, preview, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return NotFoundError{Op: "chat.TouchLastMessage", Resource: "conversation"}
	}
	return nil
}

const messageColumns = `id, conversation_id, sender_id, sender_role, content, translated_content,
	source_language, target_language, is_translated, created_at`

func scanMessage(row pgx.Row) (Message, error) {
	var m Message
	var senderRole string
	err := row.Scan(
		&m.ID, &m.ConversationID, &m.SenderID, &senderRole, &m.Content, &m.TranslatedContent,
		&m.SourceLanguage, &m.TargetLanguage, &m.IsTranslated, &m.CreatedAt,
	)
	m.SenderRole = identity.Role(senderRole)
	return m, err
}

func (s *PostgresStore) AppendMessage(ctx context.Context, msg Message) (Message, error) {
	const op = "chat.AppendMessage"

	if msg.ConversationID == "" || msg.SenderID == "" || msg.Content == "" {
		return Message{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "conversation, sender and content required"}
	}

	now := msg.CreatedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}
	id, err := ids.NewULID(now)
	if err != nil {
		return Message{}, err
	}

	senderRole := msg.SenderRole
	if senderRole == "" {
		senderRole = identity.RoleUser
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO expertly.messages
			(id, conversation_id, sender_id, sender_role, content, translated_content,
			 source_language, target_language, is_translated, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING `+messageColumns,
		id, msg.ConversationID, msg.SenderID, string(senderRole), msg.Content, msg.TranslatedContent,
		msg.SourceLanguage, msg.TargetLanguage, msg.IsTranslated, now,
	)

	created, err := scanMessage(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return Message{}, NotFoundError{Op: op, Resource: "conversation"}
		}
		return Message{}, err
	}
	return created, nil
}

func (s *PostgresStore) GetMessage(ctx context.Context, id string) (Message, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+messageColumns+` FROM expertly.messages WHERE id = $1`, id)
	m, err := scanMessage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Message{}, NotFoundError{Op: "chat.GetMessage", Resource: "message"}
	}
	return m, err
}

func (s *PostgresStore) ListMessages(ctx context.Context, conversationID string) ([]Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+messageColumns+` FROM expertly.messages
		WHERE conversation_id = $1
		ORDER BY created_at, id`,
		conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpdateMessageTranslation(ctx context.Context, messageID, translated, targetLanguage string, isTranslated bool) (Message, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE expertly.messages
		SET translated_content = $2, target_language = $3, is_translated = $4
		WHERE id = $1
		RETURNING `+messageColumns,
		messageID, translated, targetLanguage, isTranslated)

	m, err := scanMessage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Message{}, NotFoundError{Op: "chat.UpdateMessageTranslation", Resource: "message"}
	}
	return m, err
}

func (s *PostgresStore) DeleteConversations(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	// Messages are removed explicitly, scoped to exactly these conversation
	// rows, so callers can report how many went away.
	msgTag, err := tx.Exec(ctx,
		`DELETE FROM expertly.messages WHERE conversation_id = ANY($1)`, ids)
	if err != nil {
		return 0, err
	}
	if _, err := tx.Exec(ctx,
		`DELETE FROM expertly.conversations WHERE id = ANY($1)`, ids); err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return int(msgTag.RowsAffected()), nil
}
