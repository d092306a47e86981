package postgres

import (
	"context"
	"fmt"

	"github.com/webchothuetro/chat-service/internal/domain"

	"github.com/jackc/pgx/v5/pgxpool"
)

type MessageRepository struct {
	db *pgxpool.Pool
}

func NewMessageRepository(db *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{db: db}
}

// InitSchema creates the chat tables if they do not exist yet.
func (r *MessageRepository) InitSchema(ctx context.Context) error {
	_, err := r.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS direct_messages (
			id         BIGSERIAL PRIMARY KEY,
			user_id    BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			sender     TEXT NOT NULL CHECK (sender IN ('user', 'admin')),
			text       TEXT,
			image_url  TEXT,
			is_read    BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			CHECK (text IS NOT NULL OR image_url IS NOT NULL)
		);
		CREATE INDEX IF NOT EXISTS idx_direct_messages_user_created
			ON direct_messages (user_id, created_at, id);
		CREATE INDEX IF NOT EXISTS idx_direct_messages_unread
			ON direct_messages (user_id) WHERE NOT is_read;
	`)
	return err
}

// Append persists one message into the user's conversation. Ordering within
// a conversation is storage-assigned: created_at with the serial id as
// tie-breaker, so concurrent appends never collide or reorder.
func (r *MessageRepository) Append(ctx context.Context, userID int64, sender domain.Sender, text, imageURL *string) (*domain.Message, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO direct_messages (user_id, sender, text, image_url)
		VALUES ($1, $2, $3, $4)
		RETURNING id, user_id, sender, text, image_url, is_read, created_at
	`, userID, sender, text, imageURL)

	var m domain.Message
	if err := row.Scan(&m.ID, &m.UserID, &m.Sender, &m.Text, &m.ImageURL, &m.IsRead, &m.CreatedAt); err != nil {
		return nil, err
	}
	return &m, nil
}

// ListByUser returns the full conversation in display order (oldest first).
func (r *MessageRepository) ListByUser(ctx context.Context, userID int64) ([]domain.Message, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, sender, text, image_url, is_read, created_at
		FROM direct_messages
		WHERE user_id = $1
		ORDER BY created_at ASC, id ASC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Message
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(&m.ID, &m.UserID, &m.Sender, &m.Text, &m.ImageURL, &m.IsRead, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// History returns one page of the conversation with cursor pagination on
// (created_at, id). Pages walk backwards from the cursor, but each page is
// returned oldest first so clients can render it top to bottom.
func (r *MessageRepository) History(ctx context.Context, userID int64, after string, limit int) ([]domain.Message, string, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}
	cur, err := DecodeCursor(after)
	if err != nil {
		return nil, "", fmt.Errorf("decode cursor: %w", err)
	}

	const baseQuery = `
		SELECT id, user_id, sender, text, image_url, is_read, created_at
		FROM direct_messages
		WHERE user_id = $1
		  AND (
		    $2::timestamptz IS NULL
		    OR created_at < $2
		    OR (created_at = $2 AND id < $3)
		  )
		ORDER BY created_at DESC, id DESC
		LIMIT $4
	`

	var createdAt any
	var id any
	if cur != nil {
		createdAt = cur.CreatedAt
		id = cur.ID
	}

	rows, err := r.db.Query(ctx, baseQuery, userID, createdAt, id, limit)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()

	var out []domain.Message
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(&m.ID, &m.UserID, &m.Sender, &m.Text, &m.ImageURL, &m.IsRead, &m.CreatedAt); err != nil {
			return nil, "", err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}

	var next string
	if len(out) == limit {
		last := out[len(out)-1]
		if c, e := EncodeCursor(Cursor{CreatedAt: last.CreatedAt, ID: last.ID}); e == nil {
			next = c
		}
	}
	oldestFirst(out)
	return out, next, nil
}

// oldestFirst flips a newest-first page into display order in place.
func oldestFirst(msgs []domain.Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}

// MarkRead flips every unread message of the conversation and returns how
// many rows changed. Calling it again is a no-op.
func (r *MessageRepository) MarkRead(ctx context.Context, userID int64) (int64, error) {
	cmd, err := r.db.Exec(ctx, `
		UPDATE direct_messages
		SET is_read = TRUE
		WHERE user_id = $1 AND NOT is_read
	`, userID)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

// Summaries aggregates one dashboard row per conversation, most recent first.
func (r *MessageRepository) Summaries(ctx context.Context) ([]domain.ConversationSummary, error) {
	rows, err := r.db.Query(ctx, `
		SELECT m.user_id,
		       (SELECT text FROM direct_messages
		        WHERE user_id = m.user_id
		        ORDER BY created_at DESC, id DESC
		        LIMIT 1)                              AS last_message,
		       COUNT(*) FILTER (WHERE NOT m.is_read)  AS unread_count,
		       COUNT(*)                               AS total_count,
		       MAX(m.created_at)                      AS last_at
		FROM direct_messages m
		GROUP BY m.user_id
		ORDER BY last_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ConversationSummary
	for rows.Next() {
		var s domain.ConversationSummary
		if err := rows.Scan(&s.UserID, &s.LastMessage, &s.UnreadCount, &s.TotalCount, &s.LastAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
