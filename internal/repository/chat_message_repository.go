package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/support-chat-service/internal/domain"
)

// ErrSessionNotActive is returned when a message append targets a session
// whose status no longer accepts messages.
var ErrSessionNotActive = errors.New("session is not active")

// ChatMessageRepository manages a session's message sequence.
type ChatMessageRepository interface {
	Append(ctx context.Context, msg *domain.ChatMessage) error
	ListBySession(ctx context.Context, sessionID string) ([]domain.ChatMessage, error)
	MarkRead(ctx context.Context, sessionID, readerID string) (int64, error)
}

type chatMessageRepository struct {
	pool *pgxpool.Pool
}

// NewChatMessageRepository builds repository.
func NewChatMessageRepository(pool *pgxpool.Pool) ChatMessageRepository {
	return &chatMessageRepository{pool: pool}
}

// Append inserts a message and bumps the session's last_message_at in one
// transaction. The session row is locked first so the active-status check
// and the insert cannot interleave with a concurrent status change, and so
// concurrent sends on one session serialize into commit order.
func (r *chatMessageRepository) Append(ctx context.Context, msg *domain.ChatMessage) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var status domain.SessionStatus
	if err := tx.QueryRow(ctx,
		`SELECT status FROM chat_sessions WHERE id=$1 FOR UPDATE`,
		msg.SessionID,
	).Scan(&status); err != nil {
		return err
	}
	if status != domain.SessionStatusActive {
		return ErrSessionNotActive
	}

	// ts is stamped with clock_timestamp(), not NOW(): NOW() is fixed at
	// transaction start, before the lock wait, so a later-committed message
	// could carry an earlier timestamp than its predecessor
	if err := tx.QueryRow(ctx, `
        INSERT INTO chat_messages (session_id, sender, sender_id, content, read, ts)
        VALUES ($1,$2,$3,$4,FALSE,clock_timestamp())
        RETURNING id, seq, ts`,
		msg.SessionID,
		msg.Sender,
		msg.SenderID,
		msg.Content,
	).Scan(&msg.ID, &msg.Seq, &msg.Timestamp); err != nil {
		return err
	}
	msg.Read = false

	if _, err := tx.Exec(ctx,
		`UPDATE chat_sessions SET last_message_at=$1 WHERE id=$2`,
		msg.Timestamp, msg.SessionID,
	); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *chatMessageRepository) ListBySession(ctx context.Context, sessionID string) ([]domain.ChatMessage, error) {
	const query = `
        SELECT id, seq, session_id, sender, sender_id, content, ts, read
        FROM chat_messages WHERE session_id=$1 ORDER BY seq ASC`
	rows, err := r.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.ChatMessage
	for rows.Next() {
		var msg domain.ChatMessage
		if err := rows.Scan(
			&msg.ID,
			&msg.Seq,
			&msg.SessionID,
			&msg.Sender,
			&msg.SenderID,
			&msg.Content,
			&msg.Timestamp,
			&msg.Read,
		); err != nil {
			return nil, err
		}
		result = append(result, msg)
	}
	return result, rows.Err()
}

// MarkRead flips read on every unread message not authored by readerID, as
// a single statement so other readers never observe a partial update.
func (r *chatMessageRepository) MarkRead(ctx context.Context, sessionID, readerID string) (int64, error) {
	if _, err := r.sessionExists(ctx, sessionID); err != nil {
		return 0, err
	}
	cmd, err := r.pool.Exec(ctx, `
        UPDATE chat_messages SET read=TRUE
        WHERE session_id=$1 AND sender_id<>$2 AND read=FALSE`,
		sessionID, readerID,
	)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (r *chatMessageRepository) sessionExists(ctx context.Context, sessionID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM chat_sessions WHERE id=$1)`,
		sessionID,
	).Scan(&exists)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, pgx.ErrNoRows
	}
	return true, nil
}
