package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/support-chat-service/internal/domain"
)

// ErrDuplicateActiveSession is returned when session creation collides with
// an existing active session for the same order+customer pair.
var ErrDuplicateActiveSession = errors.New("active session already exists for order and customer")

// SessionFilter captures listing parameters.
type SessionFilter struct {
	CustomerID *string
	OrderID    *string
	Statuses   []domain.SessionStatus
	Limit      int
	Offset     int
}

// ChatSessionRepository encapsulates session persistence.
type ChatSessionRepository interface {
	Create(ctx context.Context, session *domain.ChatSession) error
	GetByID(ctx context.Context, id string) (*domain.ChatSession, error)
	UpdateStatus(ctx context.Context, session *domain.ChatSession) error
	List(ctx context.Context, filter SessionFilter) ([]domain.ChatSession, error)
}

type chatSessionRepository struct {
	pool *pgxpool.Pool
}

// NewChatSessionRepository instantiates repository.
func NewChatSessionRepository(pool *pgxpool.Pool) ChatSessionRepository {
	return &chatSessionRepository{pool: pool}
}

func (r *chatSessionRepository) Create(ctx context.Context, session *domain.ChatSession) error {
	const query = `
        INSERT INTO chat_sessions (order_id, customer_id, category, issue, status)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, last_message_at, created_at`
	err := r.pool.QueryRow(ctx, query,
		session.OrderID,
		session.CustomerID,
		session.Category,
		session.Issue,
		session.Status,
	).Scan(&session.ID, &session.LastMessageAt, &session.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateActiveSession
		}
		return err
	}
	return nil
}

func (r *chatSessionRepository) GetByID(ctx context.Context, id string) (*domain.ChatSession, error) {
	const query = `
        SELECT id, order_id, customer_id, category, issue, status,
               last_message_at, created_at, resolved_at, resolved_by
        FROM chat_sessions WHERE id=$1`
	var session domain.ChatSession
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&session.ID,
		&session.OrderID,
		&session.CustomerID,
		&session.Category,
		&session.Issue,
		&session.Status,
		&session.LastMessageAt,
		&session.CreatedAt,
		&session.ResolvedAt,
		&session.ResolvedBy,
	); err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *chatSessionRepository) UpdateStatus(ctx context.Context, session *domain.ChatSession) error {
	const query = `
        UPDATE chat_sessions SET status=$1, resolved_at=$2, resolved_by=$3
        WHERE id=$4`
	cmd, err := r.pool.Exec(ctx, query,
		session.Status,
		session.ResolvedAt,
		session.ResolvedBy,
		session.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *chatSessionRepository) List(ctx context.Context, filter SessionFilter) ([]domain.ChatSession, error) {
	base := `SELECT id, order_id, customer_id, category, issue, status,
                    last_message_at, created_at, resolved_at, resolved_by
             FROM chat_sessions`
	clauses := []string{"1=1"}
	args := []any{}

	if filter.CustomerID != nil {
		args = append(args, *filter.CustomerID)
		clauses = append(clauses, fmt.Sprintf("customer_id=$%d", len(args)))
	}
	if filter.OrderID != nil {
		args = append(args, *filter.OrderID)
		clauses = append(clauses, fmt.Sprintf("order_id=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`%s WHERE %s ORDER BY last_message_at DESC LIMIT %d OFFSET %d`,
		base, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.ChatSession
	for rows.Next() {
		var session domain.ChatSession
		if err := rows.Scan(
			&session.ID,
			&session.OrderID,
			&session.CustomerID,
			&session.Category,
			&session.Issue,
			&session.Status,
			&session.LastMessageAt,
			&session.CreatedAt,
			&session.ResolvedAt,
			&session.ResolvedBy,
		); err != nil {
			return nil, err
		}
		result = append(result, session)
	}
	return result, rows.Err()
}
