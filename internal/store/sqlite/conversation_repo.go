package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/halodesk/support-platform/internal/model"
	"github.com/halodesk/support-platform/internal/store"
)

type ConversationRepo struct {
	db *sql.DB
}

func NewConversationRepo(db *sql.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

var _ store.ConversationRepository = (*ConversationRepo)(nil)

const conversationColumns = `id, contact_id, status, priority, assignment_state,
	assigned_agent_id, assigned_by_user_id, created_at, updated_at,
	first_response_at, agent_request_at, assigned_at, agent_first_message_at,
	agent_last_message_at, client_last_message_at, warning_sent_at, closed_at,
	avg_agent_response_seconds, version`

func scanConversation(row interface{ Scan(...any) error }) (*model.Conversation, error) {
	c := &model.Conversation{}
	err := row.Scan(
		&c.ID, &c.ContactID, &c.Status, &c.Priority, &c.AssignmentState,
		&c.AssignedAgentID, &c.AssignedByUserID, &c.CreatedAt, &c.UpdatedAt,
		&c.FirstResponseAt, &c.AgentRequestAt, &c.AssignedAt, &c.AgentFirstMessageAt,
		&c.AgentLastMessageAt, &c.ClientLastMessageAt, &c.WarningSentAt, &c.ClosedAt,
		&c.AverageAgentResponseSeconds, &c.Version,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan conversation: %w", err)
	}
	return c, nil
}

func (r *ConversationRepo) Create(ctx context.Context, c *model.Conversation) error {
	c.Version = 1
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO conversations (contact_id, status, priority, assignment_state,
			assigned_agent_id, assigned_by_user_id, created_at, updated_at,
			first_response_at, agent_request_at, assigned_at, agent_first_message_at,
			agent_last_message_at, client_last_message_at, warning_sent_at, closed_at,
			avg_agent_response_seconds, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.ContactID, c.Status, c.Priority, c.AssignmentState,
		c.AssignedAgentID, c.AssignedByUserID, c.CreatedAt, c.UpdatedAt,
		c.FirstResponseAt, c.AgentRequestAt, c.AssignedAt, c.AgentFirstMessageAt,
		c.AgentLastMessageAt, c.ClientLastMessageAt, c.WarningSentAt, c.ClosedAt,
		c.AverageAgentResponseSeconds, c.Version)
	if err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	c.ID = id
	return nil
}

func (r *ConversationRepo) GetByID(ctx context.Context, id int64) (*model.Conversation, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE id = ?`, id)
	return scanConversation(row)
}

// Update writes the aggregate guarded by its version token; a stale token
// yields model.ErrVersionConflict and the caller re-reads.
func (r *ConversationRepo) Update(ctx context.Context, c *model.Conversation) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE conversations SET
			status = ?, priority = ?, assignment_state = ?,
			assigned_agent_id = ?, assigned_by_user_id = ?, updated_at = ?,
			first_response_at = ?, agent_request_at = ?, assigned_at = ?,
			agent_first_message_at = ?, agent_last_message_at = ?,
			client_last_message_at = ?, warning_sent_at = ?, closed_at = ?,
			avg_agent_response_seconds = ?, version = version + 1
		WHERE id = ? AND version = ?
	`, c.Status, c.Priority, c.AssignmentState,
		c.AssignedAgentID, c.AssignedByUserID, c.UpdatedAt,
		c.FirstResponseAt, c.AgentRequestAt, c.AssignedAt,
		c.AgentFirstMessageAt, c.AgentLastMessageAt,
		c.ClientLastMessageAt, c.WarningSentAt, c.ClosedAt,
		c.AverageAgentResponseSeconds, c.ID, c.Version)
	if err != nil {
		return fmt.Errorf("update conversation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		if _, getErr := r.GetByID(ctx, c.ID); errors.Is(getErr, model.ErrNotFound) {
			return model.ErrNotFound
		}
		return model.ErrVersionConflict
	}
	c.Version++
	return nil
}

func (r *ConversationRepo) List(ctx context.Context, f store.ConversationFilter) ([]*model.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE 1=1`
	var args []any
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, f.Status)
	}
	if f.AgentID != nil {
		query += ` AND assigned_agent_id = ?`
		args = append(args, *f.AgentID)
	}
	query += ` ORDER BY id`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
		if f.Offset > 0 {
			query += ` OFFSET ?`
			args = append(args, f.Offset)
		}
	}
	return r.queryConversations(ctx, query, args...)
}

func (r *ConversationRepo) FindActiveByContact(ctx context.Context, contactID int64) (*model.Conversation, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+conversationColumns+` FROM conversations
		WHERE contact_id = ? AND status != ?
		ORDER BY id DESC LIMIT 1
	`, contactID, model.StatusClosed)
	return scanConversation(row)
}

func (r *ConversationRepo) ListOpenBefore(ctx context.Context, cutoff time.Time) ([]*model.Conversation, error) {
	return r.queryConversations(ctx, `
		SELECT `+conversationColumns+` FROM conversations
		WHERE status != ? AND created_at < ?
		ORDER BY id
	`, model.StatusClosed, cutoff)
}

func (r *ConversationRepo) queryConversations(ctx context.Context, query string, args ...any) ([]*model.Conversation, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer rows.Close()

	var out []*model.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
