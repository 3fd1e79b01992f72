package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/halodesk/support-platform/internal/model"
	"github.com/halodesk/support-platform/internal/store"
)

type NotificationRepo struct {
	db *sql.DB
}

func NewNotificationRepo(db *sql.DB) *NotificationRepo {
	return &NotificationRepo{db: db}
}

var _ store.NotificationRepository = (*NotificationRepo)(nil)

func (r *NotificationRepo) Create(ctx context.Context, n *model.Notification, recipientIDs []int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO notifications (id, type, title, body, conversation_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, n.ID, n.Type, n.Title, n.Body, n.ConversationID, n.CreatedAt); err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}

	for _, uid := range recipientIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO notification_recipients (notification_id, user_id)
			VALUES (?, ?)
		`, n.ID, uid); err != nil {
			return fmt.Errorf("insert recipient: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *NotificationRepo) ListForUser(ctx context.Context, userID int64, limit int) ([]*model.UserNotification, error) {
	query := `
		SELECT n.id, n.type, n.title, n.body, n.conversation_id, n.created_at, nr.read_at
		FROM notifications n
		JOIN notification_recipients nr ON nr.notification_id = n.id
		WHERE nr.user_id = ?
		ORDER BY n.created_at DESC`
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var out []*model.UserNotification
	for rows.Next() {
		un := &model.UserNotification{}
		var body sql.NullString
		if err := rows.Scan(&un.ID, &un.Type, &un.Title, &body, &un.ConversationID, &un.CreatedAt, &un.ReadAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		un.Body = body.String
		out = append(out, un)
	}
	return out, rows.Err()
}

func (r *NotificationRepo) MarkRead(ctx context.Context, notificationID string, userID int64, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE notification_recipients SET read_at = COALESCE(read_at, ?)
		WHERE notification_id = ? AND user_id = ?
	`, at, notificationID, userID)
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return model.ErrNotFound
	}
	return nil
}
