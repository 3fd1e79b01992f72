package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/halodesk/support-platform/internal/model"
	"github.com/halodesk/support-platform/internal/store"
)

type MessageRepo struct {
	db *sql.DB
}

func NewMessageRepo(db *sql.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

var _ store.MessageRepository = (*MessageRepo)(nil)

const messageColumns = `m.id, m.conversation_id, m.external_id, m.sender_user_id,
	m.sender_contact_id, m.body, m.interactive_reply_id, m.interactive_reply_title,
	m.status, m.sent_at, m.delivered_at, m.read_at,
	a.id, a.provider_media_id, a.mime_type, a.file_name, a.caption, a.url`

const messageFrom = ` FROM messages m LEFT JOIN attachments a ON a.message_id = m.id `

func scanMessage(row interface{ Scan(...any) error }) (*model.Message, error) {
	m := &model.Message{}
	var extID, replyID, replyTitle sql.NullString
	var attID sql.NullInt64
	var attMedia, attMime, attName, attCaption, attURL sql.NullString
	err := row.Scan(
		&m.ID, &m.ConversationID, &extID, &m.SenderUserID,
		&m.SenderContactID, &m.Body, &replyID, &replyTitle,
		&m.Status, &m.SentAt, &m.DeliveredAt, &m.ReadAt,
		&attID, &attMedia, &attMime, &attName, &attCaption, &attURL,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan message: %w", err)
	}
	m.ExternalID = extID.String
	m.InteractiveReplyID = replyID.String
	m.InteractiveReplyTitle = replyTitle.String
	if attID.Valid {
		m.Attachment = &model.Attachment{
			ID:              attID.Int64,
			ProviderMediaID: attMedia.String,
			MimeType:        attMime.String,
			FileName:        attName.String,
			Caption:         attCaption.String,
			URL:             attURL.String,
		}
	}
	return m, nil
}

func (r *MessageRepo) Create(ctx context.Context, m *model.Message) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO messages (conversation_id, external_id, sender_user_id,
			sender_contact_id, body, interactive_reply_id, interactive_reply_title,
			status, sent_at, delivered_at, read_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, m.ConversationID, nullString(m.ExternalID), m.SenderUserID,
		m.SenderContactID, m.Body, nullString(m.InteractiveReplyID),
		nullString(m.InteractiveReplyTitle), m.Status, m.SentAt, m.DeliveredAt, m.ReadAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	m.ID = id

	if m.Attachment != nil {
		attRes, err := tx.ExecContext(ctx, `
			INSERT INTO attachments (message_id, provider_media_id, mime_type, file_name, caption, url)
			VALUES (?, ?, ?, ?, ?, ?)
		`, id, m.Attachment.ProviderMediaID, m.Attachment.MimeType,
			m.Attachment.FileName, m.Attachment.Caption, m.Attachment.URL)
		if err != nil {
			return fmt.Errorf("insert attachment: %w", err)
		}
		if attID, err := attRes.LastInsertId(); err == nil {
			m.Attachment.ID = attID
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *MessageRepo) GetByID(ctx context.Context, id int64) (*model.Message, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+messageColumns+messageFrom+`WHERE m.id = ?`, id)
	return scanMessage(row)
}

// Update rewrites status, receipt timestamps and the provider id; message
// content is immutable after creation.
func (r *MessageRepo) Update(ctx context.Context, m *model.Message) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE messages SET external_id = ?, status = ?, delivered_at = ?, read_at = ?
		WHERE id = ?
	`, nullString(m.ExternalID), m.Status, m.DeliveredAt, m.ReadAt, m.ID)
	if err != nil {
		return fmt.Errorf("update message: %w", err)
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

// ListByConversation returns messages in chronological order. A positive
// limit keeps the most recent messages, still oldest-first.
func (r *MessageRepo) ListByConversation(ctx context.Context, conversationID int64, limit int) ([]*model.Message, error) {
	query := `SELECT ` + messageColumns + messageFrom + `WHERE m.conversation_id = ? ORDER BY m.id`
	args := []any{conversationID}
	if limit > 0 {
		query = `SELECT ` + messageColumns + ` FROM (
			SELECT * FROM messages WHERE conversation_id = ? ORDER BY id DESC LIMIT ?
		) m LEFT JOIN attachments a ON a.message_id = m.id ORDER BY m.id`
		args = append(args, limit)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []*model.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *MessageRepo) FindByExternalID(ctx context.Context, conversationID int64, externalID string) (*model.Message, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+messageColumns+messageFrom+`WHERE m.conversation_id = ? AND m.external_id = ?`,
		conversationID, externalID)
	return scanMessage(row)
}

func (r *MessageRepo) GetByExternalID(ctx context.Context, externalID string) (*model.Message, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+messageColumns+messageFrom+`WHERE m.external_id = ? ORDER BY m.id DESC LIMIT 1`,
		externalID)
	return scanMessage(row)
}

func (r *MessageRepo) LastClientMessage(ctx context.Context, conversationID int64) (*model.Message, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+messageColumns+messageFrom+`
		WHERE m.conversation_id = ? AND m.sender_contact_id IS NOT NULL
		ORDER BY m.id DESC LIMIT 1
	`, conversationID)
	return scanMessage(row)
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
