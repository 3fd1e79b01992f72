package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/halodesk/support-platform/internal/model"
	"github.com/halodesk/support-platform/internal/store"
)

type ContactRepo struct {
	db *sql.DB
}

func NewContactRepo(db *sql.DB) *ContactRepo {
	return &ContactRepo{db: db}
}

var _ store.ContactRepository = (*ContactRepo)(nil)

func (r *ContactRepo) Create(ctx context.Context, c *model.ContactLog) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO contacts (phone, name, verified, company_id, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, c.Phone, c.Name, c.Verified, c.CompanyID, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert contact: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	c.ID = id
	return nil
}

func (r *ContactRepo) GetByID(ctx context.Context, id int64) (*model.ContactLog, error) {
	return r.scanOne(r.db.QueryRowContext(ctx, `
		SELECT id, phone, name, verified, company_id, created_at
		FROM contacts WHERE id = ?
	`, id))
}

func (r *ContactRepo) GetByPhone(ctx context.Context, phone string) (*model.ContactLog, error) {
	return r.scanOne(r.db.QueryRowContext(ctx, `
		SELECT id, phone, name, verified, company_id, created_at
		FROM contacts WHERE phone = ?
	`, phone))
}

func (r *ContactRepo) scanOne(row *sql.Row) (*model.ContactLog, error) {
	c := &model.ContactLog{}
	var name sql.NullString
	err := row.Scan(&c.ID, &c.Phone, &name, &c.Verified, &c.CompanyID, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan contact: %w", err)
	}
	c.Name = name.String
	return c, nil
}
