package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/rice-reservation/internal/database"
	"github.com/iliyamo/rice-reservation/internal/model"
)

// ConsumerRepo persists consumer identities.
type ConsumerRepo struct{ db *database.DB }

// NewConsumerRepo returns a ConsumerRepo bound to db.
func NewConsumerRepo(db *database.DB) *ConsumerRepo { return &ConsumerRepo{db: db} }

const consumerColumns = `id, email, line_user_id, created_at`

// GetByID returns the consumer or ErrConsumerNotFound.
func (r *ConsumerRepo) GetByID(ctx context.Context, id string) (*model.Consumer, error) {
	return r.getBy(ctx, "id", id)
}

// GetByEmail looks a consumer up by normalized email.
func (r *ConsumerRepo) GetByEmail(ctx context.Context, email string) (*model.Consumer, error) {
	return r.getBy(ctx, "email", NormalizeEmail(email))
}

// GetByLineUserID looks a consumer up by messaging user id.
func (r *ConsumerRepo) GetByLineUserID(ctx context.Context, lineUserID string) (*model.Consumer, error) {
	return r.getBy(ctx, "line_user_id", lineUserID)
}

func (r *ConsumerRepo) getBy(ctx context.Context, column, value string) (*model.Consumer, error) {
	var (
		c         model.Consumer
		email     sql.NullString
		line      sql.NullString
		createdAt string
	)
	err := r.db.QueryRowContext(ctx, r.db.Rebind(`SELECT `+consumerColumns+` FROM consumers WHERE `+column+` = ?`), value).
		Scan(&c.ID, &email, &line, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrConsumerNotFound
	}
	if err != nil {
		return nil, err
	}
	c.Email = database.StringPtr(email)
	c.LineUserID = database.StringPtr(line)
	if c.CreatedAt, err = database.ParseTime(createdAt); err != nil {
		return nil, err
	}
	return &c, nil
}

// Create inserts a consumer keyed by email and/or messaging id. Unique
// indexes reject a second consumer with the same key.
func (r *ConsumerRepo) Create(ctx context.Context, email, lineUserID string) (*model.Consumer, error) {
	c := &model.Consumer{ID: newID(), CreatedAt: time.Now().UTC().Truncate(time.Second)}
	if e := NormalizeEmail(email); e != "" {
		c.Email = &e
	}
	if lineUserID != "" {
		c.LineUserID = &lineUserID
	}
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`INSERT INTO consumers (`+consumerColumns+`) VALUES (?, ?, ?, ?)`),
		c.ID, database.NullString(c.Email), database.NullString(c.LineUserID), database.FormatTime(c.CreatedAt))
	if err != nil {
		return nil, err
	}
	return c, nil
}

// NormalizeEmail lower-cases and trims an email used as an identity key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
