package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/rice-reservation/internal/database"
	"github.com/iliyamo/rice-reservation/internal/model"
)

// MagicLinkRepo persists magic-link tokens by hash.
type MagicLinkRepo struct{ db *database.DB }

// NewMagicLinkRepo returns a MagicLinkRepo bound to db.
func NewMagicLinkRepo(db *database.DB) *MagicLinkRepo { return &MagicLinkRepo{db: db} }

const magicLinkColumns = `id, token_hash, email, reservation_id, consumer_id, agreed, expires_at, used_at, created_at`

// Store inserts a token row. ID is generated when empty.
func (r *MagicLinkRepo) Store(ctx context.Context, t *model.MagicLinkToken) error {
	if t.ID == "" {
		t.ID = newID()
	}
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`INSERT INTO magic_link_tokens (`+magicLinkColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, NULL, ?)`),
		t.ID, t.TokenHash, t.Email, database.NullString(t.ReservationID), database.NullString(t.ConsumerID),
		boolInt(t.Agreed), database.FormatTime(t.ExpiresAt), database.FormatTime(t.CreatedAt))
	return err
}

// Consume atomically marks the token as used at now and returns it. Missing,
// used and expired tokens yield ErrTokenNotFound, ErrTokenAlreadyUsed and
// ErrTokenExpired. A token is still valid at exactly its expiry instant.
func (r *MagicLinkRepo) Consume(ctx context.Context, tokenHash string, now time.Time) (*model.MagicLinkToken, error) {
	at := database.FormatTime(now)
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`UPDATE magic_link_tokens SET used_at = ?
		WHERE token_hash = ? AND used_at IS NULL AND expires_at >= ?`), at, tokenHash, at)
	ok, err := affectedOne(res, err)
	if err != nil {
		return nil, err
	}
	t, err := r.getByHash(ctx, tokenHash)
	if err != nil {
		return nil, err
	}
	if ok {
		return t, nil
	}
	if t.UsedAt != nil {
		return nil, ErrTokenAlreadyUsed
	}
	return nil, ErrTokenExpired
}

// Lookup returns the token if it could be consumed at now, without marking
// it used. It fails like Consume.
func (r *MagicLinkRepo) Lookup(ctx context.Context, tokenHash string, now time.Time) (*model.MagicLinkToken, error) {
	t, err := r.getByHash(ctx, tokenHash)
	if err != nil {
		return nil, err
	}
	if t.UsedAt != nil {
		return nil, ErrTokenAlreadyUsed
	}
	if now.UTC().Truncate(time.Second).After(t.ExpiresAt) {
		return nil, ErrTokenExpired
	}
	return t, nil
}

func (r *MagicLinkRepo) getByHash(ctx context.Context, tokenHash string) (*model.MagicLinkToken, error) {
	var (
		t                             model.MagicLinkToken
		reservation, consumer, usedAt sql.NullString
		agreed                        int
		expiresAt, createdAt          string
	)
	err := r.db.QueryRowContext(ctx, r.db.Rebind(`SELECT `+magicLinkColumns+` FROM magic_link_tokens WHERE token_hash = ?`), tokenHash).
		Scan(&t.ID, &t.TokenHash, &t.Email, &reservation, &consumer, &agreed, &expiresAt, &usedAt, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, err
	}
	t.ReservationID = database.StringPtr(reservation)
	t.ConsumerID = database.StringPtr(consumer)
	t.Agreed = agreed == 1
	if t.ExpiresAt, err = database.ParseTime(expiresAt); err != nil {
		return nil, err
	}
	if t.UsedAt, err = database.ParseNullTime(usedAt); err != nil {
		return nil, err
	}
	if t.CreatedAt, err = database.ParseTime(createdAt); err != nil {
		return nil, err
	}
	return &t, nil
}
