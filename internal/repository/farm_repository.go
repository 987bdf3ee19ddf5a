package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/rice-reservation/internal/database"
	"github.com/iliyamo/rice-reservation/internal/model"
	"github.com/iliyamo/rice-reservation/internal/pickup"
)

// FarmRepo persists farms and their price tables.
type FarmRepo struct{ db *database.DB }

// NewFarmRepo returns a FarmRepo bound to db.
func NewFarmRepo(db *database.DB) *FarmRepo { return &FarmRepo{db: db} }

const farmColumns = `id, owner_consumer_id, name, pickup_lat, pickup_lng, pickup_place_name, pickup_notes,
	pickup_slot_code, price_5kg, price_10kg, price_25kg, price_30kg, accepting, publishable, created_at, updated_at`

// Create inserts a farm. An empty ID is replaced by a new uuid and the slot
// code is validated and normalized.
func (r *FarmRepo) Create(ctx context.Context, f *model.Farm) error {
	slot, err := pickup.ParseSlotCode(f.PickupSlotCode)
	if err != nil {
		return err
	}
	f.PickupSlotCode = slot.Code()
	if f.ID == "" {
		f.ID = newID()
	}
	now := time.Now().UTC().Truncate(time.Second)
	f.CreatedAt, f.UpdatedAt = now, now
	_, err = r.db.ExecContext(ctx, r.db.Rebind(`INSERT INTO farms (`+farmColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		f.ID, database.NullString(f.OwnerID), f.Name, f.PickupLat, f.PickupLng, f.PickupPlaceName, f.PickupNotes,
		f.PickupSlotCode, nullInt(f.Prices[5]), nullInt(f.Prices[10]), nullInt(f.Prices[25]), nullInt(f.Prices[30]),
		boolInt(f.Accepting), boolInt(f.Publishable), database.FormatTime(now), database.FormatTime(now))
	return err
}

// GetByID returns the farm or ErrFarmNotFound.
func (r *FarmRepo) GetByID(ctx context.Context, id string) (*model.Farm, error) {
	return r.get(ctx, r.db.DB, id, "")
}

func (r *FarmRepo) get(ctx context.Context, q querier, id, lock string) (*model.Farm, error) {
	row := q.QueryRowContext(ctx, r.db.Rebind(`SELECT `+farmColumns+` FROM farms WHERE id = ?`+lock), id)
	f, err := scanFarm(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrFarmNotFound
	}
	return f, err
}

// ListPublic returns publishable farms that accept orders, by name.
func (r *FarmRepo) ListPublic(ctx context.Context) ([]model.Farm, error) {
	return r.list(ctx, `WHERE publishable = 1 AND accepting = 1 ORDER BY name, id`)
}

// ListByOwner returns the farms a consumer manages.
func (r *FarmRepo) ListByOwner(ctx context.Context, consumerID string) ([]model.Farm, error) {
	return r.list(ctx, `WHERE owner_consumer_id = ? ORDER BY name, id`, consumerID)
}

func (r *FarmRepo) list(ctx context.Context, where string, args ...any) ([]model.Farm, error) {
	rows, err := r.db.QueryContext(ctx, r.db.Rebind(`SELECT `+farmColumns+` FROM farms `+where), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Farm
	for rows.Next() {
		f, err := scanFarm(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *f)
	}
	return out, rows.Err()
}

// SetAccepting opens or soft-retires a farm.
func (r *FarmRepo) SetAccepting(ctx context.Context, id string, accepting bool) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`UPDATE farms SET accepting = ?, updated_at = ? WHERE id = ?`),
		boolInt(accepting), database.FormatTime(time.Now()), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrFarmNotFound
	}
	return nil
}

func scanFarm(s rowScanner) (*model.Farm, error) {
	var (
		f                   model.Farm
		owner, notes        sql.NullString
		p5, p10, p25, p30   sql.NullInt64
		accepting, publish  int
		createdAt, updateAt string
	)
	if err := s.Scan(&f.ID, &owner, &f.Name, &f.PickupLat, &f.PickupLng, &f.PickupPlaceName, &notes,
		&f.PickupSlotCode, &p5, &p10, &p25, &p30, &accepting, &publish, &createdAt, &updateAt); err != nil {
		return nil, err
	}
	f.OwnerID = database.StringPtr(owner)
	f.PickupNotes = notes.String
	f.Prices = map[int]*int64{5: int64Ptr(p5), 10: int64Ptr(p10), 25: int64Ptr(p25), 30: int64Ptr(p30)}
	f.Accepting = accepting == 1
	f.Publishable = publish == 1
	var err error
	if f.CreatedAt, err = database.ParseTime(createdAt); err != nil {
		return nil, err
	}
	if f.UpdatedAt, err = database.ParseTime(updateAt); err != nil {
		return nil, err
	}
	return &f, nil
}
