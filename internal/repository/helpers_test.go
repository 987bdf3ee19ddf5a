package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iliyamo/rice-reservation/internal/database"
	"github.com/iliyamo/rice-reservation/internal/model"
)

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open("", filepath.Join(t.TempDir(), "rice.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.Migrate(context.Background(), db))
	return db
}

func price(v int64) *int64 { return &v }

func seedFarm(t *testing.T, db *database.DB, mutate func(f *model.Farm)) *model.Farm {
	t.Helper()
	f := &model.Farm{
		Name:            "Tanaka Farm",
		PickupLat:       35.681236,
		PickupLng:       139.767125,
		PickupPlaceName: "Tanaka barn",
		PickupNotes:     "Park by the shed",
		PickupSlotCode:  "WED_19_20",
		Prices:          map[int]*int64{5: price(1000), 10: price(2000)},
		Accepting:       true,
		Publishable:     true,
	}
	if mutate != nil {
		mutate(f)
	}
	require.NoError(t, NewFarmRepo(db).Create(context.Background(), f))
	return f
}

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }
