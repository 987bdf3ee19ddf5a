package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/rice-reservation/internal/model"
)

func confirmedOne(t *testing.T, repo *ReservationRepo, farmID string) model.Reservation {
	t.Helper()
	res := createOne(t, repo, farmID, nil)
	got, _, err := repo.SetConfirmed(context.Background(), res.ID, confirmInput("pi_"+res.ID))
	require.NoError(t, err)
	return *got
}

func TestEnsureSkipsActiveJobs(t *testing.T) {
	db := newTestDB(t)
	farm := seedFarm(t, db, nil)
	res := confirmedOne(t, NewReservationRepo(db, 60), farm.ID)
	jobs := NewNotificationJobRepo(db)
	ctx := context.Background()
	at := time.Date(2025, 10, 13, 1, 5, 0, 0, time.UTC)

	j, created, err := jobs.Ensure(ctx, res.ID, model.JobConfirmation, at)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, model.JobPending, j.Status)

	again, created, err := jobs.Ensure(ctx, res.ID, model.JobConfirmation, at.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, j.ID, again.ID)

	_, _, err = jobs.Ensure(ctx, "missing", model.JobConfirmation, at)
	assert.ErrorIs(t, err, ErrReservationNotFound)

	all, err := jobs.ListByReservation(ctx, res.ID)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestEnsureRefusesUnconfirmedReservations(t *testing.T) {
	db := newTestDB(t)
	farm := seedFarm(t, db, nil)
	repo := NewReservationRepo(db, 60)
	pending := createOne(t, repo, farm.ID, nil)
	cancelled := confirmedOne(t, repo, farm.ID)
	_, _, err := repo.SetCancelled(context.Background(), cancelled.ID)
	require.NoError(t, err)
	jobs := NewNotificationJobRepo(db)
	ctx := context.Background()
	at := time.Date(2025, 10, 15, 3, 0, 0, 0, time.UTC)

	for _, id := range []string{pending.ID, cancelled.ID} {
		for _, kind := range []string{model.JobConfirmation, model.JobReminder} {
			j, created, err := jobs.Ensure(ctx, id, kind, at)
			require.NoError(t, err)
			assert.False(t, created, kind)
			assert.Nil(t, j, kind)
		}
	}

	j, created, err := jobs.Ensure(ctx, cancelled.ID, model.JobCancelCompleted, at)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, model.JobCancelCompleted, j.Kind)

	all, err := jobs.ListByReservation(ctx, pending.ID)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestClaimSendAndFail(t *testing.T) {
	db := newTestDB(t)
	farm := seedFarm(t, db, nil)
	resRepo := NewReservationRepo(db, 60)
	a := confirmedOne(t, resRepo, farm.ID)
	b := confirmedOne(t, resRepo, farm.ID)
	now := time.Date(2025, 10, 13, 2, 0, 0, 0, time.UTC)
	jobs := NewNotificationJobRepo(db).WithClock(fixedClock(now))
	ctx := context.Background()

	late, _, err := jobs.Ensure(ctx, a.ID, model.JobReminder, now.Add(time.Minute))
	require.NoError(t, err)
	first, _, err := jobs.Ensure(ctx, a.ID, model.JobConfirmation, now.Add(-time.Hour))
	require.NoError(t, err)
	second, _, err := jobs.Ensure(ctx, b.ID, model.JobConfirmation, now.Add(-time.Hour))
	require.NoError(t, err)

	due, err := jobs.FetchDue(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, first.ID, due[0].ID)
	assert.Equal(t, second.ID, due[1].ID)
	for _, j := range due {
		assert.NotEqual(t, late.ID, j.ID)
	}

	ok, err := jobs.Claim(ctx, first.ID, "w1")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = jobs.Claim(ctx, first.ID, "w2")
	require.NoError(t, err)
	assert.False(t, ok)

	due, err = jobs.FetchDue(ctx, now, 10)
	require.NoError(t, err)
	assert.Len(t, due, 1)

	ok, err = jobs.MarkSent(ctx, first.ID, "w2")
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = jobs.MarkSent(ctx, first.ID, "w1")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = jobs.MarkSent(ctx, first.ID, "w1")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = jobs.Claim(ctx, second.ID, "w1")
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = jobs.MarkFailed(ctx, second.ID, "w1", "push: 500")
	require.NoError(t, err)
	assert.True(t, ok)

	failed, err := jobs.Get(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobFailed, failed.Status)
	assert.Equal(t, 1, failed.AttemptCount)
	assert.Equal(t, "push: 500", *failed.LastError)
}

func TestStaleClaimCanBeTakenOver(t *testing.T) {
	db := newTestDB(t)
	farm := seedFarm(t, db, nil)
	res := confirmedOne(t, NewReservationRepo(db, 60), farm.ID)
	start := time.Date(2025, 10, 13, 2, 0, 0, 0, time.UTC)
	jobs := NewNotificationJobRepo(db).WithClock(fixedClock(start))
	ctx := context.Background()

	j, _, err := jobs.Ensure(ctx, res.ID, model.JobConfirmation, start)
	require.NoError(t, err)
	ok, err := jobs.Claim(ctx, j.ID, "dead-worker")
	require.NoError(t, err)
	require.True(t, ok)

	later := start.Add(ClaimTTL + time.Second)
	jobs.WithClock(fixedClock(later))
	due, err := jobs.FetchDue(ctx, later, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	ok, err = jobs.Claim(ctx, j.ID, "w2")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRetryAndDeletePending(t *testing.T) {
	db := newTestDB(t)
	farm := seedFarm(t, db, nil)
	res := confirmedOne(t, NewReservationRepo(db, 60), farm.ID)
	now := time.Date(2025, 10, 13, 2, 0, 0, 0, time.UTC)
	jobs := NewNotificationJobRepo(db).WithClock(fixedClock(now))
	ctx := context.Background()

	j, _, err := jobs.Ensure(ctx, res.ID, model.JobConfirmation, now)
	require.NoError(t, err)
	_, err = jobs.Retry(ctx, j.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = jobs.Retry(ctx, "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)

	_, err = jobs.Claim(ctx, j.ID, "w")
	require.NoError(t, err)
	_, err = jobs.MarkFailed(ctx, j.ID, "w", "boom")
	require.NoError(t, err)

	retried, err := jobs.Retry(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobPending, retried.Status)
	assert.Equal(t, 1, retried.AttemptCount)
	due, err := jobs.FetchDue(ctx, now, 10)
	require.NoError(t, err)
	assert.Len(t, due, 1)

	_, _, err = jobs.Ensure(ctx, res.ID, model.JobReminder, now.Add(48*time.Hour))
	require.NoError(t, err)
	n, err := jobs.DeletePending(ctx, res.ID, model.JobReminder)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	all, err := jobs.ListByReservation(ctx, res.ID)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
