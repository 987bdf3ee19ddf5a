package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/rice-reservation/internal/database"
	"github.com/iliyamo/rice-reservation/internal/model"
)

// ClaimTTL is how long a dispatcher claim on a job is honoured. A claim older
// than this belongs to a worker that died mid-send and may be taken over.
const ClaimTTL = 10 * time.Minute

// NotificationJobRepo persists notification jobs. The table is the only
// memory of pending notifications: the scheduler inserts rows and the
// dispatcher claims and completes them.
type NotificationJobRepo struct {
	db  *database.DB
	now func() time.Time
}

// NewNotificationJobRepo returns a NotificationJobRepo bound to db.
func NewNotificationJobRepo(db *database.DB) *NotificationJobRepo {
	return &NotificationJobRepo{db: db, now: time.Now}
}

// WithClock replaces the clock used to stamp rows.
func (r *NotificationJobRepo) WithClock(now func() time.Time) *NotificationJobRepo {
	r.now = now
	return r
}

const jobColumns = `id, reservation_id, kind, scheduled_at, status, attempt_count, last_error, created_at, updated_at`

// Get returns one job or ErrJobNotFound.
func (r *NotificationJobRepo) Get(ctx context.Context, id string) (*model.NotificationJob, error) {
	row := r.db.QueryRowContext(ctx, r.db.Rebind(`SELECT `+jobColumns+` FROM notification_jobs WHERE id = ?`), id)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	return j, err
}

// ListByReservation returns every job of a reservation, oldest first.
func (r *NotificationJobRepo) ListByReservation(ctx context.Context, reservationID string) ([]model.NotificationJob, error) {
	return r.list(ctx, r.db.DB, `WHERE reservation_id = ? ORDER BY created_at, id`, reservationID)
}

// Ensure inserts a PENDING job of kind unless a PENDING or SENT job of that
// kind already exists for the reservation. The reservation row is locked for
// the check so concurrent callers cannot both insert. The flag reports
// whether a row was inserted. CONFIRMATION and REMINDER jobs are only
// inserted while the locked row is still confirmed; otherwise Ensure returns
// a nil job and false.
func (r *NotificationJobRepo) Ensure(ctx context.Context, reservationID, kind string, scheduledAt time.Time) (*model.NotificationJob, bool, error) {
	var (
		job     *model.NotificationJob
		created bool
	)
	err := r.db.InTx(ctx, func(tx *sql.Tx) error {
		var status string
		err := tx.QueryRowContext(ctx, r.db.Rebind(`SELECT status FROM reservations WHERE id = ?`+r.db.ForUpdate()), reservationID).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrReservationNotFound
		}
		if err != nil {
			return err
		}
		if needsConfirmed(kind) && status != model.StatusConfirmed {
			return nil
		}
		active, err := r.list(ctx, tx, `WHERE reservation_id = ? AND kind = ? AND status IN (?, ?) ORDER BY created_at, id`,
			reservationID, kind, model.JobPending, model.JobSent)
		if err != nil {
			return err
		}
		if len(active) > 0 {
			job = &active[0]
			return nil
		}
		now := r.now().UTC().Truncate(time.Second)
		job = &model.NotificationJob{
			ID:            newID(),
			ReservationID: reservationID,
			Kind:          kind,
			ScheduledAt:   scheduledAt.UTC().Truncate(time.Second),
			Status:        model.JobPending,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		_, err = tx.ExecContext(ctx, r.db.Rebind(`INSERT INTO notification_jobs
			(id, reservation_id, kind, scheduled_at, status, attempt_count, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, 0, ?, ?)`),
			job.ID, job.ReservationID, job.Kind, database.FormatTime(job.ScheduledAt), job.Status,
			database.FormatTime(now), database.FormatTime(now))
		created = err == nil
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return job, created, nil
}

func needsConfirmed(kind string) bool {
	return kind == model.JobConfirmation || kind == model.JobReminder
}

// DeletePending removes the PENDING jobs of kind for a reservation.
func (r *NotificationJobRepo) DeletePending(ctx context.Context, reservationID, kind string) (int64, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM notification_jobs WHERE reservation_id = ? AND kind = ? AND status = ?`),
		reservationID, kind, model.JobPending)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// FetchDue returns up to limit PENDING jobs due at now that no live worker
// has claimed, earliest first and by id within the same due time.
func (r *NotificationJobRepo) FetchDue(ctx context.Context, now time.Time, limit int) ([]model.NotificationJob, error) {
	return r.list(ctx, r.db.DB, `WHERE status = ? AND scheduled_at <= ? AND (claim_token IS NULL OR claimed_at < ?)
		ORDER BY scheduled_at, id LIMIT ?`,
		model.JobPending, database.FormatTime(now), database.FormatTime(now.Add(-ClaimTTL)), limit)
}

// Claim marks a due job as being sent by the holder of token. It returns
// false when another worker holds a live claim or the job left PENDING.
func (r *NotificationJobRepo) Claim(ctx context.Context, id, token string) (bool, error) {
	now := r.now()
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`UPDATE notification_jobs SET claim_token = ?, claimed_at = ?, updated_at = ?
		WHERE id = ? AND status = ? AND (claim_token IS NULL OR claimed_at < ?)`),
		token, database.FormatTime(now), database.FormatTime(now), id, model.JobPending, database.FormatTime(now.Add(-ClaimTTL)))
	return affectedOne(res, err)
}

// MarkSent moves a claimed job from PENDING to SENT. It is a no-op returning
// false when the job is no longer PENDING under token.
func (r *NotificationJobRepo) MarkSent(ctx context.Context, id, token string) (bool, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`UPDATE notification_jobs SET status = ?, updated_at = ?
		WHERE id = ? AND status = ? AND claim_token = ?`),
		model.JobSent, database.FormatTime(r.now()), id, model.JobPending, token)
	return affectedOne(res, err)
}

// MarkFailed moves a claimed job to FAILED, counting the attempt and keeping
// the error text.
func (r *NotificationJobRepo) MarkFailed(ctx context.Context, id, token, lastError string) (bool, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`UPDATE notification_jobs SET status = ?, attempt_count = attempt_count + 1,
		last_error = ?, claim_token = NULL, claimed_at = NULL, updated_at = ?
		WHERE id = ? AND status = ? AND claim_token = ?`),
		model.JobFailed, lastError, database.FormatTime(r.now()), id, model.JobPending, token)
	return affectedOne(res, err)
}

// Retry resets a FAILED job to PENDING, due now. attempt_count is kept. It
// refuses when another PENDING or SENT job of the same kind exists.
func (r *NotificationJobRepo) Retry(ctx context.Context, id string) (*model.NotificationJob, error) {
	var out *model.NotificationJob
	err := r.db.InTx(ctx, func(tx *sql.Tx) error {
		jobs, err := r.list(ctx, tx, `WHERE id = ?`, id)
		if err != nil {
			return err
		}
		if len(jobs) == 0 {
			return ErrJobNotFound
		}
		j := jobs[0]
		if j.Status != model.JobFailed {
			return ErrInvalidTransition
		}
		var rid string
		if err := tx.QueryRowContext(ctx, r.db.Rebind(`SELECT id FROM reservations WHERE id = ?`+r.db.ForUpdate()), j.ReservationID).Scan(&rid); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrReservationNotFound
			}
			return err
		}
		active, err := r.list(ctx, tx, `WHERE reservation_id = ? AND kind = ? AND status IN (?, ?)`,
			j.ReservationID, j.Kind, model.JobPending, model.JobSent)
		if err != nil {
			return err
		}
		if len(active) > 0 {
			return ErrInvalidTransition
		}
		now := r.now().UTC().Truncate(time.Second)
		if _, err := tx.ExecContext(ctx, r.db.Rebind(`UPDATE notification_jobs SET status = ?, scheduled_at = ?,
			claim_token = NULL, claimed_at = NULL, updated_at = ? WHERE id = ?`),
			model.JobPending, database.FormatTime(now), database.FormatTime(now), id); err != nil {
			return err
		}
		j.Status, j.ScheduledAt, j.UpdatedAt = model.JobPending, now, now
		out = &j
		return nil
	})
	return out, err
}

func (r *NotificationJobRepo) list(ctx context.Context, q querier, where string, args ...any) ([]model.NotificationJob, error) {
	rows, err := q.QueryContext(ctx, r.db.Rebind(`SELECT `+jobColumns+` FROM notification_jobs `+where), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.NotificationJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *j)
	}
	return out, rows.Err()
}

func scanJob(s rowScanner) (*model.NotificationJob, error) {
	var (
		j                                 model.NotificationJob
		lastErr                           sql.NullString
		scheduledAt, createdAt, updatedAt string
	)
	if err := s.Scan(&j.ID, &j.ReservationID, &j.Kind, &scheduledAt, &j.Status, &j.AttemptCount, &lastErr, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	j.LastError = database.StringPtr(lastErr)
	var err error
	if j.ScheduledAt, err = database.ParseTime(scheduledAt); err != nil {
		return nil, err
	}
	if j.CreatedAt, err = database.ParseTime(createdAt); err != nil {
		return nil, err
	}
	if j.UpdatedAt, err = database.ParseTime(updatedAt); err != nil {
		return nil, err
	}
	return &j, nil
}

func affectedOne(res sql.Result, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
