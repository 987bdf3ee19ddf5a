package notification

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iliyamo/rice-reservation/internal/model"
)

// Per-job result statuses. SENT and FAILED mirror the job row; DRY_RUN and
// SKIPPED leave it untouched.
const (
	ResultSent    = model.JobSent
	ResultFailed  = model.JobFailed
	ResultDryRun  = "DRY_RUN"
	ResultSkipped = "SKIPPED"
)

// ErrContextUnavailable is recorded on jobs whose reservation, consumer,
// messaging id or farm can no longer be read.
var ErrContextUnavailable = errors.New("context unavailable")

// ErrNotConfirmed is recorded on CONFIRMATION and REMINDER jobs whose
// reservation left the confirmed state before the send.
var ErrNotConfirmed = errors.New("reservation not confirmed")

// CancelLinker signs cancel tokens for confirmation messages.
type CancelLinker interface {
	IssueCancelToken(res *model.Reservation) (string, error)
}

// JobResult reports what happened to one job.
type JobResult struct {
	JobID         string `json:"job_id"`
	ReservationID string `json:"reservation_id"`
	Kind          string `json:"kind"`
	Status        string `json:"status"`
	Text          string `json:"text,omitempty"`
	Error         string `json:"error,omitempty"`
}

// Result summarizes one dispatch batch.
type Result struct {
	Processed int         `json:"processed"`
	Sent      int         `json:"sent"`
	Failed    int         `json:"failed"`
	Jobs      []JobResult `json:"jobs"`
}

// DispatcherOptions configures a Dispatcher.
type DispatcherOptions struct {
	FrontendBaseURL string
	PushTimeout     time.Duration
	Now             func() time.Time
}

// Dispatcher sends due notification jobs. Several dispatchers may run against
// the same table; a job is pushed only by the worker that claimed it.
type Dispatcher struct {
	jobs         JobStore
	reservations ReservationReader
	consumers    ConsumerReader
	farms        FarmReader
	pusher       Pusher
	links        CancelLinker
	frontend     string
	pushTimeout  time.Duration
	now          func() time.Time
	log          *zap.Logger
}

// NewDispatcher wires a Dispatcher. links may be nil, which omits cancel URLs.
func NewDispatcher(jobs JobStore, reservations ReservationReader, consumers ConsumerReader, farms FarmReader,
	pusher Pusher, links CancelLinker, log *zap.Logger, opts DispatcherOptions) *Dispatcher {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.PushTimeout <= 0 {
		opts.PushTimeout = 10 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		jobs:         jobs,
		reservations: reservations,
		consumers:    consumers,
		farms:        farms,
		pusher:       pusher,
		links:        links,
		frontend:     strings.TrimRight(opts.FrontendBaseURL, "/"),
		pushTimeout:  opts.PushTimeout,
		now:          opts.Now,
		log:          log.With(zap.String("component", "dispatcher")),
	}
}

// SendPendingJobs processes up to limit due jobs, earliest first. With dryRun
// set, messages are rendered and reported but neither pushed nor recorded.
// Per-job failures are recorded on the job and never abort the batch.
func (d *Dispatcher) SendPendingJobs(ctx context.Context, limit int, dryRun bool) (Result, error) {
	out := Result{Jobs: []JobResult{}}
	if limit <= 0 {
		return out, nil
	}
	due, err := d.jobs.FetchDue(ctx, d.now(), limit)
	if err != nil {
		return out, err
	}
	for _, job := range due {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		out.Processed++
		jr := d.process(ctx, job, dryRun)
		switch jr.Status {
		case ResultSent:
			out.Sent++
		case ResultFailed:
			out.Failed++
		}
		out.Jobs = append(out.Jobs, jr)
	}
	if out.Processed > 0 {
		d.log.Info("dispatch batch done", zap.Int("processed", out.Processed), zap.Int("sent", out.Sent),
			zap.Int("failed", out.Failed), zap.Bool("dry_run", dryRun))
	}
	return out, nil
}

func (d *Dispatcher) process(ctx context.Context, job model.NotificationJob, dryRun bool) JobResult {
	jr := JobResult{JobID: job.ID, ReservationID: job.ReservationID, Kind: job.Kind}
	log := d.log.With(zap.String("job_id", job.ID), zap.String("kind", job.Kind))

	if dryRun {
		nc, to, err := d.buildContext(ctx, job)
		if err != nil {
			jr.Status, jr.Error = ResultFailed, err.Error()
			return jr
		}
		text, err := Render(job.Kind, nc)
		if err != nil {
			jr.Status, jr.Error = ResultFailed, err.Error()
			return jr
		}
		jr.Status, jr.Text = ResultDryRun, text
		log.Debug("dry run", zap.String("to", to))
		return jr
	}

	token := uuid.NewString()
	claimed, err := d.jobs.Claim(ctx, job.ID, token)
	if err != nil {
		jr.Status, jr.Error = ResultSkipped, err.Error()
		log.Error("claim failed", zap.Error(err))
		return jr
	}
	if !claimed {
		jr.Status = ResultSkipped
		log.Debug("job claimed by another worker")
		return jr
	}

	nc, to, err := d.buildContext(ctx, job)
	if errors.Is(err, ErrNotConfirmed) {
		log.Info("stale job dropped", zap.String("reservation_id", job.ReservationID))
		return d.fail(ctx, jr, token, ErrNotConfirmed.Error())
	}
	if err != nil {
		log.Warn("notification context unavailable", zap.Error(err))
		return d.fail(ctx, jr, token, ErrContextUnavailable.Error())
	}
	text, err := Render(job.Kind, nc)
	if err != nil {
		return d.fail(ctx, jr, token, err.Error())
	}

	pctx, cancel := context.WithTimeout(ctx, d.pushTimeout)
	err = d.pusher.Push(pctx, to, text)
	cancel()
	if err != nil {
		log.Warn("push failed", zap.Error(err))
		return d.fail(ctx, jr, token, err.Error())
	}

	ok, err := d.jobs.MarkSent(ctx, job.ID, token)
	switch {
	case err != nil:
		log.Error("mark sent failed after push", zap.Error(err))
		jr.Status, jr.Error = ResultSkipped, err.Error()
	case !ok:
		log.Warn("job left PENDING during send")
		jr.Status = ResultSkipped
	default:
		jr.Status = ResultSent
	}
	return jr
}

func (d *Dispatcher) fail(ctx context.Context, jr JobResult, token, msg string) JobResult {
	if _, err := d.jobs.MarkFailed(ctx, jr.JobID, token, msg); err != nil {
		d.log.Error("mark failed failed", zap.String("job_id", jr.JobID), zap.Error(err))
	}
	jr.Status, jr.Error = ResultFailed, msg
	return jr
}

func (d *Dispatcher) buildContext(ctx context.Context, job model.NotificationJob) (Context, string, error) {
	res, err := d.reservations.Get(ctx, job.ReservationID)
	if err != nil {
		return Context{}, "", err
	}
	if (job.Kind == model.JobConfirmation || job.Kind == model.JobReminder) && res.Status != model.StatusConfirmed {
		return Context{}, "", ErrNotConfirmed
	}
	if res.ConsumerID == nil {
		return Context{}, "", ErrContextUnavailable
	}
	consumer, err := d.consumers.GetByID(ctx, *res.ConsumerID)
	if err != nil {
		return Context{}, "", err
	}
	to := consumer.MessagingID()
	if to == "" {
		return Context{}, "", ErrContextUnavailable
	}
	farm, err := d.farms.GetByID(ctx, res.FarmID)
	if err != nil {
		return Context{}, "", err
	}
	nc := Context{Reservation: res, Consumer: consumer, Farm: farm}
	if job.Kind == model.JobConfirmation && d.links != nil && d.frontend != "" {
		if tok, err := d.links.IssueCancelToken(res); err == nil {
			nc.CancelURL = d.frontend + "/cancel?token=" + url.QueryEscape(tok)
		}
	}
	return nc, to, nil
}

// Retry resets a FAILED job so the next batch sends it.
func (d *Dispatcher) Retry(ctx context.Context, id string) (*model.NotificationJob, error) {
	job, err := d.jobs.Retry(ctx, id)
	if err != nil {
		return nil, err
	}
	d.log.Info("job reset for retry", zap.String("job_id", id), zap.Int("attempts", job.AttemptCount))
	return job, nil
}
