package notification

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iliyamo/rice-reservation/internal/database"
	"github.com/iliyamo/rice-reservation/internal/model"
	"github.com/iliyamo/rice-reservation/internal/pickup"
	"github.com/iliyamo/rice-reservation/internal/repository"
	"github.com/iliyamo/rice-reservation/internal/service"
	"github.com/iliyamo/rice-reservation/internal/utils"
)

func jst(day, hour, min int) time.Time {
	return time.Date(2025, time.October, day, hour, min, 0, 0, pickup.Location)
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

type push struct {
	to, text string
}

// sink is a Pusher that records pushes and optionally fails or stalls.
type sink struct {
	mu     sync.Mutex
	pushes []push
	err    error
	delay  time.Duration
}

func (s *sink) Push(ctx context.Context, to, text string) error {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.pushes = append(s.pushes, push{to, text})
	return nil
}

func (s *sink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pushes)
}

type kicks struct {
	mu      sync.Mutex
	reasons []string
}

func (k *kicks) Kick(_ context.Context, reason, _ string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.reasons = append(k.reasons, reason)
	return nil
}

type env struct {
	clock        *clock
	farm         *model.Farm
	reservations *repository.ReservationRepo
	consumers    *repository.ConsumerRepo
	jobs         *repository.NotificationJobRepo
	scheduler    *Scheduler
	svc          *service.ReservationService
	sink         *sink
	kicks        *kicks
	dispatcher   *Dispatcher
}

func newEnv(t *testing.T, start time.Time) *env {
	t.Helper()
	db, err := database.Open("", filepath.Join(t.TempDir(), "rice.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.Migrate(context.Background(), db))

	e := &env{clock: &clock{t: start}, sink: &sink{}, kicks: &kicks{}}
	p5 := int64(1000)
	e.farm = &model.Farm{
		Name:            "Tanaka Farm",
		PickupLat:       35.681236,
		PickupLng:       139.767125,
		PickupPlaceName: "Tanaka barn",
		PickupNotes:     "Park by the shed",
		PickupSlotCode:  "WED_19_20",
		Prices:          map[int]*int64{5: &p5},
		Accepting:       true,
		Publishable:     true,
	}
	farms := repository.NewFarmRepo(db)
	require.NoError(t, farms.Create(context.Background(), e.farm))

	e.reservations = repository.NewReservationRepo(db, 60).WithClock(e.clock.Now)
	e.consumers = repository.NewConsumerRepo(db)
	e.jobs = repository.NewNotificationJobRepo(db).WithClock(e.clock.Now)
	e.scheduler = NewScheduler(e.jobs, e.reservations, e.consumers, e.kicks, e.clock.Now, nil)
	codec := utils.NewCancelTokenCodec("test-secret", e.clock.Now)
	e.svc = service.NewReservationService(e.reservations, e.scheduler, codec, nil, service.ReservationOptions{ServiceFee: 300, Now: e.clock.Now})
	e.dispatcher = e.newDispatcher(farms)
	return e
}

func (e *env) newDispatcher(farms FarmReader) *Dispatcher {
	return NewDispatcher(e.jobs, e.reservations, e.consumers, farms, e.sink, e.svc, nil,
		DispatcherOptions{FrontendBaseURL: "https://rice.example", PushTimeout: time.Second, Now: e.clock.Now})
}

// reserve creates a pending reservation for a consumer with the given
// messaging id ("" for none).
func (e *env) reserve(t *testing.T, lineUserID string) (*model.Reservation, *model.Consumer) {
	t.Helper()
	ctx := context.Background()
	c, err := e.consumers.Create(ctx, "", lineUserID)
	require.NoError(t, err)
	out, err := e.reservations.CreatePendingBulk(ctx, repository.BulkInput{
		ConsumerID: &c.ID,
		FarmID:     e.farm.ID,
		Lines:      []repository.BulkLine{{SizeKg: 5, Quantity: 2}},
		ServiceFee: 300,
		Currency:   "jpy",
	})
	require.NoError(t, err)
	return &out.Reservations[0], c
}

// confirmSilently confirms res for the Wednesday 19:00 pickup without
// signalling the scheduler.
func (e *env) confirmSilently(t *testing.T, res *model.Reservation, paymentIntentID string) *model.Reservation {
	t.Helper()
	start := jst(15, 19, 0)
	got, _, err := e.reservations.SetConfirmed(context.Background(), res.ID, repository.ConfirmInput{
		EventStart:      start,
		EventEnd:        start.Add(time.Hour),
		PickupDisplay:   pickup.FormatDisplay(start, start.Add(time.Hour)),
		PaymentIntentID: paymentIntentID,
	})
	require.NoError(t, err)
	return got
}

func (e *env) jobsByKind(t *testing.T, reservationID string) map[string][]model.NotificationJob {
	t.Helper()
	all, err := e.jobs.ListByReservation(context.Background(), reservationID)
	require.NoError(t, err)
	out := map[string][]model.NotificationJob{}
	for _, j := range all {
		out[j.Kind] = append(out[j.Kind], j)
	}
	return out
}
