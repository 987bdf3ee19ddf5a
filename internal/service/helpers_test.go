package service

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
	"github.com/iliyamo/rice-reservation/internal/queue"
	"github.com/iliyamo/rice-reservation/internal/repository"
	"github.com/iliyamo/rice-reservation/internal/utils"
)

func jst(month time.Month, day, hour, min int) time.Time {
	return time.Date(2025, month, day, hour, min, 0, 0, pickup.Location)
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

type recordedSignal struct {
	kind string
	id   string
}

type signalRecorder struct {
	mu     sync.Mutex
	events []recordedSignal
}

func (r *signalRecorder) ReservationConfirmed(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedSignal{"confirmed", id})
	return nil
}

func (r *signalRecorder) ReservationCancelled(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedSignal{"cancelled", id})
	return nil
}

func (r *signalRecorder) count(kind string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.kind == kind {
			n++
		}
	}
	return n
}

type mailbox struct {
	mu   sync.Mutex
	sent []queue.MagicLinkMessage
}

func (m *mailbox) SendMagicLink(_ context.Context, msg queue.MagicLinkMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

func (m *mailbox) last(t *testing.T) queue.MagicLinkMessage {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.sent)
	return m.sent[len(m.sent)-1]
}

type fixture struct {
	db        *database.DB
	clock     *clock
	farm      *model.Farm
	repo      *repository.ReservationRepo
	consumers *repository.ConsumerRepo
	signals   *signalRecorder
	mail      *mailbox
	svc       *ReservationService
	ids       *IdentityService
	payments  *PaymentService
	links     *MagicLinkService
}

func newFixture(t *testing.T, start time.Time) *fixture {
	t.Helper()
	db, err := database.Open("", filepath.Join(t.TempDir(), "rice.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.Migrate(context.Background(), db))

	f := &fixture{db: db, clock: &clock{t: start}, signals: &signalRecorder{}, mail: &mailbox{}}
	p5, p10 := int64(1000), int64(2000)
	f.farm = &model.Farm{
		Name:            "Tanaka Farm",
		PickupLat:       35.681236,
		PickupLng:       139.767125,
		PickupPlaceName: "Tanaka barn",
		PickupSlotCode:  "WED_19_20",
		Prices:          map[int]*int64{5: &p5, 10: &p10},
		Accepting:       true,
		Publishable:     true,
	}
	require.NoError(t, repository.NewFarmRepo(db).Create(context.Background(), f.farm))

	f.repo = repository.NewReservationRepo(db, 60).WithClock(f.clock.Now)
	f.consumers = repository.NewConsumerRepo(db)
	codec := utils.NewCancelTokenCodec("test-secret", f.clock.Now)
	f.svc = NewReservationService(f.repo, f.signals, codec, nil, ReservationOptions{ServiceFee: 300, Now: f.clock.Now})
	f.ids = NewIdentityService(f.consumers)
	f.payments = NewPaymentService(f.repo, f.svc, f.ids, nil)
	f.links = NewMagicLinkService(repository.NewMagicLinkRepo(db), f.repo, f.svc, f.ids, f.mail, nil,
		MagicLinkOptions{BaseURL: "https://rice.example/", Now: f.clock.Now})
	return f
}

func (f *fixture) order(t *testing.T, consumerID *string, lines ...repository.BulkLine) *OrderSummary {
	t.Helper()
	if len(lines) == 0 {
		lines = []repository.BulkLine{{SizeKg: 5, Quantity: 1}}
	}
	out, err := f.svc.CreateOrder(context.Background(), CreateOrderInput{
		ConsumerID:     consumerID,
		FarmID:         f.farm.ID,
		PickupSlotCode: "WED_19_20",
		Lines:          lines,
	})
	require.NoError(t, err)
	return out
}

func (f *fixture) consumer(t *testing.T, email string) *model.Consumer {
	t.Helper()
	c, err := f.ids.ResolveByEmail(context.Background(), email)
	require.NoError(t, err)
	return c
}
