package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/rice-reservation/internal/database"
	"github.com/iliyamo/rice-reservation/internal/handler"
	"github.com/iliyamo/rice-reservation/internal/model"
	"github.com/iliyamo/rice-reservation/internal/notification"
	"github.com/iliyamo/rice-reservation/internal/payment"
	"github.com/iliyamo/rice-reservation/internal/pickup"
	"github.com/iliyamo/rice-reservation/internal/queue"
	"github.com/iliyamo/rice-reservation/internal/repository"
	"github.com/iliyamo/rice-reservation/internal/router"
	"github.com/iliyamo/rice-reservation/internal/service"
	"github.com/iliyamo/rice-reservation/internal/utils"
)

const (
	jwtSecret     = "jwt-secret"
	webhookSecret = "whsec_test"
	adminKey      = "admin-key"
	frontend      = "https://rice.example"
)

var (
	adminHashOnce sync.Once
	adminHash     string
)

func adminKeyHash(t *testing.T) string {
	t.Helper()
	adminHashOnce.Do(func() {
		h, err := utils.HashAdminKey(adminKey)
		require.NoError(t, err)
		adminHash = h
	})
	return adminHash
}

// monday10 is Monday 13 October 2025, 10:00 in Tokyo. A WED_19_20 booking
// placed then joins Wednesday 15 October 19:00.
var monday10 = time.Date(2025, time.October, 13, 10, 0, 0, 0, pickup.Location)

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

func (m *mailbox) lastToken(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.sent)
	u, err := url.Parse(m.sent[len(m.sent)-1].URL)
	require.NoError(t, err)
	return u.Query().Get("token")
}

type nopPusher struct{}

func (nopPusher) Push(context.Context, string, string) error { return nil }

type server struct {
	e         *echo.Echo
	now       time.Time
	farm      *model.Farm
	owner     *model.Consumer
	consumers *repository.ConsumerRepo
	repo      *repository.ReservationRepo
	state     *service.ReservationService
	mail      *mailbox
	verifier  *payment.Verifier
}

func newServer(t *testing.T) *server {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open("", filepath.Join(t.TempDir(), "rice.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.Migrate(ctx, db))

	s := &server{now: monday10, mail: &mailbox{}}
	clock := func() time.Time { return s.now }

	s.consumers = repository.NewConsumerRepo(db)
	s.owner, err = s.consumers.Create(ctx, "farmer@example.com", "")
	require.NoError(t, err)

	farms := repository.NewFarmRepo(db)
	p5, p10 := int64(1000), int64(2000)
	s.farm = &model.Farm{
		OwnerID:         &s.owner.ID,
		Name:            "Tanaka Farm",
		PickupLat:       35.681236,
		PickupLng:       139.767125,
		PickupPlaceName: "Tanaka barn",
		PickupSlotCode:  "WED_19_20",
		Prices:          map[int]*int64{5: &p5, 10: &p10},
		Accepting:       true,
		Publishable:     true,
	}
	require.NoError(t, farms.Create(ctx, s.farm))

	s.repo = repository.NewReservationRepo(db, 60).WithClock(clock)
	jobs := repository.NewNotificationJobRepo(db).WithClock(clock)
	sched := notification.NewScheduler(jobs, s.repo, s.consumers, nil, clock, nil)
	codec := utils.NewCancelTokenCodec("cancel-secret", clock)
	s.state = service.NewReservationService(s.repo, sched, codec, nil, service.ReservationOptions{ServiceFee: 300, Now: clock})
	ids := service.NewIdentityService(s.consumers)
	payments := service.NewPaymentService(s.repo, s.state, ids, nil)
	links := service.NewMagicLinkService(repository.NewMagicLinkRepo(db), s.repo, s.state, ids, s.mail, nil,
		service.MagicLinkOptions{BaseURL: frontend, Now: clock})
	dispatcher := notification.NewDispatcher(jobs, s.repo, s.consumers, farms, nopPusher{}, s.state, nil,
		notification.DispatcherOptions{FrontendBaseURL: frontend, Now: clock})
	s.verifier = payment.NewVerifier(webhookSecret, 0, clock)

	s.e = echo.New()
	router.Register(s.e, router.Handlers{
		Health:       handler.Health(db),
		Farms:        handler.NewFarmHandler(farms, s.repo, nil).WithClock(clock),
		Reservations: handler.NewReservationHandler(s.state, frontend, nil),
		Cancel:       handler.NewCancelHandler(s.state, nil),
		MagicLinks:   handler.NewMagicLinkHandler(links, farms, jwtSecret, time.Hour, nil),
		Webhooks:     handler.NewPaymentWebhookHandler(s.verifier, payments, nil),
		Admin:        handler.NewAdminHandler(dispatcher, 10, nil),
	}, router.Options{JWTSecret: jwtSecret, AdminKeyHash: adminKeyHash(t)})
	return s
}

func (s *server) do(t *testing.T, method, path string, body any, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func (s *server) session(t *testing.T, consumerID, role string) map[string]string {
	t.Helper()
	tok, err := utils.NewAccessToken(jwtSecret, consumerID, role, time.Hour, time.Now())
	require.NoError(t, err)
	return map[string]string{"Authorization": "Bearer " + tok.Token}
}

func (s *server) webhook(t *testing.T, event map[string]any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(event)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/payment", bytes.NewReader(payload))
	req.Header.Set(payment.SignatureHeader, s.verifier.Sign(payload, s.now))
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func paymentSucceeded(pi, reservationID string) map[string]any {
	return map[string]any{
		"id":   "evt_" + pi,
		"type": payment.EventPaymentIntentSucceeded,
		"data": map[string]any{"object": map[string]any{
			"id":       pi,
			"status":   "succeeded",
			"metadata": map[string]string{service.MetaReservationID: reservationID},
		}},
	}
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

// createOrder posts a one-line order and returns the reservation id.
func (s *server) createOrder(t *testing.T, header map[string]string) string {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/v1/reservations", map[string]any{
		"farm_id":          s.farm.ID,
		"pickup_slot_code": "WED_19_20",
		"items":            []map[string]int{{"size_kg": 5, "quantity": 2}},
	}, header)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var out service.OrderSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out.Lines, 1)
	return out.Lines[0].ReservationID
}
