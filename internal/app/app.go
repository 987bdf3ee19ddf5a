// Package app wires configuration, storage and services into the API server
// and the notifier.
package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/rice-reservation/internal/config"
	"github.com/iliyamo/rice-reservation/internal/database"
	"github.com/iliyamo/rice-reservation/internal/handler"
	"github.com/iliyamo/rice-reservation/internal/middleware"
	"github.com/iliyamo/rice-reservation/internal/notification"
	"github.com/iliyamo/rice-reservation/internal/payment"
	"github.com/iliyamo/rice-reservation/internal/repository"
	"github.com/iliyamo/rice-reservation/internal/router"
	"github.com/iliyamo/rice-reservation/internal/service"
	"github.com/iliyamo/rice-reservation/internal/utils"
)

// App holds the shared object graph.
type App struct {
	Cfg config.Config
	Log *zap.Logger
	DB  *database.DB

	Farms        *repository.FarmRepo
	Consumers    *repository.ConsumerRepo
	Reservations *repository.ReservationRepo
	Jobs         *repository.NotificationJobRepo
	Tokens       *repository.MagicLinkRepo

	// Publisher is nil when no broker is configured.
	Publisher *service.Publisher

	Identities  *service.IdentityService
	State       *service.ReservationService
	Payments    *service.PaymentService
	MagicLinks  *service.MagicLinkService
	Scheduler   *notification.Scheduler
	Dispatcher  *notification.Dispatcher
	CancelCodec *utils.CancelTokenCodec
}

// New opens and migrates the database and builds every service.
func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	db, err := database.Open(cfg.DatabaseURL, cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := database.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	log.Info("database ready", zap.Stringer("dialect", db.Dialect))

	a := &App{
		Cfg:          cfg,
		Log:          log,
		DB:           db,
		Farms:        repository.NewFarmRepo(db),
		Consumers:    repository.NewConsumerRepo(db),
		Reservations: repository.NewReservationRepo(db, cfg.MaxTotalKg),
		Jobs:         repository.NewNotificationJobRepo(db),
		Tokens:       repository.NewMagicLinkRepo(db),
		CancelCodec:  utils.NewCancelTokenCodec(cfg.CancelTokenSecret, nil),
	}

	var kicker notification.Kicker
	var mailer service.Mailer = service.LogMailer{Log: log}
	if cfg.AMQPURL != "" {
		a.Publisher = service.NewPublisher(cfg.AMQPURL, log)
		kicker = a.Publisher
		mailer = a.Publisher
	} else {
		log.Info("no broker configured, events stay in process")
	}

	a.Scheduler = notification.NewScheduler(a.Jobs, a.Reservations, a.Consumers, kicker, nil, log)
	signals := service.SignalFanout{a.Scheduler}
	if a.Publisher != nil {
		signals = append(signals, a.Publisher)
	}

	a.Identities = service.NewIdentityService(a.Consumers)
	a.State = service.NewReservationService(a.Reservations, signals, a.CancelCodec, log, service.ReservationOptions{
		ServiceFee: cfg.ServiceFee,
		Currency:   cfg.Currency,
	})
	a.Payments = service.NewPaymentService(a.Reservations, a.State, a.Identities, log)
	a.MagicLinks = service.NewMagicLinkService(a.Tokens, a.Reservations, a.State, a.Identities, mailer, log, service.MagicLinkOptions{
		BaseURL: cfg.FrontendBaseURL,
		TTL:     cfg.MagicLinkTTL,
	})

	pusher := notification.NewLineClient(cfg.MessagingAPIBase, cfg.MessagingAccessToken, cfg.PushTimeout)
	a.Dispatcher = notification.NewDispatcher(a.Jobs, a.Reservations, a.Consumers, a.Farms, pusher, a.State, log,
		notification.DispatcherOptions{
			FrontendBaseURL: cfg.FrontendBaseURL,
			PushTimeout:     cfg.PushTimeout,
		})
	return a, nil
}

// Close releases the database.
func (a *App) Close() error { return a.DB.Close() }

// Server builds the HTTP server. rdb may be nil, which disables caching and
// rate limiting.
func (a *App) Server(rdb *redis.Client) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())
	e.Use(middleware.RequestLogger(a.Log))
	e.Use(echomw.BodyLimit("1M"))

	opts := router.Options{JWTSecret: a.Cfg.JWTSecret, AdminKeyHash: a.Cfg.AdminKeyHash}
	if rdb != nil {
		opts.Cache = middleware.NewRedisCache(config.LoadCacheConfig(), rdb, a.Log)
		opts.RateLimit = middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, a.Log)
	}

	router.Register(e, router.Handlers{
		Health:       handler.Health(a.DB),
		Farms:        handler.NewFarmHandler(a.Farms, a.Reservations, a.Log),
		Reservations: handler.NewReservationHandler(a.State, a.Cfg.FrontendBaseURL, a.Log),
		Cancel:       handler.NewCancelHandler(a.State, a.Log),
		MagicLinks:   handler.NewMagicLinkHandler(a.MagicLinks, a.Farms, a.Cfg.JWTSecret, a.Cfg.AccessTTL, a.Log),
		Webhooks:     handler.NewPaymentWebhookHandler(payment.NewVerifier(a.Cfg.PaymentWebhookSecret, 0, nil), a.Payments, a.Log),
		Admin:        handler.NewAdminHandler(a.Dispatcher, a.Cfg.DispatchLimit, a.Log),
	}, opts)

	e.HTTPErrorHandler = func(err error, c echo.Context) {
		if he, ok := err.(*echo.HTTPError); ok {
			_ = c.JSON(he.Code, echo.Map{"error": http.StatusText(he.Code), "message": fmt.Sprint(he.Message)})
			return
		}
		a.Log.Error("unhandled error", zap.Error(err))
		_ = c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal_error", "message": "internal error"})
	}
	return e
}
