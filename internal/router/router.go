package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/rice-reservation/internal/handler"
	"github.com/iliyamo/rice-reservation/internal/middleware"
)

// Handlers groups every HTTP handler the API mounts.
type Handlers struct {
	Health       echo.HandlerFunc
	Farms        *handler.FarmHandler
	Reservations *handler.ReservationHandler
	Cancel       *handler.CancelHandler
	MagicLinks   *handler.MagicLinkHandler
	Webhooks     *handler.PaymentWebhookHandler
	Admin        *handler.AdminHandler
}

// Options carries the secrets and shared middleware. Cache and RateLimit may
// be nil when Redis is unavailable.
type Options struct {
	JWTSecret    string
	AdminKeyHash string
	Cache        echo.MiddlewareFunc
	RateLimit    echo.MiddlewareFunc
}

// Register mounts all routes on e.
func Register(e *echo.Echo, h Handlers, opts Options) {
	e.GET("/healthz", h.Health)
	RegisterPublic(e, h, opts)
	RegisterConsumer(e, h, opts)
	RegisterFarmer(e, h.Farms, opts.JWTSecret)
	RegisterAdmin(e, h.Admin, opts.AdminKeyHash)
}

// RegisterPublic registers endpoints that need no session: farm browsing,
// magic links, cancel links and payment webhooks. Cancel and webhook routes
// authenticate with their own token or signature.
func RegisterPublic(e *echo.Echo, h Handlers, opts Options) {
	browse := e.Group("/v1/farms", optional(opts.Cache)...)
	browse.GET("", h.Farms.List)
	browse.GET("/:id", h.Farms.Get)

	auth := e.Group("/v1/auth")
	auth.POST("/magic-link", h.MagicLinks.Send, optional(opts.RateLimit)...)
	auth.POST("/magic-link/consume", h.MagicLinks.Consume)

	e.GET("/v1/cancel", h.Cancel.Preview)
	e.POST("/v1/cancel", h.Cancel.Cancel)

	e.POST("/v1/webhooks/payment", h.Webhooks.Handle)
}

// RegisterConsumer registers reservation endpoints. Guests may create and
// view unbound reservations, so most routes take an optional session.
func RegisterConsumer(e *echo.Echo, h Handlers, opts Options) {
	g := e.Group("/v1/reservations")
	g.GET("/latest", h.Reservations.Latest, middleware.JWTAuth(opts.JWTSecret))

	guest := g.Group("", middleware.OptionalJWT(opts.JWTSecret))
	guest.POST("", h.Reservations.Create, optional(opts.RateLimit)...)
	guest.GET("/:id", h.Reservations.Get)
	guest.PATCH("/:id", h.Reservations.Reduce)
}

func optional(mw echo.MiddlewareFunc) []echo.MiddlewareFunc {
	if mw == nil {
		return nil
	}
	return []echo.MiddlewareFunc{mw}
}
