package handler

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/rice-reservation/internal/middleware"
	"github.com/iliyamo/rice-reservation/internal/repository"
	"github.com/iliyamo/rice-reservation/internal/service"
)

// ReservationHandler serves the consumer reservation API.
type ReservationHandler struct {
	svc      *service.ReservationService
	frontend string
	log      *zap.Logger
}

// NewReservationHandler wires the handler. frontend is the base of cancel URLs.
func NewReservationHandler(svc *service.ReservationService, frontend string, log *zap.Logger) *ReservationHandler {
	return &ReservationHandler{svc: svc, frontend: strings.TrimRight(frontend, "/"), log: orNop(log)}
}

type createReservationReq struct {
	FarmID           string `json:"farm_id"`
	PickupSlotCode   string `json:"pickup_slot_code"`
	ClientOrderID    string `json:"client_order_id"`
	PickupEventStart string `json:"pickup_event_start"`
	Items            []struct {
		SizeKg   int `json:"size_kg"`
		Quantity int `json:"quantity"`
	} `json:"items"`
}

// Create handles POST /v1/reservations. Guests may order; the order is bound
// to a consumer later through a magic link or checkout.
func (h *ReservationHandler) Create(c echo.Context) error {
	var req createReservationReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if strings.TrimSpace(req.FarmID) == "" {
		return badRequest(c, "farm_id is required")
	}
	in := service.CreateOrderInput{
		FarmID:         req.FarmID,
		PickupSlotCode: req.PickupSlotCode,
		ClientOrderID:  req.ClientOrderID,
	}
	if id := middleware.ConsumerID(c); id != "" {
		in.ConsumerID = &id
	}
	if req.PickupEventStart != "" {
		t, err := time.Parse(time.RFC3339, req.PickupEventStart)
		if err != nil {
			return badRequest(c, "pickup_event_start must be RFC3339")
		}
		in.DisplayedEventStart = &t
	}
	for _, it := range req.Items {
		in.Lines = append(in.Lines, repository.BulkLine{SizeKg: it.SizeKg, Quantity: it.Quantity})
	}
	out, err := h.svc.CreateOrder(c.Request().Context(), in)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusCreated, out)
}

// Get handles GET /v1/reservations/:id.
func (h *ReservationHandler) Get(c echo.Context) error {
	res, err := h.svc.Get(c.Request().Context(), c.Param("id"), middleware.ConsumerID(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, newReservationView(res))
}

// Latest handles GET /v1/reservations/latest: the caller's most recently
// confirmed reservation with its cancel link.
func (h *ReservationHandler) Latest(c echo.Context) error {
	res, err := h.svc.LatestConfirmed(c.Request().Context(), middleware.ConsumerID(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	v := newReservationView(res)
	if tok, err := h.svc.IssueCancelToken(res); err == nil && h.frontend != "" {
		v.CancelURL = h.frontend + "/cancel?token=" + url.QueryEscape(tok)
	}
	return c.JSON(http.StatusOK, v)
}

type reduceReq struct {
	SizeKg   int `json:"size_kg"`
	Quantity int `json:"quantity"`
}

// Reduce handles PATCH /v1/reservations/:id, lowering a pending line's
// quantity.
func (h *ReservationHandler) Reduce(c echo.Context) error {
	var req reduceReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	res, err := h.svc.ReduceQuantity(c.Request().Context(), c.Param("id"), middleware.ConsumerID(c), req.SizeKg, req.Quantity)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, newReservationView(res))
}
