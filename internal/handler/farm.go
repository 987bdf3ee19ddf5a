package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/rice-reservation/internal/middleware"
	"github.com/iliyamo/rice-reservation/internal/model"
	"github.com/iliyamo/rice-reservation/internal/pickup"
	"github.com/iliyamo/rice-reservation/internal/repository"
)

// FarmStore is the farm persistence the handler reads and updates.
type FarmStore interface {
	GetByID(ctx context.Context, id string) (*model.Farm, error)
	ListPublic(ctx context.Context) ([]model.Farm, error)
	SetAccepting(ctx context.Context, id string, accepting bool) error
}

// RosterStore lists a farm's confirmed reservations for one pickup event.
type RosterStore interface {
	ListForFarmAndWeek(ctx context.Context, farmID string, weekEventStart time.Time) ([]model.Reservation, error)
}

// FarmHandler serves public farm profiles and the farmer's pickup roster.
type FarmHandler struct {
	farms  FarmStore
	roster RosterStore
	now    func() time.Time
	log    *zap.Logger
}

func NewFarmHandler(farms FarmStore, roster RosterStore, log *zap.Logger) *FarmHandler {
	return &FarmHandler{farms: farms, roster: roster, now: time.Now, log: orNop(log)}
}

// WithClock replaces the time source.
func (h *FarmHandler) WithClock(now func() time.Time) *FarmHandler {
	h.now = now
	return h
}

// List handles GET /v1/farms.
func (h *FarmHandler) List(c echo.Context) error {
	farms, err := h.farms.ListPublic(c.Request().Context())
	if err != nil {
		return respondError(c, h.log, err)
	}
	now := h.now()
	out := make([]farmView, 0, len(farms))
	for i := range farms {
		out = append(out, newFarmView(&farms[i], now))
	}
	return c.JSON(http.StatusOK, echo.Map{"farms": out})
}

// Get handles GET /v1/farms/:id. Non-public farms are reported as missing.
func (h *FarmHandler) Get(c echo.Context) error {
	f, err := h.farms.GetByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, h.log, err)
	}
	if !f.Publishable {
		return respondError(c, h.log, repository.ErrFarmNotFound)
	}
	now := h.now()
	v := newFarmView(f, now)
	resp := echo.Map{"farm": v}
	if deadline, err := pickup.NextPickupDeadline(now, f.PickupSlotCode); err == nil {
		resp["next_pickup_deadline"] = deadline
	}
	return c.JSON(http.StatusOK, resp)
}

type rosterLine struct {
	ReservationID string                  `json:"reservation_id"`
	ConsumerID    *string                 `json:"consumer_id"`
	Items         []model.ReservationItem `json:"items"`
	TotalKg       int                     `json:"total_kg"`
	RiceSubtotal  int64                   `json:"rice_subtotal"`
}

// Roster handles GET /v1/farms/:id/roster?date=YYYY-MM-DD. The week is the
// one whose event the export view shows on date, today by default.
func (h *FarmHandler) Roster(c echo.Context) error {
	ctx := c.Request().Context()
	f, err := h.farms.GetByID(ctx, c.Param("id"))
	if err != nil {
		return respondError(c, h.log, err)
	}
	if !f.OwnedBy(middleware.ConsumerID(c)) {
		return respondError(c, h.log, repository.ErrConsumerMismatch)
	}
	ref := h.now()
	if d := c.QueryParam("date"); d != "" {
		day, err := time.ParseInLocation(time.DateOnly, d, pickup.Location)
		if err != nil {
			return badRequest(c, "date must be YYYY-MM-DD")
		}
		ref = day.Add(12 * time.Hour)
	}
	ev, err := pickup.EventForExport(ref, f.PickupSlotCode)
	if err != nil {
		return respondError(c, h.log, err)
	}
	rows, err := h.roster.ListForFarmAndWeek(ctx, f.ID, ev.Start)
	if err != nil {
		return respondError(c, h.log, err)
	}
	lines := make([]rosterLine, 0, len(rows))
	var totalKg int
	var totalAmount int64
	for _, r := range rows {
		l := rosterLine{ReservationID: r.ID, ConsumerID: r.ConsumerID, Items: r.Items, TotalKg: r.TotalKg(), RiceSubtotal: r.RiceSubtotal}
		totalKg += l.TotalKg
		totalAmount += r.RiceSubtotal
		lines = append(lines, l)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"event":        newEventView(ev),
		"reservations": lines,
		"total_kg":     totalKg,
		"total_amount": totalAmount,
	})
}

// SetAccepting handles PATCH /v1/farms/:id/accepting for the farm owner.
func (h *FarmHandler) SetAccepting(c echo.Context) error {
	var req struct {
		Accepting *bool `json:"accepting"`
	}
	if err := c.Bind(&req); err != nil || req.Accepting == nil {
		return badRequest(c, "accepting is required")
	}
	ctx := c.Request().Context()
	f, err := h.farms.GetByID(ctx, c.Param("id"))
	if err != nil {
		return respondError(c, h.log, err)
	}
	if !f.OwnedBy(middleware.ConsumerID(c)) {
		return respondError(c, h.log, repository.ErrConsumerMismatch)
	}
	if err := h.farms.SetAccepting(ctx, f.ID, *req.Accepting); err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"id": f.ID, "accepting": *req.Accepting})
}
