package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/rice-reservation/internal/service"
)

// CancelHandler serves the token-gated cancel page API.
type CancelHandler struct {
	svc *service.ReservationService
	log *zap.Logger
}

func NewCancelHandler(svc *service.ReservationService, log *zap.Logger) *CancelHandler {
	return &CancelHandler{svc: svc, log: orNop(log)}
}

type cancelPreview struct {
	Reservation   reservationView `json:"reservation"`
	Deadline      time.Time       `json:"cancel_deadline"`
	IsCancellable bool            `json:"is_cancellable"`
	Reason        string          `json:"reason,omitempty"`
}

// Preview handles GET /v1/cancel?token=.
func (h *CancelHandler) Preview(c echo.Context) error {
	view, err := h.svc.PreviewCancel(c.Request().Context(), c.QueryParam("token"))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, cancelPreview{
		Reservation:   newReservationView(view.Reservation),
		Deadline:      view.Deadline,
		IsCancellable: view.IsCancellable,
		Reason:        view.Reason,
	})
}

// Cancel handles POST /v1/cancel with {"token": "..."}.
func (h *CancelHandler) Cancel(c echo.Context) error {
	var req struct {
		Token string `json:"token"`
	}
	if err := c.Bind(&req); err != nil || req.Token == "" {
		return badRequest(c, "token is required")
	}
	res, err := h.svc.CancelWithToken(c.Request().Context(), req.Token)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, newReservationView(res))
}
