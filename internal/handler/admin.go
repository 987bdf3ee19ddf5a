package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/rice-reservation/internal/model"
	"github.com/iliyamo/rice-reservation/internal/notification"
)

// Dispatcher runs notification batches on demand.
type Dispatcher interface {
	SendPendingJobs(ctx context.Context, limit int, dryRun bool) (notification.Result, error)
	Retry(ctx context.Context, id string) (*model.NotificationJob, error)
}

// AdminHandler exposes operator actions behind the admin key.
type AdminHandler struct {
	dispatcher   Dispatcher
	defaultLimit int
	log          *zap.Logger
}

func NewAdminHandler(d Dispatcher, defaultLimit int, log *zap.Logger) *AdminHandler {
	if defaultLimit <= 0 {
		defaultLimit = 50
	}
	return &AdminHandler{dispatcher: d, defaultLimit: defaultLimit, log: orNop(log)}
}

// Dispatch handles POST /v1/admin/notifications/dispatch?limit=&dry_run=.
func (h *AdminHandler) Dispatch(c echo.Context) error {
	limit := h.defaultLimit
	if s := c.QueryParam("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			return badRequest(c, "limit must be a positive integer")
		}
		limit = n
	}
	dryRun := false
	if s := c.QueryParam("dry_run"); s != "" {
		b, err := strconv.ParseBool(s)
		if err != nil {
			return badRequest(c, "dry_run must be a boolean")
		}
		dryRun = b
	}
	res, err := h.dispatcher.SendPendingJobs(c.Request().Context(), limit, dryRun)
	if err != nil {
		return respondError(c, h.log, err)
	}
	h.log.Info("dispatch finished",
		zap.Int("processed", res.Processed), zap.Int("sent", res.Sent), zap.Int("failed", res.Failed), zap.Bool("dry_run", dryRun))
	return c.JSON(http.StatusOK, res)
}

// Retry handles POST /v1/admin/notifications/:id/retry.
func (h *AdminHandler) Retry(c echo.Context) error {
	job, err := h.dispatcher.Retry(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"id": job.ID, "status": job.Status, "attempt_count": job.AttemptCount})
}
