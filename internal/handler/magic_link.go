package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/rice-reservation/internal/model"
	"github.com/iliyamo/rice-reservation/internal/service"
	"github.com/iliyamo/rice-reservation/internal/utils"
)

// FarmOwnerLookup reports the farms a consumer manages.
type FarmOwnerLookup interface {
	ListByOwner(ctx context.Context, consumerID string) ([]model.Farm, error)
}

// MagicLinkHandler issues magic links and exchanges them for sessions.
type MagicLinkHandler struct {
	links     *service.MagicLinkService
	farms     FarmOwnerLookup
	jwtSecret string
	accessTTL time.Duration
	now       func() time.Time
	log       *zap.Logger
}

func NewMagicLinkHandler(links *service.MagicLinkService, farms FarmOwnerLookup, jwtSecret string, accessTTL time.Duration, log *zap.Logger) *MagicLinkHandler {
	return &MagicLinkHandler{links: links, farms: farms, jwtSecret: jwtSecret, accessTTL: accessTTL, now: time.Now, log: orNop(log)}
}

type sendMagicLinkReq struct {
	Email         string `json:"email"`
	ReservationID string `json:"reservation_id"`
	Agreed        bool   `json:"agreed"`
}

// Send handles POST /v1/auth/magic-link. With a reservation id the link binds
// that order on consume; without one it only signs the consumer in.
func (h *MagicLinkHandler) Send(c echo.Context) error {
	var req sendMagicLinkReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	ctx := c.Request().Context()
	var (
		exp time.Time
		err error
	)
	if req.ReservationID != "" {
		exp, err = h.links.IssueForReservation(ctx, req.Email, req.ReservationID, req.Agreed)
	} else {
		exp, err = h.links.IssueLogin(ctx, req.Email)
	}
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusAccepted, echo.Map{"sent": true, "expires_at": exp})
}

// Consume handles POST /v1/auth/magic-link/consume and returns a session JWT.
func (h *MagicLinkHandler) Consume(c echo.Context) error {
	var req struct {
		Token string `json:"token"`
	}
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	ctx := c.Request().Context()
	out, err := h.links.Consume(ctx, req.Token)
	if err != nil {
		return respondError(c, h.log, err)
	}
	role := utils.RoleConsumer
	owned, err := h.farms.ListByOwner(ctx, out.ConsumerID)
	if err != nil {
		return respondError(c, h.log, err)
	}
	if len(owned) > 0 {
		role = utils.RoleFarmer
	}
	tok, err := utils.NewAccessToken(h.jwtSecret, out.ConsumerID, role, h.accessTTL, h.now())
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"access_token":   tok.Token,
		"expires_at":     tok.Exp,
		"consumer_id":    out.ConsumerID,
		"email":          out.Email,
		"role":           role,
		"reservation_id": out.ReservationID,
	})
}
