package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/rice-reservation/internal/payment"
	"github.com/iliyamo/rice-reservation/internal/repository"
	"github.com/iliyamo/rice-reservation/internal/service"
)

// maxWebhookBody bounds a webhook payload.
const maxWebhookBody = 1 << 20

// PaymentWebhookHandler receives signed payment provider events.
type PaymentWebhookHandler struct {
	verifier *payment.Verifier
	payments *service.PaymentService
	log      *zap.Logger
}

func NewPaymentWebhookHandler(verifier *payment.Verifier, payments *service.PaymentService, log *zap.Logger) *PaymentWebhookHandler {
	return &PaymentWebhookHandler{verifier: verifier, payments: payments, log: orNop(log)}
}

// Handle handles POST /v1/webhooks/payment. The signature covers the raw
// body, so it is read before any decoding. Unknown event types are
// acknowledged so the provider stops redelivering them, as are payments for a
// reservation another intent already confirmed.
func (h *PaymentWebhookHandler) Handle(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		return badRequest(c, "unreadable body")
	}
	if err := h.verifier.Verify(body, c.Request().Header.Get(payment.SignatureHeader)); err != nil {
		h.log.Warn("webhook signature rejected", zap.Error(err))
		return respondError(c, h.log, err)
	}
	ev, err := payment.ParseEvent(body)
	if err != nil {
		return respondError(c, h.log, err)
	}
	ctx := c.Request().Context()
	log := h.log.With(zap.String("event_id", ev.ID), zap.String("type", ev.Type))

	switch ev.Type {
	case payment.EventPaymentIntentSucceeded:
		pi, err := ev.PaymentIntent()
		if err != nil {
			return respondError(c, log, err)
		}
		if err := h.payments.PaymentSucceeded(ctx, pi.ID, pi.Metadata[service.MetaReservationID]); err != nil {
			return settle(c, log, err)
		}
	case payment.EventCheckoutCompleted:
		cs, err := ev.CheckoutSession()
		if err != nil {
			return respondError(c, log, err)
		}
		err = h.payments.CheckoutCompleted(ctx, service.CheckoutCompleted{
			SessionID:       cs.ID,
			PaymentIntentID: cs.PaymentIntent,
			Metadata:        cs.Metadata,
		})
		if err != nil {
			return settle(c, log, err)
		}
	default:
		log.Debug("ignoring webhook event")
	}
	return c.JSON(http.StatusOK, echo.Map{"received": true})
}

// settle answers a failed payment outcome. A conflicting payment cannot
// succeed on redelivery, so it is logged and acknowledged.
func settle(c echo.Context, log *zap.Logger, err error) error {
	if errors.Is(err, repository.ErrConflictingPayment) {
		log.Warn("conflicting payment acknowledged", zap.Error(err))
		return c.JSON(http.StatusOK, echo.Map{"received": true})
	}
	return respondError(c, log, err)
}
