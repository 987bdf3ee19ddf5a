package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/rice-reservation/internal/payment"
	"github.com/iliyamo/rice-reservation/internal/pickup"
	"github.com/iliyamo/rice-reservation/internal/repository"
	"github.com/iliyamo/rice-reservation/internal/service"
	"github.com/iliyamo/rice-reservation/internal/utils"
)

type errorMapping struct {
	err    error
	status int
	code   string
}

// errorTable maps core errors to HTTP responses. The first match wins.
var errorTable = []errorMapping{
	{repository.ErrReservationNotFound, http.StatusNotFound, "reservation_not_found"},
	{repository.ErrFarmNotFound, http.StatusNotFound, "farm_not_found"},
	{repository.ErrConsumerNotFound, http.StatusNotFound, "consumer_not_found"},
	{repository.ErrTokenNotFound, http.StatusNotFound, "token_not_found"},
	{repository.ErrJobNotFound, http.StatusNotFound, "job_not_found"},

	{repository.ErrEmptyItems, http.StatusBadRequest, "empty_items"},
	{repository.ErrInvalidQuantity, http.StatusBadRequest, "invalid_quantity"},
	{repository.ErrTotalKgExceeded, http.StatusBadRequest, "total_kg_exceeded"},
	{pickup.ErrInvalidSlotCode, http.StatusBadRequest, "invalid_slot_code"},
	{service.ErrInvalidEmail, http.StatusBadRequest, "invalid_email"},
	{service.ErrAgreementRequired, http.StatusBadRequest, "agreement_required"},
	{service.ErrMissingPaymentIntent, http.StatusBadRequest, "missing_payment_intent"},
	{payment.ErrMalformedPayload, http.StatusBadRequest, "malformed_payload"},
	{payment.ErrMissingSignature, http.StatusBadRequest, "invalid_signature"},
	{payment.ErrInvalidSignature, http.StatusBadRequest, "invalid_signature"},
	{payment.ErrTimestampTooOld, http.StatusBadRequest, "invalid_signature"},

	{repository.ErrUnsupportedItem, http.StatusUnprocessableEntity, "unsupported_item"},

	{service.ErrStaleDeadline, http.StatusConflict, "stale_deadline"},
	{repository.ErrFarmNotAccepting, http.StatusConflict, "farm_not_accepting"},
	{repository.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
	{repository.ErrConflictingPayment, http.StatusConflict, "conflicting_payment"},
	{repository.ErrDuplicateOrder, http.StatusConflict, "duplicate_order"},
	{service.ErrNotCancellable, http.StatusConflict, "not_cancellable"},

	{repository.ErrConsumerMismatch, http.StatusForbidden, "consumer_mismatch"},

	{utils.ErrTokenInvalidFormat, http.StatusUnauthorized, "invalid_token"},
	{utils.ErrTokenInvalidSignature, http.StatusUnauthorized, "invalid_token"},
	{utils.ErrTokenInvalidSubject, http.StatusUnauthorized, "invalid_token"},
	{utils.ErrTokenInvalidExp, http.StatusUnauthorized, "invalid_token"},
	{utils.ErrTokenExpired, http.StatusUnauthorized, "token_expired"},
	{repository.ErrTokenExpired, http.StatusUnauthorized, "token_expired"},
	{repository.ErrTokenAlreadyUsed, http.StatusUnauthorized, "token_already_used"},

	{service.ErrCancelDeadlinePassed, http.StatusGone, "cancel_deadline_passed"},
}

// classify returns the status and code for err, 500 when unknown.
func classify(err error) (int, string) {
	for _, m := range errorTable {
		if errors.Is(err, m.err) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "internal_error"
}

// respondError writes err as {"error": code, "message": text}. Internal
// errors are logged and their text is not exposed.
func respondError(c echo.Context, log *zap.Logger, err error) error {
	status, code := classify(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
		msg = "internal error"
	}
	return c.JSON(status, echo.Map{"error": code, "message": msg})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid_request", "message": msg})
}

func orNop(log *zap.Logger) *zap.Logger {
	if log == nil {
		return zap.NewNop()
	}
	return log
}
