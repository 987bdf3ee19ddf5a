package handler_test

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/rice-reservation/internal/payment"
	"github.com/iliyamo/rice-reservation/internal/service"
)

func TestWebhookRejectsUnsignedPayload(t *testing.T) {
	s := newServer(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/payment", bytes.NewReader([]byte(`{"type":"payment_intent.succeeded"}`)))
	req.Header.Set(payment.SignatureHeader, "t=1,v1=00")
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_signature", decode(t, rec)["error"])
}

func TestWebhookPaymentIntentSucceeded(t *testing.T) {
	s := newServer(t)
	id := s.createOrder(t, nil)

	rec := s.webhook(t, paymentSucceeded("pi_9", id))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res, err := s.repo.Get(t.Context(), id)
	require.NoError(t, err)
	assert.Equal(t, "confirmed", res.Status)
	require.NotNil(t, res.PickupDisplay)
	assert.Equal(t, "10月15日（水）19:00〜20:00", *res.PickupDisplay)

	// redelivery is absorbed
	require.Equal(t, http.StatusOK, s.webhook(t, paymentSucceeded("pi_9", id)).Code)

	// a second intent for the same reservation is acknowledged and ignored
	rec = s.webhook(t, paymentSucceeded("pi_other", id))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, decode(t, rec)["received"])
	res, err = s.repo.Get(t.Context(), id)
	require.NoError(t, err)
	require.NotNil(t, res.PaymentIntentID)
	assert.Equal(t, "pi_9", *res.PaymentIntentID)
}

func TestWebhookIgnoresUnknownEvents(t *testing.T) {
	s := newServer(t)
	rec := s.webhook(t, map[string]any{"id": "evt_1", "type": "charge.refunded", "data": map[string]any{"object": map[string]any{"id": "ch_1"}}})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.webhook(t, map[string]any{"id": "evt_2"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "malformed_payload", decode(t, rec)["error"])
}

// checkoutCompleted pays id through a hosted checkout opened from the
// messaging app.
func checkoutCompleted(t *testing.T, s *server, id, lineUserID string) {
	t.Helper()
	rec := s.webhook(t, map[string]any{
		"id":   "evt_cs",
		"type": payment.EventCheckoutCompleted,
		"data": map[string]any{"object": map[string]any{
			"id":             "cs_1",
			"payment_intent": "pi_cs",
			"payment_status": "paid",
			"metadata": map[string]string{
				service.MetaReservationID:  id,
				service.MetaLineConsumerID: lineUserID,
			},
		}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestWebhookCheckoutBindsMessagingIdentity(t *testing.T) {
	s := newServer(t)
	id := s.createOrder(t, nil)
	checkoutCompleted(t, s, id, "U123")

	res, err := s.repo.Get(t.Context(), id)
	require.NoError(t, err)
	assert.Equal(t, "confirmed", res.Status)
	require.NotNil(t, res.ConsumerID)
	c, err := s.consumers.GetByID(t.Context(), *res.ConsumerID)
	require.NoError(t, err)
	assert.Equal(t, "U123", c.MessagingID())
}
