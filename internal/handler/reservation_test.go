package handler_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/rice-reservation/internal/utils"
)

func TestCreateReservationValidation(t *testing.T) {
	s := newServer(t)
	body := func(farmID string, items []map[string]int, extra map[string]any) map[string]any {
		b := map[string]any{"farm_id": farmID, "pickup_slot_code": "WED_19_20", "items": items}
		for k, v := range extra {
			b[k] = v
		}
		return b
	}
	one := []map[string]int{{"size_kg": 5, "quantity": 1}}

	cases := []struct {
		name   string
		body   map[string]any
		status int
		code   string
	}{
		{"missing farm", body("", one, nil), http.StatusBadRequest, "invalid_request"},
		{"no items", body(s.farm.ID, nil, nil), http.StatusBadRequest, "empty_items"},
		{"zero quantity", body(s.farm.ID, []map[string]int{{"size_kg": 5, "quantity": 0}}, nil), http.StatusBadRequest, "invalid_quantity"},
		{"unknown farm", body("nope", one, nil), http.StatusNotFound, "farm_not_found"},
		{"size not sold", body(s.farm.ID, []map[string]int{{"size_kg": 25, "quantity": 1}}, nil), http.StatusUnprocessableEntity, "unsupported_item"},
		{"stale event", body(s.farm.ID, one, map[string]any{"pickup_event_start": "2025-10-22T10:00:00Z"}), http.StatusConflict, "stale_deadline"},
		{"slot changed", map[string]any{"farm_id": s.farm.ID, "pickup_slot_code": "THU_19_20", "items": one}, http.StatusConflict, "stale_deadline"},
		{"bad event time", body(s.farm.ID, one, map[string]any{"pickup_event_start": "tomorrow"}), http.StatusBadRequest, "invalid_request"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/v1/reservations", tc.body, nil)
			require.Equal(t, tc.status, rec.Code, rec.Body.String())
			assert.Equal(t, tc.code, decode(t, rec)["error"])
		})
	}
}

func TestCreateReservationWithDisplayedEvent(t *testing.T) {
	s := newServer(t)
	rec := s.do(t, http.MethodPost, "/v1/reservations", map[string]any{
		"farm_id":            s.farm.ID,
		"pickup_slot_code":   "WED_19_20",
		"client_order_id":    "order-1",
		"pickup_event_start": "2025-10-15T10:00:00Z",
		"items":              []map[string]int{{"size_kg": 5, "quantity": 1}, {"size_kg": 10, "quantity": 2}},
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	out := decode(t, rec)
	assert.Equal(t, "order-1", out["order_id"])
	assert.Equal(t, "10月15日（水）19:00〜20:00", out["pickup_display"])
	totals := out["totals"].(map[string]any)
	assert.EqualValues(t, 5000, totals["total_amount"])
	assert.EqualValues(t, 300, totals["service_fee"])

	again := s.do(t, http.MethodPost, "/v1/reservations", map[string]any{
		"farm_id":         s.farm.ID,
		"client_order_id": "order-1",
		"items":           []map[string]int{{"size_kg": 5, "quantity": 1}},
	}, nil)
	assert.Equal(t, http.StatusConflict, again.Code)
	assert.Equal(t, "duplicate_order", decode(t, again)["error"])
}

func TestGetReservationVisibility(t *testing.T) {
	s := newServer(t)
	alice, err := s.consumers.Create(t.Context(), "alice@example.com", "")
	require.NoError(t, err)
	bob, err := s.consumers.Create(t.Context(), "bob@example.com", "")
	require.NoError(t, err)

	guestID := s.createOrder(t, nil)
	rec := s.do(t, http.MethodGet, "/v1/reservations/"+guestID, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pending", decode(t, rec)["status"])

	aliceID := s.createOrder(t, s.session(t, alice.ID, utils.RoleConsumer))
	rec = s.do(t, http.MethodGet, "/v1/reservations/"+aliceID, nil, s.session(t, alice.ID, utils.RoleConsumer))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, alice.ID, decode(t, rec)["consumer_id"])

	rec = s.do(t, http.MethodGet, "/v1/reservations/"+aliceID, nil, s.session(t, bob.ID, utils.RoleConsumer))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = s.do(t, http.MethodGet, "/v1/reservations/"+aliceID, nil, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodGet, "/v1/reservations/missing", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "reservation_not_found", decode(t, rec)["error"])

	rec = s.do(t, http.MethodGet, "/v1/reservations/"+guestID, nil, map[string]string{"Authorization": "Bearer junk"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestReduceQuantity(t *testing.T) {
	s := newServer(t)
	id := s.createOrder(t, nil)

	rec := s.do(t, http.MethodPatch, "/v1/reservations/"+id, map[string]int{"size_kg": 5, "quantity": 2}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_quantity", decode(t, rec)["error"])

	rec = s.do(t, http.MethodPatch, "/v1/reservations/"+id, map[string]int{"size_kg": 5, "quantity": 1}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.EqualValues(t, 1000, decode(t, rec)["rice_subtotal"])

	require.Equal(t, http.StatusOK, s.webhook(t, paymentSucceeded("pi_1", id)).Code)
	rec = s.do(t, http.MethodPatch, "/v1/reservations/"+id, map[string]int{"size_kg": 5, "quantity": 1}, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestLatestRequiresSession(t *testing.T) {
	s := newServer(t)
	rec := s.do(t, http.MethodGet, "/v1/reservations/latest", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	carol, err := s.consumers.Create(t.Context(), "carol@example.com", "")
	require.NoError(t, err)
	rec = s.do(t, http.MethodGet, "/v1/reservations/latest", nil, s.session(t, carol.ID, utils.RoleConsumer))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
