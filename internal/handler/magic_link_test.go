package handler_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/rice-reservation/internal/utils"
)

func TestMagicLinkBindsGuestOrder(t *testing.T) {
	s := newServer(t)
	id := s.createOrder(t, nil)

	rec := s.do(t, http.MethodPost, "/v1/auth/magic-link", map[string]any{
		"email": " Erin@Example.com ", "reservation_id": id, "agreed": true,
	}, nil)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	token := s.mail.lastToken(t)

	rec = s.do(t, http.MethodPost, "/v1/auth/magic-link/consume", map[string]string{"token": token}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out := decode(t, rec)
	assert.Equal(t, "erin@example.com", out["email"])
	assert.Equal(t, utils.RoleConsumer, out["role"])
	assert.Equal(t, id, out["reservation_id"])
	consumerID := out["consumer_id"].(string)

	auth := map[string]string{"Authorization": "Bearer " + out["access_token"].(string)}
	rec = s.do(t, http.MethodGet, "/v1/reservations/"+id, nil, auth)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, consumerID, decode(t, rec)["consumer_id"])

	rec = s.do(t, http.MethodPost, "/v1/auth/magic-link/consume", map[string]string{"token": token}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "token_already_used", decode(t, rec)["error"])
}

func TestMagicLinkLoginIssuesFarmerRole(t *testing.T) {
	s := newServer(t)
	rec := s.do(t, http.MethodPost, "/v1/auth/magic-link", map[string]any{"email": "farmer@example.com"}, nil)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/v1/auth/magic-link/consume", map[string]string{"token": s.mail.lastToken(t)}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out := decode(t, rec)
	assert.Equal(t, s.owner.ID, out["consumer_id"])
	assert.Equal(t, utils.RoleFarmer, out["role"])
}

func TestMagicLinkValidation(t *testing.T) {
	s := newServer(t)
	id := s.createOrder(t, nil)

	cases := []struct {
		name   string
		body   map[string]any
		status int
		code   string
	}{
		{"bad email", map[string]any{"email": "not-an-email"}, http.StatusBadRequest, "invalid_email"},
		{"no agreement", map[string]any{"email": "frank@example.com", "reservation_id": id}, http.StatusBadRequest, "agreement_required"},
		{"unknown reservation", map[string]any{"email": "frank@example.com", "reservation_id": "missing", "agreed": true}, http.StatusNotFound, "reservation_not_found"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/v1/auth/magic-link", tc.body, nil)
			require.Equal(t, tc.status, rec.Code, rec.Body.String())
			assert.Equal(t, tc.code, decode(t, rec)["error"])
		})
	}

	rec := s.do(t, http.MethodPost, "/v1/auth/magic-link/consume", map[string]string{"token": "unknown"}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
