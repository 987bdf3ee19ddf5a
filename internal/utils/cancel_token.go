package utils

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// CancelSubject is the fixed "sub" of every cancel token.
const CancelSubject = "cancel_reservation"

// Cancel token verification errors.
var (
	ErrTokenInvalidFormat    = errors.New("cancel token: invalid format")
	ErrTokenInvalidSignature = errors.New("cancel token: invalid signature")
	ErrTokenInvalidSubject   = errors.New("cancel token: invalid subject")
	ErrTokenInvalidExp       = errors.New("cancel token: invalid exp")
	ErrTokenExpired          = errors.New("cancel token: expired")
)

// CancelClaims is the body of a cancel token. Fields are declared in key
// order so the JSON encoding has sorted keys.
type CancelClaims struct {
	ConsumerID    string `json:"consumer_id"`
	Exp           int64  `json:"exp"`
	ReservationID string `json:"reservation_id"`
	Sub           string `json:"sub"`
}

// ExpiresAt returns Exp as a UTC time.
func (c CancelClaims) ExpiresAt() time.Time { return time.Unix(c.Exp, 0).UTC() }

// CancelTokenCodec signs and verifies cancel tokens of the form
// base64url(body) "." base64url(HMAC-SHA256(secret, body)).
type CancelTokenCodec struct {
	secret []byte
	now    func() time.Time
}

// NewCancelTokenCodec returns a codec using secret. A nil now uses time.Now.
func NewCancelTokenCodec(secret string, now func() time.Time) *CancelTokenCodec {
	if now == nil {
		now = time.Now
	}
	return &CancelTokenCodec{secret: []byte(secret), now: now}
}

// Create signs a token for the reservation and consumer that expires at exp.
func (c *CancelTokenCodec) Create(reservationID, consumerID string, exp time.Time) (string, error) {
	body, err := json.Marshal(CancelClaims{
		ConsumerID:    consumerID,
		Exp:           exp.Unix(),
		ReservationID: reservationID,
		Sub:           CancelSubject,
	})
	if err != nil {
		return "", err
	}
	return b64(body) + "." + b64(c.sign(body)), nil
}

// Verify checks the signature, subject and expiry of token. Expiry is not
// enforced when allowExpired is set. A token stays valid through its exp
// second.
func (c *CancelTokenCodec) Verify(token string, allowExpired bool) (CancelClaims, error) {
	parts := strings.Split(strings.TrimSpace(token), ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return CancelClaims{}, ErrTokenInvalidFormat
	}
	body, err := unb64(parts[0])
	if err != nil {
		return CancelClaims{}, ErrTokenInvalidFormat
	}
	sig, err := unb64(parts[1])
	if err != nil {
		return CancelClaims{}, ErrTokenInvalidFormat
	}
	if !hmac.Equal(sig, c.sign(body)) {
		return CancelClaims{}, ErrTokenInvalidSignature
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return CancelClaims{}, ErrTokenInvalidFormat
	}
	var claims CancelClaims
	var sub string
	if err := json.Unmarshal(raw["sub"], &sub); err != nil || sub != CancelSubject {
		return CancelClaims{}, ErrTokenInvalidSubject
	}
	claims.Sub = sub
	if err := json.Unmarshal(raw["reservation_id"], &claims.ReservationID); err != nil || claims.ReservationID == "" {
		return CancelClaims{}, ErrTokenInvalidFormat
	}
	if err := json.Unmarshal(raw["consumer_id"], &claims.ConsumerID); err != nil || claims.ConsumerID == "" {
		return CancelClaims{}, ErrTokenInvalidFormat
	}
	dec := json.NewDecoder(bytes.NewReader(raw["exp"]))
	dec.UseNumber()
	var num json.Number
	if err := dec.Decode(&num); err != nil {
		return CancelClaims{}, ErrTokenInvalidExp
	}
	exp, err := num.Int64()
	if err != nil || exp <= 0 {
		return CancelClaims{}, ErrTokenInvalidExp
	}
	claims.Exp = exp
	if !allowExpired && c.now().Unix() > exp {
		return claims, ErrTokenExpired
	}
	return claims, nil
}

func (c *CancelTokenCodec) sign(body []byte) []byte {
	m := hmac.New(sha256.New, c.secret)
	m.Write(body)
	return m.Sum(nil)
}

func b64(b []byte) string { return base64.RawURLEncoding.EncodeToString(b) }

// unb64 accepts padded and unpadded base64url.
func unb64(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}
