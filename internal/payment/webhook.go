// Package payment verifies and decodes payment provider webhooks.
package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SignatureHeader carries the webhook signature.
const SignatureHeader = "Stripe-Signature"

// DefaultTolerance bounds the age of a signed timestamp.
const DefaultTolerance = 5 * time.Minute

// Recognized event types.
const (
	EventPaymentIntentSucceeded = "payment_intent.succeeded"
	EventCheckoutCompleted      = "checkout.session.completed"
)

var (
	ErrMissingSignature = errors.New("webhook: missing signature")
	ErrInvalidSignature = errors.New("webhook: signature mismatch")
	ErrTimestampTooOld  = errors.New("webhook: timestamp outside tolerance")
	ErrMalformedPayload = errors.New("webhook: malformed payload")
)

// Verifier checks webhook signatures of the form "t=<unix>,v1=<hex>" where
// v1 is HMAC-SHA256(secret, "<t>.<payload>").
type Verifier struct {
	secret    []byte
	tolerance time.Duration
	now       func() time.Time
}

// NewVerifier returns a Verifier. A zero tolerance uses DefaultTolerance and
// a nil now uses time.Now.
func NewVerifier(secret string, tolerance time.Duration, now func() time.Time) *Verifier {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	if now == nil {
		now = time.Now
	}
	return &Verifier{secret: []byte(secret), tolerance: tolerance, now: now}
}

// Sign produces a header value for payload at t. Used by tests and tooling.
func (v *Verifier) Sign(payload []byte, t time.Time) string {
	ts := strconv.FormatInt(t.Unix(), 10)
	return "t=" + ts + ",v1=" + hex.EncodeToString(v.mac(ts, payload))
}

// Verify checks header against payload. Any of several v1 entries may match.
func (v *Verifier) Verify(payload []byte, header string) error {
	if header == "" {
		return ErrMissingSignature
	}
	var (
		ts   string
		sigs [][]byte
	)
	for _, part := range strings.Split(header, ",") {
		k, val, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts = val
		case "v1":
			if b, err := hex.DecodeString(val); err == nil {
				sigs = append(sigs, b)
			}
		}
	}
	if ts == "" || len(sigs) == 0 {
		return ErrMissingSignature
	}
	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return ErrMissingSignature
	}
	if age := v.now().Sub(time.Unix(unix, 0)); age > v.tolerance || age < -v.tolerance {
		return ErrTimestampTooOld
	}
	want := v.mac(ts, payload)
	for _, s := range sigs {
		if hmac.Equal(s, want) {
			return nil
		}
	}
	return ErrInvalidSignature
}

func (v *Verifier) mac(ts string, payload []byte) []byte {
	m := hmac.New(sha256.New, v.secret)
	m.Write([]byte(ts))
	m.Write([]byte("."))
	m.Write(payload)
	return m.Sum(nil)
}

// Event is the envelope of a webhook delivery.
type Event struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// PaymentIntent is the object of payment_intent.* events.
type PaymentIntent struct {
	ID       string            `json:"id"`
	Status   string            `json:"status"`
	Metadata map[string]string `json:"metadata"`
}

// CheckoutSession is the object of checkout.session.* events.
type CheckoutSession struct {
	ID            string            `json:"id"`
	PaymentIntent string            `json:"payment_intent"`
	PaymentStatus string            `json:"payment_status"`
	Metadata      map[string]string `json:"metadata"`
}

// ParseEvent decodes a webhook body.
func ParseEvent(payload []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if ev.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformedPayload)
	}
	return &ev, nil
}

// PaymentIntent decodes the event object as a payment intent.
func (e *Event) PaymentIntent() (*PaymentIntent, error) {
	var pi PaymentIntent
	if err := json.Unmarshal(e.Data.Object, &pi); err != nil || pi.ID == "" {
		return nil, fmt.Errorf("%w: payment intent object", ErrMalformedPayload)
	}
	return &pi, nil
}

// CheckoutSession decodes the event object as a checkout session.
func (e *Event) CheckoutSession() (*CheckoutSession, error) {
	var cs CheckoutSession
	if err := json.Unmarshal(e.Data.Object, &cs); err != nil || cs.ID == "" {
		return nil, fmt.Errorf("%w: checkout session object", ErrMalformedPayload)
	}
	return &cs, nil
}
