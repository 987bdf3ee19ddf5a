// Package utils provides helpers for signed tokens and hashing.
package utils

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Session roles carried in the "role" claim.
const (
	RoleConsumer = "CONSUMER"
	RoleFarmer   = "FARMER"
)

// AccessToken represents a signed consumer session along with its expiry.
// Sessions are issued after a magic link is consumed and are sent in the
// Authorization header on protected endpoints.
type AccessToken struct {
	Token string    // the serialized JWT string
	Exp   time.Time // the UTC expiration time
}

// NewAccessToken builds and signs an HS256 JWT for a consumer. The token
// carries the consumer id as subject, the role, expiration and issued-at.
func NewAccessToken(secret, consumerID, role string, ttl time.Duration, now time.Time) (AccessToken, error) {
	exp := now.UTC().Add(ttl)
	claims := jwt.MapClaims{
		"sub":  consumerID,
		"role": role,
		"exp":  exp.Unix(),
		"iat":  now.UTC().Unix(),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString([]byte(secret))
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: signed, Exp: exp}, nil
}

// NewOpaqueToken returns n bytes of secure random data encoded as unpadded
// base64url. 32 bytes gives 256 bits of entropy.
func NewOpaqueToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashToken returns the SHA-256 hash of a raw token as a hex string. Only the
// hash is persisted so a leaked table cannot be replayed.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
