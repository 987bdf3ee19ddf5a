package middleware

import "github.com/labstack/echo/v4"

// ConsumerID returns the authenticated consumer id or "" for guests.
func ConsumerID(c echo.Context) string {
	if s, ok := c.Get(ConsumerIDKey).(string); ok {
		return s
	}
	return ""
}

// rateIdentity names the caller in rate limit keys.
func rateIdentity(c echo.Context) string {
	if id := ConsumerID(c); id != "" {
		return id
	}
	return "anon"
}
