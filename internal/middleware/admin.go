package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/rice-reservation/internal/utils"
)

// AdminKeyHeader carries the operator key.
const AdminKeyHeader = "X-Admin-Key"

// AdminKey admits requests whose X-Admin-Key matches the bcrypt hash. With
// an empty hash every request is refused.
func AdminKey(hash string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := c.Request().Header.Get(AdminKeyHeader)
			if hash == "" || key == "" || !utils.VerifyAdminKey(hash, key) {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized", "message": "admin key required"})
			}
			return next(c)
		}
	}
}
