package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/rice-reservation/internal/handler"
	"github.com/iliyamo/rice-reservation/internal/middleware"
)

// RegisterAdmin registers operator endpoints guarded by the admin key.
func RegisterAdmin(e *echo.Echo, h *handler.AdminHandler, adminKeyHash string) {
	g := e.Group("/v1/admin", middleware.AdminKey(adminKeyHash))
	g.POST("/notifications/dispatch", h.Dispatch)
	g.POST("/notifications/:id/retry", h.Retry)
}
