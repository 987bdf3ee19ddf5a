package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/rice-reservation/internal/handler"
	"github.com/iliyamo/rice-reservation/internal/middleware"
	"github.com/iliyamo/rice-reservation/internal/utils"
)

// RegisterFarmer registers farm management endpoints. They require a session
// with the FARMER role; ownership of the farm is checked in the handler.
func RegisterFarmer(e *echo.Echo, h *handler.FarmHandler, jwtSecret string) {
	g := e.Group(
		"/v1/farms/:id",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(utils.RoleFarmer),
	)
	g.GET("/roster", h.Roster)
	g.PATCH("/accepting", h.SetAccepting)
}
