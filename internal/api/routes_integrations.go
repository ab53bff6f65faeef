package api

import (
	"github.com/gin-gonic/gin"

	"github.com/tom2984/aac-sub001/internal/handlers"
	"github.com/tom2984/aac-sub001/internal/middleware"
	"github.com/tom2984/aac-sub001/internal/models"
)

func registerIntegrationRoutes(api, protected *gin.RouterGroup, handler *handlers.XeroHandler) {
	// Xero redirects the browser here without a bearer token; the signed state
	// identifies the profile.
	api.GET("/integrations/xero/callback", handler.Callback)

	xero := protected.Group("/integrations/xero")
	xero.Use(middleware.RequireRole(string(models.RoleAdmin), string(models.RoleManager)))
	{
		xero.GET("/connect", handler.Connect)
		xero.GET("/status", handler.Status)
	}
}
