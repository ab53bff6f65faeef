package api

import (
	"github.com/gin-gonic/gin"

	"github.com/tom2984/aac-sub001/internal/handlers"
	"github.com/tom2984/aac-sub001/internal/middleware"
	"github.com/tom2984/aac-sub001/internal/models"
)

func registerInviteRoutes(protected *gin.RouterGroup, handler *handlers.InviteHandler) {
	invites := protected.Group("/invites")
	invites.Use(middleware.RequireRole(string(models.RoleAdmin)))
	{
		invites.POST("", handler.Create)
	}
}
