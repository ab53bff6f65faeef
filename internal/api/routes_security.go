package api

import (
	"github.com/gin-gonic/gin"

	"github.com/tom2984/aac-sub001/internal/handlers"
	"github.com/tom2984/aac-sub001/internal/middleware"
	"github.com/tom2984/aac-sub001/internal/models"
)

func registerSecurityRoutes(protected *gin.RouterGroup, handler *handlers.SecurityHandler) {
	sec := protected.Group("/security")
	sec.Use(middleware.RequireRole(string(models.RoleAdmin)))
	{
		sec.GET("/audit", handler.Audit)
	}
}
