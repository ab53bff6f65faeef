package api

import (
	"github.com/gin-gonic/gin"

	"github.com/tom2984/aac-sub001/internal/handlers"
	"github.com/tom2984/aac-sub001/internal/middleware"
	"github.com/tom2984/aac-sub001/internal/models"
)

func registerFormRoutes(protected *gin.RouterGroup, handler *handlers.FormHandler) {
	staff := middleware.RequireRole(string(models.RoleAdmin), string(models.RoleManager))

	forms := protected.Group("/forms")
	{
		forms.POST("", staff, handler.Create)
		forms.GET("", handler.List)
		forms.GET("/:id", handler.Get)
		forms.POST("/:id/assignments", staff, handler.Assign)
		forms.POST("/:id/responses", handler.Submit)
		forms.GET("/:id/analytics/days-lost", staff, handler.DaysLost)
	}

	protected.GET("/assignments", handler.ListAssignments)
}
