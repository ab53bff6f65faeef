package api

import (
	"github.com/gin-gonic/gin"

	"github.com/tom2984/aac-sub001/internal/handlers"
	"github.com/tom2984/aac-sub001/internal/middleware"
)

type notificationRouteDeps struct {
	Notifications  *handlers.NotificationHandler
	Dispatch       *handlers.DispatchHandler
	DispatchSecret string
}

func registerNotificationRoutes(api, protected *gin.RouterGroup, deps notificationRouteDeps) {
	// The dispatcher is driven by a scheduler, not a signed-in user.
	api.POST("/notifications/dispatch", middleware.DispatchSecret(deps.DispatchSecret), deps.Dispatch.Dispatch)

	notifications := protected.Group("/notifications")
	{
		notifications.GET("", deps.Notifications.List)
		notifications.PATCH("", deps.Notifications.Update)
	}
}
