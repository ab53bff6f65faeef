package api

import (
	"github.com/gin-gonic/gin"

	"github.com/tom2984/aac-sub001/internal/handlers"
)

func registerAuthRoutes(api, protected *gin.RouterGroup, limiter gin.HandlerFunc, handler *handlers.AuthHandler) {
	auth := api.Group("/auth")
	{
		auth.POST("/confirmations", limiter, handler.RequestConfirmation)
		auth.POST("/confirmations/verify", limiter, handler.VerifyConfirmation)
		auth.POST("/signup", limiter, handler.Signup)
		auth.POST("/signin", limiter, handler.SignIn)
		auth.GET("/invites/inspect", limiter, handler.InspectInvite)
	}

	protected.POST("/auth/profile", handler.CompleteProfile)
}
