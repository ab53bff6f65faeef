package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/tom2984/aac-sub001/internal/middleware"
	"github.com/tom2984/aac-sub001/internal/models"
	"github.com/tom2984/aac-sub001/internal/services"
)

// requestContext safely returns the request context with a background fallback for tests.
func requestContext(c *gin.Context) context.Context {
	if c == nil {
		return context.Background()
	}
	if req := c.Request; req != nil {
		return req.Context()
	}
	return context.Background()
}

// currentActor returns the authenticated caller placed on the context by middleware.Auth.
func currentActor(c *gin.Context) (services.Actor, bool) {
	userID := c.GetString(middleware.CtxUserIDKey)
	if userID == "" {
		return services.Actor{}, false
	}
	return services.Actor{
		ID:   userID,
		Role: models.Role(c.GetString(middleware.CtxRoleKey)),
	}, true
}
