package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	appErrors "github.com/tom2984/aac-sub001/pkg/errors"
	"github.com/tom2984/aac-sub001/pkg/logger"
)

// ErrorBody is the payload written for failed requests.
type ErrorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

// Success writes a JSON object containing "success": true alongside the supplied fields.
func Success(c *gin.Context, statusCode int, fields gin.H) {
	body := gin.H{"success": true}
	for key, value := range fields {
		body[key] = value
	}
	c.JSON(statusCode, body)
}

// Error writes a JSON error response derived from an AppError. Server-side failures are
// logged; configuration failures are logged at error level because they indicate a
// broken deployment rather than a bad request.
func Error(c *gin.Context, err error) {
	if err == nil {
		err = appErrors.ErrInternalServer
	}

	appErr := appErrors.FromError(err)
	status := appErr.StatusCode
	if status == 0 {
		status = http.StatusInternalServerError
	}

	if status >= http.StatusInternalServerError {
		log := logger.WithModule("http")
		fields := []zap.Field{
			zap.String("code", appErr.Code),
			zap.String("path", requestPath(c)),
			zap.Error(err),
		}
		if appErr.Code == appErrors.ErrConfiguration.Code {
			log.Error("service misconfigured", fields...)
		} else {
			log.Warn("request failed", fields...)
		}
	}

	c.JSON(status, ErrorBody{
		Success: false,
		Error:   appErr.Message,
		Code:    appErr.Code,
	})
}

func requestPath(c *gin.Context) string {
	if c == nil || c.Request == nil || c.Request.URL == nil {
		return ""
	}
	return c.Request.URL.Path
}
