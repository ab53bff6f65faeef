package middleware

import (
	"crypto/subtle"

	"github.com/gin-gonic/gin"

	"github.com/tom2984/aac-sub001/pkg/errors"
	"github.com/tom2984/aac-sub001/pkg/response"
)

// DispatchSecretHeader carries the shared secret that authorises dispatch triggers.
const DispatchSecretHeader = "X-Dispatch-Secret"

// DispatchSecret guards internal trigger endpoints with a shared secret. An empty
// secret disables the check.
func DispatchSecret(secret string) gin.HandlerFunc {
	expected := []byte(secret)
	return func(c *gin.Context) {
		if len(expected) == 0 {
			c.Next()
			return
		}
		provided := []byte(c.GetHeader(DispatchSecretHeader))
		if subtle.ConstantTimeCompare(provided, expected) != 1 {
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}
		c.Next()
	}
}
