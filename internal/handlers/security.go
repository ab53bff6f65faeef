package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tom2984/aac-sub001/internal/security"
	"github.com/tom2984/aac-sub001/pkg/response"
)

type SecurityHandler struct {
	audit *security.AuditService
}

func NewSecurityHandler(audit *security.AuditService) *SecurityHandler {
	return &SecurityHandler{audit: audit}
}

// GET /api/security/audit
func (h *SecurityHandler) Audit(c *gin.Context) {
	result := h.audit.Run(requestContext(c))
	response.Success(c, http.StatusOK, gin.H{"audit": result})
}
