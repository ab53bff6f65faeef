package handlers

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tom2984/aac-sub001/internal/integrations/xero"
	"github.com/tom2984/aac-sub001/pkg/errors"
	"github.com/tom2984/aac-sub001/pkg/logger"
	"github.com/tom2984/aac-sub001/pkg/response"
)

// xeroReturnPath is where the browser lands after the Xero consent screen.
const xeroReturnPath = "/settings/integrations"

// XeroHandler drives the Xero OAuth2 connect flow.
type XeroHandler struct {
	connector *xero.Connector
	siteURL   string
}

func NewXeroHandler(connector *xero.Connector, siteURL string) *XeroHandler {
	return &XeroHandler{connector: connector, siteURL: strings.TrimRight(siteURL, "/")}
}

// GET /api/integrations/xero/connect
func (h *XeroHandler) Connect(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	authorizeURL, err := h.connector.AuthorizeURL(actor.ID)
	if err != nil {
		response.Error(c, translateError(err))
		return
	}

	response.Success(c, http.StatusOK, gin.H{"url": authorizeURL})
}

// GET /api/integrations/xero/status
func (h *XeroHandler) Status(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	status, err := h.connector.Status(requestContext(c), actor.ID)
	if err != nil {
		response.Error(c, translateError(err))
		return
	}

	response.Success(c, http.StatusOK, gin.H{"xero": status})
}

// GET /api/integrations/xero/callback?code=&state=
//
// Xero redirects the browser here, so the outcome is reported by redirecting back
// to the web application rather than as JSON.
func (h *XeroHandler) Callback(c *gin.Context) {
	query := url.Values{}

	if providerErr := strings.TrimSpace(c.Query("error")); providerErr != "" {
		query.Set("xero", "error")
		query.Set("code", providerErr)
		c.Redirect(http.StatusFound, h.returnURL(query))
		return
	}

	_, err := h.connector.Complete(requestContext(c), c.Query("state"), c.Query("code"))
	if err != nil {
		appErr := errors.FromError(translateError(err))
		logger.WithModule("xero").Warn("xero callback failed",
			zap.String("code", appErr.Code),
			zap.Error(err),
		)
		query.Set("xero", "error")
		query.Set("code", appErr.Code)
		c.Redirect(http.StatusFound, h.returnURL(query))
		return
	}

	query.Set("xero", "connected")
	c.Redirect(http.StatusFound, h.returnURL(query))
}

func (h *XeroHandler) returnURL(query url.Values) string {
	return h.siteURL + xeroReturnPath + "?" + query.Encode()
}
