package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/tom2984/aac-sub001/internal/app"
	iauth "github.com/tom2984/aac-sub001/internal/auth"
	"github.com/tom2984/aac-sub001/internal/database/testutil"
	"github.com/tom2984/aac-sub001/internal/monitoring"
	"github.com/tom2984/aac-sub001/internal/store"
	"github.com/tom2984/aac-sub001/pkg/mail"
)

func newTestRouter(t *testing.T, cfg *app.Config) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	st, err := store.New(db)
	require.NoError(t, err)

	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{Secret: "router-secret", Issuer: "test", AccessTokenTTL: 15 * time.Minute})
	require.NoError(t, err)

	router, err := NewRouter(cfg, Dependencies{Store: st, JWT: jwtSvc, Mailer: mail.NewMemoryMailer()})
	require.NoError(t, err)
	return router
}

func serve(router *gin.Engine, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func enabledMonitoring() *app.Config {
	return &app.Config{
		Monitoring: app.MonitoringConfig{
			Prometheus: app.PrometheusConfig{Enabled: true, Endpoint: "metrics"},
			Health:     app.HealthConfig{Enabled: true},
		},
	}
}

func TestNewRouterValidatesDependencies(t *testing.T) {
	_, err := NewRouter(nil, Dependencies{})
	require.Error(t, err)

	_, err = NewRouter(&app.Config{}, Dependencies{})
	require.Error(t, err)

	_, err = NewRouter(&app.Config{Auth: app.AuthConfig{EncryptionKey: "short"}}, Dependencies{
		Store: &store.Store{},
		JWT:   &iauth.JWTService{},
	})
	require.Error(t, err)
}

func TestRouter_PublicAndProtectedRoutes(t *testing.T) {
	router := newTestRouter(t, enabledMonitoring())

	require.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/health").Code)
	require.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/api/health").Code)

	for _, path := range []string{"/api/notifications", "/api/forms", "/api/assignments", "/api/integrations/xero/status"} {
		require.Equal(t, http.StatusUnauthorized, serve(router, http.MethodGet, path).Code, path)
	}
	require.Equal(t, http.StatusUnauthorized, serve(router, http.MethodPost, "/api/invites").Code)

	missing := serve(router, http.MethodGet, "/api/does-not-exist")
	require.Equal(t, http.StatusNotFound, missing.Code)
	require.Contains(t, missing.Body.String(), "NOT_FOUND")
}

func TestRouter_MetricsEndpoint(t *testing.T) {
	router := newTestRouter(t, enabledMonitoring())

	require.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/health").Code)

	metrics := serve(router, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, metrics.Code)
	require.True(t, strings.Contains(metrics.Body.String(), "formtrack_api_latency_seconds"), "expected api latency metric")
}

func TestRouter_MonitoringDisabled(t *testing.T) {
	router := newTestRouter(t, &app.Config{})

	health := serve(router, http.MethodGet, "/health")
	require.Equal(t, http.StatusNotFound, health.Code)
	require.Contains(t, health.Body.String(), "disabled")

	require.Equal(t, http.StatusNotFound, serve(router, http.MethodGet, "/metrics").Code)
}

func TestRouter_SecurityHeaders(t *testing.T) {
	router := newTestRouter(t, enabledMonitoring())

	rec := serve(router, http.MethodGet, "/health")
	require.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestRouter_HealthReportsFailingReadiness(t *testing.T) {
	gin.SetMode(gin.TestMode)

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	st, err := store.New(db)
	require.NoError(t, err)
	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{Secret: "router-secret", Issuer: "test", AccessTokenTTL: 15 * time.Minute})
	require.NoError(t, err)

	health := monitoring.NewHealthManager()
	health.RegisterReadiness(monitoring.NewCheck("queue", func(context.Context) monitoring.ProbeResult {
		return monitoring.ProbeResult{Status: monitoring.StatusDown, Details: "unreachable"}
	}))

	router, err := NewRouter(enabledMonitoring(), Dependencies{
		Store:  st,
		JWT:    jwtSvc,
		Mailer: mail.NewMemoryMailer(),
		Health: health,
	})
	require.NoError(t, err)

	require.Equal(t, http.StatusServiceUnavailable, serve(router, http.MethodGet, "/health").Code)

	ready := serve(router, http.MethodGet, "/api/health/ready")
	require.Equal(t, http.StatusServiceUnavailable, ready.Code)
	require.Contains(t, ready.Body.String(), "unreachable")

	require.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/health/live").Code)
}
