package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/tom2984/aac-sub001/internal/api"
	"github.com/tom2984/aac-sub001/internal/app"
	iauth "github.com/tom2984/aac-sub001/internal/auth"
	sharedtestutil "github.com/tom2984/aac-sub001/internal/database/testutil"
	"github.com/tom2984/aac-sub001/internal/integrations/xero"
	"github.com/tom2984/aac-sub001/internal/models"
	"github.com/tom2984/aac-sub001/internal/store"
	"github.com/tom2984/aac-sub001/pkg/crypto"
	"github.com/tom2984/aac-sub001/pkg/mail"
)

// SiteURL is the public site configured for every test environment.
const SiteURL = "https://app.example.com"

// Env encapsulates a fully-wired API instance backed by an in-memory database for handler tests.
type Env struct {
	T      *testing.T
	DB     *gorm.DB
	Store  *store.Store
	Router *gin.Engine
	JWT    *iauth.JWTService
	Mailer *mail.MemoryMailer
	Config *app.Config
}

// EnvOption customises the environment before the router is built.
type EnvOption func(*envSettings)

type envSettings struct {
	configure   []func(*app.Config)
	xeroOptions []xero.Option
}

// WithConfig mutates the test configuration before wiring.
func WithConfig(fn func(cfg *app.Config)) EnvOption {
	return func(s *envSettings) {
		s.configure = append(s.configure, fn)
	}
}

// WithXeroOptions forwards options to the Xero connector.
func WithXeroOptions(opts ...xero.Option) EnvOption {
	return func(s *envSettings) {
		s.xeroOptions = append(s.xeroOptions, opts...)
	}
}

// NewEnv provisions a fresh handler test environment with migrations applied.
func NewEnv(t *testing.T, opts ...EnvOption) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	settings := envSettings{}
	for _, opt := range opts {
		opt(&settings)
	}

	db := sharedtestutil.MustOpenTestDB(t, sharedtestutil.WithAutoMigrate())
	st, err := store.New(db)
	require.NoError(t, err)

	cfg := &app.Config{
		Auth: app.AuthConfig{
			JWT: app.JWTSettings{
				Secret: "test-suite-super-secret-key-32-bytes!!",
				Issuer: "test-suite",
				TTL:    time.Hour,
			},
		},
		Site:     app.SiteConfig{URL: SiteURL, AppName: "Formtrack"},
		Tokens:   app.TokenConfig{Expiry: 24 * time.Hour},
		Dispatch: app.DispatchConfig{BatchSize: 10},
		Monitoring: app.MonitoringConfig{
			Prometheus: app.PrometheusConfig{Enabled: true, Endpoint: "/metrics"},
			Health:     app.HealthConfig{Enabled: true},
		},
	}
	for _, fn := range settings.configure {
		fn(cfg)
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	require.NoError(t, err)

	mailer := mail.NewMemoryMailer()

	router, err := api.NewRouter(cfg, api.Dependencies{
		Store:       st,
		JWT:         jwtSvc,
		Mailer:      mailer,
		XeroOptions: settings.xeroOptions,
	})
	require.NoError(t, err)

	return &Env{
		T:      t,
		DB:     db,
		Store:  st,
		Router: router,
		JWT:    jwtSvc,
		Mailer: mailer,
		Config: cfg,
	}
}

// CreateUser inserts a confirmed account with an active profile in the given role.
func (e *Env) CreateUser(role models.Role, password string) *models.Profile {
	e.T.Helper()

	email := strings.ToLower(string(role)) + "-" + uuid.NewString()[:8] + "@example.com"
	hashed, err := crypto.HashPassword(password)
	require.NoError(e.T, err)

	confirmed := time.Now().UTC()
	account := &models.Account{
		Email:            email,
		PasswordHash:     hashed,
		EmailConfirmedAt: &confirmed,
	}
	require.NoError(e.T, e.DB.Create(account).Error)

	profile := &models.Profile{
		ID:        account.ID,
		Email:     email,
		FirstName: "Test",
		LastName:  strings.ToUpper(string(role[:1])) + string(role[1:]),
		Role:      role,
		Status:    models.ProfileActive,
	}
	require.NoError(e.T, e.DB.Create(profile).Error)
	return profile
}

// Token mints an API access token for profile without going through sign-in.
func (e *Env) Token(profile *models.Profile) string {
	e.T.Helper()

	token, _, err := e.JWT.GenerateAccessToken(iauth.AccessTokenInput{
		UserID:    profile.ID,
		SessionID: uuid.NewString(),
		Email:     profile.Email,
		Role:      string(profile.Role),
		Audience:  []string{iauth.AudienceAPI},
	})
	require.NoError(e.T, err)
	return token
}

// SignInResult mirrors the POST /api/auth/signin payload.
type SignInResult struct {
	User    iauth.User    `json:"user"`
	Session iauth.Session `json:"session"`
}

// SignIn authenticates through the API and returns the issued session.
func (e *Env) SignIn(email, password string) SignInResult {
	e.T.Helper()

	w := e.Request(http.MethodPost, "/api/auth/signin", map[string]string{
		"email":    email,
		"password": password,
	}, "")
	require.Equal(e.T, http.StatusOK, w.Code, w.Body.String())

	var result SignInResult
	DecodeJSON(e.T, w, &result)
	require.NotEmpty(e.T, result.Session.AccessToken)
	return result
}

// LastMessage returns the most recent email sent to address.
func (e *Env) LastMessage(address string) mail.Message {
	e.T.Helper()

	messages := e.Mailer.Messages()
	for i := len(messages) - 1; i >= 0; i-- {
		for _, to := range messages[i].To {
			if strings.EqualFold(to, address) {
				return messages[i]
			}
		}
	}
	e.T.Fatalf("no email sent to %s", address)
	return mail.Message{}
}

// LinkToken extracts the named query parameter from the link carried by msg.
func LinkToken(t *testing.T, msg mail.Message, param string) string {
	t.Helper()

	raw, ok := msg.Data["link"].(string)
	require.True(t, ok, "message has no link")
	parsed, err := url.Parse(raw)
	require.NoError(t, err)
	token := parsed.Query().Get(param)
	require.NotEmpty(t, token, raw)
	return token
}

// Envelope captures the fields shared by every JSON response.
type Envelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

// DecodeEnvelope parses the success flag and error fields from a recorder.
func DecodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) Envelope {
	t.Helper()
	var env Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env
}

// DecodeJSON unmarshals the full response body into dest.
func DecodeJSON[T any](t *testing.T, w *httptest.ResponseRecorder, dest *T) {
	t.Helper()
	if dest == nil {
		t.Fatal("destination must not be nil")
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), dest), w.Body.String())
}

// Request executes an HTTP request against the test router, applying JSON encoding and auth headers automatically.
func (e *Env) Request(method, path string, body any, token string) *httptest.ResponseRecorder {
	e.T.Helper()
	return e.RequestWithHeaders(method, path, body, token, nil)
}

// RequestWithHeaders is Request with additional request headers.
func (e *Env) RequestWithHeaders(method, path string, body any, token string, headers map[string]string) *httptest.ResponseRecorder {
	e.T.Helper()

	var buf *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.T, err)
		buf = bytes.NewBuffer(data)
	} else {
		buf = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, path, buf)
	require.NoError(e.T, err)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}
