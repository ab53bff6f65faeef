// Package xero links a profile to a Xero organisation through the OAuth2
// authorization-code flow and stores the resulting credentials encrypted.
package xero

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/tom2984/aac-sub001/internal/auth"
	"github.com/tom2984/aac-sub001/internal/models"
	"github.com/tom2984/aac-sub001/internal/store"
	"github.com/tom2984/aac-sub001/pkg/crypto"
	"github.com/tom2984/aac-sub001/pkg/logger"
)

const (
	// StateAudience scopes state tokens so they cannot be replayed as API sessions.
	StateAudience = "xero-connect"

	defaultStateTTL       = 10 * time.Minute
	defaultTimeout        = 15 * time.Second
	defaultConnectionsURL = "https://api.xero.com/connections"
	defaultAuthURL        = "https://login.xero.com/identity/connect/authorize"
	defaultTokenURL       = "https://identity.xero.com/connect/token"
)

var (
	// ErrNotConfigured indicates client credentials or the encryption key are missing.
	ErrNotConfigured = errors.New("xero: integration not configured")
	// ErrInvalidState indicates the callback state was forged, expired or malformed.
	ErrInvalidState = errors.New("xero: invalid state")
	// ErrCodeRequired indicates the callback carried no authorization code.
	ErrCodeRequired = errors.New("xero: authorization code missing")
	// ErrNoTenant indicates the authorised user granted access to no organisation.
	ErrNoTenant = errors.New("xero: no tenant connected")
)

// UpstreamError reports a failed call to Xero along with the HTTP status it returned.
type UpstreamError struct {
	Op     string
	Status int
	Err    error
}

func (e *UpstreamError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("xero: %s failed with status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("xero: %s failed: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Config captures the OAuth2 client registration.
type Config struct {
	ClientID       string
	ClientSecret   string
	RedirectURL    string
	AuthURL        string
	TokenURL       string
	ConnectionsURL string
	Scopes         []string
}

// Option customises a Connector.
type Option func(*Connector)

// WithHTTPClient routes token exchange and tenant discovery through client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Connector) {
		if client != nil {
			c.client = client
		}
	}
}

// WithStateTTL overrides how long an authorization state remains valid.
func WithStateTTL(ttl time.Duration) Option {
	return func(c *Connector) {
		if ttl > 0 {
			c.stateTTL = ttl
		}
	}
}

// WithClock overrides the clock used for expiry bookkeeping.
func WithClock(now func() time.Time) Option {
	return func(c *Connector) {
		if now != nil {
			c.now = now
		}
	}
}

// Connector drives the Xero OAuth2 flow.
type Connector struct {
	oauth          *oauth2.Config
	connectionsURL string
	states         *auth.JWTService
	connections    store.XeroStore
	key            []byte
	client         *http.Client
	stateTTL       time.Duration
	now            func() time.Time
	log            *zap.Logger
}

// Status summarises a stored connection without exposing credentials.
type Status struct {
	Connected bool      `json:"connected"`
	TenantID  string    `json:"tenant_id,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// NewConnector builds a Connector. Missing client credentials are tolerated here and
// reported as ErrNotConfigured when the flow is used.
func NewConnector(cfg Config, states *auth.JWTService, connections store.XeroStore, key []byte, opts ...Option) (*Connector, error) {
	if states == nil {
		return nil, errors.New("xero: jwt service is required")
	}
	if connections == nil {
		return nil, errors.New("xero: connection store is required")
	}

	authURL := strings.TrimSpace(cfg.AuthURL)
	if authURL == "" {
		authURL = defaultAuthURL
	}
	tokenURL := strings.TrimSpace(cfg.TokenURL)
	if tokenURL == "" {
		tokenURL = defaultTokenURL
	}
	connectionsURL := strings.TrimSpace(cfg.ConnectionsURL)
	if connectionsURL == "" {
		connectionsURL = defaultConnectionsURL
	}
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{"offline_access", "accounting.transactions", "payroll.employees"}
	}

	connector := &Connector{
		oauth: &oauth2.Config{
			ClientID:     strings.TrimSpace(cfg.ClientID),
			ClientSecret: strings.TrimSpace(cfg.ClientSecret),
			RedirectURL:  strings.TrimSpace(cfg.RedirectURL),
			Endpoint: oauth2.Endpoint{
				AuthURL:   authURL,
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
			Scopes: scopes,
		},
		connectionsURL: connectionsURL,
		states:         states,
		connections:    connections,
		key:            key,
		client:         &http.Client{Timeout: defaultTimeout},
		stateTTL:       defaultStateTTL,
		now:            time.Now,
		log:            logger.WithModule("xero"),
	}

	for _, opt := range opts {
		opt(connector)
	}

	return connector, nil
}

// Configured reports whether the flow can be started.
func (c *Connector) Configured() bool {
	return c.oauth.ClientID != "" && c.oauth.ClientSecret != "" && c.oauth.RedirectURL != "" && len(c.key) > 0
}

// AuthorizeURL returns the Xero consent URL for profileID. The state parameter is a
// short-lived signed token binding the callback to that profile.
func (c *Connector) AuthorizeURL(profileID string) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}
	if strings.TrimSpace(profileID) == "" {
		return "", errors.New("xero: profile id is required")
	}

	state, _, err := c.states.GenerateAccessToken(auth.AccessTokenInput{
		UserID:   profileID,
		Audience: []string{StateAudience},
		TTL:      c.stateTTL,
	})
	if err != nil {
		return "", fmt.Errorf("xero: sign state: %w", err)
	}

	return c.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline), nil
}

// Complete exchanges code for tokens, discovers the connected tenant and stores the
// encrypted credentials for the profile named in state.
func (c *Connector) Complete(ctx context.Context, state, code string) (*models.XeroConnection, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	claims, err := c.states.ValidateAccessToken(strings.TrimSpace(state), StateAudience)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	if strings.TrimSpace(code) == "" {
		return nil, ErrCodeRequired
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.client)

	token, err := c.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, exchangeError(err)
	}

	tenantID, err := c.discoverTenant(ctx, token)
	if err != nil {
		return nil, err
	}

	accessToken, err := crypto.Encrypt([]byte(token.AccessToken), c.key)
	if err != nil {
		return nil, fmt.Errorf("xero: encrypt access token: %w", err)
	}
	refreshToken, err := crypto.Encrypt([]byte(token.RefreshToken), c.key)
	if err != nil {
		return nil, fmt.Errorf("xero: encrypt refresh token: %w", err)
	}

	expiresAt := token.Expiry.UTC()
	if token.Expiry.IsZero() {
		expiresAt = c.now().UTC()
	}

	connection := &models.XeroConnection{
		ProfileID:    claims.UserID,
		TenantID:     tenantID,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    token.Type(),
		ExpiresAt:    expiresAt,
	}
	if err := c.connections.Upsert(ctx, connection); err != nil {
		return nil, fmt.Errorf("xero: store connection: %w", err)
	}

	c.log.Info("xero connected", zap.String("profile_id", claims.UserID), zap.String("tenant_id", tenantID))
	return connection, nil
}

// Status reports whether profileID has linked a Xero organisation.
func (c *Connector) Status(ctx context.Context, profileID string) (*Status, error) {
	connection, err := c.connections.FindByProfile(ctx, profileID)
	if errors.Is(err, store.ErrNotFound) {
		return &Status{}, nil
	}
	if err != nil {
		return nil, err
	}
	return &Status{Connected: true, TenantID: connection.TenantID, ExpiresAt: connection.ExpiresAt}, nil
}

// AccessToken decrypts the stored access token for profileID.
func (c *Connector) AccessToken(ctx context.Context, profileID string) (string, error) {
	if len(c.key) == 0 {
		return "", ErrNotConfigured
	}
	connection, err := c.connections.FindByProfile(ctx, profileID)
	if err != nil {
		return "", err
	}
	plain, err := crypto.Decrypt(connection.AccessToken, c.key)
	if err != nil {
		return "", fmt.Errorf("xero: decrypt access token: %w", err)
	}
	return string(plain), nil
}

type tenantConnection struct {
	TenantID   string `json:"tenantId"`
	TenantType string `json:"tenantType"`
}

func (c *Connector) discoverTenant(ctx context.Context, token *oauth2.Token) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.connectionsURL, nil)
	if err != nil {
		return "", fmt.Errorf("xero: build connections request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	token.SetAuthHeader(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", &UpstreamError{Op: "tenant discovery", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", &UpstreamError{Op: "tenant discovery", Status: resp.StatusCode, Err: errors.New(strings.TrimSpace(string(body)))}
	}

	var tenants []tenantConnection
	if err := json.NewDecoder(resp.Body).Decode(&tenants); err != nil {
		return "", &UpstreamError{Op: "tenant discovery", Status: resp.StatusCode, Err: err}
	}
	for _, tenant := range tenants {
		if strings.EqualFold(tenant.TenantType, "ORGANISATION") && tenant.TenantID != "" {
			return tenant.TenantID, nil
		}
	}
	if len(tenants) > 0 && tenants[0].TenantID != "" {
		return tenants[0].TenantID, nil
	}
	return "", ErrNoTenant
}

func exchangeError(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
		return &UpstreamError{Op: "token exchange", Status: retrieveErr.Response.StatusCode, Err: err}
	}
	return &UpstreamError{Op: "token exchange", Err: err}
}
