package api

import (
	"errors"
	"fmt"

	"github.com/tom2984/aac-sub001/internal/app"
	iauth "github.com/tom2984/aac-sub001/internal/auth"
	"github.com/tom2984/aac-sub001/internal/integrations/xero"
	"github.com/tom2984/aac-sub001/internal/middleware"
	"github.com/tom2984/aac-sub001/internal/monitoring"
	"github.com/tom2984/aac-sub001/internal/security"
	"github.com/tom2984/aac-sub001/internal/services"
	"github.com/tom2984/aac-sub001/internal/store"
	"github.com/tom2984/aac-sub001/pkg/mail"
)

// Dependencies carries the long-lived collaborators shared by every handler.
type Dependencies struct {
	Store     *store.Store
	JWT       *iauth.JWTService
	Mailer    mail.Mailer
	RateStore middleware.RateStore

	// Health evaluates the health endpoints. When nil only the database is probed.
	Health *monitoring.HealthManager

	// XeroOptions are forwarded to the Xero connector, mainly for tests.
	XeroOptions []xero.Option
}

type serviceSet struct {
	authn         *iauth.Authenticator
	issuer        *services.TokenIssuer
	verifier      *services.TokenVerifier
	provisioner   *services.Provisioner
	signup        *services.SignupService
	forms         *services.FormService
	notifications *services.NotificationService
	dispatcher    *services.Dispatcher
	xero          *xero.Connector
	audit         *security.AuditService
}

func buildServices(cfg *app.Config, deps Dependencies) (*serviceSet, error) {
	if deps.Store == nil {
		return nil, errors.New("store must be provided")
	}
	if deps.JWT == nil {
		return nil, errors.New("jwt service must be provided")
	}

	st := deps.Store
	set := &serviceSet{}
	var err error

	if set.authn, err = iauth.NewAuthenticator(st.Accounts, st.Profiles, deps.JWT); err != nil {
		return nil, fmt.Errorf("initialise authenticator: %w", err)
	}

	set.issuer, err = services.NewTokenIssuer(st.Invites, st.Confirmations, deps.Mailer,
		services.WithIssuerSiteURL(cfg.Site.URL),
		services.WithIssuerAppName(cfg.Site.AppName),
		services.WithIssuerExpiry(cfg.Tokens.Expiry),
	)
	if err != nil {
		return nil, fmt.Errorf("initialise token issuer: %w", err)
	}

	if set.verifier, err = services.NewTokenVerifier(st.Invites, st.Confirmations, st.Accounts, st.Profiles); err != nil {
		return nil, fmt.Errorf("initialise token verifier: %w", err)
	}

	if set.provisioner, err = services.NewProvisioner(st.Accounts, st.Profiles, st.Invites); err != nil {
		return nil, fmt.Errorf("initialise provisioner: %w", err)
	}

	if set.signup, err = services.NewSignupService(set.verifier, set.provisioner, set.issuer, set.authn); err != nil {
		return nil, fmt.Errorf("initialise signup service: %w", err)
	}

	if set.forms, err = services.NewFormService(st.Forms, st.Profiles); err != nil {
		return nil, fmt.Errorf("initialise form service: %w", err)
	}

	if set.notifications, err = services.NewNotificationService(st.Notifications); err != nil {
		return nil, fmt.Errorf("initialise notification service: %w", err)
	}

	set.dispatcher, err = services.NewDispatcher(st.Notifications, st.Profiles, st.Forms, deps.Mailer,
		services.WithDispatcherSiteURL(cfg.Site.URL),
		services.WithDispatcherAppName(cfg.Site.AppName),
	)
	if err != nil {
		return nil, fmt.Errorf("initialise dispatcher: %w", err)
	}

	key, err := cfg.Auth.EncryptionKeyBytes()
	if err != nil {
		return nil, fmt.Errorf("decode encryption key: %w", err)
	}
	xcfg := cfg.Integrations.Xero
	set.xero, err = xero.NewConnector(xero.Config{
		ClientID:       xcfg.ClientID,
		ClientSecret:   xcfg.ClientSecret,
		RedirectURL:    xcfg.RedirectURL,
		AuthURL:        xcfg.AuthURL,
		TokenURL:       xcfg.TokenURL,
		ConnectionsURL: xcfg.ConnectionsURL,
		Scopes:         xcfg.Scopes,
	}, deps.JWT, st.Xero, key, deps.XeroOptions...)
	if err != nil {
		return nil, fmt.Errorf("initialise xero connector: %w", err)
	}

	set.audit = security.NewAuditService(st.DB(), cfg)

	return set, nil
}
