package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tom2984/aac-sub001/internal/auth"
	"github.com/tom2984/aac-sub001/internal/database/testutil"
	"github.com/tom2984/aac-sub001/internal/models"
	"github.com/tom2984/aac-sub001/internal/store"
	"github.com/tom2984/aac-sub001/pkg/crypto"
	"github.com/tom2984/aac-sub001/pkg/mail"
)

const testSiteURL = "https://app.example.com"

type testClock struct {
	mu      sync.Mutex
	current time.Time
}

func newTestClock() *testClock {
	return &testClock{current: time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
}

type testEnv struct {
	store       *store.Store
	mailer      *mail.MemoryMailer
	clock       *testClock
	issuer      *TokenIssuer
	verifier    *TokenVerifier
	provisioner *Provisioner
	authn       *auth.Authenticator
	jwt         *auth.JWTService
	signup      *SignupService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	st, err := store.New(db)
	require.NoError(t, err)

	env := &testEnv{store: st, mailer: mail.NewMemoryMailer(), clock: newTestClock()}

	env.issuer, err = NewTokenIssuer(st.Invites, st.Confirmations, env.mailer,
		WithIssuerSiteURL(testSiteURL+"/"),
		WithIssuerClock(env.clock.Now),
	)
	require.NoError(t, err)

	env.verifier, err = NewTokenVerifier(st.Invites, st.Confirmations, st.Accounts, st.Profiles, WithVerifierClock(env.clock.Now))
	require.NoError(t, err)

	env.provisioner, err = NewProvisioner(st.Accounts, st.Profiles, st.Invites, WithProvisionerClock(env.clock.Now))
	require.NoError(t, err)

	env.jwt, err = auth.NewJWTService(auth.JWTConfig{Secret: "test-secret", Issuer: "formtrack"})
	require.NoError(t, err)

	env.authn, err = auth.NewAuthenticator(st.Accounts, st.Profiles, env.jwt)
	require.NoError(t, err)

	env.signup, err = NewSignupService(env.verifier, env.provisioner, env.issuer, env.authn)
	require.NoError(t, err)

	return env
}

func (e *testEnv) seedProfile(t *testing.T, email string, role models.Role, firstName string) *models.Profile {
	t.Helper()
	ctx := context.Background()

	hash, err := crypto.HashPassword("Sup3rSecret!")
	require.NoError(t, err)

	confirmed := e.clock.Now()
	account := &models.Account{Email: email, PasswordHash: hash, EmailConfirmedAt: &confirmed}
	require.NoError(t, e.store.Accounts.Create(ctx, account))

	profile := &models.Profile{ID: account.ID, Email: email, FirstName: firstName, Role: role, Status: models.ProfileActive}
	require.NoError(t, e.store.Profiles.Create(ctx, profile))
	return profile
}

// failingProfiles wraps a ProfileStore and fails every Create.
type failingProfiles struct {
	store.ProfileStore
}

func (failingProfiles) Create(context.Context, *models.Profile) error {
	return errors.New("profiles table unavailable")
}
