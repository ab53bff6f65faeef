package handlers_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tom2984/aac-sub001/internal/handlers/testutil"
	"github.com/tom2984/aac-sub001/internal/models"
)

type signupPayload struct {
	User struct {
		ID    string `json:"id"`
		Email string `json:"email"`
		Role  string `json:"role"`
	} `json:"user"`
	Session *struct {
		AccessToken string `json:"access_token"`
	} `json:"session"`
	ConfirmationSent  bool   `json:"confirmation_sent"`
	ProfileIncomplete bool   `json:"profile_incomplete"`
	RedirectTo        string `json:"redirect_to"`
}

func TestSignupRequiresEmailConfirmation(t *testing.T) {
	env := testutil.NewEnv(t)

	w := env.Request(http.MethodPost, "/api/auth/signup", map[string]any{
		"email":      "Casey@Example.com",
		"password":   "Sup3rSecret!",
		"firstName":  "Casey",
		"lastName":   "Jones",
		"redirectTo": "https://app.example.com/welcome",
	}, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created signupPayload
	testutil.DecodeJSON(t, w, &created)
	require.Equal(t, "casey@example.com", created.User.Email)
	require.Equal(t, string(models.RoleEmployee), created.User.Role)
	require.Nil(t, created.Session)
	require.True(t, created.ConfirmationSent)
	require.Equal(t, "https://app.example.com/welcome", created.RedirectTo)

	blocked := env.Request(http.MethodPost, "/api/auth/signin", map[string]string{
		"email":    "casey@example.com",
		"password": "Sup3rSecret!",
	}, "")
	require.Equal(t, http.StatusForbidden, blocked.Code, blocked.Body.String())
	require.Equal(t, "EMAIL_NOT_CONFIRMED", testutil.DecodeEnvelope(t, blocked).Code)

	token := testutil.LinkToken(t, env.LastMessage("casey@example.com"), "token")

	verify := env.Request(http.MethodPost, "/api/auth/confirmations/verify", map[string]string{"token": token}, "")
	require.Equal(t, http.StatusOK, verify.Code, verify.Body.String())
	var verified struct {
		Success bool   `json:"success"`
		Email   string `json:"email"`
	}
	testutil.DecodeJSON(t, verify, &verified)
	require.True(t, verified.Success)
	require.Equal(t, "casey@example.com", verified.Email)

	again := env.Request(http.MethodPost, "/api/auth/confirmations/verify", map[string]string{"token": token}, "")
	require.Equal(t, http.StatusBadRequest, again.Code)
	require.Equal(t, "TOKEN_ALREADY_USED", testutil.DecodeEnvelope(t, again).Code)

	session := env.SignIn("casey@example.com", "Sup3rSecret!")
	require.Equal(t, created.User.ID, session.User.ID)
	require.Equal(t, models.RoleEmployee, session.User.Role)
}

func TestVerifyConfirmationRejectsUnknownToken(t *testing.T) {
	env := testutil.NewEnv(t)

	w := env.Request(http.MethodPost, "/api/auth/confirmations/verify", map[string]string{"token": "not-a-real-token"}, "")
	require.Equal(t, http.StatusBadRequest, w.Code)
	body := testutil.DecodeEnvelope(t, w)
	require.False(t, body.Success)
	require.Equal(t, "INVALID_TOKEN", body.Code)
	require.NotEmpty(t, body.Error)

	missing := env.Request(http.MethodPost, "/api/auth/confirmations/verify", map[string]string{}, "")
	require.Equal(t, http.StatusBadRequest, missing.Code)
	require.Equal(t, "INVALID_INPUT", testutil.DecodeEnvelope(t, missing).Code)
}

func TestRequestConfirmationSendsEmail(t *testing.T) {
	env := testutil.NewEnv(t)

	w := env.Request(http.MethodPost, "/api/auth/confirmations", map[string]string{"email": "drew@example.com"}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.True(t, testutil.DecodeEnvelope(t, w).Success)

	msg := env.LastMessage("drew@example.com")
	require.Contains(t, msg.Data["link"], testutil.SiteURL+"/auth/confirm?token=")

	invalid := env.Request(http.MethodPost, "/api/auth/confirmations", map[string]string{"email": "not-an-email"}, "")
	require.Equal(t, http.StatusBadRequest, invalid.Code)
}

func TestSignupDuplicateEmailConflicts(t *testing.T) {
	env := testutil.NewEnv(t)
	existing := env.CreateUser(models.RoleEmployee, "Passw0rd!")

	w := env.Request(http.MethodPost, "/api/auth/signup", map[string]any{
		"email":    existing.Email,
		"password": "An0therPass!",
	}, "")
	require.Equal(t, http.StatusConflict, w.Code, w.Body.String())
}

func TestSignInRejectsWrongPassword(t *testing.T) {
	env := testutil.NewEnv(t)
	user := env.CreateUser(models.RoleManager, "RightPassw0rd")

	w := env.Request(http.MethodPost, "/api/auth/signin", map[string]string{
		"email":    user.Email,
		"password": "WrongPassw0rd",
	}, "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, "INVALID_CREDENTIALS", testutil.DecodeEnvelope(t, w).Code)

	session := env.SignIn(user.Email, "RightPassw0rd")
	require.Equal(t, models.RoleManager, session.User.Role)
}

func TestCompleteProfileRequiresAuth(t *testing.T) {
	env := testutil.NewEnv(t)
	user := env.CreateUser(models.RoleEmployee, "Passw0rd!")

	unauth := env.Request(http.MethodPost, "/api/auth/profile", map[string]string{"firstName": "A", "lastName": "B"}, "")
	require.Equal(t, http.StatusUnauthorized, unauth.Code)

	w := env.Request(http.MethodPost, "/api/auth/profile", map[string]string{
		"firstName": "Robin",
		"lastName":  "Hart",
	}, env.Token(user))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var payload struct {
		Profile models.Profile `json:"profile"`
	}
	testutil.DecodeJSON(t, w, &payload)
	require.Equal(t, user.ID, payload.Profile.ID)
	require.Equal(t, "Robin", payload.Profile.FirstName)
	require.Equal(t, "Hart", payload.Profile.LastName)
}
