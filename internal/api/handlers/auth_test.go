package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cvforge/internal/auth"
	"cvforge/internal/types"
)

type mockAuthService struct {
	registerFn       func(ctx context.Context, email, name, password string) (*auth.LoginResult, error)
	loginFn          func(ctx context.Context, email, password string) (*auth.LoginResult, error)
	logoutFn         func(ctx context.Context, token string) error
	changePasswordFn func(ctx context.Context, userID, current, next string) error

	logoutTokens []string
}

func (m *mockAuthService) Register(ctx context.Context, email, name, password string) (*auth.LoginResult, error) {
	if m.registerFn != nil {
		return m.registerFn(ctx, email, name, password)
	}
	return &auth.LoginResult{
		User:  &types.User{ID: "user-1", Email: email, Plan: types.PlanBasic},
		Token: "sess-token",
	}, nil
}

func (m *mockAuthService) Login(ctx context.Context, email, password string) (*auth.LoginResult, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, email, password)
	}
	return &auth.LoginResult{
		User:  &types.User{ID: "user-1", Email: email, Plan: types.PlanBasic},
		Token: "sess-token",
	}, nil
}

func (m *mockAuthService) Logout(ctx context.Context, token string) error {
	m.logoutTokens = append(m.logoutTokens, token)
	if m.logoutFn != nil {
		return m.logoutFn(ctx, token)
	}
	return nil
}

func (m *mockAuthService) ChangePassword(ctx context.Context, userID, current, next string) error {
	if m.changePasswordFn != nil {
		return m.changePasswordFn(ctx, userID, current, next)
	}
	return nil
}

func newAuthHandler(svc *mockAuthService) *AuthHandler {
	return NewAuthHandler(svc, testValidator(), testLogger())
}

func TestRegister_CreatesAccountAndSession(t *testing.T) {
	h := newAuthHandler(&mockAuthService{})

	rec := serveAs(t, h.RegisterPublicRoutes, nil, http.MethodPost, "/auth/register", RegisterRequest{
		Email:    "jo@example.com",
		Password: "a-long-enough-password",
	})

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp sessionResponse
	dataField(t, rec, &resp)
	assert.Equal(t, "sess-token", resp.Token)
	assert.Equal(t, "jo@example.com", resp.User.Email)
}

func TestRegister_InvalidEmailRejected(t *testing.T) {
	called := false
	h := newAuthHandler(&mockAuthService{
		registerFn: func(ctx context.Context, email, name, password string) (*auth.LoginResult, error) {
			called = true
			return nil, nil
		},
	})

	rec := serveAs(t, h.RegisterPublicRoutes, nil, http.MethodPost, "/auth/register", RegisterRequest{
		Email:    "not-an-email",
		Password: "a-long-enough-password",
	})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(types.ErrCodeValidationInvalidEmail), errorCode(t, rec))
	assert.False(t, called, "service reached with invalid input")
}

func TestRegister_ShortPasswordRejected(t *testing.T) {
	h := newAuthHandler(&mockAuthService{})

	rec := serveAs(t, h.RegisterPublicRoutes, nil, http.MethodPost, "/auth/register", RegisterRequest{
		Email:    "jo@example.com",
		Password: "short",
	})

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	h := newAuthHandler(&mockAuthService{
		loginFn: func(ctx context.Context, email, password string) (*auth.LoginResult, error) {
			return nil, types.NewAppError(types.ErrCodeAuthInvalidCreds, "invalid email or password", nil)
		},
	})

	rec := serveAs(t, h.RegisterPublicRoutes, nil, http.MethodPost, "/auth/login", LoginRequest{
		Email:    "jo@example.com",
		Password: "wrong-password",
	})

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, string(types.ErrCodeAuthInvalidCreds), errorCode(t, rec))
}

func TestLogout_RevokesPresentedToken(t *testing.T) {
	svc := &mockAuthService{}
	h := newAuthHandler(svc)

	req := newAuthedRequest(http.MethodPost, "/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer sess-token-xyz")
	rec := record(h.Logout, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, svc.logoutTokens, 1)
	assert.Equal(t, "sess-token-xyz", svc.logoutTokens[0])
}

func TestLogout_MissingToken(t *testing.T) {
	h := newAuthHandler(&mockAuthService{})

	rec := record(h.Logout, newAuthedRequest(http.MethodPost, "/auth/logout", nil))

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, string(types.ErrCodeAuthTokenMissing), errorCode(t, rec))
}

func TestChangePassword_UsesActorIdentity(t *testing.T) {
	var gotUserID string
	h := newAuthHandler(&mockAuthService{
		changePasswordFn: func(ctx context.Context, userID, current, next string) error {
			gotUserID = userID
			return nil
		},
	})

	actor := testActor()
	rec := serveAs(t, h.RegisterRoutes, &actor, http.MethodPost, "/auth/password", ChangePasswordRequest{
		CurrentPassword: "old-password-123",
		NewPassword:     "new-password-456",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-1", gotUserID)
}

func TestChangePassword_WrongCurrentPassword(t *testing.T) {
	h := newAuthHandler(&mockAuthService{
		changePasswordFn: func(ctx context.Context, userID, current, next string) error {
			return types.NewAppError(types.ErrCodeAuthInvalidCreds, "invalid email or password", nil)
		},
	})

	actor := testActor()
	rec := serveAs(t, h.RegisterRoutes, &actor, http.MethodPost, "/auth/password", ChangePasswordRequest{
		CurrentPassword: "wrong",
		NewPassword:     "new-password-456",
	})

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}
