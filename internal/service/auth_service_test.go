package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/bibleschool-api/internal/models"
	appErrors "github.com/noah-isme/bibleschool-api/pkg/errors"
)

func newTestAuthService(resolver PrivilegeResolver) *AuthService {
	return NewAuthService(resolver, nil, AuthConfig{AccessTokenSecret: "secret", AccessTokenExpiry: time.Hour, Issuer: "church-portal"})
}

func TestAuthServiceAuthenticateResolvesPrivilege(t *testing.T) {
	svc := newTestAuthService(nil)
	token, _, err := svc.IssueToken("user-1", "mem-1", models.RoleSuperAdmin, "Pastor John")
	require.NoError(t, err)

	caller, err := svc.Authenticate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", caller.UserID)
	assert.Equal(t, "mem-1", caller.MemberID)
	assert.Equal(t, models.PrivilegeHighest, caller.Privilege)
}

func TestAuthServiceValidateTokenRejectsWrongSecret(t *testing.T) {
	svc := newTestAuthService(nil)
	other := NewAuthService(nil, nil, AuthConfig{AccessTokenSecret: "other", Issuer: "church-portal"})
	token, _, err := other.IssueToken("user-1", "mem-1", models.RoleAdmin, "")
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceValidateTokenRejectsWrongIssuer(t *testing.T) {
	svc := newTestAuthService(nil)
	foreign := NewAuthService(nil, nil, AuthConfig{AccessTokenSecret: "secret", Issuer: "elsewhere"})
	token, _, err := foreign.IssueToken("user-1", "mem-1", models.RoleAdmin, "")
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.Error(t, err)
}

func TestAuthServiceValidateTokenRejectsExpired(t *testing.T) {
	svc := newTestAuthService(nil)
	svc.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, _, err := svc.IssueToken("user-1", "mem-1", models.RoleAdmin, "")
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.Error(t, err)
}

func TestAuthServiceValidateTokenRejectsOtherAlgorithms(t *testing.T) {
	svc := newTestAuthService(nil)
	claims := &models.JWTClaims{UserID: "user-1", RegisteredClaims: jwt.RegisteredClaims{Issuer: "church-portal"}}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = svc.ValidateToken(unsigned)
	assert.Error(t, err)
}

type failingResolver struct{}

func (failingResolver) ResolvePrivilege(ctx context.Context, claims *models.JWTClaims) (models.Privilege, error) {
	return models.PrivilegeNone, errors.New("directory unavailable")
}

func TestAuthServiceAuthenticateResolverFailure(t *testing.T) {
	svc := newTestAuthService(failingResolver{})
	token, _, err := svc.IssueToken("user-1", "mem-1", models.RoleAdmin, "")
	require.NoError(t, err)

	_, err = svc.Authenticate(context.Background(), token)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
}

func TestRolePrivilegeResolver(t *testing.T) {
	resolver := NewRolePrivilegeResolver(nil)
	cases := map[models.UserRole]models.Privilege{
		models.RoleSuperAdmin: models.PrivilegeHighest,
		models.RoleAdmin:      models.PrivilegeAdministrator,
		models.RoleInstructor: models.PrivilegeStandard,
		models.RoleMember:     models.PrivilegeNone,
		"GUEST":               models.PrivilegeNone,
	}
	for role, want := range cases {
		got, err := resolver.ResolvePrivilege(context.Background(), &models.JWTClaims{Role: role})
		require.NoError(t, err)
		assert.Equal(t, want, got, string(role))
	}
}

func TestRolePrivilegesFromConfig(t *testing.T) {
	levels, err := RolePrivilegesFromConfig(map[string]string{"instructor": "Administrator", "USHER": "standard"})
	require.NoError(t, err)
	assert.Equal(t, models.PrivilegeAdministrator, levels[models.RoleInstructor])
	assert.Equal(t, models.PrivilegeStandard, levels["USHER"])
	assert.Equal(t, models.PrivilegeHighest, levels[models.RoleSuperAdmin])

	_, err = RolePrivilegesFromConfig(map[string]string{"ADMIN": "bishop"})
	assert.Error(t, err)
}
