package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/noah-isme/bibleschool-api/internal/models"
	appErrors "github.com/noah-isme/bibleschool-api/pkg/errors"
)

// AuthConfig defines how portal access tokens are verified.
type AuthConfig struct {
	AccessTokenSecret string
	AccessTokenExpiry time.Duration
	Issuer            string
}

// PrivilegeResolver maps an authenticated identity to its workflow privilege.
type PrivilegeResolver interface {
	ResolvePrivilege(ctx context.Context, claims *models.JWTClaims) (models.Privilege, error)
}

// AuthService verifies access tokens issued by the church portal and resolves caller privilege.
type AuthService struct {
	resolver PrivilegeResolver
	logger   *zap.Logger
	config   AuthConfig
	now      func() time.Time
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(resolver PrivilegeResolver, logger *zap.Logger, config AuthConfig) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if resolver == nil {
		resolver = NewRolePrivilegeResolver(nil)
	}
	if config.AccessTokenExpiry <= 0 {
		config.AccessTokenExpiry = 24 * time.Hour
	}
	return &AuthService{resolver: resolver, logger: logger, config: config, now: time.Now}
}

// ValidateToken parses and validates a JWT access token.
func (s *AuthService) ValidateToken(tokenString string) (*models.JWTClaims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if s.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.config.Issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.AccessTokenSecret), nil
	}, opts...)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}
	if claims.UserID == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "token subject missing")
	}

	return claims, nil
}

// Authenticate validates the token and resolves the caller's privilege before any workflow rule runs.
func (s *AuthService) Authenticate(ctx context.Context, tokenString string) (*models.Caller, error) {
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	privilege, err := s.resolver.ResolvePrivilege(ctx, claims)
	if err != nil {
		s.logger.Warn("failed to resolve caller privilege", zap.String("user_id", claims.UserID), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve privilege")
	}
	return &models.Caller{
		UserID:    claims.UserID,
		MemberID:  claims.MemberID,
		Role:      claims.Role,
		Privilege: privilege,
	}, nil
}

// IssueToken signs an access token. Production tokens come from the portal; this serves tooling and tests.
func (s *AuthService) IssueToken(userID, memberID string, role models.UserRole, fullName string) (string, time.Time, error) {
	issuedAt := s.now().UTC()
	expiresAt := issuedAt.Add(s.config.AccessTokenExpiry)
	claims := &models.JWTClaims{
		UserID:   userID,
		MemberID: memberID,
		Role:     role,
		FullName: fullName,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.config.AccessTokenSecret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// RolePrivilegeResolver derives privilege from the portal role in the token.
type RolePrivilegeResolver struct {
	levels map[models.UserRole]models.Privilege
}

// DefaultRolePrivileges maps portal roles onto workflow privileges.
func DefaultRolePrivileges() map[models.UserRole]models.Privilege {
	return map[models.UserRole]models.Privilege{
		models.RoleSuperAdmin: models.PrivilegeHighest,
		models.RoleAdmin:      models.PrivilegeAdministrator,
		models.RoleInstructor: models.PrivilegeStandard,
		models.RoleMember:     models.PrivilegeNone,
	}
}

// RolePrivilegesFromConfig overlays configured "ROLE:privilege" entries on DefaultRolePrivileges.
func RolePrivilegesFromConfig(overrides map[string]string) (map[models.UserRole]models.Privilege, error) {
	levels := DefaultRolePrivileges()
	for role, raw := range overrides {
		p, err := models.ParsePrivilege(raw)
		if err != nil {
			return nil, fmt.Errorf("role %s: %w", role, err)
		}
		levels[models.UserRole(strings.ToUpper(strings.TrimSpace(role)))] = p
	}
	return levels, nil
}

// NewRolePrivilegeResolver builds a resolver; nil uses DefaultRolePrivileges.
func NewRolePrivilegeResolver(levels map[models.UserRole]models.Privilege) *RolePrivilegeResolver {
	if levels == nil {
		levels = DefaultRolePrivileges()
	}
	return &RolePrivilegeResolver{levels: levels}
}

// ResolvePrivilege returns the mapped privilege; unknown roles get none.
func (r *RolePrivilegeResolver) ResolvePrivilege(ctx context.Context, claims *models.JWTClaims) (models.Privilege, error) {
	if claims == nil {
		return models.PrivilegeNone, fmt.Errorf("claims required")
	}
	if p, ok := r.levels[claims.Role]; ok {
		return p, nil
	}
	return models.PrivilegeNone, nil
}
