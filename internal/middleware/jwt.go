package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/bibleschool-api/internal/models"
	appErrors "github.com/noah-isme/bibleschool-api/pkg/errors"
	"github.com/noah-isme/bibleschool-api/pkg/response"
)

// ContextUserKey is the gin context key storing the authenticated caller.
const ContextUserKey = "currentUser"

type authenticator interface {
	Authenticate(ctx context.Context, token string) (*models.Caller, error)
}

// JWT requires a valid bearer token and attaches the caller with its resolved privilege.
func JWT(auth authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid authorization header"))
			c.Abort()
			return
		}

		caller, err := auth.Authenticate(c.Request.Context(), strings.TrimSpace(parts[1]))
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		c.Set(ContextUserKey, caller)
		c.Next()
	}
}

// CallerFromContext returns the caller attached by JWT.
func CallerFromContext(c *gin.Context) (*models.Caller, bool) {
	value, exists := c.Get(ContextUserKey)
	if !exists {
		return nil, false
	}
	caller, ok := value.(*models.Caller)
	return caller, ok && caller != nil
}
