package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/bibleschool-api/internal/models"
	appErrors "github.com/noah-isme/bibleschool-api/pkg/errors"
	"github.com/noah-isme/bibleschool-api/pkg/response"
)

// RequirePrivilege rejects callers below min.
func RequirePrivilege(min models.Privilege) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := CallerFromContext(c)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if !caller.Privilege.AtLeast(min) {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "requires "+min.String()+" privilege"))
			c.Abort()
			return
		}
		c.Next()
	}
}
