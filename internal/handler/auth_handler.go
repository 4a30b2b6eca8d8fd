package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	appErrors "github.com/noah-isme/bibleschool-api/pkg/errors"
	"github.com/noah-isme/bibleschool-api/pkg/response"
)

// AuthHandler exposes the caller identity resolved from the bearer token.
type AuthHandler struct{}

// NewAuthHandler creates a new handler.
func NewAuthHandler() *AuthHandler {
	return &AuthHandler{}
}

// Me godoc
// @Summary Current caller
// @Description Returns the authenticated caller and the privilege resolved for the training workflow
// @Tags Authentication
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	caller := callerFromContext(c)
	if caller == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	response.JSON(c, http.StatusOK, caller)
}
