package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/bibleschool-api/internal/middleware"
	"github.com/noah-isme/bibleschool-api/internal/models"
)

func callerFromContext(c *gin.Context) *models.Caller {
	caller, ok := middleware.CallerFromContext(c)
	if !ok {
		return nil
	}
	return caller
}
