package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/bibleschool-api/internal/models"
	"github.com/noah-isme/bibleschool-api/internal/service"
	appErrors "github.com/noah-isme/bibleschool-api/pkg/errors"
	"github.com/noah-isme/bibleschool-api/pkg/response"
)

type programLister interface {
	List(ctx context.Context) ([]models.Program, error)
}

// ProgramHandler exposes the training program catalogue.
type ProgramHandler struct {
	programs programLister
	ladder   service.LevelLadder
}

// NewProgramHandler constructs the handler.
func NewProgramHandler(programs programLister, ladder service.LevelLadder) *ProgramHandler {
	return &ProgramHandler{programs: programs, ladder: ladder}
}

// List godoc
// @Summary List training programs
// @Description Programs ordered by level; meta.promotion_ladder is the order the promotion rules enforce
// @Tags Programs
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /programs [get]
func (h *ProgramHandler) List(c *gin.Context) {
	programs, err := h.programs.List(c.Request.Context())
	if err != nil {
		response.Error(c, appErrors.Internal(err, "failed to list programs"))
		return
	}
	response.JSON(c, http.StatusOK, programs, map[string]interface{}{
		"promotion_ladder": h.ladder.Names(),
	})
}
