package handler

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/bibleschool-api/pkg/errors"
	"github.com/noah-isme/bibleschool-api/pkg/response"
)

type certificateOpener interface {
	OpenSigned(token string) (*os.File, string, error)
}

// CertificateHandler serves certificate PDFs behind signed links.
type CertificateHandler struct {
	store  certificateOpener
	logger *zap.Logger
}

// NewCertificateHandler constructs the handler.
func NewCertificateHandler(store certificateOpener, logger *zap.Logger) *CertificateHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CertificateHandler{store: store, logger: logger}
}

// Download godoc
// @Summary Download a graduation certificate via signed token
// @Tags Certificates
// @Produce application/pdf
// @Param token path string true "Signed token"
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /certificates/{token} [get]
func (h *CertificateHandler) Download(c *gin.Context) {
	token := strings.TrimSpace(c.Param("token"))
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}

	file, ref, err := h.store.OpenSigned(token)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "certificate not found"))
			return
		}
		h.logger.Debug("rejected certificate link", zap.Error(err))
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired certificate link"))
		return
	}
	defer file.Close() //nolint:errcheck

	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Internal(err, "failed to read certificate"))
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", path.Base(ref)))
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, info.Size(), "application/pdf", file, nil)
}
