package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-outpass-api/internal/dto"
	"github.com/noah-isme/campus-outpass-api/internal/models"
	appErrors "github.com/noah-isme/campus-outpass-api/pkg/errors"
	"github.com/noah-isme/campus-outpass-api/pkg/response"
)

type scanRecorder interface {
	Record(ctx context.Context, req dto.ScanRequest, actor *models.JWTClaims) (*models.OutingRequest, error)
}

// ScanHandler exposes the gate scanning endpoint.
type ScanHandler struct {
	service scanRecorder
}

// NewScanHandler constructs the handler.
func NewScanHandler(service scanRecorder) *ScanHandler {
	return &ScanHandler{service: service}
}

// Record godoc
// @Summary Record a gate scan
// @Tags Gate
// @Accept json
// @Produce json
// @Param payload body dto.ScanRequest true "Scan payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /gate/scans [post]
func (h *ScanHandler) Record(c *gin.Context) {
	var req dto.ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid scan payload"))
		return
	}
	outing, err := h.service.Record(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, outing, nil)
}
