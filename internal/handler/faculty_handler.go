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

type facultyDecider interface {
	Decide(ctx context.Context, requestID string, approve bool, actor *models.JWTClaims) (*models.OutingRequest, error)
}

// FacultyHandler exposes the staff authorization endpoint.
type FacultyHandler struct {
	service facultyDecider
}

// NewFacultyHandler constructs the handler.
func NewFacultyHandler(service facultyDecider) *FacultyHandler {
	return &FacultyHandler{service: service}
}

// Decide godoc
// @Summary Record the faculty decision on a guardian-approved request
// @Tags Faculty
// @Accept json
// @Produce json
// @Param id path string true "Request id"
// @Param payload body dto.FacultyDecisionRequest true "Decision payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /outings/{id}/decision [post]
func (h *FacultyHandler) Decide(c *gin.Context) {
	var req dto.FacultyDecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid decision payload"))
		return
	}
	outing, err := h.service.Decide(c.Request.Context(), c.Param("id"), req.Action == "approve", claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, outing, nil)
}
