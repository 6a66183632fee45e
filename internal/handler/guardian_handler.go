package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-outpass-api/internal/dto"
	appErrors "github.com/noah-isme/campus-outpass-api/pkg/errors"
	"github.com/noah-isme/campus-outpass-api/pkg/response"
)

type guardianGateway interface {
	Resolve(ctx context.Context, token string) (*dto.GuardianOutingView, error)
	Decide(ctx context.Context, token string, approve bool) error
}

// GuardianHandler serves the unauthenticated guardian approval surface.
// Possession of the link token is the only credential on these routes.
type GuardianHandler struct {
	service guardianGateway
}

// NewGuardianHandler constructs the handler.
func NewGuardianHandler(service guardianGateway) *GuardianHandler {
	return &GuardianHandler{service: service}
}

// Resolve godoc
// @Summary Resolve a guardian approval link
// @Tags Guardian
// @Produce json
// @Param token path string true "Approval token"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /guardian/approve/{token} [get]
func (h *GuardianHandler) Resolve(c *gin.Context) {
	view, err := h.service.Resolve(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// Decide godoc
// @Summary Record the guardian's decision
// @Tags Guardian
// @Accept json
// @Produce json
// @Param token path string true "Approval token"
// @Param payload body dto.GuardianDecisionRequest true "Decision payload"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /guardian/approve/{token} [post]
func (h *GuardianHandler) Decide(c *gin.Context) {
	var req dto.GuardianDecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid decision payload"))
		return
	}
	if err := h.service.Decide(c.Request.Context(), c.Param("token"), req.Action == "approve"); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
