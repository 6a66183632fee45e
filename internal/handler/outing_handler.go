package handler

import (
	"bytes"
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	qrcode "github.com/yeqown/go-qrcode"

	"github.com/noah-isme/campus-outpass-api/internal/dto"
	"github.com/noah-isme/campus-outpass-api/internal/models"
	appErrors "github.com/noah-isme/campus-outpass-api/pkg/errors"
	"github.com/noah-isme/campus-outpass-api/pkg/export"
	"github.com/noah-isme/campus-outpass-api/pkg/response"
)

type outingService interface {
	Create(ctx context.Context, req dto.CreateOutingRequest, actor *models.JWTClaims) (*models.OutingRequest, error)
	Cancel(ctx context.Context, id string, actor *models.JWTClaims) error
	Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.OutingRequest, error)
	List(ctx context.Context, query dto.OutingQuery, actor *models.JWTClaims) ([]models.OutingRequest, error)
	ActiveDashboard(ctx context.Context, actor *models.JWTClaims) ([]models.OutingRequest, error)
	ActiveForStudent(ctx context.Context, actor *models.JWTClaims) (*models.OutingRequest, error)
}

// OutingHandler exposes REST endpoints for the outing request workflow.
type OutingHandler struct {
	service  outingService
	renderer *export.PassRenderer
}

// NewOutingHandler constructs the handler.
func NewOutingHandler(service outingService, renderer *export.PassRenderer) *OutingHandler {
	if renderer == nil {
		renderer = export.NewPassRenderer()
	}
	return &OutingHandler{service: service, renderer: renderer}
}

// Create godoc
// @Summary Submit an outing request
// @Tags Outings
// @Accept json
// @Produce json
// @Param payload body dto.CreateOutingRequest true "Outing payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /outings [post]
func (h *OutingHandler) Create(c *gin.Context) {
	var req dto.CreateOutingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid outing payload"))
		return
	}
	outing, err := h.service.Create(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, outing, nil)
}

// List godoc
// @Summary List outing requests
// @Tags Outings
// @Produce json
// @Param status query string false "Comma separated statuses"
// @Param studentId query string false "Student id (staff only)"
// @Param limit query int false "Page size"
// @Param offset query int false "Page offset"
// @Success 200 {object} response.Envelope
// @Router /outings [get]
func (h *OutingHandler) List(c *gin.Context) {
	query := dto.OutingQuery{
		StudentID: strings.TrimSpace(c.Query("studentId")),
	}
	if raw := c.Query("status"); raw != "" {
		parts := strings.Split(raw, ",")
		statuses := make([]models.OutingStatus, 0, len(parts))
		for _, part := range parts {
			part = strings.ToLower(strings.TrimSpace(part))
			if part == "" {
				continue
			}
			statuses = append(statuses, models.OutingStatus(part))
		}
		query.Statuses = statuses
	}
	if raw := c.Query("limit"); raw != "" {
		if limit, err := strconv.Atoi(raw); err == nil {
			query.Limit = limit
		}
	}
	if raw := c.Query("offset"); raw != "" {
		if offset, err := strconv.Atoi(raw); err == nil {
			query.Offset = offset
		}
	}

	outings, err := h.service.List(c.Request.Context(), query, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, outings, nil)
}

// Get godoc
// @Summary Get outing request detail
// @Tags Outings
// @Produce json
// @Param id path string true "Request id"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /outings/{id} [get]
func (h *OutingHandler) Get(c *gin.Context) {
	outing, err := h.service.Get(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, outing, nil)
}

// Cancel godoc
// @Summary Cancel an outing request awaiting guardian consent
// @Tags Outings
// @Param id path string true "Request id"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /outings/{id} [delete]
func (h *OutingHandler) Cancel(c *gin.Context) {
	if err := h.service.Cancel(c.Request.Context(), c.Param("id"), claimsFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Active godoc
// @Summary The caller's open outing request
// @Tags Outings
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /outings/active [get]
func (h *OutingHandler) Active(c *gin.Context) {
	outing, err := h.service.ActiveForStudent(c.Request.Context(), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, outing, nil)
}

// Dashboard godoc
// @Summary Staff dashboard of all open requests
// @Tags Outings
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /outings/dashboard [get]
func (h *OutingHandler) Dashboard(c *gin.Context) {
	outings, err := h.service.ActiveDashboard(c.Request.Context(), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, outings, nil)
}

// QRImage godoc
// @Summary Render the gate credential as a QR image
// @Tags Outings
// @Produce png
// @Param id path string true "Request id"
// @Success 200 {file} binary
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /outings/{id}/qr.png [get]
func (h *OutingHandler) QRImage(c *gin.Context) {
	outing, err := h.service.Get(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	if outing.QRData == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInvalidTransition, "no live credential on this request"))
		return
	}

	qrc, err := qrcode.New(*outing.QRData, qrcode.WithBuiltinImageEncoder(qrcode.PNG_FORMAT))
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode credential"))
		return
	}
	var buf bytes.Buffer
	if err := qrc.SaveTo(&buf); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render credential"))
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", buf.Bytes())
}

// PassPDF godoc
// @Summary Download the printable gate pass
// @Tags Outings
// @Produce application/pdf
// @Param id path string true "Request id"
// @Success 200 {file} binary
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /outings/{id}/pass.pdf [get]
func (h *OutingHandler) PassPDF(c *gin.Context) {
	outing, err := h.service.Get(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	if outing.QRData == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInvalidTransition, "no live credential on this request"))
		return
	}

	approvedAt := ""
	if outing.ApprovedAt != nil {
		approvedAt = outing.ApprovedAt.Format("2006-01-02 15:04 MST")
	}
	pdf, err := h.renderer.Render(export.GatePass{
		RequestID:     outing.ID,
		StudentName:   outing.StudentName,
		GuardianName:  outing.SelectedGuardian.Name,
		DepartureDate: outing.DepartureDate,
		DepartureTime: outing.DepartureTime,
		ArrivalDate:   outing.ArrivalDate,
		ArrivalTime:   outing.ArrivalTime,
		Reason:        outing.SummarizedReason,
		ApprovedAt:    approvedAt,
		Credential:    *outing.QRData,
	})
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render gate pass"))
		return
	}
	c.Header("Content-Disposition", `attachment; filename="gate-pass-`+outing.ID+`.pdf"`)
	c.Data(http.StatusOK, "application/pdf", pdf)
}
