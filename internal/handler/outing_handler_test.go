package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-outpass-api/internal/dto"
	"github.com/noah-isme/campus-outpass-api/internal/middleware"
	"github.com/noah-isme/campus-outpass-api/internal/models"
	appErrors "github.com/noah-isme/campus-outpass-api/pkg/errors"
)

type outingServiceMock struct {
	createResp *models.OutingRequest
	createErr  error
	cancelErr  error
	getResp    *models.OutingRequest
	getErr     error
	listResp   []models.OutingRequest
	listErr    error
	lastQuery  dto.OutingQuery

	createCalled bool
	cancelCalled bool
	listCalled   bool
}

func (m *outingServiceMock) Create(ctx context.Context, req dto.CreateOutingRequest, actor *models.JWTClaims) (*models.OutingRequest, error) {
	m.createCalled = true
	return m.createResp, m.createErr
}

func (m *outingServiceMock) Cancel(ctx context.Context, id string, actor *models.JWTClaims) error {
	m.cancelCalled = true
	return m.cancelErr
}

func (m *outingServiceMock) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.OutingRequest, error) {
	return m.getResp, m.getErr
}

func (m *outingServiceMock) List(ctx context.Context, query dto.OutingQuery, actor *models.JWTClaims) ([]models.OutingRequest, error) {
	m.listCalled = true
	m.lastQuery = query
	return m.listResp, m.listErr
}

func (m *outingServiceMock) ActiveDashboard(ctx context.Context, actor *models.JWTClaims) ([]models.OutingRequest, error) {
	return m.listResp, m.listErr
}

func (m *outingServiceMock) ActiveForStudent(ctx context.Context, actor *models.JWTClaims) (*models.OutingRequest, error) {
	return m.getResp, m.getErr
}

func studentCtx(c *gin.Context) {
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "student-1", Role: models.RoleStudent, FullName: "Meera Rao"})
}

func TestOutingHandlerCreate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &outingServiceMock{
		createResp: &models.OutingRequest{ID: "req-1", Status: models.OutingStatusRequested},
	}
	h := NewOutingHandler(mockSvc, nil)

	payload, _ := json.Marshal(dto.CreateOutingRequest{
		DepartureDate:      "2026-09-01",
		DepartureTime:      "09:00",
		ArrivalDate:        "2026-09-01",
		ArrivalTime:        "18:00",
		FullReason:         "family visit",
		Guardians:          []models.Guardian{{ID: "g-1", Name: "Asha Rao"}},
		SelectedGuardianID: "g-1",
	})
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/outings", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	studentCtx(c)

	h.Create(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.True(t, mockSvc.createCalled)
}

func TestOutingHandlerCreateInvalidBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewOutingHandler(&outingServiceMock{}, nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/outings", bytes.NewBufferString(`{"departureDate":`))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	studentCtx(c)

	h.Create(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOutingHandlerCreateConflict(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &outingServiceMock{createErr: appErrors.ErrActiveRequestExists}
	h := NewOutingHandler(mockSvc, nil)

	payload, _ := json.Marshal(dto.CreateOutingRequest{
		DepartureDate:      "2026-09-01",
		DepartureTime:      "09:00",
		ArrivalDate:        "2026-09-01",
		ArrivalTime:        "18:00",
		FullReason:         "family visit",
		Guardians:          []models.Guardian{{ID: "g-1", Name: "Asha Rao"}},
		SelectedGuardianID: "g-1",
	})
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/outings", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	studentCtx(c)

	h.Create(c)
	require.Equal(t, http.StatusConflict, w.Code)

	var envelope struct {
		Error *appErrors.Error `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.NotNil(t, envelope.Error)
	assert.Equal(t, appErrors.ErrActiveRequestExists.Code, envelope.Error.Code)
}

func TestOutingHandlerListParsesQuery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &outingServiceMock{listResp: []models.OutingRequest{{ID: "req-1"}}}
	h := NewOutingHandler(mockSvc, nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/outings?status=exited,qr_generated&studentId=student-9&limit=10", nil)
	c.Request = req
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "warden-1", Role: models.RoleWarden})

	h.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, mockSvc.listCalled)
	assert.Equal(t, "student-9", mockSvc.lastQuery.StudentID)
	assert.Equal(t, []models.OutingStatus{models.OutingStatusExited, models.OutingStatusQRGenerated}, mockSvc.lastQuery.Statuses)
	assert.Equal(t, 10, mockSvc.lastQuery.Limit)
}

func TestOutingHandlerCancel(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &outingServiceMock{}
	h := NewOutingHandler(mockSvc, nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodDelete, "/outings/req-1", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "req-1"}}
	studentCtx(c)

	h.Cancel(c)
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.True(t, mockSvc.cancelCalled)
}

func TestOutingHandlerQRImage(t *testing.T) {
	gin.SetMode(gin.TestMode)
	credential := "OUTING-req-1-ABCD2345"
	mockSvc := &outingServiceMock{
		getResp: &models.OutingRequest{ID: "req-1", Status: models.OutingStatusQRGenerated, QRData: &credential},
	}
	h := NewOutingHandler(mockSvc, nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/outings/req-1/qr.png", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "req-1"}}
	studentCtx(c)

	h.QRImage(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.NotEmpty(t, w.Body.Bytes())
}

func TestOutingHandlerQRImageWithoutCredential(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &outingServiceMock{
		getResp: &models.OutingRequest{ID: "req-1", Status: models.OutingStatusRequested},
	}
	h := NewOutingHandler(mockSvc, nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/outings/req-1/qr.png", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "req-1"}}
	studentCtx(c)

	h.QRImage(c)
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestOutingHandlerPassPDF(t *testing.T) {
	gin.SetMode(gin.TestMode)
	credential := "OUTING-req-1-ABCD2345"
	mockSvc := &outingServiceMock{
		getResp: &models.OutingRequest{
			ID:            "req-1",
			StudentName:   "Meera Rao",
			DepartureDate: "2026-09-01",
			DepartureTime: "09:00",
			ArrivalDate:   "2026-09-01",
			ArrivalTime:   "18:00",
			Status:        models.OutingStatusQRGenerated,
			QRData:        &credential,
		},
	}
	h := NewOutingHandler(mockSvc, nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/outings/req-1/pass.pdf", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "req-1"}}
	studentCtx(c)

	h.PassPDF(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF")))
}
