package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-outpass-api/internal/dto"
	"github.com/noah-isme/campus-outpass-api/internal/models"
	"github.com/noah-isme/campus-outpass-api/internal/repository"
	appErrors "github.com/noah-isme/campus-outpass-api/pkg/errors"
	"github.com/noah-isme/campus-outpass-api/pkg/token"
)

// outingRepoStub mirrors the conditional-write semantics of the SQL layer:
// every transition checks its guard and reports sql.ErrNoRows on a miss.
type outingRepoStub struct {
	outings     map[string]*models.OutingRequest
	now         time.Time
	expireCalls int
}

func newOutingRepoStub() *outingRepoStub {
	return &outingRepoStub{
		outings: make(map[string]*models.OutingRequest),
		now:     time.Now().UTC(),
	}
}

func (r *outingRepoStub) Create(ctx context.Context, outing *models.OutingRequest) error {
	for _, existing := range r.outings {
		if existing.StudentID == outing.StudentID && !existing.Status.Terminal() {
			return sql.ErrNoRows
		}
	}
	outing.ID = uuid.NewString()
	outing.Status = models.OutingStatusRequested
	outing.GuardianApprovalStatus = models.ApprovalPending
	outing.FacultyApprovalStatus = models.ApprovalPending
	copy := *outing
	r.outings[outing.ID] = &copy
	return nil
}

func (r *outingRepoStub) GetByID(ctx context.Context, id string) (*models.OutingRequest, error) {
	if outing, ok := r.outings[id]; ok {
		copy := *outing
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (r *outingRepoStub) FindByToken(ctx context.Context, tok string) (*models.OutingRequest, error) {
	for _, outing := range r.outings {
		if outing.GuardianApprovalToken != nil && *outing.GuardianApprovalToken == tok {
			copy := *outing
			return &copy, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r *outingRepoStub) FindByCredential(ctx context.Context, qrData string) (*models.OutingRequest, error) {
	for _, outing := range r.outings {
		if outing.QRData != nil && *outing.QRData == qrData {
			copy := *outing
			return &copy, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r *outingRepoStub) FindActiveForStudent(ctx context.Context, studentID string) (*models.OutingRequest, error) {
	for _, outing := range r.outings {
		if outing.StudentID == studentID && !outing.Status.Terminal() {
			copy := *outing
			return &copy, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r *outingRepoStub) List(ctx context.Context, filter models.OutingFilter) ([]models.OutingRequest, error) {
	result := make([]models.OutingRequest, 0, len(r.outings))
	for _, outing := range r.outings {
		if filter.StudentID != "" && outing.StudentID != filter.StudentID {
			continue
		}
		if len(filter.Statuses) > 0 {
			matched := false
			for _, status := range filter.Statuses {
				if outing.Status == status {
					matched = true
					break
				}
			}
			if !matched {
				continue
			}
		}
		result = append(result, *outing)
	}
	return result, nil
}

func (r *outingRepoStub) DeletePending(ctx context.Context, id, studentID string) error {
	outing, ok := r.outings[id]
	if !ok || outing.StudentID != studentID || outing.GuardianApprovalStatus != models.ApprovalPending {
		return sql.ErrNoRows
	}
	delete(r.outings, id)
	return nil
}

func (r *outingRepoStub) ApplyGuardianDecision(ctx context.Context, params repository.GuardianDecisionParams) error {
	outing, ok := r.outings[params.RequestID]
	if !ok ||
		outing.GuardianApprovalStatus != models.ApprovalPending ||
		outing.GuardianApprovalToken == nil || *outing.GuardianApprovalToken != params.Token ||
		(outing.GuardianApprovalExpiresAt != nil && params.DecidedAt.After(*outing.GuardianApprovalExpiresAt)) {
		return sql.ErrNoRows
	}
	decidedAt := params.DecidedAt
	if params.Approve {
		outing.GuardianApprovalStatus = models.ApprovalApproved
		outing.Status = models.OutingStatusGuardianApproved
	} else {
		outing.GuardianApprovalStatus = models.ApprovalRejected
		outing.Status = models.OutingStatusRejected
	}
	outing.GuardianApprovedAt = &decidedAt
	outing.GuardianApprovalToken = nil
	outing.GuardianApprovalLink = nil
	return nil
}

func (r *outingRepoStub) ApplyFacultyDecision(ctx context.Context, params repository.FacultyDecisionParams) error {
	outing, ok := r.outings[params.RequestID]
	if !ok ||
		outing.Status != models.OutingStatusGuardianApproved ||
		outing.FacultyApprovalStatus != models.ApprovalPending {
		return sql.ErrNoRows
	}
	decidedAt := params.DecidedAt
	if params.Approve {
		outing.FacultyApprovalStatus = models.ApprovalApproved
		outing.Status = models.OutingStatusQRGenerated
		qr := params.QRData
		outing.QRData = &qr
	} else {
		outing.FacultyApprovalStatus = models.ApprovalRejected
		outing.Status = models.OutingStatusRejected
	}
	outing.ApprovedAt = &decidedAt
	return nil
}

func (r *outingRepoStub) RecordExitScan(ctx context.Context, id string, at time.Time) error {
	outing, ok := r.outings[id]
	if !ok || !outing.Authorized() || outing.ExitScanAt != nil {
		return sql.ErrNoRows
	}
	scanAt := at
	outing.ExitScanAt = &scanAt
	outing.Status = models.OutingStatusExited
	return nil
}

func (r *outingRepoStub) RecordEntryScan(ctx context.Context, id string, at time.Time) error {
	outing, ok := r.outings[id]
	if !ok || outing.Status != models.OutingStatusExited || outing.ExitScanAt == nil || outing.EntryScanAt != nil {
		return sql.ErrNoRows
	}
	scanAt := at
	outing.EntryScanAt = &scanAt
	outing.Status = models.OutingStatusReEntered
	outing.QRData = nil
	return nil
}

func (r *outingRepoStub) ExpireStaleTokens(ctx context.Context, now time.Time) (int64, error) {
	r.expireCalls++
	var swept int64
	for _, outing := range r.outings {
		if outing.GuardianApprovalToken != nil && outing.GuardianApprovalExpiresAt != nil && now.After(*outing.GuardianApprovalExpiresAt) {
			outing.GuardianApprovalToken = nil
			outing.GuardianApprovalLink = nil
			swept++
		}
	}
	return swept, nil
}

type auditStub struct {
	logs []*models.AuditLog
}

func (a *auditStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

type streamStub struct {
	events []models.OutingEvent
}

func (s *streamStub) Publish(ctx context.Context, event models.OutingEvent) {
	s.events = append(s.events, event)
}

func studentClaims(id, name string) *models.JWTClaims {
	return &models.JWTClaims{UserID: id, Role: models.RoleStudent, FullName: name}
}

func staffClaims(id string, role models.UserRole) *models.JWTClaims {
	return &models.JWTClaims{UserID: id, Role: role, FullName: "Staff Member"}
}

func validCreateRequest() dto.CreateOutingRequest {
	return dto.CreateOutingRequest{
		DepartureDate: "2026-09-01",
		DepartureTime: "09:00",
		ArrivalDate:   "2026-09-01",
		ArrivalTime:   "18:00",
		FullReason:    "Visiting family for the weekend religious festival at home",
		Guardians: []models.Guardian{
			{ID: "g-1", Name: "Asha Rao", Relation: "mother", Phone: "+91-98000-00001"},
			{ID: "g-2", Name: "Vikram Rao", Relation: "father", Phone: "+91-98000-00002"},
		},
		SelectedGuardianID: "g-1",
	}
}

func newOutingService(repo *outingRepoStub, audit *auditStub, stream *streamStub) *OutingService {
	return NewOutingService(repo, audit, stream, nil, token.NewIssuer(48*time.Hour), nil, nil, nil, OutingServiceConfig{
		PublicBaseURL: "https://outpass.example.edu",
	})
}

func TestOutingServiceCreate(t *testing.T) {
	repo := newOutingRepoStub()
	audit := &auditStub{}
	stream := &streamStub{}
	svc := newOutingService(repo, audit, stream)

	outing, err := svc.Create(context.Background(), validCreateRequest(), studentClaims("student-1", "Meera Rao"))
	require.NoError(t, err)
	require.Equal(t, models.OutingStatusRequested, outing.Status)
	require.Equal(t, models.ApprovalPending, outing.GuardianApprovalStatus)
	require.Equal(t, models.ApprovalPending, outing.FacultyApprovalStatus)
	require.NotNil(t, outing.GuardianApprovalToken)
	require.NotNil(t, outing.GuardianApprovalLink)
	require.Contains(t, *outing.GuardianApprovalLink, "https://outpass.example.edu/guardian/approve/")
	require.NotNil(t, outing.GuardianApprovalExpiresAt)
	require.Equal(t, "g-1", outing.SelectedGuardian.ID)
	require.NotEmpty(t, outing.SummarizedReason)
	require.Len(t, audit.logs, 1)
	require.Len(t, stream.events, 1)
	require.Equal(t, models.OutingEventCreated, stream.events[0].Event)
}

func TestOutingServiceCreateRejectsSecondActive(t *testing.T) {
	repo := newOutingRepoStub()
	svc := newOutingService(repo, &auditStub{}, &streamStub{})
	actor := studentClaims("student-1", "Meera Rao")

	_, err := svc.Create(context.Background(), validCreateRequest(), actor)
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), validCreateRequest(), actor)
	require.Error(t, err)
	require.Equal(t, appErrors.ErrActiveRequestExists.Code, appErrors.FromError(err).Code)
}

func TestOutingServiceCreateRequiresStudentRole(t *testing.T) {
	svc := newOutingService(newOutingRepoStub(), &auditStub{}, &streamStub{})

	_, err := svc.Create(context.Background(), validCreateRequest(), staffClaims("warden-1", models.RoleWarden))
	require.Error(t, err)
	require.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestOutingServiceCreateRejectsUnknownGuardian(t *testing.T) {
	svc := newOutingService(newOutingRepoStub(), &auditStub{}, &streamStub{})

	req := validCreateRequest()
	req.SelectedGuardianID = "g-99"
	_, err := svc.Create(context.Background(), req, studentClaims("student-1", "Meera Rao"))
	require.Error(t, err)
	require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestOutingServiceCancelWhileGuardianPending(t *testing.T) {
	repo := newOutingRepoStub()
	stream := &streamStub{}
	svc := newOutingService(repo, &auditStub{}, stream)
	actor := studentClaims("student-1", "Meera Rao")

	outing, err := svc.Create(context.Background(), validCreateRequest(), actor)
	require.NoError(t, err)

	require.NoError(t, svc.Cancel(context.Background(), outing.ID, actor))
	_, err = repo.GetByID(context.Background(), outing.ID)
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.Equal(t, models.OutingEventCancelled, stream.events[len(stream.events)-1].Event)
}

func TestOutingServiceCancelAfterGuardianDecision(t *testing.T) {
	repo := newOutingRepoStub()
	svc := newOutingService(repo, &auditStub{}, &streamStub{})
	actor := studentClaims("student-1", "Meera Rao")

	outing, err := svc.Create(context.Background(), validCreateRequest(), actor)
	require.NoError(t, err)

	stored := repo.outings[outing.ID]
	require.NoError(t, repo.ApplyGuardianDecision(context.Background(), repository.GuardianDecisionParams{
		RequestID: outing.ID,
		Token:     *stored.GuardianApprovalToken,
		Approve:   true,
		DecidedAt: time.Now().UTC(),
	}))

	err = svc.Cancel(context.Background(), outing.ID, actor)
	require.Error(t, err)
	require.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
}

func TestOutingServiceCancelOtherStudentForbidden(t *testing.T) {
	repo := newOutingRepoStub()
	svc := newOutingService(repo, &auditStub{}, &streamStub{})

	outing, err := svc.Create(context.Background(), validCreateRequest(), studentClaims("student-1", "Meera Rao"))
	require.NoError(t, err)

	err = svc.Cancel(context.Background(), outing.ID, studentClaims("student-2", "Arun Iyer"))
	require.Error(t, err)
	require.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestOutingServiceGetScopesStudents(t *testing.T) {
	repo := newOutingRepoStub()
	svc := newOutingService(repo, &auditStub{}, &streamStub{})

	outing, err := svc.Create(context.Background(), validCreateRequest(), studentClaims("student-1", "Meera Rao"))
	require.NoError(t, err)

	_, err = svc.Get(context.Background(), outing.ID, studentClaims("student-2", "Arun Iyer"))
	require.Error(t, err)
	require.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	got, err := svc.Get(context.Background(), outing.ID, staffClaims("faculty-1", models.RoleFaculty))
	require.NoError(t, err)
	require.Equal(t, outing.ID, got.ID)
}

func TestOutingServiceListScopesStudents(t *testing.T) {
	repo := newOutingRepoStub()
	svc := newOutingService(repo, &auditStub{}, &streamStub{})

	_, err := svc.Create(context.Background(), validCreateRequest(), studentClaims("student-1", "Meera Rao"))
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), validCreateRequest(), studentClaims("student-2", "Arun Iyer"))
	require.NoError(t, err)

	own, err := svc.List(context.Background(), dto.OutingQuery{}, studentClaims("student-1", "Meera Rao"))
	require.NoError(t, err)
	require.Len(t, own, 1)
	require.Equal(t, "student-1", own[0].StudentID)

	all, err := svc.List(context.Background(), dto.OutingQuery{}, staffClaims("warden-1", models.RoleWarden))
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestOutingServiceActiveDashboardStaffOnly(t *testing.T) {
	svc := newOutingService(newOutingRepoStub(), &auditStub{}, &streamStub{})

	_, err := svc.ActiveDashboard(context.Background(), studentClaims("student-1", "Meera Rao"))
	require.Error(t, err)
	require.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestOutingServiceActiveForStudent(t *testing.T) {
	repo := newOutingRepoStub()
	svc := newOutingService(repo, &auditStub{}, &streamStub{})
	actor := studentClaims("student-1", "Meera Rao")

	active, err := svc.ActiveForStudent(context.Background(), actor)
	require.NoError(t, err)
	require.Nil(t, active)

	created, err := svc.Create(context.Background(), validCreateRequest(), actor)
	require.NoError(t, err)

	active, err = svc.ActiveForStudent(context.Background(), actor)
	require.NoError(t, err)
	require.NotNil(t, active)
	require.Equal(t, created.ID, active.ID)
}
