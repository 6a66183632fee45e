package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/campus-outpass-api/internal/models"
	"github.com/noah-isme/campus-outpass-api/internal/repository"
	appErrors "github.com/noah-isme/campus-outpass-api/pkg/errors"
	"github.com/noah-isme/campus-outpass-api/pkg/token"
)

type facultyStore interface {
	GetByID(ctx context.Context, id string) (*models.OutingRequest, error)
	ApplyFacultyDecision(ctx context.Context, params repository.FacultyDecisionParams) error
}

// FacultyService applies the staff authorization step. Approval mints the
// gate credential in the same atomic write that flips the status.
type FacultyService struct {
	repo    facultyStore
	audit   auditLogger
	feed    transitionFeed
	issuer  *token.Issuer
	metrics *MetricsService
	logger  *zap.Logger
	now     func() time.Time
}

// NewFacultyService constructs the service.
func NewFacultyService(repo facultyStore, audit auditLogger, stream eventPublisher, cache dashboardCache, issuer *token.Issuer, metrics *MetricsService, logger *zap.Logger) *FacultyService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FacultyService{
		repo:    repo,
		audit:   audit,
		feed:    newTransitionFeed(stream, cache, logger),
		issuer:  issuer,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// Decide records the staff decision on a guardian-approved request. Approval
// generates the QR credential; rejection closes the request.
func (s *FacultyService) Decide(ctx context.Context, requestID string, approve bool, actor *models.JWTClaims) (*models.OutingRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if !actor.Role.Staff() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "faculty decision requires a staff role")
	}

	outing, err := s.repo.GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load outing request")
	}

	err = s.apply(ctx, requestID, approve)
	if errors.Is(err, sql.ErrNoRows) {
		classified := s.classify(ctx, requestID)
		if classified != nil {
			return nil, classified
		}
		err = s.apply(ctx, requestID, approve)
		if errors.Is(err, sql.ErrNoRows) {
			if second := s.classify(ctx, requestID); second != nil {
				return nil, second
			}
			return nil, appErrors.Clone(appErrors.ErrConflict, "concurrent update, please retry")
		}
	}
	if err != nil {
		return nil, err
	}

	event := models.OutingEventFacultyRejected
	action := "reject"
	if approve {
		event = models.OutingEventFacultyApproved
		action = "approve"
	}
	s.metrics.ObserveTransition("faculty_"+action, "ok")

	actorID := actor.UserID
	recordAudit(ctx, s.audit, s.logger, &actorID, models.AuditActionFacultyDecision, requestID, "faculty-console", map[string]interface{}{
		"action":  action,
		"student": outing.StudentID,
	})

	latest, readErr := s.repo.GetByID(ctx, requestID)
	if readErr != nil {
		s.logger.Warn("failed to reload outing after faculty decision", zap.Error(readErr))
		return outing, nil
	}
	s.feed.committed(ctx, event, latest)
	return latest, nil
}

func (s *FacultyService) apply(ctx context.Context, requestID string, approve bool) error {
	params := repository.FacultyDecisionParams{
		RequestID: requestID,
		Approve:   approve,
		DecidedAt: s.now().UTC(),
	}
	if approve {
		credential, err := s.issuer.MintCredential(requestID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mint gate credential")
		}
		params.QRData = credential
	}
	err := s.repo.ApplyFacultyDecision(ctx, params)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to apply faculty decision")
	}
	return err
}

// classify explains a guard miss. Nil means the row still qualifies and the
// miss was a pure write race.
func (s *FacultyService) classify(ctx context.Context, requestID string) error {
	latest, err := s.repo.GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrNotFound
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload outing request")
	}
	if latest.FacultyApprovalStatus != models.ApprovalPending {
		s.metrics.ObserveTransition("faculty_decide", "replay")
		return appErrors.ErrAlreadyProcessed
	}
	if latest.Status != models.OutingStatusGuardianApproved {
		s.logger.Info("faculty decision rejected",
			zap.String("request_id", requestID),
			zap.String("status", string(latest.Status)),
			zap.String("event", "faculty_decide"))
		return appErrors.Clone(appErrors.ErrInvalidTransition, "faculty decision requires guardian approval first")
	}
	return nil
}
