package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/campus-outpass-api/internal/dto"
	"github.com/noah-isme/campus-outpass-api/internal/models"
	appErrors "github.com/noah-isme/campus-outpass-api/pkg/errors"
	"github.com/noah-isme/campus-outpass-api/pkg/token"
)

type outingStore interface {
	Create(ctx context.Context, outing *models.OutingRequest) error
	GetByID(ctx context.Context, id string) (*models.OutingRequest, error)
	FindActiveForStudent(ctx context.Context, studentID string) (*models.OutingRequest, error)
	List(ctx context.Context, filter models.OutingFilter) ([]models.OutingRequest, error)
	DeletePending(ctx context.Context, id, studentID string) error
}

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type eventPublisher interface {
	Publish(ctx context.Context, event models.OutingEvent)
}

type dashboardCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

const (
	dashboardCacheKey     = "outings:dashboard:active"
	dashboardCachePattern = "outings:dashboard*"
)

// OutingService is the composition root of the workflow: it owns request
// creation and cancellation and exposes the query views. Guardian, faculty
// and gate transitions live in their own services.
type OutingService struct {
	repo     outingStore
	audit    auditLogger
	feed     transitionFeed
	cache    dashboardCache
	issuer   *token.Issuer
	summary  Summarizer
	metrics  *MetricsService
	logger   *zap.Logger
	baseURL  string
	cacheTTL time.Duration
	now      func() time.Time
}

// OutingServiceConfig wires collaborator knobs.
type OutingServiceConfig struct {
	PublicBaseURL     string
	DashboardCacheTTL time.Duration
}

// NewOutingService constructs the orchestrator.
func NewOutingService(
	repo outingStore,
	audit auditLogger,
	stream eventPublisher,
	cache dashboardCache,
	issuer *token.Issuer,
	summary Summarizer,
	metrics *MetricsService,
	logger *zap.Logger,
	cfg OutingServiceConfig,
) *OutingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if summary == nil {
		summary = NewWordLimitSummarizer(0)
	}
	if cfg.DashboardCacheTTL <= 0 {
		cfg.DashboardCacheTTL = 30 * time.Second
	}
	return &OutingService{
		repo:     repo,
		audit:    audit,
		feed:     newTransitionFeed(stream, cache, logger),
		cache:    cache,
		issuer:   issuer,
		summary:  summary,
		metrics:  metrics,
		logger:   logger,
		baseURL:  cfg.PublicBaseURL,
		cacheTTL: cfg.DashboardCacheTTL,
		now:      time.Now,
	}
}

// Create validates and persists a new outing request in state requested.
func (s *OutingService) Create(ctx context.Context, req dto.CreateOutingRequest, actor *models.JWTClaims) (*models.OutingRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only students may request outings")
	}

	for field, value := range map[string]string{
		"departureDate": req.DepartureDate,
		"departureTime": req.DepartureTime,
		"arrivalDate":   req.ArrivalDate,
		"arrivalTime":   req.ArrivalTime,
	} {
		if strings.TrimSpace(value) == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, field+" is required")
		}
	}
	if strings.TrimSpace(req.FullReason) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "fullReason is required")
	}
	if len(req.Guardians) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "at least one guardian is required")
	}

	snapshot := models.GuardianList(append([]models.Guardian(nil), req.Guardians...))
	var selected *models.Guardian
	for i := range snapshot {
		if snapshot[i].ID == req.SelectedGuardianID {
			selected = &snapshot[i]
			break
		}
	}
	if selected == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "selected guardian is not part of the guardian snapshot")
	}

	approvalToken, expiresAt, err := s.issuer.Issue()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to issue approval token")
	}
	link := token.BuildLink(s.baseURL, approvalToken)

	outing := &models.OutingRequest{
		StudentID:                 actor.UserID,
		StudentName:               actor.FullName,
		DepartureDate:             strings.TrimSpace(req.DepartureDate),
		DepartureTime:             strings.TrimSpace(req.DepartureTime),
		ArrivalDate:               strings.TrimSpace(req.ArrivalDate),
		ArrivalTime:               strings.TrimSpace(req.ArrivalTime),
		FullReason:                strings.TrimSpace(req.FullReason),
		SummarizedReason:          s.summary.Summarize(req.FullReason),
		Guardians:                 snapshot,
		SelectedGuardian:          *selected,
		GuardianApprovalToken:     &approvalToken,
		GuardianApprovalLink:      &link,
		GuardianApprovalExpiresAt: &expiresAt,
		CreatedAt:                 s.now().UTC(),
	}

	if err := s.repo.Create(ctx, outing); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.metrics.ObserveTransition("create", "rejected")
			return nil, appErrors.ErrActiveRequestExists
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create outing request")
	}

	s.metrics.ObserveTransition("create", "ok")
	s.emitAudit(ctx, actor, models.AuditActionOutingCreate, outing.ID, map[string]interface{}{
		"status":   outing.Status,
		"guardian": outing.SelectedGuardian.ID,
	})
	s.committed(ctx, models.OutingEventCreated, outing)
	return outing, nil
}

// Cancel removes a request that is still awaiting the guardian. Only the
// owning student may cancel.
func (s *OutingService) Cancel(ctx context.Context, id string, actor *models.JWTClaims) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	outing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrNotFound
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load outing request")
	}
	if outing.StudentID != actor.UserID {
		return appErrors.Clone(appErrors.ErrForbidden, "request belongs to another student")
	}

	if err := s.repo.DeletePending(ctx, id, actor.UserID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// The delete guard lost: either the guardian decided in the
			// meantime or the row vanished. Classify from a fresh read.
			latest, readErr := s.repo.GetByID(ctx, id)
			if readErr != nil {
				if errors.Is(readErr, sql.ErrNoRows) {
					return appErrors.ErrNotFound
				}
				return appErrors.Wrap(readErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload outing request")
			}
			s.logger.Info("cancel rejected",
				zap.String("request_id", id),
				zap.String("status", string(latest.Status)),
				zap.String("event", "cancel"))
			return appErrors.Clone(appErrors.ErrInvalidTransition, "request can only be cancelled while the guardian decision is pending")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel outing request")
	}

	s.metrics.ObserveTransition("cancel", "ok")
	s.emitAudit(ctx, actor, models.AuditActionOutingCancel, id, map[string]interface{}{"status": outing.Status})
	outing.QRData = nil
	s.committed(ctx, models.OutingEventCancelled, outing)
	return nil
}

// Get returns a single request. Students see only their own.
func (s *OutingService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.OutingRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	outing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load outing request")
	}
	if !actor.Role.Staff() && actor.Role != models.RoleGate && outing.StudentID != actor.UserID {
		return nil, appErrors.ErrForbidden
	}
	return outing, nil
}

// List returns requests scoped to the actor: students their own history,
// staff everything.
func (s *OutingService) List(ctx context.Context, query dto.OutingQuery, actor *models.JWTClaims) ([]models.OutingRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	filter := models.OutingFilter{
		Statuses: query.Statuses,
		Limit:    query.Limit,
		Offset:   query.Offset,
	}
	switch {
	case actor.Role.Staff():
		filter.StudentID = query.StudentID
	case actor.Role == models.RoleStudent:
		filter.StudentID = actor.UserID
	default:
		return nil, appErrors.ErrForbidden
	}

	outings, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list outing requests")
	}
	return outings, nil
}

// ActiveDashboard serves the staff view of all open requests through the
// short-TTL cache.
func (s *OutingService) ActiveDashboard(ctx context.Context, actor *models.JWTClaims) ([]models.OutingRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if !actor.Role.Staff() {
		return nil, appErrors.ErrForbidden
	}

	if s.cache != nil {
		var cached []models.OutingRequest
		start := s.now()
		err := s.cache.Get(ctx, dashboardCacheKey, &cached)
		s.metrics.RecordCacheOperation(err == nil, time.Since(start))
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("dashboard cache read failed", zap.Error(err))
		}
	}

	outings, err := s.repo.List(ctx, models.OutingFilter{Statuses: models.ActiveOutingStatuses()})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load active outings")
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, dashboardCacheKey, outings, s.cacheTTL); err != nil {
			s.logger.Warn("dashboard cache write failed", zap.Error(err))
		}
	}
	return outings, nil
}

// ActiveForStudent returns the student's single open request, if any.
func (s *OutingService) ActiveForStudent(ctx context.Context, actor *models.JWTClaims) (*models.OutingRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	outing, err := s.repo.FindActiveForStudent(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load active outing")
	}
	return outing, nil
}

func (s *OutingService) emitAudit(ctx context.Context, actor *models.JWTClaims, action, resourceID string, values map[string]interface{}) {
	var actorID *string
	if actor != nil {
		userID := actor.UserID
		actorID = &userID
	}
	recordAudit(ctx, s.audit, s.logger, actorID, action, resourceID, "outing-service", values)
}

func (s *OutingService) committed(ctx context.Context, event string, outing *models.OutingRequest) {
	s.feed.committed(ctx, event, outing)
}
