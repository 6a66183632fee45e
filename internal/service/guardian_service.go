package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/campus-outpass-api/internal/dto"
	"github.com/noah-isme/campus-outpass-api/internal/models"
	"github.com/noah-isme/campus-outpass-api/internal/repository"
	appErrors "github.com/noah-isme/campus-outpass-api/pkg/errors"
)

type guardianStore interface {
	FindByToken(ctx context.Context, token string) (*models.OutingRequest, error)
	GetByID(ctx context.Context, id string) (*models.OutingRequest, error)
	ApplyGuardianDecision(ctx context.Context, params repository.GuardianDecisionParams) error
}

// GuardianService is the token-gated gateway for the external guardian. It
// is the only mutation path reachable without authentication; knowledge of
// the token is the entire credential.
type GuardianService struct {
	repo    guardianStore
	audit   auditLogger
	feed    transitionFeed
	metrics *MetricsService
	logger  *zap.Logger
	now     func() time.Time
}

// NewGuardianService constructs the gateway.
func NewGuardianService(repo guardianStore, audit auditLogger, stream eventPublisher, cache dashboardCache, metrics *MetricsService, logger *zap.Logger) *GuardianService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GuardianService{
		repo:    repo,
		audit:   audit,
		feed:    newTransitionFeed(stream, cache, logger),
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// Resolve maps a token to the reduced guardian view of its request. Unknown
// and expired tokens are indistinguishable to the caller; expiry is logged
// for audit.
func (s *GuardianService) Resolve(ctx context.Context, token string) (*dto.GuardianOutingView, error) {
	outing, err := s.resolve(ctx, token)
	if err != nil {
		return nil, guardianFacing(err)
	}
	return &dto.GuardianOutingView{
		StudentName:      outing.StudentName,
		DepartureDate:    outing.DepartureDate,
		DepartureTime:    outing.DepartureTime,
		ArrivalDate:      outing.ArrivalDate,
		ArrivalTime:      outing.ArrivalTime,
		SummarizedReason: outing.SummarizedReason,
		GuardianName:     outing.SelectedGuardian.Name,
		Status:           string(outing.Status),
	}, nil
}

// Decide applies the guardian's decision exactly once. The status change,
// the decision timestamp and the token invalidation commit in one atomic
// write; a replayed link observes ALREADY_PROCESSED.
func (s *GuardianService) Decide(ctx context.Context, token string, approve bool) error {
	outing, err := s.resolve(ctx, token)
	if err != nil {
		return guardianFacing(err)
	}

	err = s.apply(ctx, outing.ID, token, approve)
	if errors.Is(err, sql.ErrNoRows) {
		// Guard miss: classify against the latest committed state. A nil
		// classification is a pure write race and gets one retry.
		classified := s.classify(ctx, outing.ID, token)
		if classified == nil {
			err = s.apply(ctx, outing.ID, token, approve)
			if errors.Is(err, sql.ErrNoRows) {
				if second := s.classify(ctx, outing.ID, token); second != nil {
					return guardianFacing(second)
				}
				return appErrors.Clone(appErrors.ErrConflict, "concurrent update, please retry")
			}
		} else {
			return guardianFacing(classified)
		}
	}
	if err != nil {
		return err
	}

	event := models.OutingEventGuardianRejected
	action := "reject"
	if approve {
		event = models.OutingEventGuardianApproved
		action = "approve"
	}
	s.metrics.ObserveTransition("guardian_"+action, "ok")
	recordAudit(ctx, s.audit, s.logger, nil, models.AuditActionGuardianDecision, outing.ID, "guardian-gateway", map[string]interface{}{
		"action":   action,
		"guardian": outing.SelectedGuardian.ID,
	})

	latest, readErr := s.repo.GetByID(ctx, outing.ID)
	if readErr != nil {
		s.logger.Warn("failed to reload outing after guardian decision", zap.Error(readErr))
		return nil
	}
	s.feed.committed(ctx, event, latest)
	return nil
}

// guardianFacing collapses the expired-token classification into the plain
// not-found error before it crosses the unauthenticated boundary. The
// distinction exists for server-side logs and metrics only; an expired link
// must read exactly like one that never existed.
func guardianFacing(err error) error {
	if errors.Is(err, appErrors.ErrTokenExpired) {
		return appErrors.ErrNotFound
	}
	return err
}

func (s *GuardianService) resolve(ctx context.Context, token string) (*models.OutingRequest, error) {
	outing, err := s.repo.FindByToken(ctx, token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve approval token")
	}
	if outing.GuardianApprovalExpiresAt != nil && s.now().UTC().After(*outing.GuardianApprovalExpiresAt) {
		s.logger.Info("expired approval token presented",
			zap.String("request_id", outing.ID),
			zap.Time("expired_at", *outing.GuardianApprovalExpiresAt))
		s.metrics.ObserveTransition("guardian_resolve", "expired")
		return nil, appErrors.ErrTokenExpired
	}
	return outing, nil
}

func (s *GuardianService) apply(ctx context.Context, id, token string, approve bool) error {
	err := s.repo.ApplyGuardianDecision(ctx, repository.GuardianDecisionParams{
		RequestID: id,
		Token:     token,
		Approve:   approve,
		DecidedAt: s.now().UTC(),
	})
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to apply guardian decision")
	}
	return err
}

// classify explains a guard miss from a fresh read. A nil return means the
// state still permits the decision (a pure write race lost).
func (s *GuardianService) classify(ctx context.Context, id, token string) error {
	latest, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrNotFound
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload outing request")
	}
	if latest.GuardianApprovalStatus != models.ApprovalPending {
		s.metrics.ObserveTransition("guardian_decide", "replay")
		return appErrors.ErrAlreadyProcessed
	}
	if latest.GuardianApprovalToken == nil || *latest.GuardianApprovalToken != token {
		return appErrors.ErrNotFound
	}
	if latest.GuardianApprovalExpiresAt != nil && s.now().UTC().After(*latest.GuardianApprovalExpiresAt) {
		return appErrors.ErrTokenExpired
	}
	return nil
}
