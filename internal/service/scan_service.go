package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/campus-outpass-api/internal/dto"
	"github.com/noah-isme/campus-outpass-api/internal/models"
	appErrors "github.com/noah-isme/campus-outpass-api/pkg/errors"
	"github.com/noah-isme/campus-outpass-api/pkg/token"
)

type scanStore interface {
	GetByID(ctx context.Context, id string) (*models.OutingRequest, error)
	FindByCredential(ctx context.Context, qrData string) (*models.OutingRequest, error)
	RecordExitScan(ctx context.Context, id string, at time.Time) error
	RecordEntryScan(ctx context.Context, id string, at time.Time) error
}

// ScanService validates gate credentials and records exit and entry scans.
// Each scan direction is accepted at most once per credential; ordering is
// enforced by the status guards in the store.
type ScanService struct {
	repo    scanStore
	audit   auditLogger
	feed    transitionFeed
	metrics *MetricsService
	logger  *zap.Logger
	now     func() time.Time
}

// NewScanService constructs the service.
func NewScanService(repo scanStore, audit auditLogger, stream eventPublisher, cache dashboardCache, metrics *MetricsService, logger *zap.Logger) *ScanService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScanService{
		repo:    repo,
		audit:   audit,
		feed:    newTransitionFeed(stream, cache, logger),
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// Record applies a gate scan. The submitted payload must match the live
// credential on the request byte for byte; entry credentials die with the
// entry scan.
func (s *ScanService) Record(ctx context.Context, req dto.ScanRequest, actor *models.JWTClaims) (*models.OutingRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleGate && !actor.Role.Staff() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "gate scans require a gate or staff role")
	}

	if _, ok := token.CredentialRequestID(req.QRData); !ok {
		s.metrics.ObserveScan(req.Direction, "malformed")
		return nil, appErrors.Clone(appErrors.ErrNotFound, "unknown credential")
	}

	outing, err := s.resolve(ctx, req.QRData, req.Direction)
	if err != nil {
		return nil, err
	}

	err = s.apply(ctx, outing.ID, req.Direction)
	if errors.Is(err, sql.ErrNoRows) {
		classified := s.classify(ctx, outing.ID, req.Direction)
		if classified != nil {
			return nil, classified
		}
		err = s.apply(ctx, outing.ID, req.Direction)
		if errors.Is(err, sql.ErrNoRows) {
			if second := s.classify(ctx, outing.ID, req.Direction); second != nil {
				return nil, second
			}
			return nil, appErrors.Clone(appErrors.ErrConflict, "concurrent update, please retry")
		}
	}
	if err != nil {
		return nil, err
	}

	event := models.OutingEventExited
	if req.Direction == dto.ScanDirectionEntry {
		event = models.OutingEventReEntered
	}
	s.metrics.ObserveScan(req.Direction, "ok")

	actorID := actor.UserID
	recordAudit(ctx, s.audit, s.logger, &actorID, models.AuditActionGateScan, outing.ID, "gate-terminal", map[string]interface{}{
		"direction": req.Direction,
		"student":   outing.StudentID,
	})

	latest, readErr := s.repo.GetByID(ctx, outing.ID)
	if readErr != nil {
		s.logger.Warn("failed to reload outing after gate scan", zap.Error(readErr))
		return outing, nil
	}
	s.feed.committed(ctx, event, latest)
	return latest, nil
}

// resolve maps the submitted credential to its request. The lookup only
// matches the live qr_data column, so a credential that was never issued,
// or was consumed by a prior entry scan, is indistinguishable from a
// nonexistent one.
func (s *ScanService) resolve(ctx context.Context, qrData, direction string) (*models.OutingRequest, error) {
	outing, err := s.repo.FindByCredential(ctx, qrData)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.metrics.ObserveScan(direction, "unknown")
			return nil, appErrors.Clone(appErrors.ErrNotFound, "unknown credential")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load outing request")
	}
	return outing, nil
}

func (s *ScanService) apply(ctx context.Context, id, direction string) error {
	at := s.now().UTC()
	var err error
	if direction == dto.ScanDirectionEntry {
		err = s.repo.RecordEntryScan(ctx, id, at)
	} else {
		err = s.repo.RecordExitScan(ctx, id, at)
	}
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record gate scan")
	}
	return err
}

// classify explains a guard miss. Nil means the row still qualifies for the
// scan and the miss was a pure write race.
func (s *ScanService) classify(ctx context.Context, id, direction string) error {
	latest, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrNotFound
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload outing request")
	}

	if direction == dto.ScanDirectionEntry {
		if latest.EntryScanAt != nil {
			s.metrics.ObserveScan(direction, "duplicate")
			return appErrors.ErrAlreadyScanned
		}
		if latest.Status == models.OutingStatusExited && latest.ExitScanAt != nil {
			return nil
		}
		s.metrics.ObserveScan(direction, "out_of_order")
		return appErrors.Clone(appErrors.ErrInvalidTransition, "entry scan requires a prior exit scan")
	}

	if latest.ExitScanAt != nil {
		s.metrics.ObserveScan(direction, "duplicate")
		return appErrors.ErrAlreadyScanned
	}
	if latest.Authorized() {
		return nil
	}
	s.metrics.ObserveScan(direction, "out_of_order")
	return appErrors.Clone(appErrors.ErrInvalidTransition, "exit scan requires an authorized credential")
}
