package service

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/campus-outpass-api/internal/models"
)

// transitionFeed bundles the post-commit side channel shared by the
// transition services: dashboard cache invalidation and the change-feed
// publish. Both run after the atomic write and never affect its outcome.
type transitionFeed struct {
	stream eventPublisher
	cache  dashboardCache
	logger *zap.Logger
	now    func() time.Time
}

func newTransitionFeed(stream eventPublisher, cache dashboardCache, logger *zap.Logger) transitionFeed {
	if logger == nil {
		logger = zap.NewNop()
	}
	return transitionFeed{stream: stream, cache: cache, logger: logger, now: time.Now}
}

func (f *transitionFeed) committed(ctx context.Context, event string, outing *models.OutingRequest) {
	if f.cache != nil {
		if err := f.cache.DeleteByPattern(ctx, dashboardCachePattern); err != nil {
			f.logger.Warn("dashboard cache invalidation failed", zap.Error(err))
		}
	}
	if f.stream == nil {
		return
	}
	f.stream.Publish(ctx, models.OutingEvent{
		Event:     event,
		RequestID: outing.ID,
		StudentID: outing.StudentID,
		Status:    outing.Status,
		Request:   outing,
		At:        f.now().UTC(),
	})
}

func recordAudit(ctx context.Context, sink auditLogger, logger *zap.Logger, actorID *string, action, resourceID, agent string, values map[string]interface{}) {
	if sink == nil {
		return
	}
	payload, _ := json.Marshal(values)
	log := &models.AuditLog{
		UserID:     actorID,
		Action:     action,
		Resource:   "outing_request",
		ResourceID: &resourceID,
		NewValues:  payload,
		IPAddress:  "system",
		UserAgent:  agent,
	}
	if err := sink.CreateAuditLog(ctx, log); err != nil && logger != nil {
		logger.Warn("failed to persist audit log", zap.Error(err))
	}
}
