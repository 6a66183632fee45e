package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-outpass-api/pkg/jobs"
)

type tokenExpirer interface {
	ExpireStaleTokens(ctx context.Context, now time.Time) (int64, error)
}

// TokenSweeper periodically clears approval tokens whose validity window
// has elapsed. Expiry is already enforced at read time; the sweep only
// limits how long dead token material lingers in the table.
type TokenSweeper struct {
	repo     tokenExpirer
	queue    *jobs.Queue
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewTokenSweeper constructs the sweeper with its backing queue. A
// non-positive interval disables the sweep; token expiry is then enforced
// only at resolution time.
func NewTokenSweeper(repo tokenExpirer, interval time.Duration, logger *zap.Logger) *TokenSweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &TokenSweeper{repo: repo, interval: interval, logger: logger, now: time.Now}
	s.queue = jobs.NewQueue("token-sweeper", s.handle, jobs.QueueConfig{
		Workers:    1,
		MaxRetries: 1,
		Logger:     logger,
	})
	return s
}

// Start launches the worker and the recurring sweep schedule. With the
// sweep disabled nothing runs and Stop remains a no-op.
func (s *TokenSweeper) Start(ctx context.Context) {
	if s.interval <= 0 {
		s.logger.Info("token sweep disabled")
		return
	}
	s.queue.Start(ctx)
	s.queue.EnqueueEvery(s.interval, jobs.Job{
		ID:   uuid.NewString(),
		Type: "expire-stale-tokens",
	})
}

// Stop drains the worker.
func (s *TokenSweeper) Stop() {
	s.queue.Stop()
}

func (s *TokenSweeper) handle(ctx context.Context, job jobs.Job) error {
	swept, err := s.repo.ExpireStaleTokens(ctx, s.now().UTC())
	if err != nil {
		return err
	}
	if swept > 0 {
		s.logger.Info("expired stale approval tokens", zap.Int64("count", swept))
	}
	return nil
}
