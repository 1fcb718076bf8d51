package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"freightdesk/internal/metrics"
	"freightdesk/internal/service"

	"go.uber.org/zap"
)

// Expirer expires overdue pending requests in batches
type Expirer interface {
	ExpireOverdue(ctx context.Context, limit int) ([]*service.TransitionResult, error)
}

// ExpirySweeper periodically expires approval requests whose SLA deadline has passed,
// then hands each result to the same collaborators the HTTP handlers use.
type ExpirySweeper struct {
	approvals Expirer
	notifier  service.Notifier
	effects   service.SubjectEffects
	logger    *zap.Logger

	interval  time.Duration
	batchSize int

	mu        sync.Mutex
	isRunning bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewExpirySweeper creates a sweeper running every interval over at most batchSize requests
func NewExpirySweeper(
	approvals Expirer,
	notifier service.Notifier,
	effects service.SubjectEffects,
	logger *zap.Logger,
	interval time.Duration,
	batchSize int,
) *ExpirySweeper {
	return &ExpirySweeper{
		approvals: approvals,
		notifier:  notifier,
		effects:   effects,
		logger:    logger,
		interval:  interval,
		batchSize: batchSize,
	}
}

// Start launches the sweep loop. It sweeps once immediately.
func (s *ExpirySweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("expiry sweeper is already running")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.isRunning = true

	s.logger.Info("ExpirySweeper started",
		zap.Duration("interval", s.interval),
		zap.Int("batch_size", s.batchSize))

	go s.loop(loopCtx, s.done)
	return nil
}

// Stop cancels the loop and waits for an in-flight sweep to finish
func (s *ExpirySweeper) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	s.cancel()
	done := s.done
	s.mu.Unlock()

	<-done
	s.logger.Info("ExpirySweeper stopped")
}

// Name returns the worker name for identification
func (s *ExpirySweeper) Name() string {
	return "ExpirySweeper"
}

func (s *ExpirySweeper) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.SweepOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce runs a single sweep and returns how many requests it expired
func (s *ExpirySweeper) SweepOnce(ctx context.Context) int {
	results, err := s.approvals.ExpireOverdue(ctx, s.batchSize)
	metrics.ObserveSweep(err)
	if err != nil && ctx.Err() == nil {
		s.logger.Error("expiry sweep failed", zap.Error(err))
	}

	for _, res := range results {
		s.notifier.Transitioned(ctx, res)
		if effErr := s.effects.Apply(ctx, res); effErr != nil {
			metrics.SideEffectFailed("subject_effect")
			s.logger.Error("subject effect failed after expiry",
				zap.String("request_no", res.Approval.RequestNo), zap.Error(effErr))
		}
	}

	if len(results) > 0 {
		s.logger.Info("expired overdue approval requests", zap.Int("count", len(results)))
	}
	return len(results)
}
