package service

import (
	"context"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"go.uber.org/zap"

	"fleet/internal/redis"
	"fleet/internal/repository"
)

const sweeperLockName = "dispatch:sweeper"

// SweepResult reports the outcome of one sweep.
type SweepResult struct {
	ExpiredCount   int      `json:"expired_count"`
	CancelledTrips []string `json:"cancelled_trips"`
}

// Sweeper expires overdue trip requests. Expiry is an automatic rejection:
// each affected trip goes through the same exhaustion rule as a REJECT.
type Sweeper struct {
	dispatcher *Dispatcher
	locks      redis.LockStoreInterface
	nrApp      *newrelic.Application
	interval   time.Duration
	logger     *zap.Logger
}

// NewSweeper creates a new Sweeper. locks and nrApp may be nil; without a
// lock store every replica sweeps on every tick.
func NewSweeper(
	dispatcher *Dispatcher,
	locks redis.LockStoreInterface,
	nrApp *newrelic.Application,
	interval time.Duration,
	logger *zap.Logger,
) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{
		dispatcher: dispatcher,
		locks:      locks,
		nrApp:      nrApp,
		interval:   interval,
		logger:     logger,
	}
}

// SweepExpired expires every PENDING request past its deadline, one trip per
// transaction. A failing trip is logged and skipped.
func (s *Sweeper) SweepExpired(ctx context.Context) (*SweepResult, error) {
	now := s.dispatcher.cfg.Now()

	tripIDs, err := s.dispatcher.store.Requests().ListTripsWithOverdue(ctx, now)
	if err != nil {
		return nil, err
	}

	result := &SweepResult{CancelledTrips: []string{}}
	for _, tripID := range tripIDs {
		expired, cancelled, err := s.expireTrip(ctx, tripID, now)
		if err != nil {
			s.logger.Error("failed to expire trip requests", zap.String("trip_id", tripID), zap.Error(err))
			continue
		}
		result.ExpiredCount += expired
		if cancelled {
			result.CancelledTrips = append(result.CancelledTrips, tripID)
		}
	}

	if result.ExpiredCount > 0 {
		s.logger.Info("expired trip requests",
			zap.Int("expired", result.ExpiredCount),
			zap.Int("trips_cancelled", len(result.CancelledTrips)),
		)
	}
	return result, nil
}

func (s *Sweeper) expireTrip(ctx context.Context, tripID string, now time.Time) (int, bool, error) {
	d := s.dispatcher

	var expired int
	var cancelled bool
	var fx effects
	err := d.store.WithTx(ctx, func(tx repository.Store) error {
		trip, err := tx.Trips().GetByIDForUpdate(ctx, tripID)
		if err != nil {
			return err
		}

		reqs, err := tx.Requests().ExpireOverdue(ctx, tripID, now)
		if err != nil {
			return err
		}
		for _, req := range reqs {
			fx.add(func(ctx context.Context) { d.notifications.NotifyRequestExpired(ctx, trip, req) })
		}
		expired = len(reqs)

		cancelled, err = d.settleIfExhausted(ctx, tx, trip, now, &fx)
		return err
	})
	if err != nil {
		return 0, false, err
	}

	fx.run(ctx)
	return expired, cancelled, nil
}

// Run sweeps on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("expiry sweeper started", zap.Duration("interval", s.interval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("expiry sweeper stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Sweeper) tick(ctx context.Context) {
	if s.locks != nil {
		lock, err := s.locks.Acquire(ctx, sweeperLockName, s.interval)
		if err != nil {
			s.logger.Warn("sweeper lock unavailable", zap.Error(err))
			return
		}
		if lock == nil {
			return
		}
		defer func() {
			if err := s.locks.Release(context.WithoutCancel(ctx), lock); err != nil {
				s.logger.Warn("failed to release sweeper lock", zap.Error(err))
			}
		}()
	}

	if s.nrApp != nil {
		txn := s.nrApp.StartTransaction("dispatch/sweep-expired")
		defer txn.End()
		ctx = newrelic.NewContext(ctx, txn)
	}

	if _, err := s.SweepExpired(ctx); err != nil {
		s.logger.Error("sweep failed", zap.Error(err))
	}
}

