package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"finboard/internal/client"
	"finboard/internal/config"
	"finboard/internal/repository/scylla"
	"finboard/internal/service"
	"finboard/internal/util"
)

const (
	sweepLockKey = "jobs:otp-sweep:leader"
	jobTimeout   = time.Minute
)

// Scheduler runs the periodic maintenance jobs: sweeping expired
// verification codes and keeping the quote cache warm for the configured
// symbols. Jobs coordinate across instances through a Redis lock when one
// is available; without Redis each instance runs its own sweeps.
type Scheduler struct {
	cron   *cron.Cron
	otps   scylla.OTPRepository
	stocks *service.StockService
	redis  *client.RedisClient
	config *config.Config
	logger *zap.Logger
}

func NewScheduler(
	otps scylla.OTPRepository,
	stocks *service.StockService,
	redisClient *client.RedisClient,
	cfg *config.Config,
	logger *zap.Logger,
) (*Scheduler, error) {
	s := &Scheduler{
		cron:   cron.New(),
		otps:   otps,
		stocks: stocks,
		redis:  redisClient,
		config: cfg,
		logger: logger,
	}

	if _, err := s.cron.AddFunc("@every "+cfg.OTP.SweepInterval.String(), s.SweepExpiredCodes); err != nil {
		return nil, fmt.Errorf("failed to schedule code sweep: %w", err)
	}

	if len(cfg.Quotes.WarmSymbols) > 0 {
		if _, err := s.cron.AddFunc("@every 5m", s.WarmQuotes); err != nil {
			return nil, fmt.Errorf("failed to schedule quote warmup: %w", err)
		}
	}

	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("Background jobs started",
		util.Int("jobs", len(s.cron.Entries())),
		util.String("sweep_interval", s.config.OTP.SweepInterval.String()),
	)
}

// Stop halts scheduling and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	select {
	case <-ctx.Done():
	case <-time.After(jobTimeout):
		s.logger.Warn("Background job drain timed out")
	}
	s.logger.Info("Background jobs stopped")
}

// SweepExpiredCodes deletes verification codes past their expiry. Codes stop
// verifying the moment they expire regardless; the sweep only reclaims the
// rows.
func (s *Scheduler) SweepExpiredCodes() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	if !s.acquireLeader(ctx, sweepLockKey, s.config.OTP.SweepInterval) {
		return
	}

	deleted, err := s.otps.DeleteExpired(ctx, time.Now().UTC())
	if err != nil {
		s.logger.Error("Expired code sweep failed", util.ErrorField(err))
		return
	}
	if deleted > 0 {
		s.logger.Info("Swept expired verification codes", util.Int("deleted", deleted))
	}
}

// WarmQuotes refreshes cached quotes for the configured symbols so the first
// user request after a TTL lapse does not pay the provider round trip.
func (s *Scheduler) WarmQuotes() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	symbols := append([]string(nil), s.config.Quotes.WarmSymbols...)
	quotes, err := s.stocks.GetQuotes(ctx, symbols)
	if err != nil {
		s.logger.Warn("Quote warmup failed", util.ErrorField(err))
		return
	}

	s.logger.Debug("Quote cache warmed", util.Int("symbols", len(quotes)))
}

// acquireLeader takes a lock that lives for one scheduling window, so each
// window's job runs on at most one instance. A Redis failure falls back to
// running locally; a missed sweep costs more than a duplicate one.
func (s *Scheduler) acquireLeader(ctx context.Context, key string, window time.Duration) bool {
	if s.redis == nil {
		return true
	}

	if window < 10*time.Second {
		window = 10 * time.Second
	}
	ok, err := s.redis.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), window)
	if err != nil {
		s.logger.Warn("Leader lock unavailable, running job locally", util.ErrorField(err))
		return true
	}
	return ok
}
