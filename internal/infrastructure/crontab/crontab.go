package crontab

import (
	"context"
	"time"

	"github.com/mileusna/crontab"

	"github.com/contextd/contextd/internal/config"
	"github.com/contextd/contextd/internal/domain/session"
	"github.com/contextd/contextd/internal/infrastructure/logger"
	"github.com/contextd/contextd/internal/infrastructure/metrics"
	"github.com/contextd/contextd/internal/utils/platformerrors"
)

const (
	CronJobTimeout = 10 * time.Minute // Timeout for each cron job execution
)

// Crontab schedules the retention sweep that hard-deletes conversations
// whose soft delete has outlived the configured TTL.
type Crontab struct {
	ctab   *crontab.Crontab
	engine *session.Engine
	cfg    *config.Config
}

func NewCrontab(engine *session.Engine, cfg *config.Config) *Crontab {
	return &Crontab{
		ctab:   crontab.New(),
		engine: engine,
		cfg:    cfg,
	}
}

func (c *Crontab) Run(ctx context.Context) error {
	log := logger.GetLogger()

	if c.cfg.RetentionEnabled {
		// execute once on server start
		c.sweep(ctx)

		if err := c.ctab.AddJob("0 * * * *", func() {
			jobCtx, cancel := context.WithTimeout(context.Background(), CronJobTimeout)
			defer cancel()
			c.sweep(jobCtx)
		}); err != nil {
			return platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to add retention sweep job")
		}
		log.Info().Dur("ttl", c.cfg.RetentionTTL).Msg("Retention sweep scheduled: hourly")
	}

	<-ctx.Done()
	c.ctab.Shutdown()
	return nil
}

func (c *Crontab) sweep(ctx context.Context) {
	log := logger.GetLogger()
	removed, err := c.engine.SweepExpired(ctx, c.cfg.RetentionTTL, c.cfg.RetentionSweepLimit)
	if err != nil {
		log.Error().
			Str("error_code", "04d7be92-61a5-4c38-9f0e-82c5d1a76b43").
			Err(err).
			Msg("retention sweep failed")
		return
	}
	metrics.RetentionSweptTotal.Add(float64(removed))
}
