package sweeper

import (
	"context"

	"github.com/robfig/cron/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/reelpass/billing/internal/app/service/subscription"
	"github.com/reelpass/billing/pkg/config"
)

// Sweeper periodically expires subscriptions whose period end has
// passed. The sweep is a safety net; reads already correct expired
// records lazily, so a missed run never grants stale access.
type Sweeper struct {
	cron *cron.Cron
	sub  *subscription.Service
	cfg  *config.Config
	log  *zap.SugaredLogger
}

func New(sub *subscription.Service, cfg *config.Config, log *zap.SugaredLogger) *Sweeper {
	c := cron.New(cron.WithChain(cron.Recover(cron.PrintfLogger(zap.NewStdLog(log.Desugar())))))
	return &Sweeper{cron: c, sub: sub, cfg: cfg, log: log}
}

func (s *Sweeper) Start() error {
	if _, err := s.cron.AddFunc(s.cfg.Sweep.Schedule, s.sweep); err != nil {
		return err
	}
	s.log.Infow("scheduled subscription expiry sweep", "schedule", s.cfg.Sweep.Schedule)
	s.cron.Start()
	return nil
}

func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Sweeper) sweep() {
	count, err := s.sub.ExpireDue(context.Background())
	if err != nil {
		s.log.Errorw("subscription expiry sweep failed", "err", err)
		return
	}
	if count > 0 {
		s.log.Infow("subscription expiry sweep finished", "expired", count)
	}
}

func runSweeper(lc fx.Lifecycle, s *Sweeper) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error { return s.Start() },
		OnStop: func(context.Context) error {
			s.Stop()
			return nil
		},
	})
}

var Module = fx.Options(
	fx.Provide(New),
	fx.Invoke(runSweeper),
)
