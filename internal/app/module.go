package app

import (
	"time"

	"go.uber.org/fx"

	"github.com/reelpass/billing/internal/app/api/server"
	"github.com/reelpass/billing/internal/app/service/eventlog"
	"github.com/reelpass/billing/internal/app/service/order"
	"github.com/reelpass/billing/internal/app/service/plan"
	"github.com/reelpass/billing/internal/app/service/receipt"
	"github.com/reelpass/billing/internal/app/service/reconciler"
	"github.com/reelpass/billing/internal/app/service/stats"
	"github.com/reelpass/billing/internal/app/service/subscription"
	"github.com/reelpass/billing/internal/app/service/sweeper"
	"github.com/reelpass/billing/internal/platform/db"
	"github.com/reelpass/billing/internal/platform/stripegw"
	"github.com/reelpass/billing/pkg/config"
	"github.com/reelpass/billing/pkg/logger"
)

const (
	DefaultStartTimeout = 15 * time.Second
	DefaultStopTimeout  = 10 * time.Second
)

var Module = fx.Options(
	logger.Module,
	config.Module,
	db.Module,
	stripegw.Module,
	server.Module,
	plan.Module,
	receipt.Module,
	subscription.Module,
	eventlog.Module,
	order.Module,
	reconciler.Module,
	sweeper.Module,
	stats.Module,
)
