package reconciler

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/reelpass/billing/internal/app/service/eventlog"
	"github.com/reelpass/billing/internal/app/service/order"
	"github.com/reelpass/billing/internal/app/service/plan"
	"github.com/reelpass/billing/internal/app/service/subscription"
)

func newReconciler(sub *subscription.Service, orders *order.Service, ledger *eventlog.Service, catalog *plan.Catalog, log *zap.SugaredLogger) *Reconciler {
	return New(sub, orders, ledger, catalog, log)
}

// Module exposes the webhook reconciler via Fx.
var Module = fx.Options(
	fx.Provide(newReconciler),
)
