package record

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/hostedmail/doms/internal/clock"
	"github.com/hostedmail/doms/internal/config"
	"github.com/hostedmail/doms/internal/policy"
)

var Module = fx.Module("record",
	fx.Provide(Provide),
)

func Provide(cfg config.Config, pol *policy.Policy, clk clock.Clock, log *zap.Logger) *Store {
	return NewStore(cfg.UserDir, pol.ManagerAccount(), clk, log)
}
