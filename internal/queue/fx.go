package queue

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/hostedmail/doms/internal/config"
)

var Module = fx.Module("queue",
	fx.Provide(Provide),
)

func Provide(cfg config.Config, log *zap.Logger) *Queue {
	return New(cfg.QueueDir, log)
}
