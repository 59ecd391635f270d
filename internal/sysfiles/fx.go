package sysfiles

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/hostedmail/doms/internal/config"
	"github.com/hostedmail/doms/internal/policy"
	"github.com/hostedmail/doms/internal/record"
)

var Module = fx.Module("sysfiles",
	fx.Provide(Provide),
)

func Provide(cfg config.Config, pol *policy.Policy, store *record.Store, log *zap.Logger) *Generator {
	return New(Config{
		BaseUnixDir:    cfg.BaseUnixDir,
		RunDir:         cfg.RunDir,
		PostfixDataDir: cfg.PostfixDataDir,
		HomeDir:        cfg.HomeDir,
		DomainsFile:    cfg.DomainsFile,
		TLDFile:        cfg.TLDFile,
	}, pol, store, log)
}
