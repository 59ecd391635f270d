package mailer

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/hostedmail/doms/internal/config"
	"github.com/hostedmail/doms/internal/policy"
)

var Module = fx.Module("mailer",
	fx.Provide(NewFromConfig),
)

func NewFromConfig(cfg config.Config, pol *policy.Policy, log *zap.Logger) Sender {
	return NewSMTP(Config{
		EmailsDir: cfg.EmailsDir,
		SMTPHost:  cfg.SMTPHost,
		SMTPPort:  cfg.SMTPPort,
	}, pol, log)
}
