package policy

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/hostedmail/doms/internal/config"
)

// Defaults mirror the shipped policy file; values in policy.json override
// them and take effect without a restart.
var defaults = map[string]any{
	"email_domain":                "webmail.localhost",
	"website_domain":              "example.com",
	"website_title":               "Handshake Webmail",
	"session_expiry":              60 * 60 * 2,
	"never_active_account_expire": 7,
	"was_active_account_expire":   30,
	"manager_account":             "manager",
	"icann_smtp_relay":            "",
	"allow_icann_domains":         false,
}

// Policy serves merged policy values. Reads are cheap; the file watcher
// re-merges on change.
type Policy struct {
	mu  sync.RWMutex
	v   *viper.Viper
	log *zap.Logger
}

func New(cfg config.Config, log *zap.Logger) (*Policy, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetConfigFile(cfg.PolicyFile)
	v.SetConfigType("json")

	if _, err := os.Stat(cfg.PolicyFile); os.IsNotExist(err) {
		if err := writeDefaultPolicy(cfg.PolicyFile); err != nil {
			return nil, fmt.Errorf("seed policy file: %w", err)
		}
	}
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}

	p := &Policy{v: v, log: log.Named("policy")}

	v.OnConfigChange(func(e fsnotify.Event) {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.log.Info("policy file reloaded", zap.String("file", e.Name))
	})
	v.WatchConfig()

	return p, nil
}

func writeDefaultPolicy(file string) error {
	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		return err
	}
	seed := viper.New()
	for key, value := range defaults {
		seed.Set(key, value)
	}
	seed.SetConfigType("json")
	return seed.WriteConfigAs(file)
}

func (p *Policy) String(name string) string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.v.GetString(name)
}

func (p *Policy) Int(name string) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.v.GetInt(name)
}

func (p *Policy) Bool(name string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.v.GetBool(name)
}

// EmailDomain returns the service's mail domain, lowercased with any
// trailing dot stripped, ready for comparisons.
func (p *Policy) EmailDomain() string {
	return strings.ToLower(strings.TrimSuffix(p.String("email_domain"), "."))
}

func (p *Policy) ManagerAccount() string {
	return p.String("manager_account")
}

// SMTPRelay returns the configured relay for legacy TLDs, or "" when
// relaying is disabled.
func (p *Policy) SMTPRelay() string {
	return strings.ToLower(strings.TrimSuffix(p.String("icann_smtp_relay"), "."))
}

func (p *Policy) NeverActiveExpireDays() int {
	return p.Int("never_active_account_expire")
}

func (p *Policy) WasActiveExpireDays() int {
	return p.Int("was_active_account_expire")
}

// Data returns the full merged policy map, used as template context for
// notification emails.
func (p *Policy) Data() map[string]any {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.v.AllSettings()
}
