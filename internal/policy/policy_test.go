package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hostedmail/doms/internal/config"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	return config.Config{PolicyFile: filepath.Join(dir, "config", "policy.json")}
}

func TestPolicyDefaultsWhenFileMissing(t *testing.T) {
	cfg := testConfig(t)

	p, err := New(cfg, zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, "webmail.localhost", p.EmailDomain())
	assert.Equal(t, "manager", p.ManagerAccount())
	assert.Equal(t, 7, p.NeverActiveExpireDays())
	assert.Equal(t, 30, p.WasActiveExpireDays())
	assert.Equal(t, "", p.SMTPRelay())

	// A missing file is seeded with the defaults so operators can edit it.
	_, err = os.Stat(cfg.PolicyFile)
	assert.NoError(t, err)
}

func TestPolicyFileOverridesDefaults(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(cfg.PolicyFile), 0o755))
	require.NoError(t, os.WriteFile(cfg.PolicyFile, []byte(`{
		"email_domain": "Mail.Example.",
		"was_active_account_expire": 14,
		"icann_smtp_relay": "relay.example.net."
	}`), 0o644))

	p, err := New(cfg, zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, "mail.example", p.EmailDomain())
	assert.Equal(t, 14, p.WasActiveExpireDays())
	// Untouched keys keep their defaults.
	assert.Equal(t, 7, p.NeverActiveExpireDays())
	assert.Equal(t, "relay.example.net", p.SMTPRelay())
}
