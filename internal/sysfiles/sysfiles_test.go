package sysfiles

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hostedmail/doms/internal/clock"
	appconfig "github.com/hostedmail/doms/internal/config"
	"github.com/hostedmail/doms/internal/policy"
	"github.com/hostedmail/doms/internal/record"
)

type fixture struct {
	gen   *Generator
	cfg   Config
	store *record.Store
}

func newFixture(t *testing.T, policyJSON string) *fixture {
	t.Helper()
	dir := t.TempDir()

	policyFile := filepath.Join(dir, "config", "policy.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(policyFile), 0o755))
	if policyJSON == "" {
		policyJSON = `{"email_domain": "mail.example"}`
	}
	require.NoError(t, os.WriteFile(policyFile, []byte(policyJSON), 0o644))
	pol, err := policy.New(appconfig.Config{PolicyFile: policyFile}, zap.NewNop())
	require.NoError(t, err)

	cfg := Config{
		BaseUnixDir:    filepath.Join(dir, "uid"),
		RunDir:         filepath.Join(dir, "run"),
		PostfixDataDir: filepath.Join(dir, "postfix"),
		HomeDir:        filepath.Join(dir, "homedirs"),
		DomainsFile:    filepath.Join(dir, "config", "used_domains.json"),
		TLDFile:        filepath.Join(dir, "config", "relay_tlds.txt"),
	}
	require.NoError(t, os.MkdirAll(cfg.BaseUnixDir, 0o755))
	require.NoError(t, os.MkdirAll(cfg.RunDir, 0o755))
	require.NoError(t, os.MkdirAll(cfg.PostfixDataDir, 0o755))

	require.NoError(t, os.WriteFile(filepath.Join(cfg.BaseUnixDir, "passwd"),
		[]byte("root:x:0:0:root:/root:/bin/sh\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.BaseUnixDir, "shadow"),
		[]byte("root:!::0:::::\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.BaseUnixDir, "group"),
		[]byte("root:x:0:\nusers:x:100:stale\n"), 0o644))

	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	store := record.NewStore(filepath.Join(dir, "users"), "manager", clk, zap.NewNop())

	return &fixture{gen: New(cfg, pol, store, zap.NewNop()), cfg: cfg, store: store}
}

func activeAlice() map[string]*record.UserRecord {
	return map[string]*record.UserRecord{
		"alice": {
			User:     "alice",
			UID:      1000,
			Password: "$6$s$h",
			Domains:  map[string]bool{"alice": true, "extra.example": true, "pending.example": false},
			Identities: []string{
				"me@extra.example",
				"me@pending.example",
			},
		},
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(raw)
}

func TestRemakeUnixFiles(t *testing.T) {
	f := newFixture(t, "")
	require.NoError(t, f.store.Create("manager", &record.UserRecord{Password: "$6$m$h"}))

	require.NoError(t, f.gen.RemakeUnixFiles(activeAlice()))

	passwd := readFile(t, filepath.Join(f.cfg.RunDir, "passwd.new"))
	assert.Contains(t, passwd, "root:x:0:0:root:/root:/bin/sh\n")
	assert.Contains(t, passwd, "manager:x:900:900::"+filepath.Join(f.cfg.HomeDir, "manager")+":/sbin/nologin\n")
	assert.Contains(t, passwd, "alice:x:1000:100::"+filepath.Join(f.cfg.HomeDir, "alice")+":/sbin/nologin\n")

	shadow := readFile(t, filepath.Join(f.cfg.RunDir, "shadow.new"))
	assert.Contains(t, shadow, "manager:$6$m$h:20367:0:99999:7:::\n")
	assert.Contains(t, shadow, "alice:$6$s$h:20367:0:99999:7:::\n")

	group := readFile(t, filepath.Join(f.cfg.RunDir, "group.new"))
	assert.NotContains(t, group, "users:x:100:stale")
	assert.Contains(t, group, "manager:x:900:manager\n")
	assert.True(t, strings.HasSuffix(group, "users:x:100:alice\n"))

	// Temp files are renamed away.
	_, err := os.Stat(filepath.Join(f.cfg.RunDir, "passwd.tmp"))
	assert.True(t, os.IsNotExist(err))
}

func TestRemakeUnixFilesWithoutManagerRecord(t *testing.T) {
	f := newFixture(t, "")
	require.NoError(t, f.gen.RemakeUnixFiles(activeAlice()))

	passwd := readFile(t, filepath.Join(f.cfg.RunDir, "passwd.new"))
	assert.NotContains(t, passwd, "manager:")
	assert.Contains(t, passwd, "alice:x:1000:")
}

func TestRemakeMailFiles(t *testing.T) {
	f := newFixture(t, `{"email_domain": "mail.example", "icann_smtp_relay": "Relay.Example.Net."}`)
	require.NoError(t, os.WriteFile(f.cfg.TLDFile, []byte("com\nnet\n# comment\n"), 0o644))

	require.NoError(t, f.gen.RemakeMailFiles(activeAlice()))

	transport := readFile(t, filepath.Join(f.cfg.PostfixDataDir, "transport.new"))
	assert.True(t, strings.HasPrefix(transport, "mail.example local: $myhostname\n"))
	assert.Contains(t, transport, "alice local: $myhostname\n")
	assert.Contains(t, transport, "extra.example local: $myhostname\n")
	assert.NotContains(t, transport, "pending.example local:")
	assert.Contains(t, transport, ".com:     smtp: [relay.example.net]\n")
	assert.Contains(t, transport, ".net:     smtp: [relay.example.net]\n")

	virtual := readFile(t, filepath.Join(f.cfg.PostfixDataDir, "virtual.new"))
	for _, alias := range []string{"manager", "root", "postmaster", "postfix"} {
		assert.Contains(t, virtual, alias+"@mail.example manager\n")
	}
	assert.Contains(t, virtual, "alice@mail.example alice\n")
	assert.Contains(t, virtual, "extra.example@mail.example alice\n")
	// Exactly one line per currently-active identity.
	assert.Contains(t, virtual, "me@extra.example alice\n")
	assert.NotContains(t, virtual, "me@pending.example alice")

	var domains map[string]bool
	require.NoError(t, json.Unmarshal([]byte(readFile(t, f.cfg.DomainsFile)), &domains))
	assert.Equal(t, map[string]bool{"alice": true, "extra.example": true}, domains)
}

func TestRemakeMailFilesNoRelay(t *testing.T) {
	f := newFixture(t, "")
	require.NoError(t, f.gen.RemakeMailFiles(map[string]*record.UserRecord{}))

	transport := readFile(t, filepath.Join(f.cfg.PostfixDataDir, "transport.new"))
	assert.Equal(t, "mail.example local: $myhostname\n", transport)
}
