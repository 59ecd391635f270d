package sender

import (
	"os"
	"path/filepath"
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

func newChecker(t *testing.T) (*Checker, *record.Store) {
	t.Helper()
	dir := t.TempDir()

	policyFile := filepath.Join(dir, "policy.json")
	require.NoError(t, os.WriteFile(policyFile,
		[]byte(`{"email_domain": "mail.example"}`), 0o644))
	pol, err := policy.New(appconfig.Config{PolicyFile: policyFile}, zap.NewNop())
	require.NoError(t, err)

	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	store := record.NewStore(filepath.Join(dir, "users"), pol.ManagerAccount(), clk, zap.NewNop())

	return New(Params{Store: store, Policy: pol, Log: zap.NewNop()}), store
}

func seedActive(t *testing.T, store *record.Store) {
	t.Helper()
	require.NoError(t, store.Create("alice", &record.UserRecord{
		User: "alice",
		UID:  1000,
		Domains: map[string]bool{
			"alice":            true,
			"verified.example": true,
			"pending.example":  false,
		},
		Identities: []string{
			"me@verified.example",
			"me@pending.example",
		},
	}))
}

func TestCheckDefaultAddress(t *testing.T) {
	checker, store := newChecker(t)
	seedActive(t, store)

	ok, reason := checker.Check("alice", "alice@mail.example")
	assert.True(t, ok)
	assert.Equal(t, "default address", reason)

	// trailing dots and case are tolerated
	ok, _ = checker.Check("Alice.", "alice@MAIL.EXAMPLE.")
	assert.True(t, ok)
}

func TestCheckVerifiedIdentity(t *testing.T) {
	checker, store := newChecker(t)
	seedActive(t, store)

	ok, _ := checker.Check("alice", "me@verified.example")
	assert.True(t, ok)
}

func TestCheckPendingIdentityDenied(t *testing.T) {
	checker, store := newChecker(t)
	seedActive(t, store)

	ok, reason := checker.Check("alice", "me@pending.example")
	assert.False(t, ok)
	assert.Equal(t, "identity domain not active", reason)
}

func TestCheckUnknownIdentityDenied(t *testing.T) {
	checker, store := newChecker(t)
	seedActive(t, store)

	ok, reason := checker.Check("alice", "other@verified.example")
	assert.False(t, ok)
	assert.Equal(t, "not an identity", reason)
}

func TestCheckInactiveAccountDenied(t *testing.T) {
	checker, store := newChecker(t)
	require.NoError(t, store.Create("bob", &record.UserRecord{
		User:    "bob",
		Domains: map[string]bool{"bob": false},
	}))

	ok, reason := checker.Check("bob", "bob@mail.example")
	assert.False(t, ok)
	assert.Equal(t, "account not active", reason)
}

func TestCheckMissingAccountDenied(t *testing.T) {
	checker, _ := newChecker(t)

	ok, reason := checker.Check("ghost", "ghost@mail.example")
	assert.False(t, ok)
	assert.Equal(t, "no such account", reason)
}

func TestCheckBadInputDenied(t *testing.T) {
	checker, _ := newChecker(t)

	ok, _ := checker.Check("not/a/user", "x@y.example")
	assert.False(t, ok)
	ok, _ = checker.Check("alice", "not-an-email")
	assert.False(t, ok)
}
