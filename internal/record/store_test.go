package record

import (
	"encoding/json"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hostedmail/doms/internal/clock"
)

func testStore(t *testing.T) (*Store, *clock.FakeClock) {
	t.Helper()
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	return NewStore(t.TempDir(), "manager", clk, zap.NewNop()), clk
}

func seedUser(t *testing.T, s *Store, user string) *UserRecord {
	t.Helper()
	rec := &UserRecord{
		MX:          "tokentoken",
		Password:    "$6$salt$hash",
		Email:       "owner@example.com",
		CreatedDT:   "2025-05-01 09:00:00",
		AmendedDT:   "2025-05-01 09:00:00",
		LastLoginDT: "2025-05-01 09:00:00",
		Domains:     map[string]bool{user: false},
		Identities:  []string{},
		Events:      []Event{{WhenDT: "2025-05-01 09:00:00", Desc: "Account first registered"}},
	}
	require.NoError(t, s.Create(user, rec))
	return rec
}

func TestCreateLoadRoundTrip(t *testing.T) {
	s, _ := testStore(t)
	seedUser(t, s, "alice")

	rec, err := s.Load("alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", rec.User)
	assert.Equal(t, "tokentoken", rec.MX)
	assert.Equal(t, map[string]bool{"alice": false}, rec.Domains)
	assert.Len(t, rec.Events, 1)
}

func TestLoadMissingReturnsNotFound(t *testing.T) {
	s, _ := testStore(t)
	_, err := s.Load("ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateMissingCreatesNothing(t *testing.T) {
	s, _ := testStore(t)
	_, err := s.Update("ghost", NewUpdate().Set("uid", 1000))
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = os.Stat(s.Path("ghost"))
	assert.True(t, os.IsNotExist(err))
}

func TestUpdateSetDeleteAndStamp(t *testing.T) {
	s, clk := testStore(t)
	seedUser(t, s, "alice")

	rec, err := s.Update("alice", NewUpdate().
		Set("uid", 1000).
		Delete("email"))
	require.NoError(t, err)
	assert.Equal(t, 1000, rec.UID)
	assert.Empty(t, rec.Email)
	assert.Equal(t, Stamp(clk.Now()), rec.AmendedDT)

	// Unnamed fields survive untouched.
	assert.Equal(t, "$6$salt$hash", rec.Password)
	assert.Equal(t, "2025-05-01 09:00:00", rec.LastLoginDT)
}

func TestUpdateAppendsEventsMonotonically(t *testing.T) {
	s, clk := testStore(t)
	seedUser(t, s, "alice")

	rec, err := s.Update("alice", NewUpdate().AppendEvent(Event{Desc: "first"}))
	require.NoError(t, err)
	require.Len(t, rec.Events, 2)
	assert.Equal(t, "Account first registered", rec.Events[0].Desc)
	assert.Equal(t, "first", rec.Events[1].Desc)
	// when_dt auto-filled from the clock when absent.
	assert.Equal(t, Stamp(clk.Now()), rec.Events[1].WhenDT)

	rec, err = s.Update("alice", NewUpdate().AppendEvents([]Event{
		{WhenDT: "2025-06-02 00:00:00", Desc: "second"},
		{Desc: "third"},
	}))
	require.NoError(t, err)
	require.Len(t, rec.Events, 4)
	assert.Equal(t, "2025-06-02 00:00:00", rec.Events[2].WhenDT)
	assert.Equal(t, "third", rec.Events[3].Desc)
}

func TestConcurrentDisjointFieldUpdatesBothSurvive(t *testing.T) {
	s, _ := testStore(t)
	seedUser(t, s, "alice")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := s.Update("alice", NewUpdate().Set("uid", 1234))
		assert.NoError(t, err)
	}()
	go func() {
		defer wg.Done()
		_, err := s.Update("alice", NewUpdate().Set("last_login_dt", "2025-06-01 13:00:00"))
		assert.NoError(t, err)
	}()
	wg.Wait()

	rec, err := s.Load("alice")
	require.NoError(t, err)
	assert.Equal(t, 1234, rec.UID)
	assert.Equal(t, "2025-06-01 13:00:00", rec.LastLoginDT)
}

func TestUpdateMergesAgainstDiskNotCallerSnapshot(t *testing.T) {
	s, _ := testStore(t)
	seedUser(t, s, "alice")

	// Simulate another process writing the record directly.
	raw, err := os.ReadFile(s.Path("alice"))
	require.NoError(t, err)
	doc := map[string]json.RawMessage{}
	require.NoError(t, json.Unmarshal(raw, &doc))
	doc["uid"] = json.RawMessage("2000")
	out, err := json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(s.Path("alice"), out, 0o644))

	rec, err := s.Update("alice", NewUpdate().Set("password", "new-hash"))
	require.NoError(t, err)
	assert.Equal(t, 2000, rec.UID, "out-of-band write must survive the merge")
	assert.Equal(t, "new-hash", rec.Password)
}

func TestDeleteIsIdempotent(t *testing.T) {
	s, _ := testStore(t)
	seedUser(t, s, "alice")

	require.NoError(t, s.Delete("alice"))
	_, err := s.Load("alice")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, s.Delete("alice"))
}

func TestDeleteLeavesLockFile(t *testing.T) {
	s, _ := testStore(t)
	seedUser(t, s, "alice")

	// an update materializes the lock file
	_, err := s.Update("alice", NewUpdate().Set("uid", 1000))
	require.NoError(t, err)
	_, err = os.Stat(s.lockPath("alice"))
	require.NoError(t, err)

	require.NoError(t, s.Delete("alice"))
	_, err = os.Stat(s.lockPath("alice"))
	assert.NoError(t, err)
}

func TestWalkSkipsManager(t *testing.T) {
	s, _ := testStore(t)
	seedUser(t, s, "alice")
	seedUser(t, s, "bob")
	seedUser(t, s, "manager")

	seen := map[string]bool{}
	require.NoError(t, s.Walk(func(user string, rec *UserRecord) {
		seen[user] = true
		assert.Equal(t, user, rec.User)
	}))
	assert.Equal(t, map[string]bool{"alice": true, "bob": true}, seen)
}
