package queue

import (
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestEnqueueFindOldestConsume(t *testing.T) {
	q := New(t.TempDir(), zap.NewNop())

	require.NoError(t, q.Enqueue("doms", Command{Origin: "test", Verb: "first"}))
	require.NoError(t, q.Enqueue("doms", Command{Origin: "test", Verb: "second"}))
	require.NoError(t, q.Enqueue("root", Command{Origin: "test", Verb: "other"}))

	assert.Equal(t, 2, q.Depth("doms"))

	path, err := q.FindOldest("doms")
	require.NoError(t, err)
	cmd, err := q.Consume(path)
	require.NoError(t, err)
	assert.Equal(t, "first", cmd.Verb)

	// Consumption is destructive: the file is gone even before the
	// handler runs.
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))

	path, err = q.FindOldest("doms")
	require.NoError(t, err)
	cmd, err = q.Consume(path)
	require.NoError(t, err)
	assert.Equal(t, "second", cmd.Verb)

	_, err = q.FindOldest("doms")
	assert.ErrorIs(t, err, ErrEmpty)

	// Other namespaces are untouched.
	assert.Equal(t, 1, q.Depth("root"))
}

func TestFindOldestEmptyNamespace(t *testing.T) {
	q := New(t.TempDir(), zap.NewNop())
	_, err := q.FindOldest("nothing")
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestCommandDataRoundTrip(t *testing.T) {
	q := New(t.TempDir(), zap.NewNop())

	data, _ := json.Marshal(map[string]string{"user": "alice"})
	require.NoError(t, q.Enqueue("doms", Command{Verb: "new_user_added", Data: data}))

	path, err := q.FindOldest("doms")
	require.NoError(t, err)
	cmd, err := q.Consume(path)
	require.NoError(t, err)

	var decoded map[string]string
	require.NoError(t, json.Unmarshal(cmd.Data, &decoded))
	assert.Equal(t, "alice", decoded["user"])
}
