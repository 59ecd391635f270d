// Package queue is the directory-backed command FIFO. Producers (this
// process and external collaborators) drop one JSON file per command into a
// namespace directory; the single consumer picks the oldest, reads it and
// deletes it before acting.
package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

// ErrEmpty is returned by FindOldest when a namespace has no pending
// commands.
var ErrEmpty = errors.New("queue empty")

// Command is one queued job. Data stays raw; only the handler knows its
// shape.
type Command struct {
	Origin string          `json:"origin,omitempty"`
	Verb   string          `json:"verb"`
	Data   json.RawMessage `json:"data,omitempty"`
}

type Queue struct {
	root string
	log  *zap.Logger
}

func New(root string, log *zap.Logger) *Queue {
	return &Queue{root: root, log: log.Named("queue")}
}

func (q *Queue) dir(namespace string) string {
	return filepath.Join(q.root, namespace)
}

// Enqueue writes a command file into a namespace. Filenames are ULIDs, so
// lexicographic order is creation order and the consumer can find the
// oldest pending command from a plain directory listing. The file appears
// atomically via rename.
func (q *Queue) Enqueue(namespace string, cmd Command) error {
	dir := q.dir(namespace)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("make queue dir %q: %w", namespace, err)
	}

	raw, err := json.Marshal(cmd)
	if err != nil {
		return err
	}

	name := ulid.Make().String() + ".json"
	tmp := filepath.Join(dir, "."+name+".tmp")
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write command: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(dir, name)); err != nil {
		return fmt.Errorf("publish command: %w", err)
	}

	q.log.Debug("command enqueued",
		zap.String("namespace", namespace),
		zap.String("verb", cmd.Verb),
		zap.String("origin", cmd.Origin),
	)
	return nil
}

// FindOldest returns the path of the earliest pending command in a
// namespace, or ErrEmpty.
func (q *Queue) FindOldest(namespace string) (string, error) {
	entries, err := os.ReadDir(q.dir(namespace))
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrEmpty
		}
		return "", err
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		return filepath.Join(q.dir(namespace), entry.Name()), nil
	}
	return "", ErrEmpty
}

// Consume reads a command file and deletes it. The delete happens before
// the command is acted on, so a crash mid-handler loses the command rather
// than replaying it; the periodic reconciliation verbs cover the drift.
func (q *Queue) Consume(path string) (Command, error) {
	var cmd Command
	raw, err := os.ReadFile(path)
	if err != nil {
		return cmd, fmt.Errorf("read command %q: %w", path, err)
	}
	if err := os.Remove(path); err != nil {
		return cmd, fmt.Errorf("remove command %q: %w", path, err)
	}
	if err := json.Unmarshal(raw, &cmd); err != nil {
		return cmd, fmt.Errorf("decode command %q: %w", path, err)
	}
	return cmd, nil
}

// Depth counts pending commands in a namespace, for the queue gauge.
func (q *Queue) Depth(namespace string) int {
	entries, err := os.ReadDir(q.dir(namespace))
	if err != nil {
		return 0
	}
	depth := 0
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".json") {
			depth++
		}
	}
	return depth
}
