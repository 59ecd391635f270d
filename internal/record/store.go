package record

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
	"go.uber.org/zap"

	"github.com/hostedmail/doms/internal/clock"
)

var (
	// ErrNotFound is returned when a record file does not exist. Callers
	// decide what that means; it is never an internal failure.
	ErrNotFound = errors.New("record not found")
)

// Store is the authoritative on-disk account store: one JSON file per
// account under a two-level hashed shard tree. Other processes read and
// write these files directly, so every mutation re-reads current content
// under a per-record advisory lock before merging.
type Store struct {
	root    string
	manager string
	clock   clock.Clock
	log     *zap.Logger
}

func NewStore(root, managerAccount string, clk clock.Clock, log *zap.Logger) *Store {
	return &Store{
		root:    root,
		manager: managerAccount,
		clock:   clk,
		log:     log.Named("record"),
	}
}

// Path returns the record file path for an account.
func (s *Store) Path(user string) string {
	a, b := ShardPath(user, s.manager)
	return filepath.Join(s.root, a, b, user+".json")
}

func (s *Store) lockPath(user string) string {
	a, b := ShardPath(user, s.manager)
	return filepath.Join(s.root, a, b, user+".lock")
}

// Load reads an account record. Returns ErrNotFound when absent.
func (s *Store) Load(user string) (*UserRecord, error) {
	raw, err := os.ReadFile(s.Path(user))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read record %q: %w", user, err)
	}
	rec := &UserRecord{}
	if err := json.Unmarshal(raw, rec); err != nil {
		return nil, fmt.Errorf("decode record %q: %w", user, err)
	}
	rec.User = user
	return rec, nil
}

// Create writes a brand-new record, creating its shard directories lazily.
// The write is temp-then-rename like every other record write.
func (s *Store) Create(user string, rec *UserRecord) error {
	file := s.Path(user)
	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		return fmt.Errorf("make shard dir for %q: %w", user, err)
	}
	raw, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	return replaceFile(file, raw)
}

// Update applies a partial update under the record's advisory lock:
// lock, re-read, merge field by field, stamp amended_dt, write a temp file
// and rename it over the original. Returns the full updated record.
// Updating a missing record returns ErrNotFound; nothing is created.
func (s *Store) Update(user string, update *Update) (*UserRecord, error) {
	file := s.Path(user)
	if _, err := os.Stat(file); err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	lock := flock.New(s.lockPath(user))
	if err := lock.Lock(); err != nil {
		return nil, fmt.Errorf("lock record %q: %w", user, err)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			s.log.Warn("unlock record", zap.String("user", user), zap.Error(err))
		}
	}()

	// Another writer may have changed the file since the caller's last
	// read; merge against what is on disk now.
	raw, err := os.ReadFile(file)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	doc := map[string]json.RawMessage{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode record %q: %w", user, err)
	}

	now := Stamp(s.clock.Now())
	if err := update.apply(doc, now); err != nil {
		return nil, fmt.Errorf("apply update to %q: %w", user, err)
	}
	amended, _ := json.Marshal(now)
	doc["amended_dt"] = amended

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := replaceFile(file, out); err != nil {
		return nil, fmt.Errorf("write record %q: %w", user, err)
	}

	rec := &UserRecord{}
	if err := json.Unmarshal(out, rec); err != nil {
		return nil, err
	}
	rec.User = user
	return rec, nil
}

// Delete removes the record file. Missing records are not an error; the
// age sweep and account closure may race external cleanup. The lock file
// stays behind: removing it would let a writer still holding the old
// inode's flock coexist with one locking a fresh file.
func (s *Store) Delete(user string) error {
	if err := os.Remove(s.Path(user)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete record %q: %w", user, err)
	}
	return nil
}

// Walk loads every record in the shard tree except the manager account and
// hands it to fn. Unreadable files are logged and skipped so one corrupt
// record cannot block startup.
func (s *Store) Walk(fn func(user string, rec *UserRecord)) error {
	return filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".json") {
			return nil
		}
		user := strings.TrimSuffix(d.Name(), ".json")
		if user == s.manager {
			return nil
		}
		rec, err := s.Load(user)
		if err != nil {
			s.log.Warn("skipping unreadable record", zap.String("file", path), zap.Error(err))
			return nil
		}
		fn(user, rec)
		return nil
	})
}

// replaceFile writes data to a sibling temp file then atomically renames
// it into place, so readers never observe a partial write.
func replaceFile(file string, data []byte) error {
	tmp := file + ".new"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, file)
}
