// Package activation owns the domain/user activation state machine: MX
// verification, UID assignment, reactivation, age-based expiry and
// deletion. The engine's in-memory tables are a working snapshot; every
// mutation goes back through the record store's lock-merge-write path.
package activation

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/hostedmail/doms/internal/clock"
	"github.com/hostedmail/doms/internal/config"
	"github.com/hostedmail/doms/internal/dns"
	"github.com/hostedmail/doms/internal/mailer"
	"github.com/hostedmail/doms/internal/policy"
	"github.com/hostedmail/doms/internal/queue"
	"github.com/hostedmail/doms/internal/record"
	"github.com/hostedmail/doms/internal/sysfiles"
)

const (
	// Queue namespaces: this engine consumes "doms"; privileged file and
	// home-directory work is delegated to the "root" consumer.
	NamespaceDoms = "doms"
	NamespaceRoot = "root"
)

// UID pool handed to activated accounts.
const (
	uidPoolStart = 1000
	uidPoolEnd   = 30000
)

var (
	ErrUserUnknown = errors.New("user does not exist")
	ErrBadPayload  = errors.New("malformed command payload")
	ErrUIDPoolFull = errors.New("no free uid in pool")
)

type Params struct {
	fx.In

	Config    config.Config
	Store     *record.Store
	Queue     *queue.Queue
	Resolver  dns.Resolver
	Generator *sysfiles.Generator
	Mailer    mailer.Sender
	Policy    *policy.Policy
	Clock     clock.Clock
	Log       *zap.Logger
}

// Engine holds the in-process session state. It is owned by the single
// dispatcher worker; nothing here is safe for concurrent use and nothing
// needs to be.
type Engine struct {
	store    *record.Store
	queue    *queue.Queue
	resolver dns.Resolver
	gen      *sysfiles.Generator
	mail     mailer.Sender
	pol      *policy.Policy
	clock    clock.Clock
	log      *zap.Logger

	resetCodesDir string

	allUsers    map[string]*record.UserRecord
	activeUsers map[string]bool

	// justActivated maps user -> true for brand new activations, false
	// for reactivations; drained by the welcome-email pass.
	justActivated map[string]bool

	needRemakeMailFiles bool
	needRemakeUnixFiles bool
}

func New(p Params) (*Engine, error) {
	if p.Store == nil || p.Queue == nil || p.Resolver == nil || p.Generator == nil ||
		p.Mailer == nil || p.Policy == nil || p.Clock == nil || p.Log == nil {
		return nil, errors.New("activation: missing dependency")
	}
	return &Engine{
		store:         p.Store,
		queue:         p.Queue,
		resolver:      p.Resolver,
		gen:           p.Generator,
		mail:          p.Mailer,
		pol:           p.Policy,
		clock:         p.Clock,
		log:           p.Log.Named("activation").With(zap.String("component", "activation")),
		resetCodesDir: p.Config.ResetCodesDir,
		allUsers:      map[string]*record.UserRecord{},
		activeUsers:   map[string]bool{},
		justActivated: map[string]bool{},
	}, nil
}

// Startup loads every record into the user table, seeds the active set and
// reconciles any active account that is somehow missing a UID.
func (e *Engine) Startup() error {
	e.allUsers = map[string]*record.UserRecord{}
	if err := e.store.Walk(func(user string, rec *record.UserRecord) {
		e.allUsers[user] = rec
	}); err != nil {
		return fmt.Errorf("load users: %w", err)
	}

	e.activeUsers = map[string]bool{}
	for user, rec := range e.allUsers {
		if rec.IsActive() {
			e.activeUsers[user] = true
		}
	}
	for user := range e.activeUsers {
		if !e.allUsers[user].HasUID() {
			if err := e.assignUID(e.allUsers[user]); err != nil {
				return err
			}
		}
	}

	e.log.Info("user table loaded",
		zap.Int("users", len(e.allUsers)),
		zap.Int("active", len(e.activeUsers)),
	)
	return nil
}

// FinishStartup re-verifies every domain then regenerates whatever that
// marked dirty.
func (e *Engine) FinishStartup(ctx context.Context) error {
	if err := e.RunMxCheck(ctx, ""); err != nil {
		return err
	}
	return e.CheckRemakeFiles()
}

// ResetDirty clears both dirty flags; the dispatcher calls this before
// every handler so CheckRemakeFiles only reacts to that handler's work.
func (e *Engine) ResetDirty() {
	e.needRemakeMailFiles = false
	e.needRemakeUnixFiles = false
}

// ActiveUsers returns the records of currently-active accounts.
func (e *Engine) ActiveUsers() map[string]*record.UserRecord {
	active := make(map[string]*record.UserRecord, len(e.activeUsers))
	for user := range e.activeUsers {
		if rec, ok := e.allUsers[user]; ok {
			active[user] = rec
		}
	}
	return active
}

// IsActive reports whether an account is in the active set.
func (e *Engine) IsActive(user string) bool {
	return e.activeUsers[user]
}

// User returns the table snapshot of one account.
func (e *Engine) User(user string) (*record.UserRecord, bool) {
	rec, ok := e.allUsers[user]
	return rec, ok
}

// Dirty reports the current dirty flags (mail, unix).
func (e *Engine) Dirty() (bool, bool) {
	return e.needRemakeMailFiles, e.needRemakeUnixFiles
}

// findFreeUID scans the pool from the bottom and returns the first value
// no record currently holds.
func (e *Engine) findFreeUID() (int, error) {
	taken := map[int]bool{}
	for _, rec := range e.allUsers {
		if rec.HasUID() {
			taken[rec.UID] = true
		}
	}
	for uid := uidPoolStart; uid < uidPoolEnd; uid++ {
		if !taken[uid] {
			return uid, nil
		}
	}
	return 0, ErrUIDPoolFull
}

// assignUID gives an account its first UID, activates it and queues the
// home-directory build. Accounts that already hold a UID keep it.
func (e *Engine) assignUID(rec *record.UserRecord) error {
	if rec.HasUID() {
		return nil
	}
	uid, err := e.findFreeUID()
	if err != nil {
		return err
	}

	e.activeUsers[rec.User] = true
	rec.UID = uid
	if _, err := e.store.Update(rec.User, record.NewUpdate().Set("uid", uid)); err != nil {
		return fmt.Errorf("persist uid for %q: %w", rec.User, err)
	}

	if err := e.enqueueRoot("doms_runner_user_add", "make_home_dir", map[string]any{
		"uid":  uid,
		"user": rec.User,
	}); err != nil {
		return err
	}

	e.needRemakeUnixFiles = true
	e.log.Debug("uid assigned", zap.String("user", rec.User), zap.Int("uid", uid))
	return nil
}

// deleteUser removes an account everywhere: tables, disk, and (via the
// root queue) its home directory. Irreversible.
func (e *Engine) deleteUser(user string) error {
	delete(e.allUsers, user)
	delete(e.activeUsers, user)

	if err := e.store.Delete(user); err != nil {
		return err
	}
	if err := e.enqueueRoot("doms_delete_user", "remove_home_dir", map[string]any{
		"user": user,
	}); err != nil {
		return err
	}

	e.needRemakeMailFiles = true
	e.needRemakeUnixFiles = true
	e.log.Info("user deleted", zap.String("user", user))
	return nil
}

// CheckRemakeFiles regenerates whichever artifact sets are flagged dirty
// and, when anything changed, asks the installer to apply them. A welcome
// callback rides along when freshly-activated users are waiting.
func (e *Engine) CheckRemakeFiles() error {
	e.log.Debug("check remake files",
		zap.Bool("mail", e.needRemakeMailFiles),
		zap.Bool("unix", e.needRemakeUnixFiles),
	)

	data := map[string]any{}
	if e.needRemakeMailFiles {
		if err := e.gen.RemakeMailFiles(e.ActiveUsers()); err != nil {
			return err
		}
	}
	if e.needRemakeUnixFiles {
		if err := e.gen.RemakeUnixFiles(e.ActiveUsers()); err != nil {
			return err
		}
		if len(e.justActivated) > 0 {
			data["with_doms_callback"] = "email_users_welcome"
		}
	}

	if e.needRemakeMailFiles || e.needRemakeUnixFiles {
		if err := e.enqueueRoot("doms_check_remake_files", "install_system_files", data); err != nil {
			return err
		}
	}

	e.needRemakeMailFiles = false
	e.needRemakeUnixFiles = false
	return nil
}

func (e *Engine) enqueueRoot(origin, verb string, data map[string]any) error {
	raw, err := jsonMarshal(data)
	if err != nil {
		return err
	}
	return e.queue.Enqueue(NamespaceRoot, queue.Command{Origin: origin, Verb: verb, Data: raw})
}
