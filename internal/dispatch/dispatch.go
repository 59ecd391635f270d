// Package dispatch pulls commands off the directory queue and routes
// them to the activation engine. One worker, one command at a time:
// every handler runs between a dirty-flag reset and a regeneration
// check, so a command's file side effects always land in the same pass
// that caused them.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/hostedmail/doms/internal/activation"
	"github.com/hostedmail/doms/internal/clock"
	obsmetrics "github.com/hostedmail/doms/internal/observability/metrics"
	"github.com/hostedmail/doms/internal/queue"
)

// Verbs accepted on the doms queue.
const (
	VerbNewUserAdded         = "new_user_added"
	VerbIdentityChanged      = "identity_changed"
	VerbEmailUsersWelcome    = "email_users_welcome"
	VerbUserAgeCheck         = "user_age_check"
	VerbRunMxCheck           = "run_mx_check"
	VerbRemakeUnixFiles      = "remake_unix_files"
	VerbRemakeMailFiles      = "remake_mail_files"
	VerbStartUpNewFiles      = "start_up_new_files"
	VerbPasswordChanged      = "password_changed"
	VerbAccountClosed        = "account_closed"
	VerbRequestPasswordReset = "request_password_reset"
)

var (
	ErrInvalidConfig = errors.New("dispatch: invalid configuration")
	ErrUnknownVerb   = errors.New("unknown verb")
)

// Handler is one verb's implementation on the engine.
type Handler func(ctx context.Context, data json.RawMessage) error

type Params struct {
	fx.In

	Engine *activation.Engine
	Queue  *queue.Queue
	Clock  clock.Clock
	Log    *zap.Logger
	Config Config `optional:"true"`
}

type Dispatcher struct {
	eng   *activation.Engine
	queue *queue.Queue
	clock clock.Clock
	log   *zap.Logger
	cfg   Config
	verbs map[string]Handler
}

func New(p Params) (*Dispatcher, error) {
	if p.Engine == nil || p.Queue == nil || p.Clock == nil || p.Log == nil {
		return nil, ErrInvalidConfig
	}
	d := &Dispatcher{
		eng:   p.Engine,
		queue: p.Queue,
		clock: p.Clock,
		log:   p.Log.Named("dispatch").With(zap.String("component", "dispatch")),
		cfg:   p.Config.withDefaults(),
	}
	d.verbs = map[string]Handler{
		VerbNewUserAdded:         p.Engine.NewUserAdded,
		VerbIdentityChanged:      p.Engine.IdentityChanged,
		VerbEmailUsersWelcome:    p.Engine.EmailUsersWelcome,
		VerbUserAgeCheck:         p.Engine.HandleUserAgeCheck,
		VerbRunMxCheck:           p.Engine.HandleRunMxCheck,
		VerbRemakeUnixFiles:      p.Engine.RemakeUnixFilesFlag,
		VerbRemakeMailFiles:      p.Engine.RemakeMailFilesFlag,
		VerbStartUpNewFiles:      p.Engine.StartUpNewFiles,
		VerbPasswordChanged:      p.Engine.PasswordChanged,
		VerbAccountClosed:        p.Engine.AccountClosed,
		VerbRequestPasswordReset: p.Engine.RequestPasswordReset,
	}
	return d, nil
}

// KnownVerb reports whether the dispatcher has a handler for the verb.
func (d *Dispatcher) KnownVerb(verb string) bool {
	_, ok := d.verbs[verb]
	return ok
}

// Dispatch runs one command end to end: dirty flags cleared, handler
// invoked, regeneration check on success. Returns ErrUnknownVerb for a
// verb with no handler.
func (d *Dispatcher) Dispatch(parent context.Context, verb string, data json.RawMessage) error {
	handler, ok := d.verbs[verb]
	if !ok {
		obsmetrics.Dispatch().IncUnknownVerb()
		return fmt.Errorf("%w: %q", ErrUnknownVerb, verb)
	}

	start := d.clock.Now()
	ctx, cancel := context.WithTimeout(parent, d.cfg.CommandTimeout)
	defer cancel()

	runID := uuid.NewString()
	log := d.log.With(
		zap.String("verb", verb),
		zap.String("run_id", runID),
	)
	dispMetrics := obsmetrics.Dispatch()
	dispMetrics.IncCommandRun(verb)
	log.Debug("running command")

	d.eng.ResetDirty()
	err := handler(ctx, data)
	dispMetrics.ObserveCommandDuration(verb, time.Since(start))
	if err != nil {
		dispMetrics.IncCommandError(verb)
		log.Error("command failed", zap.Error(err))
		return fmt.Errorf("%s: %w", verb, err)
	}

	if err := d.eng.CheckRemakeFiles(); err != nil {
		dispMetrics.IncCommandError(verb)
		log.Error("file regeneration failed", zap.Error(err))
		return fmt.Errorf("%s: %w", verb, err)
	}

	log.Debug("command complete")
	return nil
}
