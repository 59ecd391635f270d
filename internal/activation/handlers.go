package activation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// NewUserAdded pulls a freshly-registered account off disk into the user
// table. The account is not active yet; activation waits for its MX
// record to verify.
func (e *Engine) NewUserAdded(ctx context.Context, raw json.RawMessage) error {
	user, err := decodeUser(raw)
	if err != nil {
		return err
	}
	rec, err := e.store.Load(user)
	if err != nil {
		return fmt.Errorf("load new user %q: %w", user, err)
	}
	e.allUsers[user] = rec
	e.log.Info("user registered", zap.String("user", user))
	return nil
}

// EmailUsersWelcome drains the just-activated set, mailing each account
// a welcome (first activation) or reactivation notice. Invoked via the
// installer's callback once the new credential files are live.
func (e *Engine) EmailUsersWelcome(ctx context.Context, raw json.RawMessage) error {
	var firstErr error
	for _, user := range sortedKeys(e.justActivated) {
		template := "reactivated"
		if e.justActivated[user] {
			template = "welcome"
		}
		rec, ok := e.allUsers[user]
		if !ok {
			continue
		}
		if err := e.mail.Post(ctx, template, map[string]any{"user": rec}); err != nil {
			e.log.Error("activation mail failed",
				zap.String("user", user),
				zap.String("template", template),
				zap.Error(err),
			)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	e.justActivated = map[string]bool{}
	return firstErr
}

// PasswordChanged only needs the shadow fragment rebuilt; the record was
// already updated by the frontend.
func (e *Engine) PasswordChanged(ctx context.Context, raw json.RawMessage) error {
	e.needRemakeUnixFiles = true
	return nil
}

// AccountClosed removes the account entirely.
func (e *Engine) AccountClosed(ctx context.Context, raw json.RawMessage) error {
	user, err := decodeUser(raw)
	if err != nil {
		return err
	}
	return e.deleteUser(user)
}

// StartUpNewFiles regenerates every artifact set unconditionally, used
// to seed a fresh host.
func (e *Engine) StartUpNewFiles(ctx context.Context, raw json.RawMessage) error {
	active := e.ActiveUsers()
	if err := e.gen.RemakeUnixFiles(active); err != nil {
		return err
	}
	return e.gen.RemakeMailFiles(active)
}

// RemakeMailFilesFlag and RemakeUnixFilesFlag just raise the dirty flag;
// the dispatcher's post-pass does the actual regeneration.
func (e *Engine) RemakeMailFilesFlag(ctx context.Context, raw json.RawMessage) error {
	e.needRemakeMailFiles = true
	return nil
}

func (e *Engine) RemakeUnixFilesFlag(ctx context.Context, raw json.RawMessage) error {
	e.needRemakeUnixFiles = true
	return nil
}

// HandleRunMxCheck adapts RunMxCheck to the command shape: an absent or
// empty payload sweeps everyone, {"user": ...} checks one account.
func (e *Engine) HandleRunMxCheck(ctx context.Context, raw json.RawMessage) error {
	if len(raw) == 0 || string(raw) == "null" {
		return e.RunMxCheck(ctx, "")
	}
	var p userPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	return e.RunMxCheck(ctx, p.User)
}

// HandleUserAgeCheck adapts UserAgeCheck to the command shape.
func (e *Engine) HandleUserAgeCheck(ctx context.Context, raw json.RawMessage) error {
	return e.UserAgeCheck(ctx)
}

// IsBadPayload reports whether an error came from command decoding, so
// the dispatcher can log it without the failure backoff.
func IsBadPayload(err error) bool {
	return errors.Is(err, ErrBadPayload)
}
