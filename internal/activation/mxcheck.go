package activation

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hostedmail/doms/internal/names"
	"github.com/hostedmail/doms/internal/record"
)

// RunMxCheck re-verifies domain delegation. With an empty user it sweeps
// the whole table; otherwise just the named account. Each sweep starts a
// fresh just-activated set.
func (e *Engine) RunMxCheck(ctx context.Context, user string) error {
	e.justActivated = map[string]bool{}
	if user == "" {
		for _, u := range sortedKeys(e.allUsers) {
			if err := e.checkOneUser(ctx, e.allUsers[u], false); err != nil {
				return err
			}
		}
		return nil
	}
	rec, ok := e.allUsers[user]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUserUnknown, user)
	}
	return e.checkOneUser(ctx, rec, false)
}

// checkOneUser verifies the account's pending domains (all domains when
// checkAll is set), then persists the domain map, accumulated audit
// events and a fresh last_login_dt in a single store update.
func (e *Engine) checkOneUser(ctx context.Context, rec *record.UserRecord, checkAll bool) error {
	if len(rec.Domains) == 0 {
		return nil
	}

	var events []record.Event
	changed := false
	for _, dom := range sortedKeys(rec.Domains) {
		if rec.Domains[dom] && !checkAll {
			continue
		}
		ev, didChange, err := e.checkOneDomain(ctx, rec, dom)
		if err != nil {
			return err
		}
		if didChange {
			changed = true
			events = append(events, ev)
		}
	}
	if !changed {
		return nil
	}

	e.log.Debug("saving user", zap.String("user", rec.User))
	upd := record.NewUpdate().
		Set("last_login_dt", record.Stamp(e.clock.Now())).
		Set("domains", rec.Domains).
		AppendEvents(events)
	saved, err := e.store.Update(rec.User, upd)
	if err != nil {
		return fmt.Errorf("save %q after mx check: %w", rec.User, err)
	}
	e.allUsers[rec.User] = saved
	return nil
}

// checkOneDomain resolves one domain and, when its verified state flips,
// applies the activation side effects. Returns the audit event and
// whether anything changed.
func (e *Engine) checkOneDomain(ctx context.Context, rec *record.UserRecord, domain string) (record.Event, bool, error) {
	user := rec.User
	wasActive := rec.Domains[domain]
	domActive := e.mxMatch(ctx, rec.MX, domain)

	e.log.Debug("domain checked",
		zap.String("user", user),
		zap.String("domain", domain),
		zap.Bool("active", domActive),
		zap.Bool("was_active", wasActive),
	)

	if domActive == wasActive {
		return record.Event{}, false, nil
	}

	e.needRemakeMailFiles = true

	if domain == user {
		if wasActive {
			delete(e.activeUsers, user)
		} else if rec.HasUID() {
			e.log.Debug("user reactivated", zap.String("user", user))
			e.justActivated[user] = false
			e.activeUsers[user] = true
		} else {
			if err := e.assignUID(rec); err != nil {
				return record.Event{}, false, err
			}
			e.log.Debug("user newly activated", zap.String("user", user))
			e.justActivated[user] = true
			e.activeUsers[user] = true
		}
		e.needRemakeUnixFiles = true
	} else if domActive {
		e.log.Debug("secondary domain activated",
			zap.String("user", user), zap.String("domain", domain))
		if err := e.mail.Post(ctx, "new_domain", map[string]any{
			"user":   rec,
			"domain": domain,
		}); err != nil {
			e.log.Error("new_domain mail failed",
				zap.String("user", user), zap.String("domain", domain), zap.Error(err))
		}
	}

	rec.Domains[domain] = domActive
	state := "inactive"
	if domActive {
		state = "active"
	}
	return record.Event{Desc: fmt.Sprintf("Domain '%s' is now %s", domain, state)}, true, nil
}

// mxMatch accepts a domain only when it has exactly one MX answer and
// that answer names the account's assigned relay inside our mail domain.
func (e *Engine) mxMatch(ctx context.Context, userMX, domain string) bool {
	if userMX == "" {
		return false
	}
	answers, err := e.resolver.LookupMX(ctx, domain)
	if err != nil || len(answers) != 1 {
		return false
	}
	want := names.Normalize(userMX + "." + e.pol.EmailDomain())
	return names.Normalize(answers[0].Host) == want
}
