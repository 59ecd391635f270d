package activation

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hostedmail/doms/internal/record"
)

// UserAgeCheck is the periodic sweep: first re-verify every domain of
// every account (full check, including currently-active domains), then
// expire inactive accounts. Accounts that once held a UID get the long
// grace period; accounts that never activated get the short one.
// Timestamps are compared as strings, which the record layout keeps
// sortable.
func (e *Engine) UserAgeCheck(ctx context.Context) error {
	e.log.Debug("user age check")

	for _, user := range sortedKeys(e.allUsers) {
		if err := e.checkOneUser(ctx, e.allUsers[user], true); err != nil {
			return err
		}
	}

	now := e.clock.Now()
	neverActiveCutoff := record.Stamp(now.Add(-time.Duration(e.pol.NeverActiveExpireDays()) * 24 * time.Hour))
	wasActiveCutoff := record.Stamp(now.Add(-time.Duration(e.pol.WasActiveExpireDays()) * 24 * time.Hour))

	for _, user := range sortedKeys(e.allUsers) {
		if e.activeUsers[user] {
			continue
		}
		rec := e.allUsers[user]
		cutoff := neverActiveCutoff
		if rec.HasUID() {
			cutoff = wasActiveCutoff
		}
		if rec.LastLoginDT < cutoff {
			e.log.Info("expiring inactive user",
				zap.String("user", user),
				zap.String("last_login_dt", rec.LastLoginDT),
			)
			if err := e.deleteUser(user); err != nil {
				return err
			}
		}
	}
	return nil
}
