// Package sender answers the MTA's question "may this account send as
// this address?". Allowed are the account's default address on our own
// mail domain plus any identity whose domain is currently verified.
package sender

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/hostedmail/doms/internal/names"
	"github.com/hostedmail/doms/internal/policy"
	"github.com/hostedmail/doms/internal/record"
)

type Params struct {
	fx.In

	Store  *record.Store
	Policy *policy.Policy
	Log    *zap.Logger
}

type Checker struct {
	store *record.Store
	pol   *policy.Policy
	log   *zap.Logger
}

func New(p Params) *Checker {
	return &Checker{
		store: p.Store,
		pol:   p.Policy,
		log:   p.Log.Named("sender").With(zap.String("component", "sender")),
	}
}

// Check reports whether the account may send from the address, with a
// short reason for the denial log.
func (c *Checker) Check(inUser, inEmail string) (bool, string) {
	if !names.IsValidAccount(names.Normalize(inUser)) || !names.IsValidEmail(names.Normalize(inEmail)) {
		return false, "failed basic validation"
	}

	user := names.Normalize(inUser)
	local, dom := names.SplitEmail(inEmail)
	email := local + "@" + dom

	rec, err := c.store.Load(user)
	if err != nil {
		return false, "no such account"
	}

	if !rec.IsActive() {
		return false, "account not active"
	}

	if dom == c.pol.EmailDomain() && local == user {
		return true, "default address"
	}

	if !containsIdentity(rec.Identities, email) {
		return false, "not an identity"
	}

	if !rec.IsEmailActive(email) {
		return false, "identity domain not active"
	}

	return true, ""
}

func containsIdentity(identities []string, email string) bool {
	for _, id := range identities {
		if id == email {
			return true
		}
	}
	return false
}

var Module = fx.Module("sender",
	fx.Provide(New),
)
