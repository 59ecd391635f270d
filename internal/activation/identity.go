package activation

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/hostedmail/doms/internal/names"
	"github.com/hostedmail/doms/internal/record"
)

// identityPayload arrives base64-wrapped: the producer ships raw form
// input, so both fields are opaque bytes until decoded here.
type identityPayload struct {
	User       string `json:"user"`
	Identities string `json:"identities"`
}

type identityItem struct {
	Email string `json:"Email"`
}

// IdentityChanged replaces an account's email identity list. The domain
// map is rebuilt so it tracks exactly the identity domains plus the
// account's own self-domain; known flags are preserved, new domains join
// as unverified. A no-op change saves nothing.
func (e *Engine) IdentityChanged(ctx context.Context, raw json.RawMessage) error {
	var p identityPayload
	if err := decodePayload(raw, &p); err != nil {
		return err
	}

	userBytes, err := base64.StdEncoding.DecodeString(p.User)
	if err != nil {
		return fmt.Errorf("%w: user: %v", ErrBadPayload, err)
	}
	user := names.ToASCII(string(userBytes))
	if user == "" {
		return fmt.Errorf("%w: unusable user name", ErrBadPayload)
	}

	identBytes, err := base64.StdEncoding.DecodeString(p.Identities)
	if err != nil {
		return fmt.Errorf("%w: identities: %v", ErrBadPayload, err)
	}
	var items []identityItem
	if err := json.Unmarshal(identBytes, &items); err != nil {
		return fmt.Errorf("%w: identities: %v", ErrBadPayload, err)
	}

	rec, ok := e.allUsers[user]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUserUnknown, user)
	}

	identities, identityDoms := e.cleanEmails(items)
	e.log.Debug("identity update",
		zap.String("user", user),
		zap.Strings("identities", identities),
	)

	oldKey := rec.ContentKey()

	rec.Identities = identities
	if rec.Domains == nil {
		rec.Domains = map[string]bool{}
	}
	for dom := range rec.Domains {
		if dom != user && !identityDoms[dom] {
			delete(rec.Domains, dom)
		}
	}
	for dom := range identityDoms {
		if _, known := rec.Domains[dom]; !known {
			rec.Domains[dom] = false
		}
	}

	if rec.ContentKey() == oldKey {
		e.log.Debug("identities unchanged", zap.String("user", user))
		return nil
	}

	e.needRemakeMailFiles = true

	upd := record.NewUpdate().
		Set("identities", rec.Identities).
		Set("domains", rec.Domains).
		AppendEvent(record.Event{Desc: "Email Identities updated"})
	saved, err := e.store.Update(user, upd)
	if err != nil {
		return fmt.Errorf("save identities for %q: %w", user, err)
	}
	e.allUsers[user] = saved

	return e.RunMxCheck(ctx, user)
}

// cleanEmails validates and normalizes the submitted identities: domain
// lowercased, local part kept as submitted, duplicates collapsed. Emails
// on our own mail domain are dropped: those mailboxes are already ours.
func (e *Engine) cleanEmails(items []identityItem) ([]string, map[string]bool) {
	emailDomain := e.pol.EmailDomain()
	var identities []string
	seen := map[string]bool{}
	doms := map[string]bool{}
	for _, item := range items {
		email := strings.TrimSuffix(strings.TrimSpace(item.Email), ".")
		if !names.IsValidEmail(email) {
			continue
		}
		local, dom := names.SplitEmail(email)
		if dom == emailDomain {
			continue
		}
		email = local + "@" + dom
		if seen[email] {
			continue
		}
		seen[email] = true
		identities = append(identities, email)
		doms[dom] = true
	}
	sort.Strings(identities)
	return identities, doms
}
