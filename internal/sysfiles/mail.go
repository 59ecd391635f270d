package sysfiles

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"github.com/hostedmail/doms/internal/record"
)

// RemakeMailFiles rebuilds the postfix transport and virtual-alias tables
// plus the active-domains index. Line syntax is fixed; downstream mail
// tooling parses these files verbatim.
func (g *Generator) RemakeMailFiles(active map[string]*record.UserRecord) error {
	emailDomain := g.pol.EmailDomain()
	relay := g.pol.SMTPRelay()
	manager := g.pol.ManagerAccount()
	users := sortedUsers(active)

	transport := []string{fmt.Sprintf("%s local: $myhostname", emailDomain)}
	for _, user := range users {
		for _, dom := range activeDomains(active[user]) {
			transport = append(transport, fmt.Sprintf("%s local: $myhostname", dom))
		}
	}
	if relay != "" {
		for _, tld := range g.loadRelayTLDs() {
			transport = append(transport, fmt.Sprintf(".%s:     smtp: [%s]", tld, relay))
		}
	}

	virtual := []string{
		fmt.Sprintf("manager@%s %s", emailDomain, manager),
		fmt.Sprintf("root@%s %s", emailDomain, manager),
		fmt.Sprintf("postmaster@%s %s", emailDomain, manager),
		fmt.Sprintf("postfix@%s %s", emailDomain, manager),
	}
	for _, user := range users {
		rec := active[user]
		for _, dom := range activeDomains(rec) {
			virtual = append(virtual, fmt.Sprintf("%s@%s %s", dom, emailDomain, user))
		}
		for _, email := range rec.Identities {
			if rec.IsEmailActive(email) {
				virtual = append(virtual, fmt.Sprintf("%s %s", email, user))
			}
		}
	}

	domains := map[string]bool{}
	for _, user := range users {
		for _, dom := range activeDomains(active[user]) {
			domains[dom] = true
		}
	}
	rawDomains, err := json.Marshal(domains)
	if err != nil {
		return err
	}
	if err := os.WriteFile(g.cfg.DomainsFile+".tmp", rawDomains, 0o644); err != nil {
		return fmt.Errorf("write domains index: %w", err)
	}
	if err := os.Rename(g.cfg.DomainsFile+".tmp", g.cfg.DomainsFile); err != nil {
		return err
	}

	for name, lines := range map[string][]string{"transport": transport, "virtual": virtual} {
		prefix := filepath.Join(g.cfg.PostfixDataDir, name)
		if err := writeLines(prefix+".tmp", prefix+".new", lines); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}

	incRemade("mail")
	g.log.Debug("mail files remade",
		zap.Int("active_users", len(users)),
		zap.Int("active_domains", len(domains)),
	)
	return nil
}

// activeDomains lists a record's verified domains in stable order.
func activeDomains(rec *record.UserRecord) []string {
	var doms []string
	for dom, isActive := range rec.Domains {
		if isActive {
			doms = append(doms, dom)
		}
	}
	sort.Strings(doms)
	return doms
}
