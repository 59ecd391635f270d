package sysfiles

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/hostedmail/doms/internal/record"
)

const (
	managerUID   = 900
	usersGID     = 100
	nologinShell = "/sbin/nologin"
	// Fixed shadow aging fields; accounts never expire through shadow.
	shadowAging = "20367:0:99999:7:::"
)

// RemakeUnixFiles rebuilds the passwd/shadow/group fragments from the base
// templates plus one line per active user (and the manager account), then
// renames each result to "<file>.new" for the installer.
func (g *Generator) RemakeUnixFiles(active map[string]*record.UserRecord) error {
	base := map[string][]string{}
	for _, name := range []string{"passwd", "shadow", "group"} {
		lines, err := readBaseLines(filepath.Join(g.cfg.BaseUnixDir, name))
		if err != nil {
			return fmt.Errorf("read base %s: %w", name, err)
		}
		base[name] = lines
	}

	manager, err := g.store.Load(g.pol.ManagerAccount())
	if err != nil && !errors.Is(err, record.ErrNotFound) {
		return err
	}
	haveManager := err == nil

	users := sortedUsers(active)

	passwd := base["passwd"]
	if haveManager {
		passwd = append(passwd, fmt.Sprintf("%s:x:%d:%d::%s:%s",
			manager.User, managerUID, managerUID,
			filepath.Join(g.cfg.HomeDir, manager.User), nologinShell))
	}
	for _, user := range users {
		passwd = append(passwd, fmt.Sprintf("%s:x:%d:%d::%s:%s",
			user, active[user].UID, usersGID,
			filepath.Join(g.cfg.HomeDir, user), nologinShell))
	}

	shadow := base["shadow"]
	if haveManager {
		shadow = append(shadow, fmt.Sprintf("%s:%s:%s", manager.User, manager.Password, shadowAging))
	}
	for _, user := range users {
		shadow = append(shadow, fmt.Sprintf("%s:%s:%s", user, active[user].Password, shadowAging))
	}

	// The users group line is regenerated wholesale; drop any stale one
	// from the base.
	var group []string
	for _, line := range base["group"] {
		if len(line) < 6 || line[:6] != "users:" {
			group = append(group, line)
		}
	}
	if haveManager {
		group = append(group, fmt.Sprintf("%s:x:%d:%s", manager.User, managerUID, manager.User))
	}
	group = append(group, fmt.Sprintf("users:x:%d:%s", usersGID, strings.Join(users, ",")))

	for name, lines := range map[string][]string{"passwd": passwd, "shadow": shadow, "group": group} {
		tmp := filepath.Join(g.cfg.RunDir, name+".tmp")
		final := filepath.Join(g.cfg.RunDir, name+".new")
		if err := writeLines(tmp, final, lines); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}

	incRemade("unix")
	g.log.Debug("unix files remade", zap.Int("active_users", len(users)))
	return nil
}

func sortedUsers(active map[string]*record.UserRecord) []string {
	users := make([]string, 0, len(active))
	for user := range active {
		users = append(users, user)
	}
	sort.Strings(users)
	return users
}
