// Package sysfiles renders the two derived artifact sets from current
// active-user state: Unix credential fragments (passwd/shadow/group) and
// the mail-transport routing tables. Every pass is a full rewrite to a
// temp path followed by an atomic rename; an external installer picks up
// the ".new" results.
package sysfiles

import (
	"bufio"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/hostedmail/doms/internal/observability/metrics"
	"github.com/hostedmail/doms/internal/policy"
	"github.com/hostedmail/doms/internal/record"
)

type Config struct {
	BaseUnixDir    string
	RunDir         string
	PostfixDataDir string
	HomeDir        string
	DomainsFile    string
	TLDFile        string
}

type Generator struct {
	cfg   Config
	pol   *policy.Policy
	store *record.Store
	log   *zap.Logger
}

func New(cfg Config, pol *policy.Policy, store *record.Store, log *zap.Logger) *Generator {
	return &Generator{cfg: cfg, pol: pol, store: store, log: log.Named("sysfiles")}
}

// readBaseLines reads one of the static base fragment files, fresh each
// pass so out-of-band edits are picked up.
func readBaseLines(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, strings.TrimSpace(scanner.Text()))
	}
	return lines, scanner.Err()
}

// loadRelayTLDs reads the one-TLD-per-line relay list. Missing file means
// no relay rules.
func (g *Generator) loadRelayTLDs() []string {
	lines, err := readBaseLines(g.cfg.TLDFile)
	if err != nil {
		return nil
	}
	var tlds []string
	for _, line := range lines {
		line = strings.ToLower(strings.TrimSpace(line))
		if line != "" && !strings.HasPrefix(line, "#") {
			tlds = append(tlds, line)
		}
	}
	return tlds
}

func writeLines(tmp, final string, lines []string) error {
	if err := os.WriteFile(tmp, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, final)
}

func incRemade(set string) {
	metrics.Dispatch().IncFilesRemade(set)
}
