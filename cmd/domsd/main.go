// domsd is the account backend: a single worker that consumes the doms
// command queue, maintains user activation state and regenerates the
// host's credential and mail-routing files. It also serves the internal
// HTTP API used by the MTA.
//
// The -one flag runs a single verb against current state and exits,
// which is the operational escape hatch for replaying a command by hand.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/fx"

	"github.com/hostedmail/doms/internal/activation"
	"github.com/hostedmail/doms/internal/clock"
	"github.com/hostedmail/doms/internal/config"
	"github.com/hostedmail/doms/internal/dispatch"
	"github.com/hostedmail/doms/internal/dns"
	"github.com/hostedmail/doms/internal/mailer"
	"github.com/hostedmail/doms/internal/observability"
	"github.com/hostedmail/doms/internal/policy"
	"github.com/hostedmail/doms/internal/queue"
	"github.com/hostedmail/doms/internal/record"
	"github.com/hostedmail/doms/internal/sender"
	"github.com/hostedmail/doms/internal/server"
	"github.com/hostedmail/doms/internal/sysfiles"
)

func baseModules() fx.Option {
	return fx.Options(
		config.Module,
		observability.Module,
		clock.Module,
		policy.Module,
		record.Module,
		queue.Module,
		dns.Module,
		mailer.Module,
		sysfiles.Module,
		activation.Module,
	)
}

func main() {
	one := flag.String("one", "", "run a single verb and exit")
	data := flag.String("data", "", "JSON payload for -one")
	flag.Parse()

	if *one != "" {
		if err := runOne(*one, *data); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		return
	}

	app := fx.New(
		baseModules(),
		sender.Module,
		server.Module,
		dispatch.Module,
	)
	app.Run()
}

// runOne builds the same object graph as the daemon, minus the worker
// loop and HTTP server, and dispatches exactly one command.
func runOne(verb, data string) error {
	var d *dispatch.Dispatcher
	app := fx.New(
		baseModules(),
		fx.Provide(dispatch.ProvideConfig),
		fx.Provide(dispatch.New),
		fx.Populate(&d),
		fx.NopLogger,
	)

	ctx := context.Background()
	if err := app.Start(ctx); err != nil {
		return err
	}
	defer app.Stop(ctx)

	if !d.KnownVerb(verb) {
		return fmt.Errorf("unknown verb %q", verb)
	}
	if err := d.Startup(ctx); err != nil {
		return err
	}
	return d.DispatchRaw(ctx, verb, data)
}
