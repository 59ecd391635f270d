// checksender is the MTA hook: given a base64 account name and sender
// address, print "OK" or "BAD" with no trailing newline. Exit status is
// always zero; the printed word is the answer.
package main

import (
	"encoding/base64"
	"flag"
	"fmt"
	"os"

	"go.uber.org/fx"

	"github.com/hostedmail/doms/internal/clock"
	"github.com/hostedmail/doms/internal/config"
	"github.com/hostedmail/doms/internal/observability"
	"github.com/hostedmail/doms/internal/policy"
	"github.com/hostedmail/doms/internal/record"
	"github.com/hostedmail/doms/internal/sender"
)

func main() {
	userArg := flag.String("u", "", "base64 account name")
	emailArg := flag.String("e", "", "base64 sender address")
	debug := flag.Bool("D", false, "print the denial reason to stderr")
	flag.Parse()

	user, err := base64.StdEncoding.DecodeString(*userArg)
	if err != nil {
		fmt.Print("BAD")
		return
	}
	email, err := base64.StdEncoding.DecodeString(*emailArg)
	if err != nil {
		fmt.Print("BAD")
		return
	}

	var checker *sender.Checker
	app := fx.New(
		config.Module,
		observability.Module,
		clock.Module,
		policy.Module,
		record.Module,
		sender.Module,
		fx.Populate(&checker),
		fx.NopLogger,
	)
	if err := app.Err(); err != nil {
		fmt.Print("BAD")
		return
	}

	ok, reason := checker.Check(string(user), string(email))
	if *debug && reason != "" {
		fmt.Fprintln(os.Stderr, reason)
	}
	if ok {
		fmt.Print("OK")
	} else {
		fmt.Print("BAD")
	}
}
