package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/hostedmail/doms/internal/activation"
	obsmetrics "github.com/hostedmail/doms/internal/observability/metrics"
	"github.com/hostedmail/doms/internal/queue"
)

// Startup brings the engine to running state: user table loaded, every
// domain re-verified, artifacts regenerated if anything changed. Dirty
// flags carry through from table loading: repairing a UID-less active
// record must reach the generated files in this same pass.
func (d *Dispatcher) Startup(ctx context.Context) error {
	if err := d.eng.Startup(); err != nil {
		return err
	}
	return d.eng.FinishStartup(ctx)
}

// RunOnce pops and runs at most one queued command. The bool reports
// whether a command was found; malformed files and unknown verbs are
// consumed, logged and counted as processed so the queue keeps moving.
func (d *Dispatcher) RunOnce(ctx context.Context) (bool, error) {
	path, err := d.queue.FindOldest(activation.NamespaceDoms)
	if errors.Is(err, queue.ErrEmpty) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	cmd, err := d.queue.Consume(path)
	if err != nil {
		d.log.Error("unreadable command dropped",
			zap.String("path", path), zap.Error(err))
		return true, nil
	}
	if cmd.Verb == "" {
		d.log.Error("command without verb dropped",
			zap.String("path", path), zap.String("origin", cmd.Origin))
		return true, nil
	}
	if !d.KnownVerb(cmd.Verb) {
		obsmetrics.Dispatch().IncUnknownVerb()
		d.log.Error("unsupported verb dropped",
			zap.String("verb", cmd.Verb), zap.String("origin", cmd.Origin))
		return true, nil
	}

	if err := d.Dispatch(ctx, cmd.Verb, cmd.Data); err != nil {
		return true, err
	}
	return true, nil
}

// RunForever is the worker loop: poll, run, sleep. An idle queue polls
// once a second; a failed command backs off longer so a poison message
// does not spin the host.
func (d *Dispatcher) RunForever(ctx context.Context) {
	dispMetrics := obsmetrics.Dispatch()
	d.log.Info("worker running")

	for {
		dispMetrics.SetQueueDepth(activation.NamespaceDoms, d.queue.Depth(activation.NamespaceDoms))

		processed, err := d.RunOnce(ctx)
		sleep := time.Duration(0)
		switch {
		case err != nil:
			sleep = d.cfg.FailureSleep
		case !processed:
			sleep = d.cfg.IdleSleep
		}
		if sleep == 0 {
			select {
			case <-ctx.Done():
				return
			default:
			}
			continue
		}

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// DispatchRaw runs one verb with a JSON-text payload, used by the
// run-one command line mode.
func (d *Dispatcher) DispatchRaw(ctx context.Context, verb, data string) error {
	var raw json.RawMessage
	if data != "" {
		raw = json.RawMessage(data)
	}
	return d.Dispatch(ctx, verb, raw)
}
