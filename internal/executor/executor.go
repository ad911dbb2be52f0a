// Package executor launches one external process per host and drives the
// batch to completion.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/eugenetaranov/hoard/internal/checksum"
	"github.com/eugenetaranov/hoard/internal/command"
	"github.com/eugenetaranov/hoard/internal/config"
	"github.com/eugenetaranov/hoard/internal/layout"
	"github.com/eugenetaranov/hoard/internal/logsink"
	"github.com/eugenetaranov/hoard/internal/output"
	"github.com/eugenetaranov/hoard/internal/result"
)

// ErrBatchFailed is returned when a batch ends with the error flag set.
var ErrBatchFailed = errors.New("batch failed")

// Orchestrator runs batches of per-host processes.
type Orchestrator struct {
	// Launcher starts the processes.
	Launcher Launcher

	// Layout maps hosts to their archive folders.
	Layout *layout.Builder

	// Algorithm is used by the checksum kinds.
	Algorithm checksum.Algorithm

	// Output handles console output.
	Output *output.Output

	// Sink receives the captured streams after each batch. Nil disables
	// file logging.
	Sink *logsink.Sink

	// Logger receives diagnostic messages.
	Logger *slog.Logger

	// PollInterval is the pause between sweeps over live processes.
	PollInterval time.Duration

	// Timeout is the per-process deadline. Zero disables it.
	Timeout time.Duration

	now func() time.Time
}

// New creates an orchestrator with default settings.
func New(launcher Launcher, b *layout.Builder, alg checksum.Algorithm) *Orchestrator {
	return &Orchestrator{
		Launcher:     launcher,
		Layout:       b,
		Algorithm:    alg,
		Output:       output.New(os.Stdout),
		Logger:       slog.New(slog.DiscardHandler),
		PollInterval: config.DefaultPollInterval,
		Timeout:      config.DefaultTimeout,
		now:          time.Now,
	}
}

// Handle tracks one launched process.
type Handle struct {
	Host    string
	Command *command.Command

	proc     Process
	started  time.Time
	deadline time.Time

	// reason is set once the orchestrator killed the process.
	reason string
}

// RunBatch launches kind on every source and waits for all of them.
func (o *Orchestrator) RunBatch(ctx context.Context, kind command.Kind, sources []*config.Source, run *result.Run) error {
	handles, err := o.LaunchBatch(ctx, kind, sources, run)
	if err != nil {
		return err
	}
	return o.AwaitBatch(ctx, kind, handles, run)
}

// LaunchBatch starts one process per source without waiting for any of
// them. Hosts that fail to start are recorded as failures right away.
func (o *Orchestrator) LaunchBatch(ctx context.Context, kind command.Kind, sources []*config.Source, run *result.Run) ([]*Handle, error) {
	hosts := make([]string, 0, len(sources))
	for _, src := range sources {
		hosts = append(hosts, src.Host)
	}
	batch := run.Store.Init(kind.String(), hosts)

	// Build every command first so a bad kind or layout launches nothing.
	cmds := make([]*command.Command, 0, len(sources))
	for _, src := range sources {
		localPath, err := o.localPath(kind, src)
		if err != nil {
			return nil, err
		}

		cmd, err := command.Build(kind, command.Target{
			Source:    src,
			LocalPath: localPath,
			Algorithm: o.Algorithm,
		})
		if err != nil {
			return nil, err
		}
		cmds = append(cmds, cmd)
	}

	handles := make([]*Handle, 0, len(cmds))
	for _, cmd := range cmds {
		o.Output.HostAction(actionVerb(kind), cmd.Host)
		o.Output.Command(cmd.Host, cmd.String())
		o.Logger.Debug("launching", "kind", kind, "host", cmd.Host, "cmd", cmd.String())

		started := o.now()
		proc, err := o.Launcher.Start(ctx, cmd)
		if err != nil {
			o.record(batch, run, cmd.Host, result.HostResult{
				ReturnCode: intPtr(-1),
				Stderr:     []byte(err.Error() + "\n"),
			})
			continue
		}

		h := &Handle{
			Host:    cmd.Host,
			Command: cmd,
			proc:    proc,
			started: started,
		}
		if o.Timeout > 0 {
			h.deadline = started.Add(o.Timeout)
		}
		handles = append(handles, h)
	}

	return handles, nil
}

// AwaitBatch polls the handles until every process has terminated, then
// flushes the batch to the log sink.
func (o *Orchestrator) AwaitBatch(ctx context.Context, kind command.Kind, handles []*Handle, run *result.Run) error {
	batch, ok := run.Store.Batch(kind.String())
	if !ok {
		return fmt.Errorf("%s: batch not launched", kind)
	}

	active := append([]*Handle(nil), handles...)
	interrupted := false

	for len(active) > 0 {
		if ctx.Err() != nil && !interrupted {
			interrupted = true
			for _, h := range active {
				o.kill(h, "interrupted")
			}
		}

		now := o.now()
		remaining := active[:0]
		for _, h := range active {
			if exit, done := h.proc.Poll(); done {
				o.finish(batch, run, h, exit, now)
				continue
			}
			if h.reason == "" && !h.deadline.IsZero() && now.After(h.deadline) {
				o.kill(h, "timeout")
			}
			remaining = append(remaining, h)
		}
		active = remaining

		if len(active) > 0 {
			o.sleep(ctx, interrupted)
		}
	}

	if o.Sink != nil {
		if err := o.Sink.Flush(batch); err != nil {
			o.Output.Warn("Failed to write logs: %v", err)
			o.Logger.Warn("log flush failed", "kind", kind, "error", err)
		}
	}

	if interrupted {
		return fmt.Errorf("%s: %w", kind, ctx.Err())
	}
	if failed := batch.Failed(); len(failed) > 0 {
		return fmt.Errorf("%s: %w on %s", kind, ErrBatchFailed, strings.Join(failed, ", "))
	}
	if run.Failed() {
		return fmt.Errorf("%s: %w", kind, ErrBatchFailed)
	}
	return nil
}

// finish records a terminated process.
func (o *Orchestrator) finish(batch *result.Batch, run *result.Run, h *Handle, exit *Exit, now time.Time) {
	r := result.HostResult{
		ReturnCode: intPtr(exit.Code),
		Stdout:     exit.Stdout,
		Stderr:     exit.Stderr,
		Duration:   now.Sub(h.started),
	}

	if h.reason != "" {
		r.ReturnCode = intPtr(-1)
		r.TimedOut = h.reason == "timeout"
		msg := fmt.Sprintf("killed: %s", h.reason)
		if r.TimedOut {
			msg = fmt.Sprintf("killed: no exit after %s", o.Timeout)
		}
		r.Stderr = append(append([]byte(nil), r.Stderr...), []byte(msg+"\n")...)
	}

	o.record(batch, run, h.Host, r)
}

// record stores a host result and sets the error flag if it failed.
func (o *Orchestrator) record(batch *result.Batch, run *result.Run, host string, r result.HostResult) {
	if err := batch.Record(host, r); err != nil {
		o.Logger.Error("record failed", "host", host, "error", err)
		return
	}

	o.Logger.Debug("terminated", "kind", batch.Namespace, "host", host,
		"code", r.Code(), "duration", r.Duration, "timed_out", r.TimedOut)

	if r.Failed() {
		run.SetError(fmt.Sprintf("%s failed on %s", batch.Namespace, host))
	}

	status := "ok"
	switch {
	case r.TimedOut:
		status = "timeout"
	case r.Failed():
		status = fmt.Sprintf("failed (rc=%d)", r.Code())
	}

	o.Output.HostResult(host, status, strings.TrimSpace(string(r.Stderr)))
	o.Output.Stream(host, "stdout", r.Stdout)
}

func (o *Orchestrator) kill(h *Handle, reason string) {
	h.reason = reason
	if err := h.proc.Kill(); err != nil {
		o.Logger.Warn("kill failed", "host", h.Host, "error", err)
	}
	o.Logger.Debug("killed", "host", h.Host, "reason", reason)
}

// sleep pauses between sweeps. Cancellation cuts the pause short so the
// remaining processes are killed promptly.
func (o *Orchestrator) sleep(ctx context.Context, interrupted bool) {
	interval := o.PollInterval
	if interval <= 0 {
		interval = config.DefaultPollInterval
	}

	t := time.NewTimer(interval)
	defer t.Stop()

	if interrupted {
		<-t.C
		return
	}
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// localPath returns the archive folder for a source. Archiving creates it.
func (o *Orchestrator) localPath(kind command.Kind, src *config.Source) (string, error) {
	if kind == command.Archive {
		return o.Layout.Ensure(src.Host, src.Folder)
	}
	return o.Layout.Path(src.Host, src.Folder), nil
}

func actionVerb(kind command.Kind) string {
	switch kind {
	case command.Archive:
		return "Archiving"
	case command.Clean:
		return "Cleaning"
	case command.RemoteChecksum:
		return "Hashing remote"
	case command.LocalChecksum:
		return "Hashing local"
	default:
		return "Running " + kind.String()
	}
}

func intPtr(i int) *int {
	return &i
}
