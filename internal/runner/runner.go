// Package runner drives a run through the archive, verify and clean phases.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/eugenetaranov/hoard/internal/checksum"
	"github.com/eugenetaranov/hoard/internal/command"
	"github.com/eugenetaranov/hoard/internal/config"
	"github.com/eugenetaranov/hoard/internal/executor"
	"github.com/eugenetaranov/hoard/internal/output"
	"github.com/eugenetaranov/hoard/internal/result"
)

// Process exit codes.
const (
	ExitOK            = 0
	ExitStartup       = 1
	ExitUnknownKind   = 2
	ExitBatchError    = 3
	ExitChecksum      = 4
	ExitVerifySkipped = 5
	ExitCleanSkipped  = 6
)

var (
	// ErrVerifySkipped is returned when verification is refused because the
	// error flag is already set.
	ErrVerifySkipped = errors.New("verification skipped due to prior error")

	// ErrCleanSkipped is returned when cleanup is refused because the error
	// flag is set or verification has not passed.
	ErrCleanSkipped = errors.New("cleanup skipped due to prior error")

	// ErrChecksum is returned when any host failed verification.
	ErrChecksum = errors.New("checksum verification failed")
)

// State is a controller state.
type State string

// Controller states.
const (
	Idle      State = "idle"
	Archiving State = "archiving"
	Verifying State = "verifying"
	Cleaning  State = "cleaning"
	Done      State = "done"
	Failed    State = "failed"
)

// ExitError ends a run with a specific exit code.
type ExitError struct {
	Code  int
	Phase State
	Err   error
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s: %v", e.Phase, e.Err)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// ExitCode maps an error returned by the controller to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}

	switch {
	case errors.Is(err, command.ErrUnknownKind):
		return ExitUnknownKind
	case errors.Is(err, ErrVerifySkipped):
		return ExitVerifySkipped
	case errors.Is(err, ErrCleanSkipped):
		return ExitCleanSkipped
	case errors.Is(err, ErrChecksum):
		return ExitChecksum
	case errors.Is(err, executor.ErrBatchFailed):
		return ExitBatchError
	default:
		return ExitStartup
	}
}

// Options selects the requested actions.
type Options struct {
	// Clean enables the cleanup phase after successful verification.
	Clean bool
}

// Outcome summarizes a finished run.
type Outcome struct {
	RunID string
	State State

	// FailedPhase is the phase the run failed in, empty on success.
	FailedPhase State

	// History lists every state the controller entered, in order.
	History []State

	// Reports holds the verification reports, one per host.
	Reports []*checksum.Report

	Stats *Stats
}

// Stats holds run statistics.
type Stats struct {
	OK        int
	Failed    int
	Verified  int
	StartTime time.Time
	EndTime   time.Time
}

// GetOK returns the OK count (implements output.Stats).
func (s *Stats) GetOK() int { return s.OK }

// GetFailed returns the Failed count (implements output.Stats).
func (s *Stats) GetFailed() int { return s.Failed }

// GetVerified returns the number of verified files (implements output.Stats).
func (s *Stats) GetVerified() int { return s.Verified }

// GetDuration returns the duration (implements output.Stats).
func (s *Stats) GetDuration() time.Duration { return s.EndTime.Sub(s.StartTime) }

// Controller owns one run and moves it through its phases.
type Controller struct {
	Config       *config.Config
	Orchestrator *executor.Orchestrator
	Verifier     *checksum.Verifier
	Output       *output.Output
	Logger       *slog.Logger
	Options      Options

	run         *result.Run
	state       State
	history     []State
	failedPhase State
	verified    bool
	reports     []*checksum.Report
}

// New creates a controller for run. The verifier shares the orchestrator's
// layout and algorithm.
func New(cfg *config.Config, orch *executor.Orchestrator, run *result.Run, opts Options) *Controller {
	return &Controller{
		Config:       cfg,
		Orchestrator: orch,
		Verifier:     checksum.NewVerifier(orch.Layout, orch.Algorithm),
		Output:       orch.Output,
		Logger:       orch.Logger,
		Options:      opts,
		run:          run,
		state:        Idle,
		history:      []State{Idle},
	}
}

// State returns the current state.
func (c *Controller) State() State {
	return c.state
}

// Run executes the pipeline. The returned error is an *ExitError.
func (c *Controller) Run(ctx context.Context) (*Outcome, error) {
	if c.state != Idle {
		return nil, fmt.Errorf("run already started (state %s)", c.state)
	}

	stats := &Stats{StartTime: time.Now()}
	c.Output.RunStart(c.run.ID, c.Config.Path, len(c.Config.Sources))
	for _, src := range c.Config.Sources {
		if conn, err := command.ConnectorFor(src); err == nil {
			c.Output.Debug("%s via %s", src.Host, conn)
		}
	}

	err := c.pipeline(ctx)

	stats.EndTime = time.Now()
	c.collectStats(stats)
	c.Output.Recap(string(c.state), stats)

	return &Outcome{
		RunID:       c.run.ID,
		State:       c.state,
		FailedPhase: c.failedPhase,
		History:     append([]State(nil), c.history...),
		Reports:     c.reports,
		Stats:       stats,
	}, err
}

func (c *Controller) pipeline(ctx context.Context) error {
	if err := c.Archive(ctx); err != nil {
		return err
	}

	if _, err := c.Verify(ctx); err != nil {
		return err
	}

	if !c.Options.Clean {
		c.Output.Info("cleanup not requested, sources left in place")
		c.transition(Done)
		return nil
	}

	if err := c.Clean(ctx); err != nil {
		return err
	}

	c.transition(Done)
	return nil
}

// Archive copies every source folder into the archive tree.
func (c *Controller) Archive(ctx context.Context) error {
	c.transition(Archiving)
	c.Output.Phase("archive")

	err := c.Orchestrator.RunBatch(ctx, command.Archive, c.Config.Sources, c.run)
	if err != nil {
		return c.fail(classify(err, ExitBatchError), err)
	}
	return nil
}

// Verify checks the archived copies against hash listings taken on the
// hosts. It refuses to run once the error flag is set.
func (c *Controller) Verify(ctx context.Context) ([]*checksum.Report, error) {
	c.transition(Verifying)

	if c.run.Failed() {
		c.Logger.Debug("verification refused", "reason", c.run.Reason())
		return nil, c.fail(ExitVerifySkipped, fmt.Errorf("%w: %s", ErrVerifySkipped, c.run.Reason()))
	}

	c.Output.Phase("verify")

	err := c.Orchestrator.RunBatch(ctx, command.RemoteChecksum, c.Config.Sources, c.run)
	if err != nil && !errors.Is(err, executor.ErrBatchFailed) {
		return nil, c.fail(classify(err, ExitChecksum), err)
	}
	remote, _ := c.run.Store.Batch(command.RemoteChecksum.String())

	var reports []*checksum.Report
	if c.Config.VerifyMethod == config.VerifySweep {
		err := c.Orchestrator.RunBatch(ctx, command.LocalChecksum, c.Config.Sources, c.run)
		if err != nil && !errors.Is(err, executor.ErrBatchFailed) {
			return nil, c.fail(classify(err, ExitChecksum), err)
		}
		local, _ := c.run.Store.Batch(command.LocalChecksum.String())
		reports = c.Verifier.CompareBatches(remote, local)
	} else {
		reports = c.Verifier.VerifyBatch(remote)
	}
	c.reports = reports

	c.Output.Section("CHECKSUMS")
	for _, r := range reports {
		switch {
		case r.Passed():
			c.Output.HostResult(r.Host, fmt.Sprintf("ok (%d files)", r.Checked), "")
		case r.Mismatch != nil:
			c.Output.Mismatch(r.Host, r.Mismatch.Path, r.Mismatch.RemoteHash, r.Mismatch.LocalHash)
		default:
			c.Output.HostResult(r.Host, "failed", r.Err.Error())
		}
		c.Logger.Debug("verified", "host", r.Host, "checked", r.Checked, "error", r.Err)
	}

	if failed := checksum.Failed(reports); len(failed) > 0 {
		c.run.SetError(fmt.Sprintf("checksum failed on %s", failed[0].Host))
		return reports, c.fail(ExitChecksum, fmt.Errorf("%w: %d of %d hosts", ErrChecksum, len(failed), len(reports)))
	}
	if c.run.Failed() {
		return reports, c.fail(ExitChecksum, fmt.Errorf("%w: %s", ErrChecksum, c.run.Reason()))
	}

	c.verified = true
	return reports, nil
}

// Clean removes aged files from the hosts. It refuses to run unless
// verification passed and the error flag is unset.
func (c *Controller) Clean(ctx context.Context) error {
	c.transition(Cleaning)

	if c.run.Failed() || !c.verified {
		reason := c.run.Reason()
		if reason == "" {
			reason = "archive not verified"
		}
		c.Logger.Debug("cleanup refused", "reason", reason)
		return c.fail(ExitCleanSkipped, fmt.Errorf("%w: %s", ErrCleanSkipped, reason))
	}

	c.Output.Phase("clean")

	err := c.Orchestrator.RunBatch(ctx, command.Clean, c.Config.Sources, c.run)
	if err != nil {
		return c.fail(classify(err, ExitBatchError), err)
	}
	return nil
}

func (c *Controller) transition(s State) {
	c.Logger.Debug("state", "from", c.state, "to", s)
	c.state = s
	c.history = append(c.history, s)
}

// fail moves to Failed, remembering the phase that failed.
func (c *Controller) fail(code int, err error) error {
	phase := c.state
	c.failedPhase = phase
	c.transition(Failed)
	return &ExitError{Code: code, Phase: phase, Err: err}
}

// classify returns the exit code for a phase error, using fallback for
// batch failures.
func classify(err error, fallback int) int {
	switch {
	case errors.Is(err, command.ErrUnknownKind):
		return ExitUnknownKind
	case errors.Is(err, executor.ErrBatchFailed), errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return fallback
	default:
		return ExitStartup
	}
}

// collectStats counts host results across every batch of the run.
func (c *Controller) collectStats(stats *Stats) {
	for _, kind := range command.Kinds() {
		batch, ok := c.run.Store.Batch(kind.String())
		if !ok {
			continue
		}
		for _, host := range batch.Hosts() {
			r, _ := batch.Get(host)
			if !r.Done() {
				continue
			}
			if r.Failed() {
				stats.Failed++
			} else {
				stats.OK++
			}
		}
	}
	for _, r := range c.reports {
		stats.Verified += r.Checked
	}
}
