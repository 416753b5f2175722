// Package supervise implements the crash-restart loop for the collector.
//
// The contract is blunt: run the collector to completion,
// and on any non-zero exit treat the failure as transient — sweep away
// lingering simulator processes and run the collector again. The collector
// keeps its own checkpoint state, so each restart resumes from wherever
// the previous run got to. The loop stops only on a clean exit, on
// operator cancellation, or (when configured) on an exhausted retry budget.
package supervise

import (
	"context"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/openlane-studio/carlactl/internal/model"
)

// Runner executes one collector invocation to completion.
//
// A non-zero exit code is returned as data, not an error; errors are
// reserved for infrastructure failures (unstartable binary, cancellation)
// that retrying cannot fix.
type Runner interface {
	Run(ctx context.Context) (exitCode int, err error)
}

// Reaper force-terminates lingering simulator instances between attempts.
//
// Reap must be best-effort and idempotent: it is called after every
// failed attempt whether or not a simulator process actually exists,
// and finding nothing to kill is success.
type Reaper interface {
	Reap(ctx context.Context) error
}

// Policy controls the pacing and budget of the restart loop.
//
// The zero-aggression default (constant delay, unbounded attempts) is
// "retry forever every 3 seconds"; both knobs exist so the contract stays
// the same while the constants become tunable.
type Policy struct {
	// Delay is the pause before each retry (the initial pause when
	// backoff is enabled).
	Delay time.Duration

	// BackoffFactor multiplies the pause after every failed attempt.
	// 1.0 keeps the pause constant.
	BackoffFactor float64

	// MaxDelay caps pause growth when BackoffFactor > 1.
	MaxDelay time.Duration

	// MaxAttempts bounds the number of collector invocations.
	// 0 means unbounded.
	MaxAttempts int
}

// delayFor computes the pause that precedes retry number `attempt`
// (1-based count of failures so far), using the same exponential shape
// as the rest of our retry tooling: delay * factor^(failures-1), capped.
func (p Policy) delayFor(failures int) time.Duration {
	if failures <= 1 || p.BackoffFactor <= 1.0 {
		return p.Delay
	}
	delay := time.Duration(float64(p.Delay) * math.Pow(p.BackoffFactor, float64(failures-1)))
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

// Supervisor ties a Runner and a Reaper together under a Policy.
type Supervisor struct {
	runner Runner
	reaper Reaper
	policy Policy
	log    logrus.FieldLogger
}

// New creates a Supervisor. The logger must not be nil — pass
// logrus.StandardLogger() when no customized logger is in play.
func New(runner Runner, reaper Reaper, policy Policy, log logrus.FieldLogger) *Supervisor {
	return &Supervisor{
		runner: runner,
		reaper: reaper,
		policy: policy,
		log:    log,
	}
}

// Run drives the supervision loop until the collector exits cleanly.
//
// Loop shape, per attempt:
//   - run the collector to completion and record its exit code
//   - exit 0 → success, return immediately (exactly one invocation when
//     the first run succeeds; the simulator sweep never fires on success)
//   - exit != 0 → log the failure, wait the policy delay, sweep lingering
//     simulator processes, and go again
//
// The returned report lists every attempt in order. The error is non-nil
// when the loop stopped for any reason other than a clean collector exit:
// operator cancellation, an unstartable command, or a spent retry budget.
func (s *Supervisor) Run(ctx context.Context) (*model.CollectReport, error) {
	report := &model.CollectReport{}

	for attempt := 1; ; attempt++ {
		s.log.WithField("attempt", attempt).Info("starting collector")

		started := time.Now()
		code, err := s.runner.Run(ctx)
		elapsed := time.Since(started)

		if err != nil {
			// Infrastructure failure, not a collector crash. Retrying an
			// unstartable command or a cancelled context cannot succeed.
			if ctx.Err() != nil {
				return report, model.WrapCLIError(model.ExitCancelled,
					"collection interrupted by operator", err)
			}
			return report, err
		}

		result := model.AttemptResult{
			Attempt:  attempt,
			ExitCode: code,
			Duration: elapsed,
		}

		if code == 0 {
			report.Attempts = append(report.Attempts, result)
			report.Succeeded = true
			s.log.WithField("attempts", attempt).Info("collection completed")
			return report, nil
		}

		// Every non-zero exit is treated identically: transient and
		// retryable. The sweep runs on every failure path, even when no
		// simulator process is left behind.
		result.KilledSimulator = true
		report.Attempts = append(report.Attempts, result)

		s.log.WithFields(logrus.Fields{
			"attempt":   attempt,
			"exit_code": code,
			"duration":  elapsed.Round(time.Millisecond),
		}).Warn("collector exited abnormally")

		if s.policy.MaxAttempts > 0 && attempt >= s.policy.MaxAttempts {
			// Budget spent — still sweep so no simulator is left behind.
			s.reap(ctx)
			return report, model.NewCLIError(model.ExitCollectorFailed,
				"collector did not complete within the retry budget")
		}

		// Give the crashed collector's resources a moment to settle,
		// then clear out whatever the crash left running.
		delay := s.policy.delayFor(attempt)
		s.log.WithField("delay", delay).Info("waiting before restart")
		if err := wait(ctx, delay); err != nil {
			return report, model.WrapCLIError(model.ExitCancelled,
				"collection interrupted by operator", err)
		}
		s.reap(ctx)
	}
}

// reap runs the simulator sweep, logging but otherwise ignoring failures.
// A sweep that finds nothing to kill is a success; a sweep that cannot
// reach the process table must not stop the loop either.
func (s *Supervisor) reap(ctx context.Context) {
	if err := s.reaper.Reap(ctx); err != nil {
		s.log.WithError(err).Warn("simulator cleanup failed, continuing anyway")
	}
}

// wait sleeps for d but returns early when the context is cancelled.
// The operator's Ctrl-C must not be stuck behind a long backoff pause.
func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
