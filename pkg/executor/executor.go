// Package executor walks a publish plan and pushes releases to the
// registry, strictly one step at a time.
//
// Sequential execution is load-bearing: a dependency must be visible on
// the registry before its dependent's publish request, which references
// it, can succeed. The executor never reorders, never parallelizes, and
// never continues past a failed step.
package executor

import (
	"context"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/convoy-dev/convoy/pkg/errors"
	"github.com/convoy-dev/convoy/pkg/httputil"
	"github.com/convoy-dev/convoy/pkg/observability"
	"github.com/convoy-dev/convoy/pkg/planner"
	"github.com/convoy-dev/convoy/pkg/registry"
	"github.com/convoy-dev/convoy/pkg/workspace"
)

// DefaultVisibilityInterval is the poll interval while waiting for a
// just-published version to become visible.
const DefaultVisibilityInterval = 2 * time.Second

// Options configures one publish run.
type Options struct {
	// Retry is the per-step retry policy for transient registry
	// failures. Zero value means [httputil.DefaultPolicy].
	Retry httputil.Policy

	// VisibilityTimeout bounds how long to wait after a publish for
	// the new version to show up in registry reads. Zero disables the
	// wait. The registry is eventually consistent; publishing a
	// dependent before its dependency is visible fails spuriously.
	VisibilityTimeout time.Duration

	// VisibilityInterval is the poll interval during the visibility
	// wait. Zero means [DefaultVisibilityInterval].
	VisibilityInterval time.Duration

	// AfterPublishDelay is an extra pause after each successful
	// publish, as a courtesy to rate-limited registries.
	AfterPublishDelay time.Duration
}

// Executor runs publish plans against a registry.
type Executor struct {
	registry registry.Client
	logger   *log.Logger
}

// New creates an Executor. A nil logger falls back to the default logger.
func New(client registry.Client, logger *log.Logger) *Executor {
	if logger == nil {
		logger = log.Default()
	}
	return &Executor{registry: client, logger: logger}
}

// Execute walks the plan in order. Steps that are not new releases are
// recorded as skipped. Execution halts on the first failure or on
// cancellation between steps; the report always covers every plan step,
// with unexecuted steps marked not-attempted.
//
// The returned error describes why the run halted early, if it did; the
// report is valid either way.
func (e *Executor) Execute(ctx context.Context, ws *workspace.Workspace, plan *planner.Plan, opts Options) (*Report, error) {
	if opts.Retry.Attempts == 0 {
		opts.Retry = httputil.DefaultPolicy
	}
	if opts.VisibilityInterval <= 0 {
		opts.VisibilityInterval = DefaultVisibilityInterval
	}

	report := &Report{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Results:   make([]StepResult, 0, len(plan.Steps)),
	}
	runStart := time.Now()
	logger := e.logger.With("run", report.RunID)

	var halted error
	for _, step := range plan.Steps {
		result := StepResult{ID: step.ID, TargetVersion: step.TargetVersion}

		switch {
		case halted != nil:
			result.Outcome = OutcomeNotAttempted
		case !step.NewRelease:
			result.Outcome = OutcomeSkipped
		case ctx.Err() != nil:
			// Cancellation is only honored between steps.
			halted = ctx.Err()
			result.Outcome = OutcomeNotAttempted
		default:
			stepStart := time.Now()
			observability.Executor().OnStepStart(ctx, step.ID, step.TargetVersion)

			err := e.publishStep(ctx, ws, step, opts, logger)
			if err != nil {
				halted = err
				result.Outcome = OutcomeFailed
				result.Reason = errors.UserMessage(err)
				logger.Error("publish failed", "package", step.ID, "version", step.TargetVersion, "err", err)
			} else {
				result.Outcome = OutcomePublished
				logger.Info("published", "package", step.ID, "version", step.TargetVersion)
			}
			observability.Executor().OnStepComplete(ctx, step.ID, step.TargetVersion,
				string(result.Outcome), time.Since(stepStart), err)
		}

		report.Results = append(report.Results, result)
	}

	report.FinishedAt = time.Now().UTC()
	published, skipped, failed, _ := report.Counts()
	observability.Executor().OnRunComplete(ctx, report.RunID, published, skipped, failed, time.Since(runStart))
	logger.Info("run complete",
		"published", published,
		"skipped", skipped,
		"failed", failed,
		"duration", time.Since(runStart))
	return report, halted
}

func (e *Executor) publishStep(ctx context.Context, ws *workspace.Workspace, step planner.Step, opts Options, logger *log.Logger) error {
	pkg, ok := ws.Package(step.ID)
	if !ok {
		return errors.New(errors.ErrCodeInvalidPlan, "plan step %s is not in the workspace", step.ID)
	}
	target, err := semver.NewVersion(step.TargetVersion)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidPlan, err, "plan step %s has target %q", step.ID, step.TargetVersion)
	}

	// Stale-plan protection: the planning snapshot may be outdated by
	// now. A version at or past the target means someone else won.
	state, err := e.registry.FetchState(ctx, step.ID, true)
	if err != nil {
		return err
	}
	if state.Has(target.String()) {
		return errors.New(errors.ErrCodeRaceDetected,
			"%s %s already exists on the registry; re-plan before publishing", step.ID, target)
	}
	if latest, ok := state.Latest(); ok && !latest.LessThan(target) {
		return errors.New(errors.ErrCodeRaceDetected,
			"%s has %s on the registry, at or past the planned %s; re-plan before publishing", step.ID, latest, target)
	}

	retry := opts.Retry
	if retry.OnRetry == nil {
		retry.OnRetry = func(attempt int, err error) {
			logger.Warn("publish attempt failed, retrying",
				"package", step.ID, "attempt", attempt, "err", err)
		}
	}
	err = httputil.Retry(ctx, retry, func() error {
		return e.registry.Publish(ctx, step.ID, target, pkg.Fingerprint)
	})
	if err != nil {
		if errors.GetCode(err) == "" || errors.Is(err, errors.ErrCodeRegistryTransient) {
			return errors.Wrap(errors.ErrCodePublishFailed, err, "publishing %s %s", step.ID, target)
		}
		return err
	}

	if opts.VisibilityTimeout > 0 {
		if err := e.awaitVisible(ctx, step.ID, target, opts); err != nil {
			return err
		}
	}

	if opts.AfterPublishDelay > 0 {
		select {
		case <-time.After(opts.AfterPublishDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// awaitVisible polls the registry until the published version shows up
// in reads, so the next step's publish can reference it.
func (e *Executor) awaitVisible(ctx context.Context, id string, version *semver.Version, opts Options) error {
	deadline := time.Now().Add(opts.VisibilityTimeout)
	for {
		state, err := e.registry.FetchState(ctx, id, true)
		if err == nil && state.Has(version.String()) {
			return nil
		}
		if time.Now().After(deadline) {
			return errors.New(errors.ErrCodePublishFailed,
				"%s %s was accepted but did not become visible within %s", id, version, opts.VisibilityTimeout)
		}
		select {
		case <-time.After(opts.VisibilityInterval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
