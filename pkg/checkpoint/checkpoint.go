// Package checkpoint persists the outcome of publish runs so an
// interrupted run can be inspected and resumed.
//
// One checkpoint is kept per workspace root. Resuming never replays the
// old plan: the CLI re-plans (already-published packages classify as
// unchanged) and uses the checkpoint only to pick the package to start
// from and to show what happened last time.
package checkpoint

import (
	"context"
	"time"

	"github.com/convoy-dev/convoy/pkg/executor"
	"github.com/convoy-dev/convoy/pkg/planner"
)

// Checkpoint records one publish run against a workspace.
type Checkpoint struct {
	WorkspaceRoot string           `json:"workspace_root"`
	RunID         string           `json:"run_id"`
	CreatedAt     time.Time        `json:"created_at"`
	Plan          *planner.Plan    `json:"plan"`
	Report        *executor.Report `json:"report"`
}

// Complete reports whether the recorded run finished cleanly.
func (c *Checkpoint) Complete() bool {
	return c.Report != nil && !c.Report.Failed()
}

// ResumeFrom returns the first step of the recorded run that failed or
// was never attempted, which is where a resumed run should pick up.
// Returns false for a clean run.
func (c *Checkpoint) ResumeFrom() (string, bool) {
	if c.Report == nil {
		return "", false
	}
	for _, res := range c.Report.Results {
		if res.Outcome == executor.OutcomeFailed || res.Outcome == executor.OutcomeNotAttempted {
			return res.ID, true
		}
	}
	return "", false
}

// Store persists checkpoints keyed by workspace root.
type Store interface {
	// Load retrieves the checkpoint for a workspace root.
	// Returns nil, nil if none exists.
	Load(ctx context.Context, root string) (*Checkpoint, error)

	// Save stores a checkpoint, replacing any previous one for the
	// same workspace root.
	Save(ctx context.Context, cp *Checkpoint) error

	// Delete removes the checkpoint for a workspace root.
	// Deleting a missing checkpoint is not an error.
	Delete(ctx context.Context, root string) error
}
