package executor

import (
	"encoding/json"
	"time"

	"github.com/convoy-dev/convoy/pkg/errors"
)

// Outcome is the terminal state of one plan step.
type Outcome string

const (
	// OutcomePublished means the release went out.
	OutcomePublished Outcome = "published"

	// OutcomeSkipped means the step needed no release.
	OutcomeSkipped Outcome = "skipped"

	// OutcomeFailed means the publish failed after retries, or a race
	// was detected.
	OutcomeFailed Outcome = "failed"

	// OutcomeNotAttempted means execution halted before this step.
	OutcomeNotAttempted Outcome = "not-attempted"
)

// StepResult is the outcome of one plan step, in plan order.
type StepResult struct {
	ID            string  `json:"id"`
	TargetVersion string  `json:"target_version"`
	Outcome       Outcome `json:"outcome"`
	Reason        string  `json:"reason,omitempty"`
}

// Report is the full record of one publish run. It preserves every
// completed step's outcome even when the run halts early, so no work
// already done is hidden.
type Report struct {
	RunID      string       `json:"run_id"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Results    []StepResult `json:"results"`
}

// Failed reports whether any step failed or was left unattempted.
func (r *Report) Failed() bool {
	for _, res := range r.Results {
		if res.Outcome == OutcomeFailed || res.Outcome == OutcomeNotAttempted {
			return true
		}
	}
	return false
}

// Counts tallies results by outcome.
func (r *Report) Counts() (published, skipped, failed, notAttempted int) {
	for _, res := range r.Results {
		switch res.Outcome {
		case OutcomePublished:
			published++
		case OutcomeSkipped:
			skipped++
		case OutcomeFailed:
			failed++
		case OutcomeNotAttempted:
			notAttempted++
		}
	}
	return
}

// Encode renders the report as indented JSON.
func (r *Report) Encode() ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "encoding report")
	}
	return append(data, '\n'), nil
}

// DecodeReport parses a report previously produced by [Report.Encode].
func DecodeReport(data []byte) (*Report, error) {
	var report Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "decoding report")
	}
	return &report, nil
}
