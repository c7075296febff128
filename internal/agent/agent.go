// Package agent abstracts the external collaborators the pipeline calls:
// planner, implementer, reviewers, and test author. The engine only ever sees
// structured reports; the judgment behind them is opaque by design.
package agent

import (
	"context"
	stderrors "errors"
	"fmt"
)

// Role selects which external capability to call
type Role string

const (
	// RolePlanner turns a feature request into a plan document
	RolePlanner Role = "planner"
	// RoleImplementer writes or corrects source code for a phase
	RoleImplementer Role = "implementer"
	// RoleReviewer performs the standard code review
	RoleReviewer Role = "reviewer"
	// RoleSpecializedReviewer reviews user-facing presentation work
	RoleSpecializedReviewer Role = "specialized_reviewer"
	// RoleTestAuthor writes tests for a reviewed phase
	RoleTestAuthor Role = "test_author"
)

// IsValid returns true for a known role
func (r Role) IsValid() bool {
	switch r {
	case RolePlanner, RoleImplementer, RoleReviewer, RoleSpecializedReviewer, RoleTestAuthor:
		return true
	default:
		return false
	}
}

// Verdict is the tri-state outcome reviewer roles return
type Verdict string

const (
	// VerdictApproved means the work passes
	VerdictApproved Verdict = "approved"
	// VerdictNeedsChanges means fixable defects were found
	VerdictNeedsChanges Verdict = "needs_changes"
	// VerdictBlocked means a structural problem no corrective cycle can fix
	VerdictBlocked Verdict = "blocked"
)

// PromptContext is the opaque structured bundle forwarded to a collaborator.
// The gateway serializes it verbatim and must not interpret its contents.
type PromptContext struct {
	PlanID              string   `json:"plan_id,omitempty"`
	PhaseID             string   `json:"phase_id,omitempty"`
	Description         string   `json:"description"`
	Acceptance          []string `json:"acceptance,omitempty"`
	OwnedFiles          []string `json:"owned_files,omitempty"`
	SharedContext       string   `json:"shared_context,omitempty"`
	TestStrategy        string   `json:"test_strategy,omitempty"`
	PriorPhaseSummaries []string `json:"prior_phase_summaries,omitempty"`
	Issues              []string `json:"issues,omitempty"`
}

// Report is the structured verdict or completion report a collaborator returns
type Report struct {
	Role              Role             `json:"role"`
	Verdict           Verdict          `json:"verdict,omitempty"`
	Issues            []string         `json:"issues,omitempty"`
	Summary           string           `json:"summary,omitempty"`
	TestsAuthored     int              `json:"tests_authored,omitempty"`
	CriteriaSatisfied bool             `json:"criteria_satisfied,omitempty"`
	Plan              *PlannedDocument `json:"plan,omitempty"`
}

// PlannedDocument is the planner's payload: the phases of a new plan
type PlannedDocument struct {
	Slug          string         `json:"slug"`
	SharedContext string         `json:"shared_context,omitempty"`
	TestStrategy  string         `json:"test_strategy,omitempty"`
	Phases        []PlannedPhase `json:"phases"`
}

// PlannedPhase is one phase as proposed by the planner
type PlannedPhase struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Acceptance   []string `json:"acceptance,omitempty"`
	Owns         []string `json:"owns"`
	DependsOn    []string `json:"depends_on,omitempty"`
	Estimate     int      `json:"estimate"`
	Presentation bool     `json:"presentation"`
}

// Gateway is the single narrow surface the pipeline uses to invoke any
// external agent
type Gateway interface {
	Invoke(ctx context.Context, role Role, pc PromptContext) (*Report, error)
}

// Failure signals the external process could not be reached or returned
// unparseable output. Gates retry it within the same cycle budget as a
// needs_changes verdict; only the logged note differs.
type Failure struct {
	Role Role
	Err  error
}

// Error implements the error interface
func (f *Failure) Error() string {
	return fmt.Sprintf("agent %s failure: %v", f.Role, f.Err)
}

// Unwrap returns the underlying transport or parse error
func (f *Failure) Unwrap() error {
	return f.Err
}

// IsFailure reports whether err is (or wraps) an agent Failure
func IsFailure(err error) bool {
	var f *Failure
	return stderrors.As(err, &f)
}
