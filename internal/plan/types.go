package plan

import (
	"fmt"
	"time"
)

// Status represents the overall state of a plan
type Status string

const (
	// StatusPending indicates the plan was created but execution has not started
	StatusPending Status = "pending"
	// StatusInProgress indicates the engine is (or was) executing the plan
	StatusInProgress Status = "in_progress"
	// StatusCompleted indicates every phase completed and the post-loop checks passed
	StatusCompleted Status = "completed"
	// StatusPaused indicates a prior run was interrupted externally
	StatusPaused Status = "paused"
	// StatusFailed indicates the operator gave up on the plan
	StatusFailed Status = "failed"
)

// IsValid returns true if the status is a known plan status
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusPaused, StatusFailed:
		return true
	default:
		return false
	}
}

// PhaseStatus represents the state of a single phase
type PhaseStatus string

const (
	// PhasePending indicates the phase has not been started
	PhasePending PhaseStatus = "pending"
	// PhaseInProgress indicates the phase runner is (or was) driving the phase
	PhaseInProgress PhaseStatus = "in_progress"
	// PhaseCompleted indicates the phase passed validation
	PhaseCompleted PhaseStatus = "completed"
	// PhaseEscalated indicates a gate exhausted its budget or hit a blocked verdict
	PhaseEscalated PhaseStatus = "escalated"
	// PhaseFailed indicates an unrecoverable structural failure at validation
	PhaseFailed PhaseStatus = "failed"
)

// IsValid returns true if the status is a known phase status
func (s PhaseStatus) IsValid() bool {
	switch s {
	case PhasePending, PhaseInProgress, PhaseCompleted, PhaseEscalated, PhaseFailed:
		return true
	default:
		return false
	}
}

// IsTerminal returns true if no further automatic work happens on the phase
func (s PhaseStatus) IsTerminal() bool {
	return s == PhaseCompleted || s == PhaseEscalated || s == PhaseFailed
}

// Plan is the unit of work for one feature: an ordered list of phases plus
// the shared context every agent invocation receives verbatim.
type Plan struct {
	ID             string     `json:"id"`
	Seq            int        `json:"seq"`
	Slug           string     `json:"slug"`
	FeatureRequest string     `json:"feature_request"`
	Status         Status     `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	Phases         []Phase    `json:"phases"`
	SharedContext  string     `json:"shared_context,omitempty"`
	TestStrategy   string     `json:"test_strategy,omitempty"`
}

// Phase is one focused deliverable. The description must be self-sufficient:
// the implementing agent receives no other context about what to build.
type Phase struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	Acceptance   []string        `json:"acceptance,omitempty"`
	Owns         []string        `json:"owns"`
	DependsOn    []string        `json:"depends_on,omitempty"`
	Estimate     int             `json:"estimate"`
	Presentation bool            `json:"presentation"`
	Status       PhaseStatus     `json:"status"`
	Record       ExecutionRecord `json:"record"`
}

// ExecutionRecord is the mutable progress sub-state attached to a phase
type ExecutionRecord struct {
	StartedAt               *time.Time `json:"started_at,omitempty"`
	CompletedAt             *time.Time `json:"completed_at,omitempty"`
	ReviewCycles            int        `json:"review_cycles"`
	SpecializedReviewCycles int        `json:"specialized_review_cycles"`
	TestCycles              int        `json:"test_cycles"`
	TestsAuthored           int        `json:"tests_authored"`
	Escalated               bool       `json:"escalated"`
	Notes                   []string   `json:"notes,omitempty"`
}

// AddNote appends a timestamped free-text note (failure reasons, assumptions)
func (r *ExecutionRecord) AddNote(format string, args ...any) {
	note := fmt.Sprintf(format, args...)
	r.Notes = append(r.Notes, fmt.Sprintf("[%s] %s", time.Now().UTC().Format(time.RFC3339), note))
}

// Reset clears the record for a fresh phase attempt, keeping prior notes so
// the history of an interrupted run stays visible.
func (r *ExecutionRecord) Reset() {
	r.StartedAt = nil
	r.CompletedAt = nil
	r.ReviewCycles = 0
	r.SpecializedReviewCycles = 0
	r.TestCycles = 0
	r.TestsAuthored = 0
	r.Escalated = false
}

// NewID builds a plan identifier from a monotonic sequence number and a slug
func NewID(seq int, slug string) string {
	return fmt.Sprintf("%04d-%s", seq, slug)
}

// Phase returns the phase with the given ID, or nil if it does not exist
func (p *Plan) Phase(id string) *Phase {
	for i := range p.Phases {
		if p.Phases[i].ID == id {
			return &p.Phases[i]
		}
	}
	return nil
}

// FirstUnresolved returns the index of the first phase whose status is not
// completed, or -1 when every phase is completed. This is the resumption
// starting point.
func (p *Plan) FirstUnresolved() int {
	for i := range p.Phases {
		if p.Phases[i].Status != PhaseCompleted {
			return i
		}
	}
	return -1
}

// AllPhasesCompleted reports whether every phase reached completed
func (p *Plan) AllPhasesCompleted() bool {
	return p.FirstUnresolved() == -1
}

// HasStuckPhase reports whether any phase is escalated or failed. A plan
// with a stuck phase is waiting on the operator, not interrupted.
func (p *Plan) HasStuckPhase() bool {
	for i := range p.Phases {
		if p.Phases[i].Status == PhaseEscalated || p.Phases[i].Status == PhaseFailed {
			return true
		}
	}
	return false
}
