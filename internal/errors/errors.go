package errors

import (
	"fmt"
	"strings"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

// Error categories
const (
	// Plan errors (PLAN-001 to PLAN-099)
	ErrCodePlanNotFound    ErrorCode = "PLAN-001"
	ErrCodePlanInvalid     ErrorCode = "PLAN-002"
	ErrCodePlanCyclicDep   ErrorCode = "PLAN-003"
	ErrCodePlanDuplicateID ErrorCode = "PLAN-004"
	ErrCodePlanOwnsOverlap ErrorCode = "PLAN-005"
	ErrCodePlanUnknownDep  ErrorCode = "PLAN-006"
	ErrCodePlanBadOrder    ErrorCode = "PLAN-007"

	// Store errors (STORE-001 to STORE-099)
	ErrCodeStoreWriteFailed ErrorCode = "STORE-001"
	ErrCodeStoreReadFailed  ErrorCode = "STORE-002"
	ErrCodeStoreCorrupt     ErrorCode = "STORE-003"

	// Agent errors (AGENT-001 to AGENT-099)
	ErrCodeAgentUnreachable ErrorCode = "AGENT-001"
	ErrCodeAgentBadReport   ErrorCode = "AGENT-002"
	ErrCodeAgentBadRole     ErrorCode = "AGENT-003"
	ErrCodeAgentBadPlan     ErrorCode = "AGENT-004"

	// Phase errors (PHASE-001 to PHASE-099)
	ErrCodePhaseEscalated    ErrorCode = "PHASE-001"
	ErrCodePhaseFailed       ErrorCode = "PHASE-002"
	ErrCodePhaseOwnership    ErrorCode = "PHASE-003"
	ErrCodePhaseMissingFiles ErrorCode = "PHASE-004"

	// Engine errors (ENGINE-001 to ENGINE-099)
	ErrCodeEngineHalted     ErrorCode = "ENGINE-001"
	ErrCodeEngineStuckPhase ErrorCode = "ENGINE-002"
	ErrCodeEngineBadStatus  ErrorCode = "ENGINE-003"

	// File I/O errors (IO-001 to IO-099)
	ErrCodeFileNotFound    ErrorCode = "IO-001"
	ErrCodeFileReadFailed  ErrorCode = "IO-002"
	ErrCodeFileWriteFailed ErrorCode = "IO-003"
	ErrCodeDirectoryFailed ErrorCode = "IO-004"

	// Config errors (CONFIG-001 to CONFIG-099)
	ErrCodeConfigNotFound ErrorCode = "CONFIG-001"
	ErrCodeConfigInvalid  ErrorCode = "CONFIG-002"
)

// PipelineError represents an enhanced error with code and suggestions
type PipelineError struct {
	Code        ErrorCode
	Message     string
	Suggestions []string
	Cause       error
}

// Error implements the error interface
func (e *PipelineError) Error() string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))

	if e.Cause != nil {
		b.WriteString(fmt.Sprintf(": %v", e.Cause))
	}

	if len(e.Suggestions) > 0 {
		b.WriteString("\n\nSuggestions:")
		for _, suggestion := range e.Suggestions {
			b.WriteString(fmt.Sprintf("\n  • %s", suggestion))
		}
	}

	return b.String()
}

// Unwrap implements error unwrapping for errors.Is and errors.As
func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// New creates a new PipelineError
func New(code ErrorCode, message string) *PipelineError {
	return &PipelineError{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a new PipelineError wrapping an existing error
func Wrap(code ErrorCode, message string, cause error) *PipelineError {
	return &PipelineError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// WithSuggestion adds a suggestion to the error
func (e *PipelineError) WithSuggestion(suggestion string) *PipelineError {
	e.Suggestions = append(e.Suggestions, suggestion)
	return e
}

// WithSuggestions adds multiple suggestions to the error
func (e *PipelineError) WithSuggestions(suggestions ...string) *PipelineError {
	e.Suggestions = append(e.Suggestions, suggestions...)
	return e
}

// Common error constructors for frequently used errors

// NewPlanNotFoundError creates a plan not found error
func NewPlanNotFoundError(id string) *PipelineError {
	return New(ErrCodePlanNotFound, fmt.Sprintf("plan not found: %s", id)).
		WithSuggestion("Run 'phaseline history' to list known plans").
		WithSuggestion("Check that the plan identifier is correct")
}

// NewStoreCorruptError creates a fatal state corruption error. The two plan
// copies diverged and cannot be reconciled automatically; the operator has
// to repair the state directory by hand.
func NewStoreCorruptError(archivePath, currentPath string, cause error) *PipelineError {
	return Wrap(ErrCodeStoreCorrupt,
		fmt.Sprintf("plan state is corrupt: %s and %s diverge irreconcilably", archivePath, currentPath), cause).
		WithSuggestion("Inspect both files and keep the one that parses as valid JSON").
		WithSuggestion("Delete the stale copy and re-run 'phaseline run --resume'")
}

// NewAgentUnreachableError creates an agent transport failure error
func NewAgentUnreachableError(role string, cause error) *PipelineError {
	return Wrap(ErrCodeAgentUnreachable, fmt.Sprintf("agent %s could not be reached", role), cause).
		WithSuggestion("Check the agent configuration in .phaseline/config.yaml").
		WithSuggestion("Verify API keys or agent command availability")
}

// NewAgentBadReportError creates an unparseable agent output error
func NewAgentBadReportError(role string, cause error) *PipelineError {
	return Wrap(ErrCodeAgentBadReport, fmt.Sprintf("agent %s returned unparseable output", role), cause).
		WithSuggestion("Inspect the raw agent output in the log").
		WithSuggestion("The gate retries this automatically within its cycle budget")
}

// NewPhaseOwnershipError creates a file-ownership violation error
func NewPhaseOwnershipError(phaseID string, files []string) *PipelineError {
	return New(ErrCodePhaseOwnership,
		fmt.Sprintf("phase %s modified files outside its ownership list: %s", phaseID, strings.Join(files, ", "))).
		WithSuggestion("The plan's file split is wrong; regenerate the plan").
		WithSuggestion("Revert the out-of-scope changes before resuming")
}

// NewStuckPhaseError surfaces a phase left escalated or failed by a prior run.
func NewStuckPhaseError(phaseID, status string) *PipelineError {
	e := New(ErrCodeEngineStuckPhase,
		fmt.Sprintf("phase %s was left %s by a previous run", phaseID, status))
	switch status {
	case "escalated":
		e.WithSuggestion("Review the escalation report with 'phaseline status'").
			WithSuggestion("Raise the gate ceiling in config, or fix the code and mark the phase completed by hand")
	case "failed":
		e.WithSuggestion("The plan itself is likely wrong (file ownership or missing files); regenerate the plan")
	}
	return e
}
