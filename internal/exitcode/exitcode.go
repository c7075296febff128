package exitcode

import (
	stderrors "errors"
	"os"

	"github.com/felixgeelhaar/phaseline/internal/errors"
)

// Exit codes for consistent error handling across the CLI
const (
	// Success indicates successful execution
	Success = 0

	// GeneralError indicates a general error condition
	GeneralError = 1

	// UsageError indicates invalid command usage (bad flags, missing args, etc.)
	UsageError = 2

	// Escalated indicates a gate exhausted its retry budget or hit a blocked
	// verdict and the run stopped for a human
	Escalated = 3

	// PlanFailed indicates a structural failure (ownership violation,
	// missing owned files) that made a phase terminally fail
	PlanFailed = 4

	// StateCorrupt indicates the persisted plan copies diverged irreconcilably
	StateCorrupt = 5

	// AgentError indicates a collaborator could not be reached at all
	AgentError = 6

	// Interrupted indicates the process was cancelled by the user
	Interrupted = 130
)

// Exit terminates the program with the given exit code
func Exit(code int) {
	os.Exit(code)
}

// ExitWithError exits with an appropriate code based on error type
func ExitWithError(err error) {
	if err == nil {
		Exit(Success)
		return
	}
	Exit(DetermineExitCode(err))
}

// DetermineExitCode analyzes an error and returns the appropriate exit code
func DetermineExitCode(err error) int {
	if err == nil {
		return Success
	}

	var pe *errors.PipelineError
	if stderrors.As(err, &pe) {
		switch pe.Code {
		case errors.ErrCodePhaseEscalated, errors.ErrCodeEngineHalted, errors.ErrCodeEngineStuckPhase:
			return Escalated
		case errors.ErrCodePhaseFailed, errors.ErrCodePhaseOwnership, errors.ErrCodePhaseMissingFiles:
			return PlanFailed
		case errors.ErrCodeStoreCorrupt:
			return StateCorrupt
		case errors.ErrCodeAgentUnreachable:
			return AgentError
		case errors.ErrCodeConfigInvalid, errors.ErrCodeConfigNotFound:
			return UsageError
		}
	}

	return GeneralError
}
