// Package runner drives a single phase through its fixed sub-step sequence:
// implement, review, conditional specialized review, test authoring, test
// execution, final review, and validation. Every transition is written back
// through the store so an interrupted run resumes with accurate state.
package runner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/felixgeelhaar/phaseline/internal/agent"
	"github.com/felixgeelhaar/phaseline/internal/config"
	"github.com/felixgeelhaar/phaseline/internal/gate"
	"github.com/felixgeelhaar/phaseline/internal/log"
	"github.com/felixgeelhaar/phaseline/internal/plan"
	"github.com/felixgeelhaar/phaseline/internal/store"
	"github.com/felixgeelhaar/phaseline/internal/workspace"
)

// Runner executes one phase at a time. It mutates the phase's status and
// Execution Record in place and persists after every sub-step.
type Runner struct {
	gateway agent.Gateway
	ws      *workspace.Workspace
	store   *store.Store
	gates   config.Gates
	logger  *log.Logger
}

// New creates a phase runner
func New(gateway agent.Gateway, ws *workspace.Workspace, st *store.Store, gates config.Gates) *Runner {
	return &Runner{
		gateway: gateway,
		ws:      ws,
		store:   st,
		gates:   gates,
		logger:  log.DefaultLogger().With("component", "runner"),
	}
}

// RunPhase drives the phase to a terminal status. Quality, structural, and
// transient failures are contained here as phase status plus notes; only a
// persistence or context error is returned.
func (r *Runner) RunPhase(ctx context.Context, p *plan.Plan, phase *plan.Phase) error {
	logger := r.logger.With("plan", p.ID, "phase", phase.ID)
	logger.Info("starting phase", "name", phase.Name)

	started := time.Now().UTC()
	phase.Status = plan.PhaseInProgress
	phase.Record.StartedAt = &started
	if err := r.store.Save(p); err != nil {
		return err
	}

	// Baseline of already-dirty files, so validation only flags drift that
	// happened during this phase.
	snapshot, err := r.ws.Snapshot()
	if err != nil {
		return err
	}

	pc := r.promptContext(p, phase)

	result, err := gate.Run(ctx, gate.Gate{
		Name:      "review",
		MaxCycles: r.gates.Review,
		Produce: func(ctx context.Context) error {
			return r.invokeImplementer(ctx, pc, nil)
		},
		Evaluate: r.reviewEvaluate(pc, agent.RoleReviewer),
		Correct: func(ctx context.Context, issues []string) error {
			return r.invokeImplementer(ctx, pc, issues)
		},
		OnCycle: func(cycles int) error {
			phase.Record.ReviewCycles = cycles
			return r.store.Save(p)
		},
	})
	if err != nil {
		return err
	}
	if result.Status == gate.StatusEscalated {
		return r.escalate(p, phase, "review", result)
	}

	if phase.Presentation {
		result, err = gate.Run(ctx, gate.Gate{
			Name:      "specialized_review",
			MaxCycles: r.gates.SpecializedReview,
			Evaluate:  r.reviewEvaluate(pc, agent.RoleSpecializedReviewer),
			Correct: func(ctx context.Context, issues []string) error {
				return r.invokeImplementer(ctx, pc, issues)
			},
			OnCycle: func(cycles int) error {
				phase.Record.SpecializedReviewCycles = cycles
				return r.store.Save(p)
			},
		})
		if err != nil {
			return err
		}
		if result.Status == gate.StatusEscalated {
			return r.escalate(p, phase, "specialized_review", result)
		}
	}

	result, err = gate.Run(ctx, gate.Gate{
		Name:      "tests",
		MaxCycles: r.gates.Tests,
		Produce: func(ctx context.Context) error {
			report, ierr := r.gateway.Invoke(ctx, agent.RoleTestAuthor, pc)
			if ierr != nil {
				return ierr
			}
			phase.Record.TestsAuthored = report.TestsAuthored
			return r.store.Save(p)
		},
		Evaluate: func(ctx context.Context) (gate.Evaluation, error) {
			return r.runChecks(ctx, phase)
		},
		Correct: func(ctx context.Context, issues []string) error {
			return r.invokeImplementer(ctx, pc, issues)
		},
		OnCycle: func(cycles int) error {
			phase.Record.TestCycles = cycles
			return r.store.Save(p)
		},
	})
	if err != nil {
		return err
	}
	if result.Status == gate.StatusEscalated {
		return r.escalate(p, phase, "tests", result)
	}

	final, blocked := r.finalReview(ctx, pc)
	if blocked != nil {
		return r.escalate(p, phase, "final_review", *blocked)
	}

	issues := r.validateIssues(snapshot, phase, final)
	if len(issues) > 0 {
		// Validation failures get exactly one corrective attempt, not a
		// full gate.
		phase.Record.AddNote("validation failed, attempting correction: %s", strings.Join(issues, "; "))
		if err := r.store.Save(p); err != nil {
			return err
		}
		if cerr := r.invokeImplementer(ctx, pc, issues); cerr != nil && !agent.IsFailure(cerr) {
			return cerr
		}
		final, blocked = r.finalReview(ctx, pc)
		if blocked != nil {
			return r.escalate(p, phase, "final_review", *blocked)
		}
		issues = r.validateIssues(snapshot, phase, final)
		if len(issues) > 0 {
			logger.Warn("validation failed after corrective attempt", "issues", issues)
			phase.Status = plan.PhaseFailed
			phase.Record.AddNote("validation failed after corrective attempt: %s", strings.Join(issues, "; "))
			return r.store.Save(p)
		}
	}

	completed := time.Now().UTC()
	phase.Status = plan.PhaseCompleted
	phase.Record.CompletedAt = &completed
	logger.Info("phase completed",
		"review_cycles", phase.Record.ReviewCycles,
		"test_cycles", phase.Record.TestCycles,
		"tests_authored", phase.Record.TestsAuthored)
	return r.store.Save(p)
}

func (r *Runner) promptContext(p *plan.Plan, phase *plan.Phase) agent.PromptContext {
	var summaries []string
	for i := range p.Phases {
		prior := &p.Phases[i]
		if prior.ID == phase.ID {
			break
		}
		if prior.Status == plan.PhaseCompleted {
			summaries = append(summaries, fmt.Sprintf("%s (%s): completed", prior.ID, prior.Name))
		}
	}
	return agent.PromptContext{
		PlanID:              p.ID,
		PhaseID:             phase.ID,
		Description:         phase.Description,
		Acceptance:          phase.Acceptance,
		OwnedFiles:          phase.Owns,
		SharedContext:       p.SharedContext,
		TestStrategy:        p.TestStrategy,
		PriorPhaseSummaries: summaries,
	}
}

func (r *Runner) invokeImplementer(ctx context.Context, pc agent.PromptContext, issues []string) error {
	pc.Issues = issues
	_, err := r.gateway.Invoke(ctx, agent.RoleImplementer, pc)
	return err
}

// reviewEvaluate adapts a reviewer invocation to a gate evaluation
func (r *Runner) reviewEvaluate(pc agent.PromptContext, role agent.Role) func(ctx context.Context) (gate.Evaluation, error) {
	return func(ctx context.Context) (gate.Evaluation, error) {
		report, err := r.gateway.Invoke(ctx, role, pc)
		if err != nil {
			return gate.Evaluation{}, err
		}
		return gate.Evaluation{
			Satisfied: report.Verdict == agent.VerdictApproved,
			Blocked:   report.Verdict == agent.VerdictBlocked,
			Issues:    report.Issues,
			Output:    report.Summary,
		}, nil
	}
}

// runChecks executes the deterministic test command, plus the static
// type/consistency check for presentation phases
func (r *Runner) runChecks(ctx context.Context, phase *plan.Phase) (gate.Evaluation, error) {
	tests, err := r.ws.RunTests(ctx)
	if err != nil {
		return gate.Evaluation{}, err
	}
	if !tests.Passed {
		return gate.Evaluation{
			Issues: []string{fmt.Sprintf("tests failed (exit %d):\n%s", tests.ExitCode, tests.Output)},
			Output: tests.Output,
		}, nil
	}

	if phase.Presentation {
		typecheck, err := r.ws.RunTypecheck(ctx)
		if err != nil {
			return gate.Evaluation{}, err
		}
		if !typecheck.Passed {
			return gate.Evaluation{
				Issues: []string{fmt.Sprintf("typecheck failed (exit %d):\n%s", typecheck.ExitCode, typecheck.Output)},
				Output: typecheck.Output,
			}, nil
		}
	}

	return gate.Evaluation{Satisfied: true}, nil
}

// finalReview asks the standard reviewer for the closing pass over the phase.
// A blocked verdict is returned as a synthetic escalation result; a transport
// failure degrades to "criteria not satisfied" and lets validation handle it.
func (r *Runner) finalReview(ctx context.Context, pc agent.PromptContext) (*agent.Report, *gate.Result) {
	report, err := r.gateway.Invoke(ctx, agent.RoleReviewer, pc)
	if err != nil {
		r.logger.WithError(err).Warn("final review unreachable")
		return nil, nil
	}
	if report.Verdict == agent.VerdictBlocked {
		return nil, &gate.Result{
			Status: gate.StatusEscalated,
			Last: gate.Evaluation{
				Blocked: true,
				Issues:  report.Issues,
				Output:  report.Summary,
			},
		}
	}
	return report, nil
}

// validateIssues checks the three deterministic completion conditions: owned
// files exist, acceptance criteria marked satisfied, no out-of-ownership
// modifications since phase start
func (r *Runner) validateIssues(snapshot map[string]bool, phase *plan.Phase, final *agent.Report) []string {
	var issues []string

	for _, missing := range r.ws.MissingOwnedFiles(phase.Owns) {
		issues = append(issues, fmt.Sprintf("owned file does not exist: %s", missing))
	}

	outside, err := r.ws.ModifiedOutside(snapshot, phase.Owns)
	if err != nil {
		r.logger.WithError(err).Warn("ownership drift check failed")
	}
	for _, file := range outside {
		issues = append(issues, fmt.Sprintf("file modified outside phase ownership: %s", file))
	}

	switch {
	case final == nil:
		issues = append(issues, "final review did not confirm acceptance criteria")
	case !final.CriteriaSatisfied:
		msg := "acceptance criteria not marked satisfied by final review"
		if len(final.Issues) > 0 {
			msg = fmt.Sprintf("%s: %s", msg, strings.Join(final.Issues, "; "))
		}
		issues = append(issues, msg)
	}

	return issues
}

// escalate records a gate's terminal escalation: what was attempted, the
// failing evaluation output, and the cycles consumed
func (r *Runner) escalate(p *plan.Plan, phase *plan.Phase, gateName string, result gate.Result) error {
	reason := fmt.Sprintf("gate %s escalated after %d cycle(s)", gateName, result.Cycles)
	if len(result.Last.Issues) > 0 {
		reason = fmt.Sprintf("%s; unresolved: %s", reason, strings.Join(result.Last.Issues, "; "))
	}
	if result.Last.Blocked {
		reason = fmt.Sprintf("%s (blocked verdict)", reason)
	}

	r.logger.Warn("phase escalated", "plan", p.ID, "phase", phase.ID, "gate", gateName, "cycles", result.Cycles)

	phase.Status = plan.PhaseEscalated
	phase.Record.Escalated = true
	phase.Record.AddNote("%s", reason)
	return r.store.Save(p)
}
