// Package engine walks a plan's phases in declared order, drives each through
// the phase runner, performs the whole-plan integration and build checks once
// every phase completed, and owns the plan status transitions.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/felixgeelhaar/phaseline/internal/agent"
	"github.com/felixgeelhaar/phaseline/internal/config"
	"github.com/felixgeelhaar/phaseline/internal/escalate"
	"github.com/felixgeelhaar/phaseline/internal/gate"
	"github.com/felixgeelhaar/phaseline/internal/log"
	"github.com/felixgeelhaar/phaseline/internal/plan"
	"github.com/felixgeelhaar/phaseline/internal/runner"
	"github.com/felixgeelhaar/phaseline/internal/store"
	"github.com/felixgeelhaar/phaseline/internal/workspace"
)

// Outcome summarizes an engine run for the operator surface
type Outcome struct {
	Plan *plan.Plan
	// Completed is true when every phase completed and both post-loop
	// checks passed
	Completed bool
	// Stuck is set when the run halted on an escalated or failed phase
	Stuck *escalate.Report
	// PostLoopEscalated names the whole-plan gate that gave up
	// ("integration" or "build"), empty otherwise
	PostLoopEscalated string
	PostLoopIssues    []string
	IntegrationCycles int
	BuildCycles       int
}

// Engine executes plans one phase at a time. It assumes it is the only
// process touching the plan's state files.
type Engine struct {
	runner  *runner.Runner
	gateway agent.Gateway
	ws      *workspace.Workspace
	store   *store.Store
	gates   config.Gates
	logger  *log.Logger
}

// New creates an engine
func New(gateway agent.Gateway, ws *workspace.Workspace, st *store.Store, gates config.Gates) *Engine {
	return &Engine{
		runner:  runner.New(gateway, ws, st, gates),
		gateway: gateway,
		ws:      ws,
		store:   st,
		gates:   gates,
		logger:  log.DefaultLogger().With("component", "engine"),
	}
}

// Run executes or resumes the plan. Contained failures (escalated or failed
// phases, exhausted post-loop gates) are reported through the Outcome; an
// error means the run aborted without a trustworthy terminal state.
func (e *Engine) Run(ctx context.Context, p *plan.Plan, resuming bool) (*Outcome, error) {
	logger := e.logger.With("plan", p.ID)

	if p.Status == plan.StatusCompleted {
		return &Outcome{Plan: p, Completed: true}, nil
	}

	if p.Status == plan.StatusPending || p.Status == plan.StatusPaused {
		p.Status = plan.StatusInProgress
		if p.StartedAt == nil {
			now := time.Now().UTC()
			p.StartedAt = &now
		}
		if err := e.store.Save(p); err != nil {
			return nil, err
		}
	}

	start := p.FirstUnresolved()
	if resuming && start >= 0 {
		logger.Info("resuming", "phase", p.Phases[start].ID, "status", p.Phases[start].Status)
	}

	for i := start; start >= 0 && i < len(p.Phases); i++ {
		phase := &p.Phases[i]

		switch phase.Status {
		case plan.PhaseCompleted:
			continue
		case plan.PhaseEscalated, plan.PhaseFailed:
			// Left over from a previous run: surface it instead of
			// silently retrying.
			return &Outcome{Plan: p, Stuck: escalate.FromPhase(p, phase)}, nil
		case plan.PhaseInProgress:
			// The process died mid-phase. Restart from implement rather
			// than inferring which sub-step was interrupted; partial
			// sub-step work is discarded by policy.
			phase.Record.Reset()
			phase.Record.AddNote("interrupted run detected, restarting phase from implement")
			phase.Status = plan.PhasePending
			if err := e.store.Save(p); err != nil {
				return nil, err
			}
		case plan.PhasePending:
		}

		if err := e.runner.RunPhase(ctx, p, phase); err != nil {
			return nil, err
		}
		if phase.Status == plan.PhaseEscalated || phase.Status == plan.PhaseFailed {
			// Halt here; later phases may depend on this one.
			return &Outcome{Plan: p, Stuck: escalate.FromPhase(p, phase)}, nil
		}
	}

	outcome := &Outcome{Plan: p}
	if err := e.postLoop(ctx, p, outcome); err != nil {
		return nil, err
	}
	if outcome.PostLoopEscalated != "" {
		// The plan stays in_progress pending operator decision.
		return outcome, nil
	}

	now := time.Now().UTC()
	p.Status = plan.StatusCompleted
	p.CompletedAt = &now
	if err := e.store.Save(p); err != nil {
		return nil, err
	}
	outcome.Completed = true
	logger.Info("plan completed", "phases", len(p.Phases))
	return outcome, nil
}

// postLoop runs the whole-plan integration review and build verification,
// each with the same bounded-retry policy as phase gates
func (e *Engine) postLoop(ctx context.Context, p *plan.Plan, outcome *Outcome) error {
	pc := e.planContext(p)

	result, err := gate.Run(ctx, gate.Gate{
		Name:      "integration",
		MaxCycles: e.gates.PostLoop,
		Evaluate: func(ctx context.Context) (gate.Evaluation, error) {
			report, ierr := e.gateway.Invoke(ctx, agent.RoleReviewer, pc)
			if ierr != nil {
				return gate.Evaluation{}, ierr
			}
			return gate.Evaluation{
				Satisfied: report.Verdict == agent.VerdictApproved,
				Blocked:   report.Verdict == agent.VerdictBlocked,
				Issues:    report.Issues,
				Output:    report.Summary,
			}, nil
		},
		Correct: func(ctx context.Context, issues []string) error {
			cpc := pc
			cpc.Issues = issues
			_, cerr := e.gateway.Invoke(ctx, agent.RoleImplementer, cpc)
			return cerr
		},
	})
	if err != nil {
		return err
	}
	outcome.IntegrationCycles = result.Cycles
	if result.Status == gate.StatusEscalated {
		outcome.PostLoopEscalated = "integration"
		outcome.PostLoopIssues = result.Last.Issues
		return nil
	}

	result, err = gate.Run(ctx, gate.Gate{
		Name:      "build",
		MaxCycles: e.gates.PostLoop,
		Evaluate: func(ctx context.Context) (gate.Evaluation, error) {
			check, berr := e.ws.RunBuild(ctx)
			if berr != nil {
				return gate.Evaluation{}, berr
			}
			if !check.Passed {
				return gate.Evaluation{
					Issues: []string{fmt.Sprintf("build failed (exit %d):\n%s", check.ExitCode, check.Output)},
					Output: check.Output,
				}, nil
			}
			return gate.Evaluation{Satisfied: true}, nil
		},
		Correct: func(ctx context.Context, issues []string) error {
			cpc := pc
			cpc.Issues = issues
			_, cerr := e.gateway.Invoke(ctx, agent.RoleImplementer, cpc)
			return cerr
		},
	})
	if err != nil {
		return err
	}
	outcome.BuildCycles = result.Cycles
	if result.Status == gate.StatusEscalated {
		outcome.PostLoopEscalated = "build"
		outcome.PostLoopIssues = result.Last.Issues
	}
	return nil
}

// planContext bundles the aggregate view of the plan for the whole-plan
// review and correction calls
func (e *Engine) planContext(p *plan.Plan) agent.PromptContext {
	summaries := make([]string, 0, len(p.Phases))
	for i := range p.Phases {
		phase := &p.Phases[i]
		summaries = append(summaries, fmt.Sprintf("%s (%s): %s", phase.ID, phase.Name, phase.Status))
	}
	return agent.PromptContext{
		PlanID:              p.ID,
		Description:         fmt.Sprintf("integration review of the complete change for: %s", p.FeatureRequest),
		SharedContext:       p.SharedContext,
		TestStrategy:        p.TestStrategy,
		PriorPhaseSummaries: summaries,
	}
}
