// Package gate implements the bounded corrective-retry primitive used at
// every review and test sub-step: try, check, fix, recheck, up to a hard
// ceiling, then escalate to a human.
package gate

import (
	"context"
	"fmt"

	"github.com/felixgeelhaar/phaseline/internal/agent"
	"github.com/felixgeelhaar/phaseline/internal/log"
)

// Status is the terminal outcome of a gate run
type Status string

const (
	// StatusSuccess means the evaluation was satisfied within budget
	StatusSuccess Status = "success"
	// StatusEscalated means the budget was exhausted or a blocked verdict
	// short-circuited the gate
	StatusEscalated Status = "escalated"
)

// Evaluation is one check outcome inside a gate
type Evaluation struct {
	// Satisfied is true when the check passed
	Satisfied bool
	// Blocked signals a structural problem no corrective cycle can fix;
	// it escalates immediately regardless of remaining budget
	Blocked bool
	// Issues is the list handed to the corrective step
	Issues []string
	// Output is the raw failing output, kept for the escalation report
	Output string
}

// Gate describes one bounded corrective-retry loop
type Gate struct {
	// Name identifies the gate in logs and escalation reports
	Name string
	// MaxCycles is the hard ceiling on corrective cycles
	MaxCycles int
	// Produce creates the initial output. Nil when the output already
	// exists from a prior sub-step.
	Produce func(ctx context.Context) error
	// Evaluate checks the current output
	Evaluate func(ctx context.Context) (Evaluation, error)
	// Correct reworks the output given the evaluation's issue list
	Correct func(ctx context.Context, issues []string) error
	// OnCycle persists the consumed-cycle counter. It runs after Correct
	// and before re-evaluation, so a crash mid-cycle still shows accurate
	// consumed budget on reload.
	OnCycle func(cycles int) error
}

// Result is the outcome of a gate run
type Result struct {
	Status Status
	Cycles int
	Last   Evaluation
}

// Run drives the gate to success or escalation. Agent transport failures are
// consumed as unsatisfied evaluations within the same budget as a
// needs_changes verdict; any other error aborts the run.
func Run(ctx context.Context, g Gate) (Result, error) {
	logger := log.DefaultLogger().With("component", "gate", "gate", g.Name)

	var ev Evaluation
	var err error
	evaluated := false

	if g.Produce != nil {
		if perr := g.Produce(ctx); perr != nil {
			if !agent.IsFailure(perr) {
				return Result{}, fmt.Errorf("gate %s produce: %w", g.Name, perr)
			}
			// Transport failure during produce: enter the corrective loop
			// with the failure as the unsatisfied evaluation.
			ev = failureEvaluation(perr)
			evaluated = true
		}
	}

	if !evaluated {
		ev, err = evaluate(ctx, g)
		if err != nil {
			return Result{}, err
		}
	}

	cycles := 0
	for {
		if ev.Blocked {
			logger.Warn("blocked verdict, escalating immediately", "cycles", cycles)
			return Result{Status: StatusEscalated, Cycles: cycles, Last: ev}, nil
		}
		if ev.Satisfied {
			return Result{Status: StatusSuccess, Cycles: cycles, Last: ev}, nil
		}
		if cycles >= g.MaxCycles {
			logger.Warn("cycle budget exhausted, escalating", "cycles", cycles, "max", g.MaxCycles)
			return Result{Status: StatusEscalated, Cycles: cycles, Last: ev}, nil
		}

		corrErr := g.Correct(ctx, ev.Issues)
		if corrErr != nil && !agent.IsFailure(corrErr) {
			return Result{}, fmt.Errorf("gate %s correct: %w", g.Name, corrErr)
		}

		cycles++
		if g.OnCycle != nil {
			if err := g.OnCycle(cycles); err != nil {
				return Result{}, fmt.Errorf("gate %s persist cycle count: %w", g.Name, err)
			}
		}

		if corrErr != nil {
			// The corrective agent could not be reached; the cycle is still
			// consumed and the loop re-enters with the transport note.
			ev = failureEvaluation(corrErr)
			continue
		}

		ev, err = evaluate(ctx, g)
		if err != nil {
			return Result{}, err
		}
	}
}

func evaluate(ctx context.Context, g Gate) (Evaluation, error) {
	ev, err := g.Evaluate(ctx)
	if err != nil {
		if agent.IsFailure(err) {
			return failureEvaluation(err), nil
		}
		return Evaluation{}, fmt.Errorf("gate %s evaluate: %w", g.Name, err)
	}
	return ev, nil
}

func failureEvaluation(err error) Evaluation {
	return Evaluation{
		Satisfied: false,
		Issues:    []string{fmt.Sprintf("agent failure (retrying): %v", err)},
		Output:    err.Error(),
	}
}
