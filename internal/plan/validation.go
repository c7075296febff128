package plan

import (
	"fmt"
	"strings"

	"github.com/felixgeelhaar/phaseline/internal/errors"
)

// Validate checks if the Phase is valid according to domain rules
func (ph *Phase) Validate() error {
	if strings.TrimSpace(ph.ID) == "" {
		return fmt.Errorf("phase ID cannot be empty")
	}

	if strings.TrimSpace(ph.Name) == "" {
		return fmt.Errorf("phase name cannot be empty")
	}

	// The executing agent gets no other context about what to build, so an
	// empty description makes the phase unexecutable.
	if strings.TrimSpace(ph.Description) == "" {
		return fmt.Errorf("phase description cannot be empty")
	}

	if len(ph.Owns) == 0 {
		return fmt.Errorf("phase must own at least one file")
	}
	for i, f := range ph.Owns {
		if strings.TrimSpace(f) == "" {
			return fmt.Errorf("owned file at index %d is empty", i)
		}
	}

	if ph.Estimate <= 0 {
		return fmt.Errorf("estimate must be positive, got %d", ph.Estimate)
	}

	if !ph.Status.IsValid() {
		return fmt.Errorf("unknown phase status %q", ph.Status)
	}

	return nil
}

// Validate checks if the Plan is valid
func (p *Plan) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return errors.New(errors.ErrCodePlanInvalid, "plan ID cannot be empty")
	}

	if !p.Status.IsValid() {
		return errors.New(errors.ErrCodePlanInvalid, fmt.Sprintf("unknown plan status %q", p.Status))
	}

	if len(p.Phases) == 0 {
		return errors.New(errors.ErrCodePlanInvalid, "plan must have at least one phase")
	}

	// Track phase IDs to check for duplicates and validate dependencies
	phaseIDs := make(map[string]bool)
	for i, phase := range p.Phases {
		if err := phase.Validate(); err != nil {
			return errors.Wrap(errors.ErrCodePlanInvalid,
				fmt.Sprintf("phase at index %d (%s) is invalid", i, phase.ID), err)
		}

		if phaseIDs[phase.ID] {
			return errors.New(errors.ErrCodePlanDuplicateID,
				fmt.Sprintf("duplicate phase ID %q at index %d", phase.ID, i))
		}
		phaseIDs[phase.ID] = true
	}

	// Dependencies must reference existing phases and appear earlier in the
	// list: the engine treats the declared order as the execution order.
	seen := make(map[string]bool)
	for i, phase := range p.Phases {
		for _, depID := range phase.DependsOn {
			if !phaseIDs[depID] {
				return errors.New(errors.ErrCodePlanUnknownDep,
					fmt.Sprintf("phase at index %d (%s) depends on %q which does not exist in plan", i, phase.ID, depID))
			}
			if !seen[depID] {
				return errors.New(errors.ErrCodePlanBadOrder,
					fmt.Sprintf("phase %s depends on %s which is listed after it", phase.ID, depID))
			}
		}
		seen[phase.ID] = true
	}

	if err := p.checkCircularDependencies(); err != nil {
		return err
	}

	if err := p.checkOwnershipDisjoint(); err != nil {
		return err
	}

	// Plan status is a monotone function of phase statuses.
	if p.Status == StatusCompleted && !p.AllPhasesCompleted() {
		return errors.New(errors.ErrCodePlanInvalid,
			"plan cannot be completed while a phase is not completed")
	}

	return nil
}

// checkCircularDependencies detects cycles in the phase dependency graph
func (p *Plan) checkCircularDependencies() error {
	graph := make(map[string][]string)
	for _, phase := range p.Phases {
		graph[phase.ID] = phase.DependsOn
	}

	visited := make(map[string]bool)
	recStack := make(map[string]bool)

	var hasCycle func(phaseID string, path []string) error
	hasCycle = func(phaseID string, path []string) error {
		visited[phaseID] = true
		recStack[phaseID] = true
		path = append(path, phaseID)

		for _, dep := range graph[phaseID] {
			if !visited[dep] {
				if err := hasCycle(dep, path); err != nil {
					return err
				}
			} else if recStack[dep] {
				cyclePath := append(path, dep)
				return errors.New(errors.ErrCodePlanCyclicDep,
					fmt.Sprintf("circular dependency detected: %s", strings.Join(cyclePath, " -> ")))
			}
		}

		recStack[phaseID] = false
		return nil
	}

	for _, phase := range p.Phases {
		if !visited[phase.ID] {
			if err := hasCycle(phase.ID, []string{}); err != nil {
				return err
			}
		}
	}

	return nil
}

// checkOwnershipDisjoint enforces that owned file lists do not overlap across
// phases. Overlapping ownership makes the validate step's out-of-scope
// modification check meaningless.
func (p *Plan) checkOwnershipDisjoint() error {
	owner := make(map[string]string)
	for _, phase := range p.Phases {
		for _, file := range phase.Owns {
			if prev, taken := owner[file]; taken {
				return errors.New(errors.ErrCodePlanOwnsOverlap,
					fmt.Sprintf("file %q is owned by both %s and %s", file, prev, phase.ID))
			}
			owner[file] = phase.ID
		}
	}
	return nil
}
