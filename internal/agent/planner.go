package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/felixgeelhaar/phaseline/internal/errors"
	"github.com/felixgeelhaar/phaseline/internal/plan"
)

// Planner turns a feature request into a validated plan document through the
// planning collaborator. Phases are fixed at creation; a plan that fails
// domain validation is rejected here and never persisted.
type Planner struct {
	gateway Gateway
}

// NewPlanner creates a Planner on top of a gateway
func NewPlanner(gateway Gateway) *Planner {
	return &Planner{gateway: gateway}
}

// GeneratePlan invokes the planner role and assembles a pending plan with the
// given sequence number
func (pl *Planner) GeneratePlan(ctx context.Context, seq int, featureRequest, codebaseContext string) (*plan.Plan, error) {
	report, err := pl.gateway.Invoke(ctx, RolePlanner, PromptContext{
		Description:   featureRequest,
		SharedContext: codebaseContext,
	})
	if err != nil {
		return nil, fmt.Errorf("invoke planner: %w", err)
	}
	if report.Plan == nil {
		return nil, errors.New(errors.ErrCodeAgentBadPlan, "planner returned no plan document")
	}

	doc := report.Plan
	slug := sanitizeSlug(doc.Slug)
	if slug == "" {
		slug = "feature"
	}

	p := &plan.Plan{
		ID:             plan.NewID(seq, slug),
		Seq:            seq,
		Slug:           slug,
		FeatureRequest: featureRequest,
		Status:         plan.StatusPending,
		CreatedAt:      time.Now().UTC(),
		SharedContext:  doc.SharedContext,
		TestStrategy:   doc.TestStrategy,
	}
	for _, pp := range doc.Phases {
		p.Phases = append(p.Phases, plan.Phase{
			ID:           pp.ID,
			Name:         pp.Name,
			Description:  pp.Description,
			Acceptance:   pp.Acceptance,
			Owns:         pp.Owns,
			DependsOn:    pp.DependsOn,
			Estimate:     pp.Estimate,
			Presentation: pp.Presentation,
			Status:       plan.PhasePending,
		})
	}

	if err := p.Validate(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeAgentBadPlan, "planner produced an invalid plan", err).
			WithSuggestion("Re-run 'phaseline plan'; the planner output did not satisfy the plan invariants")
	}
	return p, nil
}

// sanitizeSlug lowercases and strips a planner-proposed slug down to
// [a-z0-9-]
func sanitizeSlug(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteRune('-')
		}
	}
	return strings.Trim(b.String(), "-")
}
