// Package escalate formats a stuck phase into an operator-actionable report:
// what was attempted, the failing output, the cycles consumed, and the
// remediation options.
package escalate

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/felixgeelhaar/phaseline/internal/plan"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("196"))

	labelStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("243"))

	noteStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("250")).
			PaddingLeft(2)

	remedyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			PaddingLeft(2)
)

// Report is the operator-facing summary of a phase that needs human attention
type Report struct {
	PlanID                  string
	PhaseID                 string
	PhaseName               string
	Status                  plan.PhaseStatus
	ReviewCycles            int
	SpecializedReviewCycles int
	TestCycles              int
	Notes                   []string
	Remediation             []string
}

// FromPhase builds a report for an escalated or failed phase
func FromPhase(p *plan.Plan, phase *plan.Phase) *Report {
	return &Report{
		PlanID:                  p.ID,
		PhaseID:                 phase.ID,
		PhaseName:               phase.Name,
		Status:                  phase.Status,
		ReviewCycles:            phase.Record.ReviewCycles,
		SpecializedReviewCycles: phase.Record.SpecializedReviewCycles,
		TestCycles:              phase.Record.TestCycles,
		Notes:                   phase.Record.Notes,
		Remediation:             remediation(phase.Status),
	}
}

// remediation lists the operator actions that make sense for each terminal
// status. Escalation means budgets ran out on fixable work; failure means the
// plan itself is likely wrong.
func remediation(status plan.PhaseStatus) []string {
	switch status {
	case plan.PhaseEscalated:
		return []string{
			"raise the relevant gate ceiling in the config and re-run with --resume",
			"fix the underlying issues in the workspace, then re-run with --resume",
			"revise the plan if the phase scope is wrong",
		}
	case plan.PhaseFailed:
		return []string{
			"inspect the workspace for out-of-ownership or missing-file problems",
			"revise the plan's ownership lists or phase boundaries",
			"revert unintended modifications, then re-run with --resume",
		}
	default:
		return nil
	}
}

// String renders the report without styling, for logs and JSON-adjacent
// output
func (r *Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "phase %s (%s) is %s in plan %s\n", r.PhaseID, r.PhaseName, r.Status, r.PlanID)
	fmt.Fprintf(&b, "cycles consumed: review=%d specialized=%d tests=%d\n",
		r.ReviewCycles, r.SpecializedReviewCycles, r.TestCycles)
	if len(r.Notes) > 0 {
		b.WriteString("notes:\n")
		for _, note := range r.Notes {
			fmt.Fprintf(&b, "  %s\n", note)
		}
	}
	if len(r.Remediation) > 0 {
		b.WriteString("remediation:\n")
		for _, remedy := range r.Remediation {
			fmt.Fprintf(&b, "  - %s\n", remedy)
		}
	}
	return b.String()
}

// Render returns the styled terminal rendering
func (r *Report) Render() string {
	var b strings.Builder

	verb := "escalated"
	if r.Status == plan.PhaseFailed {
		verb = "failed"
	}
	b.WriteString(titleStyle.Render(fmt.Sprintf("Phase %s %s — human attention required", r.PhaseID, verb)))
	b.WriteString("\n\n")

	b.WriteString(labelStyle.Render("Plan:"))
	b.WriteString(" " + r.PlanID + "\n")
	b.WriteString(labelStyle.Render("Phase:"))
	b.WriteString(fmt.Sprintf(" %s (%s)\n", r.PhaseID, r.PhaseName))
	b.WriteString(labelStyle.Render("Cycles:"))
	b.WriteString(fmt.Sprintf(" review=%d specialized=%d tests=%d\n",
		r.ReviewCycles, r.SpecializedReviewCycles, r.TestCycles))

	if len(r.Notes) > 0 {
		b.WriteString("\n" + labelStyle.Render("What happened:") + "\n")
		for _, note := range r.Notes {
			b.WriteString(noteStyle.Render(note) + "\n")
		}
	}

	if len(r.Remediation) > 0 {
		b.WriteString("\n" + labelStyle.Render("Next steps:") + "\n")
		for _, remedy := range r.Remediation {
			b.WriteString(remedyStyle.Render("- "+remedy) + "\n")
		}
	}

	return b.String()
}
