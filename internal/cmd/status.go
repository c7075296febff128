package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/phaseline/internal/escalate"
	"github.com/felixgeelhaar/phaseline/internal/plan"
	"github.com/felixgeelhaar/phaseline/internal/ux"
)

var statusCmd = &cobra.Command{
	Use:   "status [plan-id]",
	Short: "Show per-phase status of a plan",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st := newStore()

		var p *plan.Plan
		var err error
		if len(args) == 1 {
			p, err = st.Load(args[0])
		} else {
			p, err = st.LoadCurrent()
		}
		if err != nil {
			return err
		}

		return formatter().Print(p, func() string {
			out := ux.RenderPlanStatus(p)

			// Stuck phases get the full escalation report appended.
			for i := range p.Phases {
				phase := &p.Phases[i]
				if phase.Status == plan.PhaseEscalated || phase.Status == plan.PhaseFailed {
					out += "\n" + escalate.FromPhase(p, phase).Render()
				}
			}
			return strings.TrimRight(out, "\n")
		})
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
