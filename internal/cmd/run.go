package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/phaseline/internal/engine"
	"github.com/felixgeelhaar/phaseline/internal/errors"
	"github.com/felixgeelhaar/phaseline/internal/plan"
	"github.com/felixgeelhaar/phaseline/internal/ux"
)

var runResume bool

var runCmd = &cobra.Command{
	Use:   "run [plan-id]",
	Short: "Execute or resume a plan",
	Long: `Execute the given plan (or the current one) phase by phase.

With --resume, a plan interrupted by a crash or Ctrl+C picks up at the first
phase that has not completed; a phase that was mid-flight restarts from its
implement step.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runExecute,
}

func runExecute(cmd *cobra.Command, args []string) error {
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

	if p.Status == plan.StatusPaused && !runResume {
		return errors.New(errors.ErrCodeEngineBadStatus,
			fmt.Sprintf("plan %s was interrupted by a previous run", p.ID)).
			WithSuggestion("Re-run with --resume to pick up where it left off")
	}

	gateway, err := newGateway()
	if err != nil {
		return err
	}
	ws, err := newWorkspace()
	if err != nil {
		return err
	}

	eng := engine.New(gateway, ws, st, cfg.Gates)
	outcome, err := eng.Run(cmd.Context(), p, runResume)
	if err != nil {
		return err
	}

	if outcome.Stuck != nil {
		fmt.Fprintln(cmd.OutOrStdout(), outcome.Stuck.Render())
		if outcome.Stuck.Status == plan.PhaseFailed {
			return errors.New(errors.ErrCodePhaseFailed,
				fmt.Sprintf("phase %s failed validation", outcome.Stuck.PhaseID)).
				WithSuggestion("See the report above; the plan's file split is likely wrong")
		}
		return errors.NewStuckPhaseError(outcome.Stuck.PhaseID, string(outcome.Stuck.Status))
	}
	if outcome.PostLoopEscalated != "" {
		return errors.New(errors.ErrCodeEngineHalted,
			fmt.Sprintf("whole-plan %s check did not pass within its cycle budget", outcome.PostLoopEscalated)).
			WithSuggestion("Unresolved: " + strings.Join(outcome.PostLoopIssues, "; ")).
			WithSuggestion("Fix the issues or raise gates.post_loop, then re-run with --resume")
	}

	return formatter().Print(outcome.Plan, func() string {
		return ux.RenderPlanStatus(outcome.Plan) +
			fmt.Sprintf("\nPlan %s completed (integration cycles %d, build cycles %d).",
				outcome.Plan.ID, outcome.IntegrationCycles, outcome.BuildCycles)
	})
}

func init() {
	runCmd.Flags().BoolVar(&runResume, "resume", false, "resume an interrupted plan")
	rootCmd.AddCommand(runCmd)
}
