package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/phaseline/internal/agent"
	"github.com/felixgeelhaar/phaseline/internal/ux"
)

var planContextFile string

var planCmd = &cobra.Command{
	Use:   "plan <feature request>",
	Short: "Create a plan and pause for review",
	Long: `Ask the planning agent to split a feature request into phases.

The plan is saved as pending so you can review the phase split, ownership
lists, and acceptance criteria before starting execution with 'phaseline run'.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPlanCreate,
}

func runPlanCreate(cmd *cobra.Command, args []string) error {
	gateway, err := newGateway()
	if err != nil {
		return err
	}
	st := newStore()

	seq, err := st.NextSeq()
	if err != nil {
		return err
	}

	var codebaseContext string
	if planContextFile != "" {
		data, err := os.ReadFile(planContextFile)
		if err != nil {
			return fmt.Errorf("reading context file: %w", err)
		}
		codebaseContext = string(data)
	}

	p, err := agent.NewPlanner(gateway).GeneratePlan(cmd.Context(), seq, strings.Join(args, " "), codebaseContext)
	if err != nil {
		return err
	}
	if err := st.Save(p); err != nil {
		return err
	}

	return formatter().Print(p, func() string {
		return ux.RenderPlanStatus(p) +
			"\nReview the plan, then execute it with 'phaseline run'."
	})
}

func init() {
	planCmd.Flags().StringVar(&planContextFile, "context", "", "file with codebase context for the planner")
	rootCmd.AddCommand(planCmd)
}
