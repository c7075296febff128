package cmd

import (
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/phaseline/internal/ux"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List all plans, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		plans, err := newStore().List()
		if err != nil {
			return err
		}
		return formatter().Print(plans, func() string {
			return ux.RenderHistory(plans)
		})
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
}
