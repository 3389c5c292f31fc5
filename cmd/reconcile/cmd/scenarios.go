package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/warp/schedule-recon/api"
	"github.com/warp/schedule-recon/factory"
)

func newScenariosCmd(a *app) *cobra.Command {
	scenariosCmd := &cobra.Command{
		Use:   "scenarios",
		Short: "Built-in demo scenarios",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List demo scenarios",
		Args:  cobra.NoArgs,
		RunE: func(ccmd *cobra.Command, args []string) error {
			tw := tabwriter.NewWriter(ccmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tCATEGORY\tNAME")
			for _, s := range api.Scenarios() {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", s.ID, s.Category, s.Name)
			}
			return tw.Flush()
		},
	}

	runCmd := &cobra.Command{
		Use:     "run <scenario-id>",
		Short:   "Reconcile a demo scenario and store the run",
		Example: "reconcile scenarios run balance-carry",
		Args:    cobra.ExactArgs(1),
		RunE: func(ccmd *cobra.Command, args []string) error {
			s, ok := api.FindScenario(args[0])
			if !ok {
				return fmt.Errorf("unknown scenario %q", args[0])
			}
			run, err := a.runner.Run(ccmd.Context(), a.log, api.Input{
				Profile: factory.DefaultProfileID,
				Partner: s.Partner,
				LMS:     s.LMS,
				System:  s.System,
			})
			if err != nil {
				return err
			}
			printSummary(ccmd.OutOrStdout(), run.Summarize())
			return nil
		},
	}

	scenariosCmd.AddCommand(listCmd, runCmd)
	return scenariosCmd
}
