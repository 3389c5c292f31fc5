package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/warp/schedule-recon/api"
	"github.com/warp/schedule-recon/recon"
)

const (
	runsCmdLimit = "limit"
	runsCmdKind  = "kind"
)

func newRunsCmd(a *app) *cobra.Command {
	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect stored reconciliation runs",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List stored runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(ccmd *cobra.Command, args []string) error {
			limit, _ := ccmd.Flags().GetInt(runsCmdLimit)
			runs, err := a.store.ListRuns(ccmd.Context(), limit)
			if err != nil {
				return err
			}
			printRuns(ccmd.OutOrStdout(), runs)
			return nil
		},
	}
	listCmd.Flags().IntP(runsCmdLimit, "n", 20, "maximum number of runs (0 for all)")

	showCmd := &cobra.Command{
		Use:     "show <run-id>",
		Short:   "Print a stored run as JSON",
		Example: "reconcile --db=recon.db runs show 4f1c...",
		Args:    cobra.ExactArgs(1),
		RunE: func(ccmd *cobra.Command, args []string) error {
			run, err := a.store.GetRun(ccmd.Context(), args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(ccmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(api.NewRunDTO(*run, true))
		},
	}

	findingsCmd := &cobra.Command{
		Use:     "findings <run-id>",
		Short:   "Print a run's findings",
		Example: "reconcile --db=recon.db runs findings 4f1c... --kind=DuplicateKey",
		Args:    cobra.ExactArgs(1),
		RunE: func(ccmd *cobra.Command, args []string) error {
			kind, _ := ccmd.Flags().GetString(runsCmdKind)
			findings, err := a.store.ListFindings(ccmd.Context(), args[0], recon.FindingKind(kind))
			if err != nil {
				return err
			}
			printFindings(ccmd.OutOrStdout(), findings)
			return nil
		},
	}
	findingsCmd.Flags().StringP(runsCmdKind, "k", "", "only findings of this kind")

	runsCmd.AddCommand(listCmd, showCmd, findingsCmd)
	return runsCmd
}

func newLoanCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "loan <loan-id>",
		Short: "Findings recorded for a loan across runs",
		Args:  cobra.ExactArgs(1),
		RunE: func(ccmd *cobra.Command, args []string) error {
			findings, err := a.store.FindingsByLoan(ccmd.Context(), recon.LoanID(args[0]))
			if err != nil {
				return err
			}
			printFindings(ccmd.OutOrStdout(), findings)
			return nil
		},
	}
}

func printRuns(w io.Writer, runs []recon.RunSummary) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPROFILE\tCREATED\tROWS\tMATCHED\tMISMATCHED\tFINDINGS")
	for _, r := range runs {
		findings := 0
		for _, n := range r.Summary.Findings {
			findings += n
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\n",
			r.ID, r.Profile, r.CreatedAt.Format(time.RFC3339),
			r.Summary.Rows, r.Summary.Matched, r.Summary.Mismatched, findings)
	}
	tw.Flush()
}

func printFindings(w io.Writer, findings []recon.FindingRecord) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSEQ\tKIND\tLOAN\tMESSAGE")
	for _, f := range findings {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n", f.RunID, f.Seq, f.Kind, f.LoanID, f.Message)
	}
	tw.Flush()
}
