package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"github.com/warp/schedule-recon/api"
	"github.com/warp/schedule-recon/recon"
)

const (
	runCmdPartner = "partner"
	runCmdLMS     = "lms"
	runCmdSystem  = "system"
	runCmdProfile = "profile"
	runCmdOut     = "out"
	runCmdTable   = "table"
)

func newRunCmd(a *app) *cobra.Command {
	runCmd := &cobra.Command{
		Use:     "run",
		Short:   "Reconcile table files and store the run",
		Example: "reconcile run --partner=partner.json --lms=lms.json --profile=dmy-partner --out=run.json --table=annotated.json",
		Args:    cobra.NoArgs,
		RunE: func(ccmd *cobra.Command, args []string) error {
			return a.run(ccmd)
		},
	}
	runCmd.Flags().StringP(runCmdPartner, "p", "", "partner table (JSON: name, columns, rows)")
	runCmd.MarkFlagRequired(runCmdPartner)
	runCmd.Flags().StringP(runCmdLMS, "l", "", "LMS table (JSON)")
	runCmd.MarkFlagRequired(runCmdLMS)
	runCmd.Flags().StringP(runCmdSystem, "s", "", "optional system-of-record table (JSON)")
	runCmd.Flags().String(runCmdProfile, "", "source profile id (default profile when empty)")
	runCmd.Flags().StringP(runCmdOut, "o", "", "write the full run as JSON to this file")
	runCmd.Flags().String(runCmdTable, "", "write the flat annotated table as JSON to this file")
	return runCmd
}

func (a *app) run(ccmd *cobra.Command) error {
	flags := ccmd.Flags()
	partnerPath, _ := flags.GetString(runCmdPartner)
	lmsPath, _ := flags.GetString(runCmdLMS)
	systemPath, _ := flags.GetString(runCmdSystem)
	profile, _ := flags.GetString(runCmdProfile)
	outPath, _ := flags.GetString(runCmdOut)
	tablePath, _ := flags.GetString(runCmdTable)

	in := api.Input{Profile: profile}
	var err error
	if in.Partner, err = api.LoadTableFile(partnerPath); err != nil {
		return err
	}
	if in.LMS, err = api.LoadTableFile(lmsPath); err != nil {
		return err
	}
	if systemPath != "" {
		sys, err := api.LoadTableFile(systemPath)
		if err != nil {
			return err
		}
		in.System = &sys
	}

	run, err := a.runner.Run(ccmd.Context(), a.log, in)
	if err != nil {
		return err
	}

	printSummary(ccmd.OutOrStdout(), run.Summarize())
	if outPath != "" {
		if err := writeJSONFile(outPath, api.NewRunDTO(*run, true)); err != nil {
			return err
		}
	}
	if tablePath != "" {
		if err := writeJSONFile(tablePath, api.NewTableDTO(run.Result.Table())); err != nil {
			return err
		}
	}
	return nil
}

func printSummary(w io.Writer, s recon.RunSummary) {
	fmt.Fprintf(w, "run %s (profile %s)\n", s.ID, s.Profile)
	fmt.Fprintf(w, "  partner: %s\n  lms:     %s\n", s.PartnerName, s.LMSName)
	if s.SystemName != "" {
		fmt.Fprintf(w, "  system:  %s\n", s.SystemName)
	}
	fmt.Fprintf(w, "  rows %d, matched %d, mismatched %d, partner-only %d, lms-only %d\n",
		s.Summary.Rows, s.Summary.Matched, s.Summary.Mismatched, s.Summary.PartnerOnly, s.Summary.LMSOnly)
	fmt.Fprintf(w, "  frozen %d, changed %d\n", s.Summary.Frozen, s.Summary.Changed)

	kinds := make([]string, 0, len(s.Summary.Findings))
	for k := range s.Summary.Findings {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		fmt.Fprintf(w, "  findings %s: %d\n", k, s.Summary.Findings[recon.FindingKind(k)])
	}
}

func writeJSONFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
