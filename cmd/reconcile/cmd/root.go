/*
root.go - Command-line entry for batch reconciliation

PURPOSE:
  Runs the reconciliation engine over table files and inspects stored
  runs without going through the HTTP server.

COMMANDS:
  run          Reconcile partner/LMS (and optional system) table files
  runs list    List stored runs, newest first
  runs show    Print one stored run as JSON
  runs findings
               Print a run's findings (--kind to filter)
  loan         Findings recorded for a loan across runs
  scenarios    List or run the built-in demo scenarios

PERSISTENT FLAGS:
  --db          SQLite database path. Empty keeps runs in memory for the
                lifetime of the command.
  --profiles    Directory of source profile files
  --log-level   debug, info, warn, error
  --log-pretty  Human-readable console logs

  Logs go to stderr, results to stdout.

SEE ALSO:
  - api/runner.go: Shared run execution
  - cmd/server/main.go: HTTP entry point
*/
package cmd

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/warp/schedule-recon/api"
	"github.com/warp/schedule-recon/factory"
	"github.com/warp/schedule-recon/logging"
	"github.com/warp/schedule-recon/recon"
	memstore "github.com/warp/schedule-recon/recon/store"
	"github.com/warp/schedule-recon/store/sqlite"
)

const (
	rootCmdDB        = "db"
	rootCmdProfiles  = "profiles"
	rootCmdLogLevel  = "log-level"
	rootCmdLogPretty = "log-pretty"
)

// app is the state shared by every subcommand, built before the
// subcommand runs and released after.
type app struct {
	log    zerolog.Logger
	store  recon.RunStore
	runner *api.Runner
	close  func() error
}

// Execute adds all child commands to the root command and runs it.
// This is called by main.main().
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:          "reconcile",
		Short:        "Reconcile partner repayment schedules against the LMS",
		SilenceUsage: true,
		PersistentPreRunE: func(ccmd *cobra.Command, args []string) error {
			return a.setup(ccmd)
		},
		PersistentPostRunE: func(ccmd *cobra.Command, args []string) error {
			if a.close != nil {
				return a.close()
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().String(rootCmdDB, "", "SQLite database path (empty: in-memory)")
	rootCmd.PersistentFlags().String(rootCmdProfiles, "", "directory of source profile files")
	rootCmd.PersistentFlags().String(rootCmdLogLevel, "warn", "log level")
	rootCmd.PersistentFlags().Bool(rootCmdLogPretty, false, "human-readable logs")

	rootCmd.AddCommand(newRunCmd(a))
	rootCmd.AddCommand(newRunsCmd(a))
	rootCmd.AddCommand(newLoanCmd(a))
	rootCmd.AddCommand(newScenariosCmd(a))
	return rootCmd
}

func (a *app) setup(ccmd *cobra.Command) error {
	flags := ccmd.Flags()
	level, _ := flags.GetString(rootCmdLogLevel)
	pretty, _ := flags.GetBool(rootCmdLogPretty)
	dbPath, _ := flags.GetString(rootCmdDB)
	profilesDir, _ := flags.GetString(rootCmdProfiles)

	log, err := logging.NewWithWriter(ccmd.ErrOrStderr(), level, pretty)
	if err != nil {
		return err
	}
	a.log = log

	profiles := factory.NewRegistry()
	if profilesDir != "" {
		profiles, err = factory.NewProfileFactory().LoadDir(profilesDir)
		if err != nil {
			return fmt.Errorf("failed to load profiles: %w", err)
		}
	}

	if dbPath == "" {
		a.store = memstore.NewMemory()
		a.close = nil
	} else {
		db, err := sqlite.New(dbPath)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		a.store = db
		a.close = db.Close
	}

	a.runner = api.NewRunner(a.store, profiles)
	return nil
}
