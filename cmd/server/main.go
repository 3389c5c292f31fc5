/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the schedule reconciliation server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Build the logger
  3. Load source profiles
  4. Initialize SQLite store
  5. Configure HTTP router
  6. Start inbox scheduler, if configured
  7. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port        HTTP server port (default: 8080)
  -db          SQLite database path (default: recon.db)
               Use ":memory:" for in-memory database
  -profiles    Directory of source profile files (default: none, built-in profile only)
  -log-level   debug, info, warn, error (default: info)
  -log-pretty  Human-readable console logs instead of JSON
  -inbox       Directory scanned for dropped schedule batches (default: off)
  -inbox-interval  How often the inbox is scanned (default: 1m)
  -inbox-profile   Source profile for inbox batches (default profile when empty)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the inbox scheduler, finishing any batch in flight
  4. Close database connection
  5. Exit

EXAMPLES:
  ./server -db="./data/recon.db" -profiles=./profiles
  ./server -db=":memory:" -log-level=debug -log-pretty
  ./server -inbox=/var/recon/inbox -inbox-interval=5m -inbox-profile=dmy-partner

SEE ALSO:
  - api/server.go: Router configuration
  - api/scheduler.go: Inbox scheduler
  - factory/profile.go: Profile files
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/warp/schedule-recon/api"
	"github.com/warp/schedule-recon/factory"
	"github.com/warp/schedule-recon/logging"
	"github.com/warp/schedule-recon/store/sqlite"
)

func main() {
	// Flags
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "recon.db", "SQLite database path")
	profilesDir := flag.String("profiles", "", "Directory of source profile files")
	logLevel := flag.String("log-level", "info", "Log level")
	logPretty := flag.Bool("log-pretty", false, "Human-readable logs")
	inbox := flag.String("inbox", "", "Directory scanned for schedule batches")
	inboxInterval := flag.Duration("inbox-interval", time.Minute, "Inbox scan interval")
	inboxProfile := flag.String("inbox-profile", "", "Source profile for inbox batches")
	flag.Parse()

	log, err := logging.New(*logLevel, *logPretty)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	cfg := config{
		port:          *port,
		dbPath:        *dbPath,
		profilesDir:   *profilesDir,
		inbox:         *inbox,
		inboxInterval: *inboxInterval,
		inboxProfile:  *inboxProfile,
	}
	if err := run(log, cfg); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}

type config struct {
	port          int
	dbPath        string
	profilesDir   string
	inbox         string
	inboxInterval time.Duration
	inboxProfile  string
}

func run(log zerolog.Logger, cfg config) error {
	// Load profiles
	profiles := factory.NewRegistry()
	if cfg.profilesDir != "" {
		var err error
		profiles, err = factory.NewProfileFactory().LoadDir(cfg.profilesDir)
		if err != nil {
			return fmt.Errorf("failed to load profiles: %w", err)
		}
	}
	for _, p := range profiles.List() {
		log.Info().Str("profile", p.ID).Msg("profile loaded")
	}

	// Initialize store
	store, err := sqlite.New(cfg.dbPath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer store.Close()

	handler := api.NewHandler(store, profiles)
	router := api.NewRouter(handler, log)

	if cfg.inbox != "" {
		if _, err := profiles.Get(cfg.inboxProfile); err != nil {
			return fmt.Errorf("inbox profile: %w", err)
		}
		scheduler := api.NewInboxScheduler(handler.Runner, cfg.inbox, log)
		scheduler.CheckInterval = cfg.inboxInterval
		scheduler.Profile = cfg.inboxProfile
		scheduler.Start()
		defer scheduler.Stop()
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.port).Str("db", cfg.dbPath).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serverErr:
		return err
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("shutting down server")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info().Msg("server stopped")
	return nil
}
