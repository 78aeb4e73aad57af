// Package main is the CLI entry point for mentiond.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fediwatch/mentiond/internal/config"
	"github.com/fediwatch/mentiond/internal/daemon"
	"github.com/fediwatch/mentiond/internal/domain"
	"github.com/fediwatch/mentiond/internal/infra"
	"github.com/fediwatch/mentiond/internal/notify"
	"github.com/fediwatch/mentiond/internal/plugin"
	"github.com/fediwatch/mentiond/internal/source"
)

var (
	// Version info (set via ldflags)
	Version   = "0.1.0"
	Commit    = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "mentiond",
	Short: "Mention bot daemon - replies to mentions through plugins",
	Long: `mentiond watches a Mastodon account for new mentions and routes each
one through a chain of plugins loaded from a plugin directory. It runs
as a background daemon controlled with start, stop and status, and
escalates operational problems to the administrator through an
Apprise-compatible notification endpoint.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the mention daemon",
	Long: `Starts the daemon in the background. Fails if an instance is already
running. Required configuration (environment):

  MENTION_SOURCE_BASE_URL      base URL of the Mastodon instance
  MENTION_SOURCE_ACCESS_TOKEN  access token of the bot account
  ALERT_SINK_URL               Apprise endpoint for administrator alerts

Optional: POLL_INTERVAL_SECONDS (default 30), MENTIOND_PLUGIN_DIR,
MENTIOND_STATE_DIR.`,
	RunE: runStart,
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the mention daemon",
	Long:  `Signals the running daemon to shut down and waits for it to exit.`,
	RunE:  runStop,
}

var restartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Restart the mention daemon",
	RunE:  runRestart,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check whether the daemon is running",
	Run:   runStatus,
}

var testnotifyCmd = &cobra.Command{
	Use:   "testnotify",
	Short: "Send a test message through the alert sink",
	RunE:  runTestNotify,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run:   runVersion,
}

// Hidden daemon command - the detached process spawned by start
var daemonCmd = &cobra.Command{
	Use:    "daemon",
	Hidden: true,
	RunE:   runDaemon,
}

var jsonOutput bool

func init() {
	versionCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(restartCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(testnotifyCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(daemonCmd)
}

func newController(cfg *config.Config, logger *zap.Logger) *daemon.Controller {
	pm := infra.NewProcessManager()
	leases := infra.NewFileLeaseStore(cfg.LeaseFile(), pm)
	return daemon.NewController(leases, pm, daemon.SpawnDaemon, logger)
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := consoleLogger()
	defer func() { _ = logger.Sync() }()

	lease, err := newController(cfg, logger).Start()
	if errors.Is(err, domain.ErrAlreadyRunning) {
		if lease != nil {
			return fmt.Errorf("mentiond is already running (pid %d)", lease.PID)
		}
		return fmt.Errorf("mentiond is already running")
	}
	if err != nil {
		return err
	}

	fmt.Printf("mentiond started (pid %d)\n", lease.PID)
	fmt.Printf("Log file: %s\n", cfg.LogFile())
	return nil
}

func runStop(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := consoleLogger()
	defer func() { _ = logger.Sync() }()

	if err := newController(cfg, logger).Stop(); err != nil {
		if errors.Is(err, domain.ErrNotRunning) {
			return fmt.Errorf("mentiond is not running")
		}
		return err
	}

	fmt.Println("mentiond stopped")
	return nil
}

func runRestart(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := consoleLogger()
	defer func() { _ = logger.Sync() }()

	ctrl := newController(cfg, logger)
	if err := ctrl.Stop(); err != nil && !errors.Is(err, domain.ErrNotRunning) {
		return err
	}
	time.Sleep(time.Second)

	lease, err := ctrl.Start()
	if err != nil {
		return err
	}
	fmt.Printf("mentiond restarted (pid %d)\n", lease.PID)
	return nil
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		fmt.Println("NotRunning")
		return
	}

	logger := consoleLogger()
	defer func() { _ = logger.Sync() }()

	state, lease, err := newController(cfg, logger).Status()
	if err != nil || state != domain.StateRunning {
		fmt.Println("NotRunning")
		return
	}
	fmt.Printf("Running (pid %d, since %s)\n",
		lease.PID, lease.StartedAt.Format(time.RFC3339))
}

func runTestNotify(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sink := notify.NewAppriseSink(cfg.AlertSinkURL)
	if err := sink.Notify(ctx, "Test notification from mentiond"); err != nil {
		return fmt.Errorf("test notification failed: %w", err)
	}

	fmt.Println("Success. Please check your incoming notifications.")
	return nil
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := daemonLogger(cfg)
	defer func() { _ = logger.Sync() }()

	pm := infra.NewProcessManager()
	leases := infra.NewFileLeaseStore(cfg.LeaseFile(), pm)
	release, err := leases.Acquire(pm.CurrentPID())
	if err != nil {
		logger.Error("failed to acquire lease", zap.Error(err))
		return err
	}
	defer release()

	logger.Info("mentiond daemon starting", zap.Int("pid", pm.CurrentPID()))

	registry, err := plugin.LoadDir(cfg.PluginDir, logger)
	if err != nil {
		logger.Error("plugin loading failed", zap.Error(err))
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client := source.NewClient(cfg.SourceBaseURL, cfg.SourceAccessToken)
	sink := notify.NewAppriseSink(cfg.AlertSinkURL)

	account, err := client.VerifyCredentials(ctx)
	if err != nil {
		logger.Error("credential verification failed", zap.Error(err))
		notifyBestEffort(sink, logger, fmt.Sprintf("mentiond failed to start: %v", err))
		return err
	}
	logger.Info("authenticated", zap.String("account", account.Acct))

	store, err := infra.OpenStateStore(cfg.StateFile(), cfg.SeenHorizon(), logger)
	if err != nil {
		logger.Error("opening dedup state failed", zap.Error(err))
		return err
	}

	engine := daemon.NewEngine(daemon.EngineConfig{
		PollInterval:      cfg.PollInterval,
		FetchFailureLimit: cfg.FetchFailureLimit,
		SelfAccountID:     account.ID,
	}, client, store, registry, sink, logger)

	runErr := engine.Run(ctx)
	if runErr != nil {
		return runErr
	}

	logger.Info("mentiond daemon stopped")
	notifyBestEffort(sink, logger, "mentiond has been stopped")
	return nil
}

func notifyBestEffort(sink domain.AlertSink, logger *zap.Logger, msg string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := sink.Notify(ctx, msg); err != nil {
		logger.Error("alert delivery failed, keeping local log only",
			zap.String("alert", msg),
			zap.Error(err))
	}
}

// consoleLogger is for short-lived CLI commands.
func consoleLogger() *zap.Logger {
	logger, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// daemonLogger writes to the log file under the state directory.
func daemonLogger(cfg *config.Config) *zap.Logger {
	if err := os.MkdirAll(cfg.StateDir, 0700); err == nil {
		zcfg := zap.NewProductionConfig()
		zcfg.OutputPaths = []string{cfg.LogFile()}
		zcfg.ErrorOutputPaths = []string{cfg.LogFile()}
		zcfg.EncoderConfig.TimeKey = "time"
		zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		if logger, err := zcfg.Build(); err == nil {
			return logger
		}
	}
	// Fallback to stdout if file logging fails
	logger, _ := zap.NewProduction()
	return logger
}

func runVersion(cmd *cobra.Command, args []string) {
	if jsonOutput {
		fmt.Printf(`{"version":"%s","commit":"%s","build_time":"%s"}`+"\n",
			Version, Commit, BuildTime)
	} else {
		fmt.Printf("mentiond %s (commit: %s, built: %s)\n",
			Version, Commit, BuildTime)
	}
}
