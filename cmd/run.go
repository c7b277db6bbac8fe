package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/signalnine/grind/internal/config"
	"github.com/signalnine/grind/internal/docker"
	"github.com/signalnine/grind/internal/gitops"
	"github.com/signalnine/grind/internal/logging"
	"github.com/signalnine/grind/internal/monitor"
	"github.com/signalnine/grind/internal/operator"
	"github.com/signalnine/grind/internal/recorder"
	"github.com/signalnine/grind/internal/result"
	"github.com/signalnine/grind/internal/runner"
	"github.com/signalnine/grind/internal/supervisor"
	"github.com/signalnine/grind/internal/telemetry"
	"github.com/spf13/cobra"
)

var (
	flagIterations    uint64
	flagResultsDir    string
	flagLauncher      string
	flagTelemetryAddr string
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the test command in a loop until interrupted",
		RunE:  runLoop,
	}
	cmd.Flags().Uint64Var(&flagIterations, "iterations", 0, "stop after this many iterations (0 runs forever)")
	cmd.Flags().StringVar(&flagResultsDir, "results-dir", "", "override results directory")
	cmd.Flags().StringVar(&flagLauncher, "launcher", "", "override launcher kind (local, docker)")
	cmd.Flags().StringVar(&flagTelemetryAddr, "telemetry-addr", "", "serve the websocket event stream on this address")
	return cmd
}

func applyRunFlags(cfg *config.Config) error {
	if flagResultsDir != "" {
		cfg.Results.Dir = flagResultsDir
	}
	if flagLauncher != "" {
		cfg.Launcher.Kind = flagLauncher
	}
	if flagTelemetryAddr != "" {
		cfg.Telemetry.Addr = flagTelemetryAddr
	}
	return cfg.Validate()
}

func runLoop(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := applyRunFlags(cfg); err != nil {
		return err
	}
	logger := logging.Component("run")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	launcher, err := buildLauncher(cfg)
	if err != nil {
		return err
	}

	runDir, err := result.CreateRunDir(cfg.Results.Dir)
	if err != nil {
		return err
	}
	session := uuid.New()
	logger = logger.With().Str("session", session.String()).Logger()
	fmt.Printf("Run directory: %s\n", runDir)

	meta := &result.SessionMeta{
		ID:        session,
		StartedAt: time.Now().UTC(),
		Command:   cfg.Command,
		WorkDir:   cfg.WorkDir,
		Launcher:  cfg.Launcher.Kind,
		Policy: result.Policy{
			StallSeconds:            float64(cfg.Policy.StallSeconds),
			MaxSeverityCount:        cfg.Policy.MaxSeverityCount,
			IterationTimeoutSeconds: float64(cfg.Policy.IterationTimeoutSeconds),
		},
	}
	revDir := cfg.WorkDir
	if revDir == "" {
		revDir = "."
	}
	if rev, err := gitops.Revision(revDir); err == nil {
		meta.Revision = rev
	} else {
		logger.Debug().Err(err).Msg("no git revision for work dir")
	}
	if err := result.WriteSessionMeta(runDir, meta); err != nil {
		logger.Warn().Err(err).Msg("writing session manifest")
	}

	mon := &monitor.Monitor{
		Policy:   cfg.MonitorPolicy(),
		Markers:  cfg.Markers,
		Recorder: recorder.New(runDir, logging.Component("recorder")),
		Operator: operator.New(os.Stdout, operator.IsTerminal(os.Stdout)),
		Logger:   logging.Component("monitor").With().Str("session", session.String()).Logger(),
	}
	if cfg.Telemetry.Addr != "" {
		hub := telemetry.NewHub(session.String(), logging.Component("telemetry"))
		srv, err := telemetry.Listen(cfg.Telemetry.Addr, hub)
		if err != nil {
			return fmt.Errorf("starting telemetry: %w", err)
		}
		defer srv.Close()
		logger.Info().Str("addr", srv.Addr).Msg("telemetry listening")
		mon.Telemetry = hub
	}

	loop := &runner.Loop{
		Launcher:      launcher,
		Watcher:       mon,
		Logger:        logger,
		RetryDelay:    cfg.LaunchRetry(),
		SettleDelay:   cfg.Settle(),
		MaxIterations: flagIterations,
	}
	logger.Info().Str("command", cfg.Command).Str("launcher", cfg.Launcher.Kind).Msg("session started")

	stats, err := loop.Run(ctx)
	logger.Info().
		Uint64("iterations", stats.Iterations).
		Uint64("completed", stats.Completed).
		Uint64("launch_failures", stats.LaunchFailures).
		Msg("session ended")
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// buildLauncher picks the launcher for cfg. The docker launcher only gets
// the overrides; the local one inherits the full parent environment.
func buildLauncher(cfg *config.Config) (supervisor.Launcher, error) {
	switch cfg.Launcher.Kind {
	case "docker":
		env, err := cfg.Env.Overrides()
		if err != nil {
			return nil, err
		}
		workDir := cfg.WorkDir
		if workDir == "" {
			workDir = "."
		}
		abs, err := filepath.Abs(workDir)
		if err != nil {
			return nil, fmt.Errorf("resolving work dir: %w", err)
		}
		return &docker.Launcher{
			Image:   cfg.Launcher.Image,
			Command: cfg.Command,
			Shell:   cfg.Shell,
			WorkDir: abs,
			Env:     env,
			Grace:   cfg.Grace(),
			UserID:  fmt.Sprintf("%d:%d", os.Getuid(), os.Getgid()),
		}, nil
	default:
		env, err := cfg.ChildEnv()
		if err != nil {
			return nil, err
		}
		return &supervisor.Local{
			Command: cfg.Command,
			Shell:   cfg.Shell,
			WorkDir: cfg.WorkDir,
			Env:     env,
			Grace:   cfg.Grace(),
		}, nil
	}
}
