package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/boozedog/netlogfixture/internal/config"
	"github.com/boozedog/netlogfixture/internal/core"
	"github.com/boozedog/netlogfixture/internal/netlog"
	"github.com/boozedog/netlogfixture/internal/request"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var flags config.Flags

	// Bootstrap logger for usage errors and config loading.
	log := slog.New(tint.NewHandler(stderr, &tint.Options{TimeFormat: time.TimeOnly}))

	cmd := &cobra.Command{
		Use:   "netlogfixture",
		Short: "Exercise net log start/stop around a single HTTP request",
		Long: `netlogfixture issues one GET to $TEST_URL while a net log is capturing,
stops the log, and optionally repeats the cycle once.

The first cycle logs to $TEST_DUMP_FILE_A, or to the --log-net-log path when
that variable is unset. Setting $TEST_DUMP_FILE_B runs a second cycle; the
value "--log-net-log" reuses the flag path.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if err := cobra.NoArgs(cmd, args); err != nil {
				log.Error("invalid arguments", "error", err)
				return err
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), flags, log, stdout, stderr)
		},
	}
	cmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		log.Error("invalid flags", "error", err)
		return err
	})

	f := cmd.Flags()
	f.StringVar(&flags.NetLogPath, "log-net-log", "", "start capturing to this path at startup; also the default destination")
	f.StringVar(&flags.CaptureMode, "net-log-capture-mode", "Default", "Default, IncludeSensitive or Everything")
	f.Int64Var(&flags.MaxFileSize, "net-log-max-size", 0, "maximum bytes of events in a JSON net log (0 = unbounded)")
	f.DurationVar(&flags.StepTimeout, "timeout", 0, "bound on each request and stop confirmation (0 = wait indefinitely)")
	f.StringVar(&flags.LogLevel, "log-level", "info", "debug, info, warn or error")
	f.StringVar(&flags.EnvFile, "env-file", "", "load variables from this .env file before reading the environment")

	return cmd
}

func run(ctx context.Context, flags config.Flags, log *slog.Logger, stdout, stderr io.Writer) error {
	cfg, err := config.Load(flags)
	if err != nil {
		log.Error("failed to load config", "error", err)
		return err
	}

	// Re-create logger with configured level.
	level := parseLevel(cfg.LogLevel)
	log = slog.New(tint.NewHandler(stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
	}))
	log.Debug("config loaded",
		"url", cfg.URL,
		"first", cfg.FirstDestination.String(),
		"second", cfg.SecondDestination.String(),
		"log_net_log", cfg.NetLogPath,
		"log_level", level.String(),
	)

	mode, err := netlog.ParseCaptureMode(cfg.CaptureMode)
	if err != nil {
		log.Error("invalid capture mode", "error", err)
		return err
	}

	nl := netlog.New(netlog.Options{
		DefaultPath: cfg.NetLogPath,
		CaptureMode: mode,
		MaxFileSize: cfg.MaxFileSize,
	}, log)

	// --log-net-log captures from startup unless the first cycle names its own file.
	if cfg.NetLogPath != "" && cfg.FirstDestination == nil {
		if err := nl.StartLogging(""); err != nil {
			log.Error("failed to start net log from flag", "path", cfg.NetLogPath, "error", err)
			return fmt.Errorf("starting --log-net-log: %w", err)
		}
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client := request.New(nl.Transport(nil), log)
	seq := core.NewSequencer(nl, client, stdout, log)
	if err := seq.Run(ctx, cfg); err != nil {
		log.Error("run failed", "state", seq.State().String(), "error", err)
		return err
	}

	log.Info("done")
	return nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
