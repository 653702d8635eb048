package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/kabuki/internal/builder"
	"github.com/roach88/kabuki/internal/compiler"
	"github.com/roach88/kabuki/internal/config"
	"github.com/roach88/kabuki/internal/reload"
	"github.com/roach88/kabuki/internal/remote"
	"github.com/roach88/kabuki/internal/store"
	"github.com/roach88/kabuki/internal/telemetry"
)

const shutdownTimeout = 5 * time.Second

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	ConfigPath   string
	Pipeline     string
	PeriodMillis int
	Database     string
	MetricsAddr  string
	RemoteAddr   string
	Stdin        bool
	Watch        bool

	// SessionIDs overrides the recorder's session id generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	SessionIDs store.SessionIDGenerator

	// Ready, when set, is called once the pipeline is running (for testing).
	Ready func(*reload.Supervisor)
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return newRunCommand(&RunOptions{RootOptions: rootOpts})
}

func newRunCommand(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [pipeline-dir]",
		Short: "Run a pipeline",
		Long: `Build a pipeline and run its controller loop until interrupted.

Settings come from --config, else from kabuki.yaml in the pipeline
directory, else from defaults. Flags override file settings.

With --watch the pipeline is rebuilt when a .cue file changes; SIGHUP
requests the same rebuild. A failed rebuild keeps the running pipeline.

Examples:
  kabuki run ./pipelines
  kabuki run ./pipelines --pipeline servo --db ./kabuki.db --watch
  kabuki run --config ./kabuki.yaml --metrics-addr :9100 --remote-addr :8090`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(opts, args, cmd)
			if err != nil {
				return err
			}
			return runPipeline(opts, cfg, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.ConfigPath, "config", "", "path to a kabuki.yaml configuration file")
	cmd.Flags().StringVar(&opts.Pipeline, "pipeline", "", "pipeline name (default: the only pipeline in the directory)")
	cmd.Flags().IntVar(&opts.PeriodMillis, "period-ms", 0, "cycle period override in milliseconds")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database for the record sink")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	cmd.Flags().StringVar(&opts.RemoteAddr, "remote-addr", "", "serve the websocket remote on this address")
	cmd.Flags().BoolVar(&opts.Stdin, "stdin", false, "read remote-control lines from standard input")
	cmd.Flags().BoolVar(&opts.Watch, "watch", false, "rebuild when .cue files change")

	return cmd
}

// resolveConfig loads the configuration file, if any, and applies flags.
func resolveConfig(opts *RunOptions, args []string, cmd *cobra.Command) (*config.Config, error) {
	path := opts.ConfigPath
	if path == "" && len(args) == 1 {
		candidate := filepath.Join(args[0], config.DefaultFileName)
		if _, err := os.Stat(candidate); err == nil {
			path = candidate
		}
	}

	cfg := config.Default()
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to load config", err)
		}
		if !filepath.IsAbs(loaded.PipelineDir) {
			loaded.PipelineDir = filepath.Join(filepath.Dir(path), loaded.PipelineDir)
		}
		cfg = loaded
	}

	if len(args) == 1 {
		cfg.PipelineDir = args[0]
	}
	flags := cmd.Flags()
	if flags.Changed("pipeline") {
		cfg.Pipeline = opts.Pipeline
	}
	if flags.Changed("period-ms") {
		cfg.PeriodMillis = opts.PeriodMillis
	}
	if flags.Changed("db") {
		cfg.DBPath = opts.Database
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr = opts.MetricsAddr
	}
	if flags.Changed("remote-addr") {
		cfg.RemoteAddr = opts.RemoteAddr
	}
	if flags.Changed("stdin") {
		cfg.Stdin = opts.Stdin
	}
	if flags.Changed("watch") {
		cfg.Watch = opts.Watch
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = opts.LogFormat
	}

	if cfg.PipelineDir == "" {
		return nil, NewExitError(ExitCommandError, "no pipeline directory: pass one or set pipeline_dir in the config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	return cfg, nil
}

func runPipeline(opts *RunOptions, cfg *config.Config, cmd *cobra.Command) error {
	logger := newLogger(cmd.ErrOrStderr(), opts.RootOptions, cfg.Log.Level, cfg.Log.Format)

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var st *store.Store
	if cfg.DBPath != "" {
		logger.Info("opening database", "path", cfg.DBPath)
		var err error
		st, err = store.Open(cfg.DBPath)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				logger.Error("error closing database", "error", closeErr)
			}
		}()
	}

	var influx *telemetry.Influx
	if cfg.Influx != nil {
		influx = telemetry.NewInflux(cfg.Influx.URL, cfg.Influx.Token, cfg.Influx.Org, cfg.Influx.Bucket)
		defer influx.Close()
	}

	metrics := telemetry.NewMetrics()
	serial := remote.NewSerial(remote.WithLogger(logger))

	sessionIDs := opts.SessionIDs
	if sessionIDs == nil {
		sessionIDs = store.UUIDv7Generator{}
	}

	build := func(ctx context.Context) (*builder.Pipeline, error) {
		def, err := compiler.Load(cfg.PipelineDir, cfg.Pipeline)
		if err != nil {
			return nil, err
		}
		bopts := []builder.Option{
			builder.WithLogger(logger),
			builder.WithSerial(serial),
			builder.WithMetrics(metrics),
		}
		if cfg.PeriodMillis > 0 {
			bopts = append(bopts, builder.WithPeriod(cfg.Period()))
		}
		if st != nil {
			bopts = append(bopts, builder.WithStore(st, sessionIDs))
		}
		if influx != nil {
			bopts = append(bopts, builder.WithInflux(influx))
		}
		return builder.Build(ctx, def, bopts...)
	}

	sup := reload.New(build, reload.WithLogger(logger))
	if err := sup.Start(ctx); err != nil {
		return WrapExitError(ExitCommandError, "failed to start pipeline", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	if cfg.MetricsAddr != "" {
		if err := serveHTTP(gctx, g, cfg.MetricsAddr, metrics.Handler(), logger); err != nil {
			return WrapExitError(ExitCommandError, "failed to serve metrics", err)
		}
	}
	if cfg.RemoteAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/remote", remote.Handler(serial))
		if err := serveHTTP(gctx, g, cfg.RemoteAddr, mux, logger); err != nil {
			return WrapExitError(ExitCommandError, "failed to serve remote", err)
		}
	}
	g.Go(func() error { return sup.Run(gctx) })
	g.Go(func() error { return reloadOnHangup(gctx, sup) })
	if cfg.Watch {
		g.Go(func() error { return sup.Watch(gctx, cfg.PipelineDir) })
	}
	if cfg.Stdin {
		// Not joined: a blocked read on stdin cannot be cancelled.
		go func() {
			if err := remote.ServeLines(gctx, serial, cmd.InOrStdin(), cmd.OutOrStdout()); err != nil && !isShutdown(err) {
				logger.Error("stdin remote stopped", "error", err)
			}
		}()
	}

	if opts.Ready != nil {
		opts.Ready(sup)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Pipeline %s running. Press Ctrl-C to stop.\n", sup.Active().Definition.Name)

	err := g.Wait()
	stats := sup.Active().Controller.Stats()
	logger.Info("pipeline stopped",
		"cycles", stats.Cycles,
		"failures", stats.Failures,
		"reloads", sup.Stats().Reloads,
	)
	if err != nil && !isShutdown(err) {
		return WrapExitError(ExitFailure, "pipeline error", err)
	}
	return nil
}

// reloadOnHangup turns SIGHUP into reload requests.
func reloadOnHangup(ctx context.Context, sup *reload.Supervisor) error {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-hup:
			sup.Request("SIGHUP")
		}
	}
}

// serveHTTP listens on addr and serves h until ctx is done. Listening
// happens before returning so a bad address fails the command immediately.
func serveHTTP(ctx context.Context, g *errgroup.Group, addr string, h http.Handler, logger *slog.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv := &http.Server{Handler: h, ReadHeaderTimeout: 5 * time.Second}
	logger.Info("listening", "addr", ln.Addr().String())

	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve %s: %w", addr, err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return nil
}

func isShutdown(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
