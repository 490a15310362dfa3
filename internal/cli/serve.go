package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonathon-love/silky/internal/api"
	"github.com/jonathon-love/silky/internal/config"
	"github.com/jonathon-love/silky/internal/engine"
	"github.com/jonathon-love/silky/internal/store"
)

// engineStopTimeout bounds the wait for the receive loop after the API stops.
const engineStopTimeout = 5 * time.Second

// serveOptions holds flag values for serve. Empty values leave the loaded
// configuration alone.
type serveOptions struct {
	listenAddr  string
	dbPath      string
	engineBin   string
	sessionPath string
	root        string
	logLevel    string
	recvTimeout time.Duration
}

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the engine and the admin API",
		Long: `Start the analysis engine and the admin HTTP API. The command runs until
it receives SIGINT or SIGTERM, or until the engine process exits.

Configuration comes from SILKY_* environment variables and the YAML file
named by SILKY_CONFIG; flags take precedence over both.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			opts.apply(&cfg)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger := config.NewLogger(cmd.OutOrStdout(), cfg.LogLevel)
			launcher := engine.ExecLauncher{Stdout: cmd.OutOrStdout(), Stderr: cmd.ErrOrStderr()}
			return runServe(ctx, cfg, logger, engine.WithLauncher(launcher))
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.listenAddr, "listen", "", "admin API listen address")
	f.StringVar(&opts.dbPath, "db", "", "history database path")
	f.StringVar(&opts.engineBin, "engine", "", "engine binary (defaults to bin/jamovi-engine under --root)")
	f.StringVar(&opts.sessionPath, "session", "", "session directory passed to the engine")
	f.StringVar(&opts.root, "root", "", "installation root")
	f.StringVar(&opts.logLevel, "log-level", "", "log level (debug|info|warn|error)")
	f.DurationVar(&opts.recvTimeout, "recv-timeout", 0, "receive loop timeout")

	return cmd
}

func (o *serveOptions) apply(cfg *config.Config) {
	if o.listenAddr != "" {
		cfg.ListenAddr = o.listenAddr
	}
	if o.dbPath != "" {
		cfg.DBPath = o.dbPath
	}
	if o.engineBin != "" {
		cfg.EngineBin = o.engineBin
	}
	if o.sessionPath != "" {
		cfg.SessionPath = o.sessionPath
	}
	if o.root != "" {
		cfg.Root = o.root
	}
	if o.logLevel != "" {
		cfg.LogLevel = config.ParseLogLevel(o.logLevel)
	}
	if o.recvTimeout > 0 {
		cfg.ReceiveTimeout = o.recvTimeout
	}
}

// engineConfig derives the manager configuration from the application's.
func engineConfig(cfg config.Config) engine.Config {
	exe := cfg.EngineBin
	if exe == "" {
		exe = engine.DefaultExecutable(cfg.Root)
	}
	libs := cfg.LibraryDirs
	if len(libs) == 0 && cfg.Root != "" {
		libs = engine.DefaultLibraryDirs(cfg.Root)
	}
	return engine.Config{
		Executable:     exe,
		LibraryDirs:    libs,
		ReceiveTimeout: cfg.ReceiveTimeout,
	}
}

// runServe wires the store, manager and API together and blocks until ctx is
// cancelled or the engine stops.
func runServe(ctx context.Context, cfg config.Config, logger *slog.Logger, opts ...engine.Option) error {
	logger.Info("silky: starting",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"session_path", cfg.SessionPath,
	)

	db, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	mgr, err := engine.New(engineConfig(cfg), append([]engine.Option{engine.WithLogger(logger)}, opts...)...)
	if err != nil {
		return fmt.Errorf("create engine manager: %w", err)
	}

	broker := engine.NewResultBroker(mgr.ID())
	history := engine.NewHistoryRecorder(db, mgr.ID(), logger)
	mgr.AddRequestResultsListener(history)
	mgr.AddRequestResultsListener(broker)
	mgr.AddEngineListener(history)
	mgr.AddEngineListener(broker)

	if err := mgr.Start(ctx, cfg.SessionPath); err != nil {
		_ = mgr.Close()
		return fmt.Errorf("start engine: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-mgr.Done():
			logger.Warn("engine stopped, shutting down API")
			cancel()
		case <-serverCtx.Done():
		}
	}()

	srv := api.NewServer(cfg.ListenAddr, db, mgr, broker, logger)
	serveErr := srv.Run(serverCtx)

	_ = mgr.Close()
	select {
	case <-mgr.Done():
	case <-time.After(engineStopTimeout):
		logger.Warn("engine receive loop did not stop in time")
	}

	if serveErr != nil {
		return serveErr
	}
	if err := mgr.Err(); err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	return nil
}
